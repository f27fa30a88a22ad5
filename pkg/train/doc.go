// Package train builds multi-passage batches and computes the losses and
// evaluation metrics of reader and bi-encoder models. Each batch holds N
// questions with exactly M passages apiece, padded with empty passages,
// and rectangular answer-span targets. The reader loss normalizes span
// scores globally across a question's passages; the bi-encoder loss
// contrasts question representations against the passages of the whole
// worker group.
package train
