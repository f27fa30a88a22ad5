// Package dataset provides columnar on-disk storage for QA datasets and
// knowledge bases, backed by Parquet files.
//
// A Dataset supports random-access row selection by integer index list,
// column projection, and sequential batched map operations over the full
// set. A KnowledgeBase is an immutable ordered collection of passages,
// safe for shared concurrent reads.
package dataset
