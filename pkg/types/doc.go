// Package types defines the core data types for the risposta QA toolkit.
//
// This package contains the fundamental types used throughout risposta:
//   - Question: A question with its gold answer set and retrieval results
//   - Passage: A knowledge-base passage with a stable integer index
//   - AnswerSpan / SpanTargets: Rectangular answer-span supervision for
//     multi-passage readers
//
// # Retrieval result columns
//
// Question carries the output of information retrieval under a configurable
// search key. For the default key "search" the columns are search_indices,
// search_scores (ranked results used during evaluation), and
// search_provenance_indices, search_irrelevant_indices,
// search_alternative_indices (relevance partitions used during training).
//
// All types are designed to be JSON-serializable with appropriate struct tags.
package types
