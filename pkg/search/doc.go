// Package search provides hybrid passage retrieval with score fusion and
// IR evaluation for the risposta QA toolkit.
//
// This package combines per-index retrieval (dense or sparse, see
// pkg/index) into a single ranked list via weighted interpolation, records
// the per-index and fused runs, and evaluates them against query relevance
// judgments (qrels).
//
// # Qrels and runs
//
// Qrels map a question id to the set of relevant passage ids with integer
// grades; a Run maps a question id to a ranked (passage id, score) list
// for one retrieval method. Both round-trip through the TREC text format.
// A Searcher overwrites its runs on every scoring call; callers persist a
// run before triggering another scoring call if they need to keep it.
//
// # Relevance judgments
//
// The Judge string-matches gold answers against candidate passages to find
// additional relevant indices beyond the known provenance set, producing
// the qrels consumed by both metric evaluation and the hyperparameter
// search in pkg/hyper.
//
// # Metrics
//
// Evaluate computes a single ranking metric (e.g. "mrr@100") over one run;
// Compare builds a Report across several runs, serializable as JSON and as
// a LaTeX table.
package search
