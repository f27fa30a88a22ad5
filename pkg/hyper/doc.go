// Package hyper tunes retrieval hyperparameters with grid search. Two
// objectives are provided: interpolation weights for score fusion across
// several indexes, and the b/k1 similarity parameters of a sparse index.
// The Driver wires a dataset, a searcher and a study together, builds
// relevance judgments once, runs the search and writes the tuned runs and
// metric reports to disk.
package hyper
