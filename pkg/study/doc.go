// Package study implements persistent hyperparameter studies with grid
// sampling. A Study records trials, each a parameter assignment with an
// objective value, and persists them through a pluggable Store so that an
// interrupted search resumes where it left off instead of repeating
// completed trials.
package study
