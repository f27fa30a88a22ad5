// Package tokenizer converts text into token id sequences for reader
// models. Encodings keep track of where the passage tokens sit inside the
// joint question-passage sequence so answer spans can be located in
// passage space.
package tokenizer
