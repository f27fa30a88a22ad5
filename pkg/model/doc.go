// Package model defines the model surfaces the training and evaluation
// pipelines consume: readers that score answer spans over encoded
// question-passage sequences, bi-encoders that embed questions and
// passages into a shared space, and extractive answerers for plain
// question-context inference. Implementations wrap external model
// runtimes; the pipelines treat them as black boxes.
package model
