package types

// AnswerSpan locates one occurrence of an answer inside a passage of a
// multi-passage batch: the passage slot within the question's M slots and
// the inclusive token start/end positions.
type AnswerSpan struct {
	Passage int `json:"passage"`
	Start   int `json:"start"`
	End     int `json:"end"`
}

// SpanTargets is the rectangular span supervision for one batch of N
// questions with M passages each. Every passage slot carries up to MaxN
// answer occurrences; slots beyond the number of found occurrences are kept
// (not deleted) and masked out so tensor shapes stay rectangular.
//
// Starts, Ends and Mask are indexed [question][passage][occurrence].
type SpanTargets struct {
	Starts [][][]int `json:"start_positions"`
	Ends   [][][]int `json:"end_positions"`
	Mask   [][][]int `json:"answer_mask"`
	MaxN   int       `json:"max_n_answers"`
}

// NewSpanTargets allocates zeroed targets for n questions, m passages and
// maxN occurrences per passage.
func NewSpanTargets(n, m, maxN int) *SpanTargets {
	t := &SpanTargets{MaxN: maxN}
	t.Starts = make([][][]int, n)
	t.Ends = make([][][]int, n)
	t.Mask = make([][][]int, n)
	for i := 0; i < n; i++ {
		t.Starts[i] = make([][]int, m)
		t.Ends[i] = make([][]int, m)
		t.Mask[i] = make([][]int, m)
		for j := 0; j < m; j++ {
			t.Starts[i][j] = make([]int, maxN)
			t.Ends[i][j] = make([]int, maxN)
			t.Mask[i][j] = make([]int, maxN)
		}
	}
	return t
}
