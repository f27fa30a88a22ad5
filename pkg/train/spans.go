package train

import (
	"log/slog"

	"github.com/soundprediction/risposta/pkg/tokenizer"
)

// SpanLocator finds the token spans of gold answers inside encoded
// passages. Spans are absolute positions in the joint question-passage
// sequence.
type SpanLocator struct {
	tok          tokenizer.Tokenizer
	maxN         int
	originalOnly bool
	logger       *slog.Logger
}

// LocatorOption configures a SpanLocator.
type LocatorOption func(*SpanLocator)

// WithOriginalAnswerOnly restricts localization to the first (original)
// answer string.
func WithOriginalAnswerOnly() LocatorOption {
	return func(l *SpanLocator) { l.originalOnly = true }
}

// NewSpanLocator creates a locator recording up to maxN occurrences per
// passage.
func NewSpanLocator(tok tokenizer.Tokenizer, maxN int, opts ...LocatorOption) *SpanLocator {
	l := &SpanLocator{tok: tok, maxN: maxN, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxN returns the occurrence cap.
func (l *SpanLocator) MaxN() int { return l.maxN }

// Locate scans the passage region of enc for each answer left to right.
// A span is accepted when neither its start nor its end position was used
// by an earlier accepted span. Once the first answer string yields any
// span, later answers are not searched. Slots beyond the found
// occurrences carry the sequence length as the ignore sentinel with a
// zero mask. A passage with no occurrence at all keeps slot 0 valid at
// (0, 0).
func (l *SpanLocator) Locate(enc tokenizer.Encoding, answers []string) (starts, ends, mask []int) {
	seqLen := len(enc.IDs)
	starts = make([]int, l.maxN)
	ends = make([]int, l.maxN)
	mask = make([]int, l.maxN)
	for i := range starts {
		starts[i] = seqLen
		ends[i] = seqLen
	}

	passage := enc.PassageIDs()
	usedStarts := make(map[int]bool)
	usedEnds := make(map[int]bool)
	found := 0

	for _, answer := range answers {
		ids, err := l.tok.Encode(answer)
		if err != nil || len(ids) == 0 {
			continue
		}
		for pos := 0; pos+len(ids) <= len(passage) && found < l.maxN; pos++ {
			if !matchAt(passage, ids, pos) {
				continue
			}
			start := enc.PassageStart + pos
			end := start + len(ids) - 1
			if usedStarts[start] || usedEnds[end] {
				continue
			}
			usedStarts[start] = true
			usedEnds[end] = true
			starts[found] = start
			ends[found] = end
			mask[found] = 1
			found++
		}
		// The original answer comes first; once it matched anywhere the
		// alternatives are not searched.
		if found > 0 {
			break
		}
		if l.originalOnly {
			break
		}
	}

	if found == 0 {
		starts[0] = 0
		ends[0] = 0
		mask[0] = 1
	}
	return starts, ends, mask
}

func matchAt(haystack, needle []int, pos int) bool {
	for i, id := range needle {
		if haystack[pos+i] != id {
			return false
		}
	}
	return true
}
