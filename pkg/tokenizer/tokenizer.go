package tokenizer

import (
	"errors"
	"hash/fnv"
	"strings"
	"unicode"
)

// ErrEmptyText is returned when asked to encode an empty string.
var ErrEmptyText = errors.New("empty text")

// Encoding is a fixed-length token id sequence for one question-passage
// pair. PassageStart and PassageEnd delimit the passage tokens inside
// IDs, half-open.
type Encoding struct {
	IDs          []int
	Mask         []int
	PassageStart int
	PassageEnd   int
	// PassageWords aligns one surface word with each passage token so
	// spans decode back to text.
	PassageWords []string
}

// PassageIDs returns the passage portion of the sequence.
func (e Encoding) PassageIDs() []int {
	return e.IDs[e.PassageStart:e.PassageEnd]
}

// DecodeSpan returns the text of the token span [start, end], absolute
// positions. Spans outside the passage region decode to "".
func (e Encoding) DecodeSpan(start, end int) string {
	if start < e.PassageStart || end >= e.PassageEnd || start > end {
		return ""
	}
	words := e.PassageWords[start-e.PassageStart : end-e.PassageStart+1]
	return strings.Join(words, " ")
}

// Tokenizer turns text into token ids. Implementations must be
// deterministic: the same text always yields the same ids, so answer
// token sequences can be matched inside passage token sequences.
type Tokenizer interface {
	// EncodePair encodes a question with a passage into one padded
	// sequence of MaxLength ids.
	EncodePair(question, passage string) (Encoding, error)
	// Encode encodes a bare text without special tokens or padding.
	Encode(text string) ([]int, error)
	PadID() int
	MaxLength() int
}

// Reserved ids of the word tokenizer.
const (
	wordPadID = 0
	wordClsID = 1
	wordSepID = 2

	// wordVocabOffset keeps hashed word ids clear of the reserved ids.
	wordVocabOffset = 3
	wordVocabSize   = 1 << 30
)

// Word is a whitespace and punctuation splitting tokenizer with hashed
// word ids. It is deterministic without any vocabulary file, which makes
// it the reference implementation for batch construction and tests.
type Word struct {
	maxLength int
}

// NewWord creates a word tokenizer producing sequences of maxLength ids.
func NewWord(maxLength int) *Word {
	return &Word{maxLength: maxLength}
}

func (w *Word) PadID() int     { return wordPadID }
func (w *Word) MaxLength() int { return w.maxLength }

// Encode lowercases, splits and hashes text into word ids.
func (w *Word) Encode(text string) ([]int, error) {
	words := splitWords(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}
	ids := make([]int, len(words))
	for i, word := range words {
		ids[i] = hashWord(word)
	}
	return ids, nil
}

// EncodePair lays out [CLS] question [SEP] passage [SEP], truncates the
// passage to fit and pads to MaxLength. Empty passages produce an all
// padding sequence after the question, with an empty passage region.
func (w *Word) EncodePair(question, passage string) (Encoding, error) {
	qIDs, err := w.Encode(question)
	if err != nil {
		return Encoding{}, err
	}
	ids := make([]int, 0, w.maxLength)
	ids = append(ids, wordClsID)
	ids = append(ids, qIDs...)
	ids = append(ids, wordSepID)
	if len(ids) > w.maxLength {
		ids = ids[:w.maxLength]
	}
	start := len(ids)
	var passageWords []string
	if words := splitWords(passage); len(words) > 0 {
		room := w.maxLength - len(ids) - 1
		if room < 0 {
			room = 0
		}
		if len(words) > room {
			words = words[:room]
		}
		for _, word := range words {
			ids = append(ids, hashWord(word))
		}
		passageWords = words
	}
	end := len(ids)
	if end < w.maxLength {
		ids = append(ids, wordSepID)
	}
	mask := make([]int, w.maxLength)
	for i := range ids {
		mask[i] = 1
	}
	for len(ids) < w.maxLength {
		ids = append(ids, wordPadID)
	}
	return Encoding{IDs: ids, Mask: mask, PassageStart: start, PassageEnd: end, PassageWords: passageWords}, nil
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashWord(word string) int {
	h := fnv.New64a()
	h.Write([]byte(word))
	return int(h.Sum64()%wordVocabSize) + wordVocabOffset
}
