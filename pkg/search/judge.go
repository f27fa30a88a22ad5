package search

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/types"
)

// Judge determines which candidate passages are relevant for a question by
// string-matching its gold answers against the passage text. Judgments
// merge the known provenance indices with candidates whose text contains
// any accepted answer.
type Judge struct {
	kb *dataset.KnowledgeBase
}

// NewJudge creates a relevance judge over the reference knowledge base.
func NewJudge(kb *dataset.KnowledgeBase) *Judge {
	return &Judge{kb: kb}
}

// Relevant returns the union of base (known-relevant indices, kept first)
// and the candidates whose passage contains one of the answers. The base
// slice is not mutated; the result is always a fresh slice so judgments
// can never alias dataset columns across phases.
func (j *Judge) Relevant(candidates []int, answers []string, base []int) []int {
	relevant := make([]int, 0, len(base))
	seen := make(map[int]bool, len(base))
	for _, idx := range base {
		if !seen[idx] {
			seen[idx] = true
			relevant = append(relevant, idx)
		}
	}
	for _, idx := range candidates {
		if seen[idx] || idx < 0 || idx >= j.kb.Len() {
			continue
		}
		text := j.kb.Passage(idx).Text
		for _, answer := range answers {
			if containsAnswer(text, answer) {
				seen[idx] = true
				relevant = append(relevant, idx)
				break
			}
		}
	}
	return relevant
}

// JudgeBatch judges a batch of questions against their unioned candidate
// sets and returns the relevant indices per question.
func (j *Judge) JudgeBatch(batch []types.Question, candidates [][]int, searchKey string) [][]int {
	out := make([][]int, len(batch))
	for i, q := range batch {
		r := q.RetrievalFor(searchKey)
		out[i] = j.Relevant(candidates[i], q.Output.All(), r.ProvenanceIndices)
	}
	return out
}

// containsAnswer reports whether text contains answer as a case-insensitive
// match on word boundaries, so "art" does not match inside "Mozart".
func containsAnswer(text, answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return false
	}
	text = strings.ToLower(text)
	for start := 0; ; {
		pos := strings.Index(text[start:], answer)
		if pos < 0 {
			return false
		}
		pos += start
		end := pos + len(answer)
		beforeOK := pos == 0 || !isWordByte(text[pos-1])
		afterOK := end >= len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		start = pos + 1
	}
}

func isWordByte(b byte) bool {
	return unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}

// FormatQrels converts per-question relevant index lists to the string doc
// ids and grades consumed by Qrels.AddMulti. Questions with no relevant
// passage get the placeholder doc id "-1" with grade 0 so that they still
// appear (and score zero) in metric computation.
func FormatQrels(relevant [][]int) (docids [][]string, grades [][]int) {
	docids = make([][]string, len(relevant))
	grades = make([][]int, len(relevant))
	for i, indices := range relevant {
		if len(indices) == 0 {
			docids[i] = []string{"-1"}
			grades[i] = []int{0}
			continue
		}
		ids := make([]string, len(indices))
		gs := make([]int, len(indices))
		for j, idx := range indices {
			ids[j] = strconv.Itoa(idx)
			gs[j] = 1
		}
		docids[i] = ids
		grades[i] = gs
	}
	return docids, grades
}
