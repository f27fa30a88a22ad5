package train

import (
	"strings"
	"unicode"
)

// normalizeAnswer lowercases, strips punctuation and articles and
// collapses whitespace, the usual extractive-QA normalization.
func normalizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if w == "a" || w == "an" || w == "the" {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// ExactMatch is 1 when the normalized prediction equals any normalized
// gold answer.
func ExactMatch(pred string, golds []string) float64 {
	norm := normalizeAnswer(pred)
	for _, gold := range golds {
		if norm == normalizeAnswer(gold) {
			return 1
		}
	}
	return 0
}

// F1 is the maximum token-level F1 between the prediction and any gold
// answer.
func F1(pred string, golds []string) float64 {
	best := 0.0
	predTokens := strings.Fields(normalizeAnswer(pred))
	for _, gold := range golds {
		goldTokens := strings.Fields(normalizeAnswer(gold))
		if f := tokenF1(predTokens, goldTokens); f > best {
			best = f
		}
	}
	return best
}

func tokenF1(pred, gold []string) float64 {
	if len(pred) == 0 || len(gold) == 0 {
		if len(pred) == len(gold) {
			return 1
		}
		return 0
	}
	counts := make(map[string]int, len(gold))
	for _, t := range gold {
		counts[t]++
	}
	common := 0
	for _, t := range pred {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(pred))
	recall := float64(common) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}
