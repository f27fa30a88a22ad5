package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/soundprediction/risposta/pkg/types"
)

// KnowledgeBase is an immutable ordered collection of passages. It is built
// once and then shared read-only by every batch builder and relevance judge,
// so all methods are safe for concurrent use.
type KnowledgeBase struct {
	passages []types.Passage
}

// NewKnowledgeBase wraps passages, assigning the stable index from position
// when unset.
func NewKnowledgeBase(passages []types.Passage) *KnowledgeBase {
	for i := range passages {
		passages[i].Index = i
	}
	return &KnowledgeBase{passages: passages}
}

// Len returns the number of passages.
func (kb *KnowledgeBase) Len() int { return len(kb.passages) }

// Passage returns the passage at index i.
func (kb *KnowledgeBase) Passage(i int) types.Passage { return kb.passages[i] }

// Select returns the passages at the given indices, in order.
func (kb *KnowledgeBase) Select(indices []int) ([]types.Passage, error) {
	out := make([]types.Passage, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(kb.passages) {
			return nil, fmt.Errorf("passage %d out of range [0, %d)", idx, len(kb.passages))
		}
		out[i] = kb.passages[idx]
	}
	return out, nil
}

// Texts returns the passage texts at the given indices, in order.
func (kb *KnowledgeBase) Texts(indices []int) ([]string, error) {
	passages, err := kb.Select(indices)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return texts, nil
}

// AttachImages loads a passage-to-image association from a JSON file mapping
// passage index (as a string) to an image file name, resolved under imageDir.
func (kb *KnowledgeBase) AttachImages(mappingPath, imageDir string) error {
	data, err := os.ReadFile(mappingPath)
	if err != nil {
		return fmt.Errorf("failed to read passage-image mapping: %w", err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("failed to parse passage-image mapping: %w", err)
	}
	for key, name := range mapping {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(kb.passages) {
			return fmt.Errorf("invalid passage index %q in image mapping", key)
		}
		kb.passages[idx].Image = filepath.Join(imageDir, name)
	}
	return nil
}
