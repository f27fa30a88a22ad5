package train

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/tokenizer"
	"github.com/soundprediction/risposta/pkg/types"
)

// Mode selects how a sampler picks a question's M passages.
type Mode int

const (
	// ModeTrain samples relevant passages first, fills with irrelevant.
	ModeTrain Mode = iota
	// ModeEval takes the top-M retrieved passages with their scores.
	ModeEval
	// ModeOracle uses relevant passages only.
	ModeOracle
)

func (m Mode) String() string {
	switch m {
	case ModeTrain:
		return "train"
	case ModeEval:
		return "eval"
	case ModeOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// IgnoreLabel marks a question without a usable target; losses skip such
// rows.
const IgnoreLabel = -100

// emptyPassageIndex marks padding slots in a batch.
const emptyPassageIndex = -1

// Batch is a flat batch of N questions with M passage slots each, row
// r = i*M + m holding passage slot m of question i.
type Batch struct {
	N, M int

	QuestionIDs []string
	Answers     [][]string
	Encodings   []tokenizer.Encoding
	// Live marks rows holding a real passage; padding rows are false.
	Live []bool
	// NRelevant counts the relevant passages placed at the front of each
	// question's slots.
	NRelevant []int
	// Targets is span supervision, present in train and oracle modes.
	Targets *types.SpanTargets
	// Scores holds one retrieval score per row in eval mode.
	Scores []float64
	// SwitchLabels gives the relevant slot per question, IgnoreLabel when
	// none.
	SwitchLabels []int
}

// Row returns the flat row index of passage slot m of question i.
func (b *Batch) Row(i, m int) int { return i*b.M + m }

// Sampled is one question's passage selection.
type Sampled struct {
	Passages  []types.Passage
	Scores    []float64
	NRelevant int
}

// PassageSampler selects M passages per question from the knowledge base.
type PassageSampler struct {
	kb        *dataset.KnowledgeBase
	searchKey string
	m         int
	mode      Mode
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewPassageSampler creates a sampler. searchKey names the retrieval
// whose results feed eval mode. The seed fixes the sampling order.
func NewPassageSampler(kb *dataset.KnowledgeBase, searchKey string, m int, mode Mode, seed int64, logger *slog.Logger) (*PassageSampler, error) {
	if m <= 0 {
		return nil, fmt.Errorf("passage count must be positive, got %d", m)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PassageSampler{
		kb:        kb,
		searchKey: searchKey,
		m:         m,
		mode:      mode,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    logger,
	}, nil
}

// Sample returns exactly M passages for the question, padding with empty
// passages when candidates run out. Relevant passages always occupy the
// leading slots in train and oracle modes.
func (s *PassageSampler) Sample(q *types.Question) (Sampled, error) {
	switch s.mode {
	case ModeEval:
		return s.sampleEval(q)
	case ModeOracle:
		return s.sampleOracle(q)
	default:
		return s.sampleTrain(q)
	}
}

func (s *PassageSampler) sampleTrain(q *types.Question) (Sampled, error) {
	r := q.RetrievalFor(s.searchKey)
	relevant := s.draw(r.ProvenanceIndices, s.m)
	if len(relevant) == 0 {
		s.logger.Warn("question has no relevant passage", "question", q.ID)
	}
	irrelevant := s.draw(r.IrrelevantIndices, s.m-len(relevant))
	passages, err := s.resolve(append(relevant, irrelevant...))
	if err != nil {
		return Sampled{}, err
	}
	return Sampled{Passages: passages, NRelevant: len(relevant)}, nil
}

func (s *PassageSampler) sampleOracle(q *types.Question) (Sampled, error) {
	r := q.RetrievalFor(s.searchKey)
	relevant := s.draw(r.ProvenanceIndices, s.m)
	if len(relevant) < s.m {
		s.logger.Warn("oracle mode padding with empty passages",
			"question", q.ID, "relevant", len(relevant), "m", s.m)
	}
	passages, err := s.resolve(relevant)
	if err != nil {
		return Sampled{}, err
	}
	return Sampled{Passages: passages, NRelevant: len(relevant)}, nil
}

func (s *PassageSampler) sampleEval(q *types.Question) (Sampled, error) {
	r := q.RetrievalFor(s.searchKey)
	indices := r.Indices
	scores := r.Scores
	if len(indices) > s.m {
		indices = indices[:s.m]
		scores = scores[:s.m]
	}
	passages, err := s.resolve(indices)
	if err != nil {
		return Sampled{}, err
	}
	padded := make([]float64, s.m)
	copy(padded, scores)
	return Sampled{Passages: passages, Scores: padded}, nil
}

// draw samples up to n distinct indices without replacement.
func (s *PassageSampler) draw(pool []int, n int) []int {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	perm := s.rng.Perm(len(pool))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

// resolve fetches passages by index and pads the slice to M with empty
// passages.
func (s *PassageSampler) resolve(indices []int) ([]types.Passage, error) {
	out := make([]types.Passage, 0, s.m)
	for _, idx := range indices {
		if idx < 0 || idx >= s.kb.Len() {
			return nil, fmt.Errorf("passage index %d out of range", idx)
		}
		out = append(out, s.kb.Passage(idx))
	}
	for len(out) < s.m {
		out = append(out, types.Passage{Index: emptyPassageIndex})
	}
	return out, nil
}

// Collator turns question rows into flat model-ready batches.
type Collator struct {
	sampler *PassageSampler
	locator *SpanLocator
	tok     tokenizer.Tokenizer
	mode    Mode
	logger  *slog.Logger
}

// NewCollator creates a collator. Train and oracle modes require a
// locator; eval mode builds span targets only when one is given, so the
// evaluation loss stays computable.
func NewCollator(sampler *PassageSampler, locator *SpanLocator, tok tokenizer.Tokenizer, mode Mode, logger *slog.Logger) (*Collator, error) {
	if mode != ModeEval && locator == nil {
		return nil, fmt.Errorf("%s mode requires a span locator", mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collator{sampler: sampler, locator: locator, tok: tok, mode: mode, logger: logger}, nil
}

// Collate builds the flat N×M batch for a slice of questions.
func (c *Collator) Collate(questions []types.Question) (*Batch, error) {
	n := len(questions)
	m := c.sampler.m
	b := &Batch{
		N:            n,
		M:            m,
		QuestionIDs:  make([]string, n),
		Answers:      make([][]string, n),
		Encodings:    make([]tokenizer.Encoding, 0, n*m),
		Live:         make([]bool, 0, n*m),
		NRelevant:    make([]int, n),
		SwitchLabels: make([]int, n),
	}
	if c.locator != nil {
		b.Targets = types.NewSpanTargets(n, m, c.locator.maxN)
	}
	if c.mode == ModeEval {
		b.Scores = make([]float64, 0, n*m)
	}

	for i := range questions {
		q := &questions[i]
		sampled, err := c.sampler.Sample(q)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		b.QuestionIDs[i] = q.ID
		b.Answers[i] = q.Output.All()
		b.NRelevant[i] = sampled.NRelevant
		b.SwitchLabels[i] = c.switchLabel(q, sampled)

		live := 0
		for slot, p := range sampled.Passages {
			enc, err := c.tok.EncodePair(q.Input, p.Text)
			if err != nil {
				return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
			}
			b.Encodings = append(b.Encodings, enc)
			isLive := p.Index != emptyPassageIndex
			b.Live = append(b.Live, isLive)
			if isLive {
				live++
			}
			if c.locator != nil {
				starts, ends, mask := c.locator.Locate(enc, b.Answers[i])
				copy(b.Targets.Starts[i][slot], starts)
				copy(b.Targets.Ends[i][slot], ends)
				copy(b.Targets.Mask[i][slot], mask)
			}
		}
		if c.mode == ModeEval {
			b.Scores = append(b.Scores, sampled.Scores...)
		}
		if live == 0 {
			c.logger.Warn("question batched with empty passages only", "question", q.ID)
		}
	}
	return b, nil
}

// switchLabel derives the relevance-switch target: the first relevant
// slot. In train and oracle modes relevant passages lead, so the label is
// 0 whenever any relevant passage was drawn. In eval mode the label is
// the first retrieved slot whose index appears among the provenance
// indices.
func (c *Collator) switchLabel(q *types.Question, sampled Sampled) int {
	if c.mode != ModeEval {
		if sampled.NRelevant > 0 {
			return 0
		}
		return IgnoreLabel
	}
	r := q.RetrievalFor(c.sampler.searchKey)
	known := make(map[int]bool, len(r.ProvenanceIndices))
	for _, idx := range r.ProvenanceIndices {
		known[idx] = true
	}
	for slot, p := range sampled.Passages {
		if p.Index != emptyPassageIndex && known[p.Index] {
			return slot
		}
	}
	return IgnoreLabel
}

// ContrastiveLabels builds the local label vector for the bi-encoder
// loss: label[i] is the flat row of question i's single relevant passage.
// Questions without a relevant passage get IgnoreLabel. More than one
// relevant passage per question is a configuration error.
func (b *Batch) ContrastiveLabels() ([]int, error) {
	labels := make([]int, b.N)
	for i := 0; i < b.N; i++ {
		switch {
		case b.NRelevant[i] == 0:
			labels[i] = IgnoreLabel
		case b.NRelevant[i] == 1:
			labels[i] = b.Row(i, 0)
		default:
			return nil, fmt.Errorf("question %s has %d relevant passages, contrastive training needs exactly 1",
				b.QuestionIDs[i], b.NRelevant[i])
		}
	}
	return labels, nil
}
