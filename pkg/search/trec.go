package search

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Qrels holds query relevance judgments: question id to passage id to
// integer grade. A passage id appears at most once per question; later adds
// overwrite. Qrels are rebuilt at the start of each evaluation phase, never
// merged across phases.
type Qrels struct {
	grades map[string]map[string]int
}

// NewQrels creates empty judgments.
func NewQrels() *Qrels {
	return &Qrels{grades: make(map[string]map[string]int)}
}

// Add records one judgment, overwriting any previous grade for the pair.
func (q *Qrels) Add(qid, docid string, grade int) {
	if grade < 0 {
		grade = 0
	}
	docs, ok := q.grades[qid]
	if !ok {
		docs = make(map[string]int)
		q.grades[qid] = docs
	}
	docs[docid] = grade
}

// AddMulti records judgments for a batch of questions; docids[i] and
// grades[i] belong to qids[i].
func (q *Qrels) AddMulti(qids []string, docids [][]string, grades [][]int) error {
	if len(docids) != len(qids) || len(grades) != len(qids) {
		return fmt.Errorf("mismatched qrels batch: %d ids, %d doc lists, %d grade lists", len(qids), len(docids), len(grades))
	}
	for i, qid := range qids {
		if len(docids[i]) != len(grades[i]) {
			return fmt.Errorf("mismatched qrels row for %s: %d docs, %d grades", qid, len(docids[i]), len(grades[i]))
		}
		for j, docid := range docids[i] {
			q.Add(qid, docid, grades[i][j])
		}
	}
	return nil
}

// Reset discards all judgments.
func (q *Qrels) Reset() {
	q.grades = make(map[string]map[string]int)
}

// Len returns the number of judged questions.
func (q *Qrels) Len() int { return len(q.grades) }

// Grades returns the judgments for one question (nil when unjudged).
func (q *Qrels) Grades(qid string) map[string]int { return q.grades[qid] }

// QuestionIDs returns judged question ids in sorted order.
func (q *Qrels) QuestionIDs() []string {
	ids := make([]string, 0, len(q.grades))
	for qid := range q.grades {
		ids = append(ids, qid)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the judgments in TREC format: "qid 0 docid grade".
func (q *Qrels) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create qrels file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, qid := range q.QuestionIDs() {
		docs := q.grades[qid]
		docids := make([]string, 0, len(docs))
		for docid := range docs {
			docids = append(docids, docid)
		}
		sort.Strings(docids)
		for _, docid := range docids {
			fmt.Fprintf(w, "%s 0 %s %d\n", qid, docid, docs[docid])
		}
	}
	return w.Flush()
}

// LoadQrels reads judgments from a TREC qrels file.
func LoadQrels(path string) (*Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open qrels file: %w", err)
	}
	defer f.Close()
	q := NewQrels()
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed qrels line %d: %q", line, scanner.Text())
		}
		grade, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("malformed grade on qrels line %d: %w", line, err)
		}
		q.Add(fields[0], fields[2], grade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read qrels file: %w", err)
	}
	return q, nil
}

// Run is a named ranked result list: question id to passage id to score.
// A searcher overwrites its runs in place on every scoring call.
type Run struct {
	Name   string
	scores map[string]map[string]float64
}

// NewRun creates an empty run.
func NewRun(name string) *Run {
	return &Run{Name: name, scores: make(map[string]map[string]float64)}
}

// Add records one scored document for a question.
func (r *Run) Add(qid, docid string, score float64) {
	docs, ok := r.scores[qid]
	if !ok {
		docs = make(map[string]float64)
		r.scores[qid] = docs
	}
	docs[docid] = score
}

// Set replaces the whole result list of one question.
func (r *Run) Set(qid string, docs map[string]float64) {
	r.scores[qid] = docs
}

// Reset discards all results, keeping the name.
func (r *Run) Reset() {
	r.scores = make(map[string]map[string]float64)
}

// Len returns the number of questions with results.
func (r *Run) Len() int { return len(r.scores) }

// Scores returns the result list of one question (nil when absent).
func (r *Run) Scores(qid string) map[string]float64 { return r.scores[qid] }

// QuestionIDs returns question ids with results in sorted order.
func (r *Run) QuestionIDs() []string {
	ids := make([]string, 0, len(r.scores))
	for qid := range r.scores {
		ids = append(ids, qid)
	}
	sort.Strings(ids)
	return ids
}

// Ranking returns the documents of one question sorted by descending
// score, ties broken by document id for determinism.
func (r *Run) Ranking(qid string) []string {
	docs := r.scores[qid]
	ids := make([]string, 0, len(docs))
	for docid := range docs {
		ids = append(ids, docid)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := docs[ids[i]], docs[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Save writes the run in TREC format: "qid Q0 docid rank score name".
func (r *Run) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, qid := range r.QuestionIDs() {
		for rank, docid := range r.Ranking(qid) {
			fmt.Fprintf(w, "%s Q0 %s %d %g %s\n", qid, docid, rank+1, r.scores[qid][docid], r.Name)
		}
	}
	return w.Flush()
}

// LoadRun reads a run from a TREC run file.
func LoadRun(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run file: %w", err)
	}
	defer f.Close()
	run := NewRun("")
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 6 {
			return nil, fmt.Errorf("malformed run line %d: %q", line, scanner.Text())
		}
		score, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed score on run line %d: %w", line, err)
		}
		run.Add(fields[0], fields[2], score)
		run.Name = fields[5]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	return run, nil
}
