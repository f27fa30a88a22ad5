package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Metric errors
var ErrUnknownMetric = fmt.Errorf("unknown metric")

// parseMetric splits a metric spec like "mrr@100" into name and cutoff.
func parseMetric(spec string) (string, int, error) {
	name, cutoffStr, found := strings.Cut(spec, "@")
	if !found {
		return name, 0, nil
	}
	cutoff, err := strconv.Atoi(cutoffStr)
	if err != nil || cutoff <= 0 {
		return "", 0, fmt.Errorf("invalid cutoff in metric %q", spec)
	}
	return name, cutoff, nil
}

// Evaluate computes one ranking metric of a run against qrels, averaged
// over all judged questions. Supported metrics: mrr@k, precision@k,
// hit_rate@k, recall@k.
func Evaluate(qrels *Qrels, run *Run, spec string) (float64, error) {
	name, cutoff, err := parseMetric(spec)
	if err != nil {
		return 0, err
	}
	qids := qrels.QuestionIDs()
	if len(qids) == 0 {
		return 0, fmt.Errorf("empty qrels")
	}
	var total float64
	for _, qid := range qids {
		relevant := relevantSet(qrels.Grades(qid))
		ranking := run.Ranking(qid)
		if cutoff > 0 && len(ranking) > cutoff {
			ranking = ranking[:cutoff]
		}
		switch name {
		case "mrr":
			for rank, docid := range ranking {
				if relevant[docid] {
					total += 1.0 / float64(rank+1)
					break
				}
			}
		case "precision":
			if cutoff == 0 {
				return 0, fmt.Errorf("precision requires a cutoff, e.g. precision@20")
			}
			hits := 0
			for _, docid := range ranking {
				if relevant[docid] {
					hits++
				}
			}
			total += float64(hits) / float64(cutoff)
		case "hit_rate":
			for _, docid := range ranking {
				if relevant[docid] {
					total++
					break
				}
			}
		case "recall":
			if len(relevant) == 0 {
				continue
			}
			hits := 0
			for _, docid := range ranking {
				if relevant[docid] {
					hits++
				}
			}
			total += float64(hits) / float64(len(relevant))
		default:
			return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, name)
		}
	}
	return total / float64(len(qids)), nil
}

func relevantSet(grades map[string]int) map[string]bool {
	rel := make(map[string]bool, len(grades))
	for docid, grade := range grades {
		if grade > 0 {
			rel[docid] = true
		}
	}
	return rel
}

// Report compares several runs on the same qrels across a set of metrics.
type Report struct {
	Metrics []string                      `json:"metrics"`
	Runs    []string                      `json:"runs"`
	Scores  map[string]map[string]float64 `json:"scores"`
}

// Compare evaluates every run on every metric and collects the scores.
func Compare(qrels *Qrels, runs []*Run, metrics []string) (*Report, error) {
	report := &Report{
		Metrics: metrics,
		Scores:  make(map[string]map[string]float64, len(runs)),
	}
	for _, run := range runs {
		report.Runs = append(report.Runs, run.Name)
		scores := make(map[string]float64, len(metrics))
		for _, metric := range metrics {
			v, err := Evaluate(qrels, run, metric)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate %s on run %s: %w", metric, run.Name, err)
			}
			scores[metric] = v
		}
		report.Scores[run.Name] = scores
	}
	sort.Strings(report.Runs)
	return report, nil
}

// Best returns the run with the highest score on the given metric.
func (r *Report) Best(metric string) (string, float64) {
	best, bestScore := "", -1.0
	for _, run := range r.Runs {
		if s := r.Scores[run][metric]; s > bestScore {
			best, bestScore = run, s
		}
	}
	return best, bestScore
}

// JSON serializes the report for the machine-readable artifact.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// LaTeX renders the report as a booktabs-style table, runs as rows and
// metrics as columns, with the best score per metric in bold.
func (r *Report) LaTeX() string {
	var b strings.Builder
	b.WriteString("\\begin{tabular}{l")
	b.WriteString(strings.Repeat("r", len(r.Metrics)))
	b.WriteString("}\n\\toprule\nRun")
	for _, metric := range r.Metrics {
		fmt.Fprintf(&b, " & %s", strings.ReplaceAll(metric, "_", "\\_"))
	}
	b.WriteString(" \\\\\n\\midrule\n")
	best := make(map[string]string, len(r.Metrics))
	for _, metric := range r.Metrics {
		best[metric], _ = r.Best(metric)
	}
	for _, run := range r.Runs {
		b.WriteString(strings.ReplaceAll(run, "_", "\\_"))
		for _, metric := range r.Metrics {
			score := r.Scores[run][metric]
			if run == best[metric] {
				fmt.Fprintf(&b, " & \\textbf{%.3f}", score)
			} else {
				fmt.Fprintf(&b, " & %.3f", score)
			}
		}
		b.WriteString(" \\\\\n")
	}
	b.WriteString("\\bottomrule\n\\end{tabular}\n")
	return b.String()
}

// String renders a plain-text view of the report for logs.
func (r *Report) String() string {
	var b strings.Builder
	for _, run := range r.Runs {
		fmt.Fprintf(&b, "%s:", run)
		for _, metric := range r.Metrics {
			fmt.Fprintf(&b, " %s=%.3f", metric, r.Scores[run][metric])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
