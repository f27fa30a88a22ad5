package study

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Param is one half-open parameter range [Low, High) sampled at Step
// increments, so High itself is never proposed.
type Param struct {
	Name string
	Low  float64
	High float64
	Step float64
}

// Values enumerates the grid points of the range in ascending order.
func (p Param) Values() []float64 {
	var out []float64
	for i := 0; ; i++ {
		v := p.Low + float64(i)*p.Step
		// Snap to the step precision so 0.1*3 proposes 0.3, not 0.30000000000000004.
		v = math.Round(v/p.Step) * p.Step
		if v >= p.High {
			return out
		}
		out = append(out, v)
	}
}

// GridSampler proposes parameter assignments from the cartesian product
// of its parameter grids, in a fixed deterministic order, skipping
// assignments already recorded in the study.
type GridSampler struct {
	params []Param
	grid   []map[string]float64
}

// NewGridSampler builds a sampler over the given parameters. Parameter
// order fixes the enumeration order of the grid.
func NewGridSampler(params []Param) (*GridSampler, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("grid sampler requires at least one parameter")
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("grid sampler: unnamed parameter")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("grid sampler: duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Step <= 0 {
			return nil, fmt.Errorf("grid sampler: parameter %q has non-positive step", p.Name)
		}
		if p.High <= p.Low {
			return nil, fmt.Errorf("grid sampler: parameter %q has empty range", p.Name)
		}
	}
	s := &GridSampler{params: params}
	s.grid = s.enumerate()
	return s, nil
}

// Size returns the total number of grid points.
func (s *GridSampler) Size() int { return len(s.grid) }

// Next returns the first grid point not yet present among the given
// trials, or false when the grid is exhausted. Pruned and failed trials
// count as tried.
func (s *GridSampler) Next(trials []Trial) (map[string]float64, bool) {
	tried := make(map[string]bool, len(trials))
	for _, t := range trials {
		tried[paramKey(t.Params)] = true
	}
	for _, point := range s.grid {
		if tried[paramKey(point)] {
			continue
		}
		out := make(map[string]float64, len(point))
		for k, v := range point {
			out[k] = v
		}
		return out, true
	}
	return nil, false
}

// enumerate builds the cartesian product with the last parameter varying
// fastest.
func (s *GridSampler) enumerate() []map[string]float64 {
	values := make([][]float64, len(s.params))
	total := 1
	for i, p := range s.params {
		values[i] = p.Values()
		total *= len(values[i])
	}
	grid := make([]map[string]float64, 0, total)
	counters := make([]int, len(s.params))
	for n := 0; n < total; n++ {
		point := make(map[string]float64, len(s.params))
		for i, p := range s.params {
			point[p.Name] = values[i][counters[i]]
		}
		grid = append(grid, point)
		for i := len(counters) - 1; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(values[i]) {
				break
			}
			counters[i] = 0
		}
	}
	return grid
}

// paramKey serializes a parameter assignment into a canonical string so
// assignments compare by value regardless of map iteration order.
func paramKey(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(params[name], 'g', 12, 64))
	}
	return b.String()
}
