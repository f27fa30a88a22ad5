package gather

import (
	"context"
	"fmt"
	"sync"
)

// Buffer is a matrix of representation rows exchanged between workers.
// Tracked marks buffers that participate in gradient computation; a
// buffer received from another worker is always detached.
type Buffer struct {
	Rows    [][]float64
	Tracked bool
}

// Len returns the number of rows.
func (b Buffer) Len() int { return len(b.Rows) }

// Detach returns a deep copy of the buffer with gradient tracking off.
func (b Buffer) Detach() Buffer {
	rows := make([][]float64, len(b.Rows))
	for i, row := range b.Rows {
		rows[i] = make([]float64, len(row))
		copy(rows[i], row)
	}
	return Buffer{Rows: rows}
}

// Group coordinates the collective operations of a fixed set of workers.
type Group struct {
	size int

	mu      sync.Mutex
	current *round
	currInt *intRound
}

type round struct {
	bufs    []Buffer
	arrived int
	done    chan struct{}
}

type intRound struct {
	vecs    [][]int
	arrived int
	done    chan struct{}
}

// NewGroup creates a group of size workers.
func NewGroup(size int) (*Group, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	return &Group{size: size}, nil
}

// Size returns the number of workers in the group.
func (g *Group) Size() int { return g.size }

// Worker returns the handle for the given rank.
func (g *Group) Worker(rank int) (*Worker, error) {
	if rank < 0 || rank >= g.size {
		return nil, fmt.Errorf("rank %d out of range for group of %d", rank, g.size)
	}
	return &Worker{group: g, rank: rank}, nil
}

// Worker is one member of a group. A worker is not safe for concurrent
// use; each goroutine owns exactly one rank.
type Worker struct {
	group *Group
	rank  int
}

// Rank returns the worker's rank.
func (w *Worker) Rank() int { return w.rank }

// Size returns the group size.
func (w *Worker) Size() int { return w.group.size }

// AllGather exchanges buffers with every other worker and returns all of
// them in rank order. The caller's own buffer is returned as passed,
// tracking included; every other buffer is a detached copy. All workers
// of the group must call AllGather for the collective to complete. With
// a single worker the call returns immediately with the local buffer.
func (w *Worker) AllGather(ctx context.Context, local Buffer) ([]Buffer, error) {
	if w.group.size == 1 {
		return []Buffer{local}, nil
	}

	g := w.group
	g.mu.Lock()
	if g.current == nil {
		g.current = &round{
			bufs: make([]Buffer, g.size),
			done: make(chan struct{}),
		}
	}
	r := g.current
	r.bufs[w.rank] = local
	r.arrived++
	if r.arrived == g.size {
		g.current = nil
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("all-gather rank %d: %w", w.rank, ctx.Err())
	}

	out := make([]Buffer, g.size)
	for rank, buf := range r.bufs {
		if rank == w.rank {
			out[rank] = local
			continue
		}
		out[rank] = buf.Detach()
	}
	return out, nil
}

// AllGatherInts exchanges integer vectors, typically labels, and returns
// them in rank order. Every returned vector is a copy except the caller's
// own, which is the slice that was passed in.
func (w *Worker) AllGatherInts(ctx context.Context, local []int) ([][]int, error) {
	if w.group.size == 1 {
		return [][]int{local}, nil
	}

	g := w.group
	g.mu.Lock()
	if g.currInt == nil {
		g.currInt = &intRound{
			vecs: make([][]int, g.size),
			done: make(chan struct{}),
		}
	}
	r := g.currInt
	r.vecs[w.rank] = local
	r.arrived++
	if r.arrived == g.size {
		g.currInt = nil
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("all-gather rank %d: %w", w.rank, ctx.Err())
	}

	out := make([][]int, g.size)
	for rank, vec := range r.vecs {
		if rank == w.rank {
			out[rank] = local
			continue
		}
		copied := make([]int, len(vec))
		copy(copied, vec)
		out[rank] = copied
	}
	return out, nil
}

// Concat flattens gathered buffers into one row matrix in rank order and
// returns the row offset of the given rank inside it. The offset is what
// a worker adds to its local row labels after gathering.
func Concat(bufs []Buffer, rank int) (rows [][]float64, offset int) {
	total := 0
	for _, b := range bufs {
		total += b.Len()
	}
	rows = make([][]float64, 0, total)
	for i, b := range bufs {
		if i < rank {
			offset += b.Len()
		}
		rows = append(rows, b.Rows...)
	}
	return rows, offset
}
