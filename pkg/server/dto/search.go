// Package dto defines the request and response bodies of the retrieval
// service.
package dto

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchRequest asks for retrieval over one or more queries.
type SearchRequest struct {
	Queries []string `json:"queries" binding:"required,min=1"`
	K       int      `json:"k"`
}

// FuseRequest re-scores queries under explicit interpolation weights,
// one weight per index name.
type FuseRequest struct {
	Queries []string           `json:"queries" binding:"required,min=1"`
	Weights map[string]float64 `json:"weights" binding:"required"`
}

// Hit is one ranked passage.
type Hit struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// QueryResult holds the rankings of one query, keyed by run name (one
// per index, plus the fused run when fusion is configured).
type QueryResult struct {
	ID      string           `json:"id"`
	Query   string           `json:"query"`
	Results map[string][]Hit `json:"results"`
}

// SearchResponse is the reply to /search and /fuse.
type SearchResponse struct {
	Queries []QueryResult `json:"queries"`
}
