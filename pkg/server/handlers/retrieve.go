package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/server/dto"
	"github.com/soundprediction/risposta/pkg/types"
)

// RetrieveHandler serves search, fusion and judgment requests over a
// shared searcher. The searcher's runs and the qrels are mutable shared
// state; the handler serializes access through the gin engine only, so
// deployments with concurrent writers need an external lock.
type RetrieveHandler struct {
	searcher *search.Searcher
	qrels    *search.Qrels
}

// NewRetrieveHandler creates a new retrieve handler
func NewRetrieveHandler(s *search.Searcher, qrels *search.Qrels) *RetrieveHandler {
	return &RetrieveHandler{searcher: s, qrels: qrels}
}

// Search handles POST /search: every configured index is queried and the
// per-index plus fused rankings are returned.
func (h *RetrieveHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	h.search(c, req.Queries, req.K)
}

// Fuse handles POST /fuse: interpolation weights are applied to the
// indexes before searching, so the fused ranking reflects the request's
// weights.
func (h *RetrieveHandler) Fuse(c *gin.Context) {
	var req dto.FuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	known := make(map[string]bool, len(h.searcher.Indexes()))
	for _, idx := range h.searcher.Indexes() {
		known[idx.Name()] = true
	}
	for name := range req.Weights {
		if !known[name] {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error: fmt.Sprintf("unknown index %q", name),
			})
			return
		}
	}
	for _, idx := range h.searcher.Indexes() {
		if w, ok := req.Weights[idx.Name()]; ok {
			idx.SetInterpolationWeight(w)
		}
	}
	h.search(c, req.Queries, 0)
}

func (h *RetrieveHandler) search(c *gin.Context, queries []string, k int) {
	batch := make([]types.Question, len(queries))
	for i, q := range queries {
		batch[i] = types.Question{ID: uuid.NewString(), Input: q}
	}
	batch, err := h.searcher.SearchBatch(c.Request.Context(), batch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	resp := dto.SearchResponse{Queries: make([]dto.QueryResult, len(batch))}
	for i := range batch {
		result := dto.QueryResult{
			ID:      batch[i].ID,
			Query:   batch[i].Input,
			Results: make(map[string][]dto.Hit),
		}
		for name, r := range batch[i].Search {
			hits := make([]dto.Hit, len(r.Indices))
			for j := range r.Indices {
				hits[j] = dto.Hit{ID: r.Indices[j], Score: r.Scores[j]}
			}
			if k > 0 && len(hits) > k {
				hits = hits[:k]
			}
			result.Results[name] = hits
		}
		resp.Queries[i] = result
	}
	c.JSON(http.StatusOK, resp)
}

// Qrels handles GET /qrels: the current judgments in TREC qrels text
// form, one "qid 0 docid grade" line per judged document.
func (h *RetrieveHandler) Qrels(c *gin.Context) {
	var b strings.Builder
	for _, qid := range h.qrels.QuestionIDs() {
		grades := h.qrels.Grades(qid)
		docids := make([]string, 0, len(grades))
		for docid := range grades {
			docids = append(docids, docid)
		}
		sort.Strings(docids)
		for _, docid := range docids {
			fmt.Fprintf(&b, "%s 0 %s %d\n", qid, docid, grades[docid])
		}
	}
	c.String(http.StatusOK, b.String())
}
