package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/soundprediction/risposta/pkg/dataset"
)

const defaultSimilarityName = "passage_similarity"

// ElasticConfig holds connection settings for the sparse index.
type ElasticConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`

	// SimilarityName is the name of the custom similarity applied to the
	// passage field; tunable b/k1 live under it.
	SimilarityName string `mapstructure:"similarity_name"`
}

// Elastic is a BM25 sparse index backed by elasticsearch. Passage ids are
// stored as document ids so hits map back to knowledge-base indices.
//
// Elastic implements SimilarityTuner: the engine rejects live similarity
// changes, so retuning closes the index, applies the settings and reopens
// it. That cycle mutates global index state; concurrent tuners against the
// same index must serialize around it.
type Elastic struct {
	name    string
	weight  float64
	client  *elasticsearch.Client
	config  ElasticConfig
	breaker *Breaker
}

// NewElastic connects to an elasticsearch index used as the sparse backend.
func NewElastic(name string, config ElasticConfig, breaker *Breaker) (*Elastic, error) {
	if config.SimilarityName == "" {
		config.SimilarityName = defaultSimilarityName
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Elastic{name: name, client: client, config: config, breaker: breaker}, nil
}

// Name returns the index name.
func (e *Elastic) Name() string { return e.name }

// InterpolationWeight returns the fusion weight of this index.
func (e *Elastic) InterpolationWeight() float64 { return e.weight }

// SetInterpolationWeight sets the fusion weight of this index.
func (e *Elastic) SetInterpolationWeight(w float64) { e.weight = w }

// EnsureIndex creates the elasticsearch index with the custom similarity
// when it does not exist yet.
func (e *Elastic) EnsureIndex(ctx context.Context, b, k1 float64) error {
	res, err := e.client.Indices.Exists([]string{e.config.Index})
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"similarity": map[string]interface{}{
				e.config.SimilarityName: map[string]interface{}{
					"type": "BM25",
					"b":    b,
					"k1":   k1,
				},
			},
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"passage": map[string]interface{}{
					"type":       "text",
					"similarity": e.config.SimilarityName,
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}
	req := esapi.IndicesCreateRequest{Index: e.config.Index, Body: bytes.NewReader(body)}
	res, err = req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// IndexPassages bulk-indexes every knowledge-base passage, using the
// passage index as the document id.
func (e *Elastic) IndexPassages(ctx context.Context, kb *dataset.KnowledgeBase, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	for start := 0; start < kb.Len(); start += batchSize {
		end := start + batchSize
		if end > kb.Len() {
			end = kb.Len()
		}
		var buf bytes.Buffer
		for i := start; i < end; i++ {
			meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, e.config.Index, strconv.Itoa(i))
			doc, err := json.Marshal(map[string]string{"passage": kb.Passage(i).Text})
			if err != nil {
				return fmt.Errorf("failed to marshal passage %d: %w", i, err)
			}
			buf.WriteString(meta)
			buf.WriteByte('\n')
			buf.Write(doc)
			buf.WriteByte('\n')
		}
		res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("bulk indexing failed: %w", err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("bulk indexing failed: %s", res.String())
		}
	}
	return nil
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a BM25 match query for each query string.
func (e *Elastic) Search(ctx context.Context, queries []string, k int) ([]Results, error) {
	out := make([]Results, len(queries))
	for qi, query := range queries {
		body, err := json.Marshal(map[string]interface{}{
			"size": k,
			"query": map[string]interface{}{
				"match": map[string]interface{}{
					"passage": query,
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query: %w", err)
		}
		parsed, err := e.search(ctx, body)
		if err != nil {
			return nil, err
		}
		results := make(Results, 0, len(parsed.Hits.Hits))
		for _, hit := range parsed.Hits.Hits {
			id, err := strconv.Atoi(hit.ID)
			if err != nil {
				return nil, fmt.Errorf("unexpected non-numeric document id %q in index %s", hit.ID, e.config.Index)
			}
			results = append(results, Hit{ID: id, Score: hit.Score})
		}
		out[qi] = results
	}
	return out, nil
}

func (e *Elastic) search(ctx context.Context, body []byte) (*esSearchResponse, error) {
	run := func() (*esSearchResponse, error) {
		res, err := e.client.Search(
			e.client.Search.WithContext(ctx),
			e.client.Search.WithIndex(e.config.Index),
			e.client.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return nil, fmt.Errorf("search request failed: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return nil, fmt.Errorf("search failed: %s", res.String())
		}
		var parsed esSearchResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}
		return &parsed, nil
	}
	if e.breaker == nil {
		return run()
	}
	return Execute(e.breaker, run)
}

// ApplySimilarity closes the index, updates the similarity parameters and
// reopens it.
func (e *Elastic) ApplySimilarity(ctx context.Context, b, k1 float64) error {
	res, err := e.client.Indices.Close([]string{e.config.Index}, e.client.Indices.Close.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to close index: %s", res.String())
	}

	settings := map[string]interface{}{
		"similarity": map[string]interface{}{
			e.config.SimilarityName: map[string]interface{}{
				"type": "BM25",
				"b":    b,
				"k1":   k1,
			},
		},
	}
	body, err := json.Marshal(map[string]interface{}{"index": settings})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	res, err = e.client.Indices.PutSettings(
		strings.NewReader(string(body)),
		e.client.Indices.PutSettings.WithIndex(e.config.Index),
		e.client.Indices.PutSettings.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to update similarity settings: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to update similarity settings: %s", res.String())
	}

	res, err = e.client.Indices.Open([]string{e.config.Index}, e.client.Indices.Open.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to reopen index: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to reopen index: %s", res.String())
	}
	return nil
}
