package index

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/embedder"
)

// QdrantConfig holds connection settings for a remote dense index.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

// Qdrant is a dense index backed by a qdrant collection. Passage ids are
// stored as numeric point ids, so hits map back to knowledge-base indices
// without a payload lookup.
type Qdrant struct {
	name    string
	weight  float64
	client  *qdrant.Client
	encoder embedder.Client
	config  QdrantConfig
	breaker *Breaker
}

// NewQdrant connects to a qdrant collection used as a dense passage index.
func NewQdrant(name string, encoder embedder.Client, config QdrantConfig, breaker *Breaker) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.APIKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Qdrant{name: name, client: client, encoder: encoder, config: config, breaker: breaker}, nil
}

// Name returns the index name.
func (q *Qdrant) Name() string { return q.name }

// InterpolationWeight returns the fusion weight of this index.
func (q *Qdrant) InterpolationWeight() float64 { return q.weight }

// SetInterpolationWeight sets the fusion weight of this index.
func (q *Qdrant) SetInterpolationWeight(w float64) { q.weight = w }

// IndexPassages embeds and upserts every knowledge-base passage into the
// collection, in batches of batchSize.
func (q *Qdrant) IndexPassages(ctx context.Context, kb *dataset.KnowledgeBase, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 256
	}
	wait := true
	for start := 0; start < kb.Len(); start += batchSize {
		end := start + batchSize
		if end > kb.Len() {
			end = kb.Len()
		}
		texts := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, kb.Passage(i).Text)
		}
		vecs, err := q.encoder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed passages [%d, %d): %w", start, end, err)
		}
		points := make([]*qdrant.PointStruct, len(vecs))
		for i, vec := range vecs {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(start + i)),
				Vectors: qdrant.NewVectors(vec...),
			}
		}
		_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.config.Collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points [%d, %d): %w", start, end, err)
		}
	}
	return nil
}

// Search embeds the queries and retrieves the k nearest points.
func (q *Qdrant) Search(ctx context.Context, queries []string, k int) ([]Results, error) {
	queryVecs, err := q.encoder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}
	limit := uint64(k)
	out := make([]Results, len(queries))
	for qi, vec := range queryVecs {
		points, err := q.query(ctx, vec, limit)
		if err != nil {
			return nil, fmt.Errorf("qdrant query failed: %w", err)
		}
		results := make(Results, 0, len(points))
		for _, point := range points {
			id, ok := point.Id.PointIdOptions.(*qdrant.PointId_Num)
			if !ok {
				return nil, fmt.Errorf("unexpected non-numeric point id in collection %s", q.config.Collection)
			}
			results = append(results, Hit{ID: int(id.Num), Score: float64(point.Score)})
		}
		out[qi] = results
	}
	return out, nil
}

func (q *Qdrant) query(ctx context.Context, vec []float32, limit uint64) ([]*qdrant.ScoredPoint, error) {
	run := func() ([]*qdrant.ScoredPoint, error) {
		return q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.config.Collection,
			Query:          qdrant.NewQuery(vec...),
			Limit:          &limit,
		})
	}
	if q.breaker == nil {
		return run()
	}
	return Execute(q.breaker, run)
}
