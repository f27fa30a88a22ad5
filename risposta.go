package risposta

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/soundprediction/risposta/pkg/config"
	"github.com/soundprediction/risposta/pkg/dataset"
	"github.com/soundprediction/risposta/pkg/embedder"
	"github.com/soundprediction/risposta/pkg/hyper"
	"github.com/soundprediction/risposta/pkg/index"
	"github.com/soundprediction/risposta/pkg/logger"
	"github.com/soundprediction/risposta/pkg/model"
	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/study"
	"github.com/soundprediction/risposta/pkg/telemetry"
	"github.com/soundprediction/risposta/pkg/tokenizer"
	"github.com/soundprediction/risposta/pkg/train"
)

// Client wires the configured retrieval and training stack: encoder,
// indexes, searcher, judge and study store. It is the library-first
// entry point; the CLI and the HTTP server are thin layers over it.
type Client struct {
	config   *config.Config
	logger   *slog.Logger
	encoder  embedder.Client
	indexes  []index.Index
	searcher *search.Searcher
	kb       *dataset.KnowledgeBase
	judge    *search.Judge
	store    study.Store
	capture  *telemetry.ParquetHandler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger overrides the config-derived logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEmbedder injects an encoder, bypassing the configured provider.
func WithEmbedder(e embedder.Client) Option {
	return func(c *Client) { c.encoder = e }
}

// WithIndexes injects pre-built indexes, bypassing the configured layout.
func WithIndexes(indexes ...index.Index) Option {
	return func(c *Client) { c.indexes = indexes }
}

// New builds a client from config. Indexes are connected but not
// populated; call BuildIndexes after loading a knowledge base.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	c := &Client{config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		handler := logger.NewHandler(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
		if cfg.Log.TelemetryDir != "" {
			capture, err := telemetry.NewParquetHandler(handler, cfg.Log.TelemetryDir)
			if err != nil {
				return nil, fmt.Errorf("telemetry: %w", err)
			}
			c.capture = capture
			handler = capture
		}
		c.logger = slog.New(handler)
	}
	if c.encoder == nil {
		enc, err := embedder.NewClient(cfg.Embedder)
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		c.encoder = enc
	}
	if c.indexes == nil {
		indexes, err := buildIndexes(cfg, c.encoder)
		if err != nil {
			return nil, err
		}
		c.indexes = indexes
	}

	searcherOpts := []search.SearcherOption{
		search.WithK(cfg.Hyper.K),
		search.WithLogger(c.logger),
	}
	if len(c.indexes) > 1 {
		searcherOpts = append(searcherOpts, search.WithFusion(search.FusionInterpolation))
	}
	searcher, err := search.NewSearcher(c.indexes, searcherOpts...)
	if err != nil {
		return nil, err
	}
	c.searcher = searcher

	store, err := study.NewStore(cfg.Study)
	if err != nil {
		return nil, fmt.Errorf("study store: %w", err)
	}
	c.store = store
	return c, nil
}

func buildIndexes(cfg *config.Config, encoder embedder.Client) ([]index.Index, error) {
	var indexes []index.Index
	breaker := index.NewBreaker(cfg.Indexes.Dense.Name, cfg.CircuitBreaker)

	switch cfg.Indexes.Dense.Backend {
	case "qdrant":
		dense, err := index.NewQdrant(cfg.Indexes.Dense.Name, encoder, cfg.Indexes.Dense.Qdrant, breaker)
		if err != nil {
			return nil, fmt.Errorf("qdrant index: %w", err)
		}
		indexes = append(indexes, dense)
	case "flat", "":
		indexes = append(indexes, index.NewFlat(cfg.Indexes.Dense.Name, encoder))
	default:
		return nil, fmt.Errorf("unknown dense index backend %q", cfg.Indexes.Dense.Backend)
	}

	if cfg.Indexes.Sparse.Enabled {
		sparse, err := index.NewElastic(cfg.Indexes.Sparse.Name, cfg.Indexes.Sparse.Elastic,
			index.NewBreaker(cfg.Indexes.Sparse.Name, cfg.CircuitBreaker))
		if err != nil {
			return nil, fmt.Errorf("elastic index: %w", err)
		}
		indexes = append(indexes, sparse)
	}
	return indexes, nil
}

// Searcher returns the configured searcher.
func (c *Client) Searcher() *search.Searcher { return c.searcher }

// KnowledgeBase returns the loaded knowledge base, nil before loading.
func (c *Client) KnowledgeBase() *dataset.KnowledgeBase { return c.kb }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// LoadKnowledgeBase reads the passage collection and arms the judge.
func (c *Client) LoadKnowledgeBase(path string) error {
	kb, err := dataset.LoadKnowledgeBase(path)
	if err != nil {
		return err
	}
	c.SetKnowledgeBase(kb)
	return nil
}

// SetKnowledgeBase installs an already-built knowledge base.
func (c *Client) SetKnowledgeBase(kb *dataset.KnowledgeBase) {
	c.kb = kb
	c.judge = search.NewJudge(kb)
}

// LoadDataset reads a question dataset using the configured search key.
func (c *Client) LoadDataset(path string) (*dataset.Dataset, error) {
	return dataset.Load(path, c.config.Dataset.SearchKey)
}

// BuildIndexes populates every index with the knowledge base passages.
func (c *Client) BuildIndexes(ctx context.Context) error {
	if c.kb == nil {
		return fmt.Errorf("no knowledge base loaded")
	}
	batchSize := c.config.Embedder.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	for _, idx := range c.indexes {
		var err error
		switch v := idx.(type) {
		case *index.Flat:
			err = v.Build(ctx, c.kb, batchSize)
		case *index.Qdrant:
			err = v.IndexPassages(ctx, c.kb, batchSize)
		case *index.Elastic:
			err = v.IndexPassages(ctx, c.kb, batchSize)
		default:
			c.logger.Warn("index has no build step", "index", idx.Name())
		}
		if err != nil {
			return fmt.Errorf("build %s: %w", idx.Name(), err)
		}
		c.logger.Info("index built", "index", idx.Name(), "passages", c.kb.Len())
	}
	return nil
}

// HyperDriver builds the hyperparameter search driver over a train
// dataset.
func (c *Client) HyperDriver(ds *dataset.Dataset) (*hyper.Driver, error) {
	if c.judge == nil {
		return nil, fmt.Errorf("no knowledge base loaded")
	}
	opts := []hyper.DriverOption{
		hyper.WithStore(c.store),
		hyper.WithMetric(c.config.Hyper.Metric),
		hyper.WithTrials(c.config.Hyper.Trials),
		hyper.WithBatchSize(c.config.Hyper.BatchSize),
		hyper.WithOutputDir(c.config.Hyper.OutputDir),
		hyper.WithLogger(c.logger),
	}
	if len(c.config.Hyper.Metrics) > 0 {
		opts = append(opts, hyper.WithReportMetrics(c.config.Hyper.Metrics))
	}
	return hyper.NewDriver(ds, c.searcher, c.judge, opts...), nil
}

// Tokenizer returns the configured question-passage tokenizer.
func (c *Client) Tokenizer() tokenizer.Tokenizer {
	return tokenizer.NewWord(c.config.Train.MaxLength)
}

// Collator builds the batch pipeline for the given mode over the loaded
// knowledge base.
func (c *Client) Collator(mode train.Mode) (*train.Collator, error) {
	if c.kb == nil {
		return nil, fmt.Errorf("no knowledge base loaded")
	}
	tc := c.config.Train
	sampler, err := train.NewPassageSampler(c.kb, c.config.Dataset.SearchKey, tc.M, mode, tc.Seed, c.logger)
	if err != nil {
		return nil, err
	}
	tok := c.Tokenizer()
	var locator *train.SpanLocator
	if mode != train.ModeEval {
		locator = train.NewSpanLocator(tok, tc.MaxNAnswers)
	}
	return train.NewCollator(sampler, locator, tok, mode, c.logger)
}

// Evaluator builds an evaluation pass for a reader over a dataset.
func (c *Client) Evaluator(reader model.Reader, ds *dataset.Dataset) (*train.Evaluator, error) {
	mode := train.ModeEval
	if c.config.Train.Oracle {
		mode = train.ModeOracle
	}
	collator, err := c.Collator(mode)
	if err != nil {
		return nil, err
	}
	source, err := train.NewDatasetSource(ds, collator, c.config.Train.BatchSize)
	if err != nil {
		return nil, err
	}
	return train.NewEvaluator(reader, source, c.config.Train.M, c.config.Train.MaxAnswerLen), nil
}

// SweepCheckpoints evaluates every checkpoint matching the configured
// glob against the dataset.
func (c *Client) SweepCheckpoints(ctx context.Context, reader model.Reader, ds *dataset.Dataset) error {
	evaluator, err := c.Evaluator(reader, ds)
	if err != nil {
		return err
	}
	sweeper := train.NewSweeper(reader, evaluator, c.config.Train.Oracle, c.logger)
	return sweeper.Sweep(ctx, c.config.Train.CheckpointGlob)
}

// Close releases the study store and the encoder when they hold
// resources.
func (c *Client) Close() error {
	var firstErr error
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			firstErr = err
		}
	}
	if closer, ok := c.encoder.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.capture != nil {
		if err := c.capture.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
