// Package risposta implements retrieval and training infrastructure for
// multi-passage open-domain question answering.
//
// The retrieval side combines dense and sparse passage indexes through
// weighted score interpolation, judges retrieved passages against gold
// answer strings, and tunes fusion weights or BM25 similarity parameters
// by grid search over persisted studies (pkg/search, pkg/hyper,
// pkg/study, pkg/index).
//
// The training side builds N questions × M passages batches with answer
// span targets (pkg/train), trains readers under a globally normalized
// marginal-likelihood loss or bi-encoders under a distributed
// contrastive loss (pkg/gather), and aggregates evaluation passes into
// exact-match and token-F1 scores with passage-score-weighted answer
// variants.
//
// The Client in this package wires the whole stack from configuration:
//
//	cfg, _ := config.Load()
//	client, err := risposta.New(cfg)
//	if err != nil { ... }
//	defer client.Close()
//
//	if err := client.LoadKnowledgeBase(cfg.Dataset.KB); err != nil { ... }
//	if err := client.BuildIndexes(ctx); err != nil { ... }
//
//	ds, _ := client.LoadDataset(cfg.Dataset.Train)
//	driver, _ := client.HyperDriver(ds)
//	if err := driver.Prepare(ctx); err != nil { ... }
//	best, err := driver.TuneFusion(ctx, "fusion")
//
// cmd/risposta exposes the same flows as a CLI and pkg/server as an HTTP
// service.
package risposta
