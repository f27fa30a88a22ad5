package risposta

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/risposta"
	"github.com/soundprediction/risposta/pkg/config"
)

var hpCmd = &cobra.Command{
	Use:   "hp [fusion|bm25]",
	Short: "Grid-search retrieval hyperparameters",
	Long: `Search retrieval hyperparameters on the train split and report
held-out metrics for the best assignment.

fusion searches one interpolation weight per index (weights constrained
to sum to 1); bm25 searches the sparse index's b and k1 similarity
parameters. Trial history is persisted in the study store, so an
interrupted search resumes where it stopped.

An experiment manifest (--manifest) can supply the variant, study name,
metric, trial budget and dataset paths from a yaml file; flags still
win over the manifest.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"fusion", "bm25"},
	RunE:      runHP,
}

var hpStudyName string

func init() {
	rootCmd.AddCommand(hpCmd)

	hpCmd.Flags().StringVar(&hpStudyName, "study", "", "study name (defaults to the search variant)")
	hpCmd.Flags().String("manifest", "", "yaml experiment manifest")
	hpCmd.Flags().Int("trials", 0, "number of new trials to run")
	hpCmd.Flags().String("metric", "", "metric to optimize, e.g. mrr@100")
	hpCmd.Flags().String("output-dir", "", "directory for qrels, runs and metrics")
}

func runHP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	variant := ""
	if len(args) == 1 {
		variant = args[0]
	}
	study := hpStudyName
	if path, _ := cmd.Flags().GetString("manifest"); path != "" {
		manifest, err := config.LoadManifest(path)
		if err != nil {
			return err
		}
		manifest.Apply(cfg)
		if variant == "" {
			variant = manifest.Variant
		}
		if study == "" {
			study = manifest.Study
		}
	}
	if variant == "" {
		return fmt.Errorf("no search variant: pass fusion or bm25, or name one in the manifest")
	}
	if v, _ := cmd.Flags().GetInt("trials"); v > 0 {
		cfg.Hyper.Trials = v
	}
	if v, _ := cmd.Flags().GetString("metric"); v != "" {
		cfg.Hyper.Metric = v
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.Hyper.OutputDir = v
	}

	client, err := risposta.New(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	if err := client.LoadKnowledgeBase(cfg.Dataset.KB); err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	if err := client.BuildIndexes(ctx); err != nil {
		return err
	}

	ds, err := client.LoadDataset(cfg.Dataset.Train)
	if err != nil {
		return fmt.Errorf("load train dataset: %w", err)
	}
	driver, err := client.HyperDriver(ds)
	if err != nil {
		return err
	}
	if err := driver.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare judgments: %w", err)
	}

	if study == "" {
		study = variant
	}
	switch variant {
	case "fusion":
		_, err = driver.TuneFusion(ctx, study)
	case "bm25":
		_, err = driver.TuneBM25(ctx, study)
	default:
		return fmt.Errorf("unknown search variant %q", variant)
	}
	if err != nil {
		return err
	}

	if cfg.Dataset.Heldout != "" {
		heldout, err := client.LoadDataset(cfg.Dataset.Heldout)
		if err != nil {
			return fmt.Errorf("load held-out dataset: %w", err)
		}
		report, err := driver.Evaluate(ctx, heldout)
		if err != nil {
			return err
		}
		fmt.Println(report)
	}
	return driver.SaveArtifacts()
}
