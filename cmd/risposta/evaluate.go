package risposta

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/risposta"
	"github.com/soundprediction/risposta/pkg/config"
	"github.com/soundprediction/risposta/pkg/model"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate reader checkpoints over a dataset",
	Long: `Sweep every checkpoint directory matching the configured glob,
load its weights, run a full evaluation pass and write predictions.json
and metrics.json (or their oracle variants) next to each checkpoint.

Checkpoints without a weights file are skipped with a diagnostic; a
missing trainer-state sidecar only costs accurate step counters.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().String("checkpoints", "", "checkpoint directory glob")
	evaluateCmd.Flags().Bool("oracle", false, "evaluate on relevant passages only")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("checkpoints"); v != "" {
		cfg.Train.CheckpointGlob = v
	}
	if v, _ := cmd.Flags().GetBool("oracle"); v {
		cfg.Train.Oracle = true
	}
	if cfg.Train.CheckpointGlob == "" {
		return fmt.Errorf("no checkpoint glob configured")
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
	ds, err := client.LoadDataset(cfg.Dataset.Heldout)
	if err != nil {
		return fmt.Errorf("load held-out dataset: %w", err)
	}

	reader := model.NewHashReader(client.Tokenizer().PadID())
	return client.SweepCheckpoints(ctx, reader, ds)
}
