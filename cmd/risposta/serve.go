package risposta

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/risposta"
	"github.com/soundprediction/risposta/pkg/config"
	"github.com/soundprediction/risposta/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the risposta HTTP server",
	Long: `Start the risposta HTTP server providing REST API access to retrieval.

The server exposes endpoints for:
- Batch search across the configured indexes
- Fusion with caller-supplied interpolation weights
- Relevance judgments in TREC qrels format
- Health and readiness checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")
	serveCmd.Flags().String("kb", "", "Knowledge base parquet path (enables judged search)")
	serveCmd.Flags().Bool("build-indexes", false, "Embed and index the knowledge base on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
	if v, _ := cmd.Flags().GetString("kb"); v != "" {
		cfg.Dataset.KB = v
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	client, err := risposta.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize risposta: %w", err)
	}
	defer client.Close()

	if cfg.Dataset.KB != "" {
		if err := client.LoadKnowledgeBase(cfg.Dataset.KB); err != nil {
			return fmt.Errorf("load knowledge base: %w", err)
		}
		if build, _ := cmd.Flags().GetBool("build-indexes"); build {
			if err := client.BuildIndexes(cmd.Context()); err != nil {
				return fmt.Errorf("build indexes: %w", err)
			}
		}
	}

	srv := server.New(cfg, client.Searcher(), nil)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}
