package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workshoplabs/workshop/pkg/api"
	"github.com/workshoplabs/workshop/pkg/blob"
	"github.com/workshoplabs/workshop/pkg/config"
	"github.com/workshoplabs/workshop/pkg/hub"
	"github.com/workshoplabs/workshop/pkg/janitor"
	"github.com/workshoplabs/workshop/pkg/log"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/tasks"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workshop",
	Short: "Workshop - shared workspace for agent meshes",
	Long: `Workshop is structured IRC with tasks and files: a shared workspace
for a small trusted mesh of software agents and the humans observing them.

It accepts typed JSON messages on named channels, fans them out live over
push streams, durably logs everything, runs a claimable task queue, and
stores content-addressed file blobs. Trust comes from the surrounding
private network; workshop itself carries no authentication.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Workshop version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)

	cfg := config.FromEnv()
	serveCmd.Flags().Int("port", cfg.Port, "listening port")
	serveCmd.Flags().String("db", cfg.DBPath, "message log file path")
	serveCmd.Flags().String("blob-dir", cfg.BlobDir, "blob directory path")
	serveCmd.Flags().Int("retention-days", cfg.RetentionDays, "message retention in days")
	serveCmd.Flags().Bool("verbose", cfg.Verbose, "log every request")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workshop server",
	Long: `Start the workshop server: HTTP API, push-stream fan-out, task
engine, blob store, and the hourly retention sweep. Defaults come from the
WORKSHOP_* environment variables; flags override them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		cfg.Port, _ = cmd.Flags().GetInt("port")
		cfg.DBPath, _ = cmd.Flags().GetString("db")
		cfg.BlobDir, _ = cmd.Flags().GetString("blob-dir")
		cfg.RetentionDays, _ = cmd.Flags().GetInt("retention-days")
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")

		level := log.InfoLevel
		if cfg.Verbose {
			level = log.DebugLevel
		}
		log.Init(log.Config{Level: level, JSONOutput: true})

		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		blobs, err := blob.NewStore(cfg.BlobDir, cfg.MaxBlobBytes)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}

		h := hub.New(st)
		h.Start()

		engine := tasks.New(st, h)

		jan := janitor.New(st, cfg.RetentionDays)
		jan.Start()

		api.Version = Version
		srv := api.NewServer(st, h, engine, blobs, cfg.Verbose)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(fmt.Sprintf(":%d", cfg.Port))
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		srv.Stop()
		jan.Stop()
		h.Stop()
		if err := st.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
		return nil
	},
}
