package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amedina/team-assistant-v1-sub000/internal/app"
	"github.com/amedina/team-assistant-v1-sub000/internal/connectors"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

var (
	syncMode      string
	ingestionMode string
)

var rootCmd = &cobra.Command{
	Use:           "assistant",
	Short:         "Multi-store ingestion and retrieval coordinator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Pull documents from configured sources and ingest them into all stores",
	RunE:  runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report per-store health",
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report per-store counters",
	RunE:  runStats,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and store connectivity without writing data",
	RunE:  runValidate,
}

func init() {
	runCmd.Flags().StringVar(&syncMode, "sync-mode", "incremental", "full | incremental | smart")
	runCmd.Flags().StringVar(&ingestionMode, "ingestion-mode", "replace", "overwrite | replace")
	rootCmd.AddCommand(runCmd, statusCmd, statsCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.InitStores(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	mode := stores.IngestMode(ingestionMode)
	if !mode.Valid() {
		return fmt.Errorf("invalid --ingestion-mode %q", ingestionMode)
	}
	sync := connectors.SyncMode(syncMode)
	if !sync.Valid() {
		return fmt.Errorf("invalid --sync-mode %q", syncMode)
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	conns, err := a.SourceConnectors()
	if err != nil {
		return err
	}

	summary, err := a.Pipeline.RunFromConnectors(ctx, conns, sync, mode)
	if err != nil {
		return err
	}

	printJSON(cmd, summary)
	if !summary.Success() {
		return fmt.Errorf("run finished with failures: %d/%d documents failed", summary.DocsFailed, summary.DocsAttempted)
	}
	if err := a.VerifyConvergence(ctx, summary.ChunkUUIDs); err != nil {
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	health := a.HealthAll(ctx)
	printJSON(cmd, health)
	for store, h := range health {
		if !h.OK {
			return fmt.Errorf("store %s unhealthy: %s", store, h.Detail)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	stats, err := a.StatsAll(ctx)
	if err != nil {
		return err
	}
	printJSON(cmd, stats)
	return nil
}

// runValidate builds the full dependency graph and initializes every store,
// which exercises config, secret resolution and connectivity, then stops
// before any write.
func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, err := a.SourceConnectors(); err != nil {
		return err
	}

	health := a.HealthAll(ctx)
	for store, h := range health {
		if !h.OK {
			return fmt.Errorf("store %s failed validation: %s", store, h.Detail)
		}
	}
	cmd.Println("configuration and connectivity OK")
	return nil
}

func printJSON(cmd *cobra.Command, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		cmd.PrintErrln("encode output:", err)
		return
	}
	cmd.Println(string(raw))
}
