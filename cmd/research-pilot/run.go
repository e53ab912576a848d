// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-pilot/internal/budget"
	"github.com/pdiddy/research-pilot/internal/llm"
	"github.com/pdiddy/research-pilot/internal/notes"
	"github.com/pdiddy/research-pilot/internal/pipeline"
	"github.com/pdiddy/research-pilot/internal/scholar"
	"github.com/pdiddy/research-pilot/internal/stage"
	"github.com/pdiddy/research-pilot/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run <project-id>",
	Short: "Run (or resume) the research pipeline for a project",
	Long: `Run executes the six-stage research pipeline for a project. If a previous
run failed or was interrupted, execution resumes after the last completed
stage. Interrupting with Ctrl-C stops at the next stage boundary; completed
stages are never lost.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)

	if cfg.AI.APIKey == "" {
		return fmt.Errorf("no Anthropic API key: add .secrets/anthropic-api-key or set llm.api_key in the config file")
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	guard, err := budget.NewGuard(st.DB(), cfg.Budget, func(spent, ceiling float64) {
		fmt.Fprintf(os.Stderr, "warning: budget alert: $%.2f of $%.2f spent this month\n", spent, ceiling)
	})
	if err != nil {
		return err
	}

	var noteWriter notes.Writer = notes.Discard{}
	if cfg.VaultDir != "" {
		noteWriter = notes.NewVaultWriter(cfg.VaultDir)
	}

	deps := &stage.Deps{
		Store:    st,
		Guard:    guard,
		Model:    llm.NewAnthropicClient(cfg.AI),
		Papers:   scholar.NewClient(cfg.Search),
		Notes:    noteWriter,
		Config:   cfg,
		Progress: os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.New(deps, stage.SimulatedExecutor{}).Run(ctx, args[0])
	if err != nil {
		return err
	}

	if len(result.StagesRun) == 0 {
		fmt.Println("All stages already completed for this project.")
		return nil
	}
	fmt.Printf("\nPipeline complete: %d stage(s) run (%s), total cost $%.2f\n",
		len(result.StagesRun), strings.Join(result.StagesRun, ", "), result.TotalCostUSD)
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
