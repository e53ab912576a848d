// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-pilot CLI: an
// automated research pipeline that takes a project from literature
// review through experiment analysis under a monthly budget.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-pilot/internal/secrets"
	"github.com/pdiddy/research-pilot/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the research-pilot CLI.
var rootCmd = &cobra.Command{
	Use:   "research-pilot",
	Short: "Automated research pipeline from literature to analysis",
	Long: `research-pilot runs a six-stage research workflow for a project:
literature review, idea generation, hypothesis formation, experiment design,
experiment execution, and results analysis. Every stage persists its artifacts
to a local SQLite store, and all paid external calls are governed by a monthly
budget ledger.

Create a project, then run the pipeline. A failed or interrupted run resumes
from the last completed stage.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-pilot.yaml or ~/.config/research-pilot/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the SQLite artifact store (default: ./data)")
	rootCmd.PersistentFlags().String("vault-dir", "", "note-repository directory for stage summaries (default: disabled)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-pilot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-pilot"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_PILOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// pipelineConfig materializes the immutable pipeline configuration from
// flags, config file, environment, and secrets. Configuration is frozen
// here; nothing downstream reads viper.
func pipelineConfig(cmd *cobra.Command) types.PipelineConfig {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = viper.GetString("data_dir")
	}
	vaultDir, _ := cmd.Flags().GetString("vault-dir")
	if vaultDir == "" {
		vaultDir = viper.GetString("vault_dir")
	}

	cfg := types.PipelineConfig{
		Budget: types.BudgetConfig{
			MonthlyCeilingUSD: viper.GetFloat64("budget.monthly_ceiling"),
			AlertFraction:     viper.GetFloat64("budget.alert_fraction"),
		},
		AI: types.AIConfig{
			Model:      viper.GetString("llm.model"),
			APIKey:     secretDefault("anthropic-api-key", viper.GetString("llm.api_key")),
			MaxTokens:  viper.GetInt("llm.max_tokens"),
			Timeout:    viper.GetDuration("llm.timeout"),
			MaxRetries: viper.GetInt("llm.max_retries"),
		},
		Search: types.SearchConfig{
			MaxPapers: viper.GetInt("search.max_papers"),
			Timeout:   viper.GetDuration("search.timeout"),
			APIKey:    secretDefault("semantic-scholar-api-key", viper.GetString("search.api_key")),
		},
		Analysis: types.AnalysisConfig{
			MinimumEffectSize: viper.GetFloat64("analysis.minimum_effect_size"),
			ConfidenceLevel:   viper.GetFloat64("analysis.confidence_level"),
		},
		IdeaCount: viper.GetInt("ideas.count"),
		DataDir:   dataDir,
		VaultDir:  vaultDir,
	}
	return cfg.WithDefaults()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
