// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// BudgetConfig bounds cumulative paid external calls for a calendar month.
type BudgetConfig struct {
	// MonthlyCeilingUSD is the hard spend limit per month (default 50).
	MonthlyCeilingUSD float64 `json:"monthly_ceiling_usd" yaml:"monthly_ceiling_usd"`

	// AlertFraction is the fraction of the ceiling at which a one-time
	// advisory alert fires (default 0.8).
	AlertFraction float64 `json:"alert_fraction" yaml:"alert_fraction"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxTokens is the output token cap per call (default 4000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout is the per-call timeout (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts for transient API
	// failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds settings for the paper-search service.
type SearchConfig struct {
	// MaxPapers is the number of papers the literature stage keeps
	// (default 5). The stage fetches extra for relevance filtering.
	MaxPapers int `json:"max_papers" yaml:"max_papers"`

	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// APIKey is an optional Semantic Scholar key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AnalysisConfig parameterizes the statistical decision procedure.
type AnalysisConfig struct {
	// MinimumEffectSize separates strong from weak acceptance (default 0.3).
	MinimumEffectSize float64 `json:"minimum_effect_size" yaml:"minimum_effect_size"`

	// ConfidenceLevel is the level for effect confidence intervals
	// (default 0.95).
	ConfidenceLevel float64 `json:"confidence_level" yaml:"confidence_level"`
}

// PipelineConfig groups all settings for one pipeline. It is constructed
// once at startup and never mutated while a run is in progress.
type PipelineConfig struct {
	Budget   BudgetConfig   `json:"budget" yaml:"budget"`
	AI       AIConfig       `json:"ai" yaml:"ai"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// IdeaCount is how many candidate ideas the idea stage requests
	// (default 7).
	IdeaCount int `json:"idea_count" yaml:"idea_count"`

	// DataDir is the directory holding the SQLite database.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// VaultDir is the note-repository directory for best-effort stage
	// summaries. Empty disables note writing.
	VaultDir string `json:"vault_dir,omitempty" yaml:"vault_dir,omitempty"`
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their documented defaults.
func (cfg PipelineConfig) WithDefaults() PipelineConfig {
	if cfg.Budget.MonthlyCeilingUSD <= 0 {
		cfg.Budget.MonthlyCeilingUSD = 50.0
	}
	if cfg.Budget.AlertFraction <= 0 {
		cfg.Budget.AlertFraction = 0.8
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 4000
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.Search.MaxPapers <= 0 {
		cfg.Search.MaxPapers = 5
	}
	if cfg.Search.Timeout <= 0 {
		cfg.Search.Timeout = 30 * time.Second
	}
	if cfg.Search.UserAgent == "" {
		cfg.Search.UserAgent = "research-pilot/0.1"
	}
	if cfg.Analysis.MinimumEffectSize <= 0 {
		cfg.Analysis.MinimumEffectSize = 0.3
	}
	if cfg.Analysis.ConfidenceLevel <= 0 {
		cfg.Analysis.ConfidenceLevel = 0.95
	}
	if cfg.IdeaCount <= 0 {
		cfg.IdeaCount = 7
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	return cfg
}
