// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package budget enforces a monthly spend ceiling for paid external calls.
// The guard keeps a durable per-month ledger in SQLite so the ceiling
// holds across process restarts, and serializes every reservation so
// concurrent pipeline runs cannot jointly overspend.
package budget

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/research-pilot/pkg/types"
)

// ErrBudgetExceeded indicates a reservation was refused because it would
// push cumulative monthly spend past the ceiling. It is fatal to the
// owning pipeline run and never retried.
var ErrBudgetExceeded = errors.New("monthly budget ceiling exceeded")

// AlertFunc receives the one-time advisory alert when cumulative spend
// first crosses the alert threshold. It must not block.
type AlertFunc func(spent, ceiling float64)

// Guard tracks cumulative monthly spend against a configured ceiling.
type Guard struct {
	db      *sql.DB
	ceiling float64
	alertAt float64
	onAlert AlertFunc

	// now is swapped in tests to pin the month key.
	now func() time.Time
}

// NewGuard creates a guard over db using the given budget configuration.
// The ledger table is created if it does not exist. alert may be nil.
func NewGuard(db *sql.DB, cfg types.BudgetConfig, alert AlertFunc) (*Guard, error) {
	if cfg.MonthlyCeilingUSD <= 0 {
		return nil, fmt.Errorf("budget ceiling must be positive, got %.2f", cfg.MonthlyCeilingUSD)
	}
	if cfg.AlertFraction <= 0 || cfg.AlertFraction > 1 {
		return nil, fmt.Errorf("alert fraction must be in (0,1], got %.2f", cfg.AlertFraction)
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS budget_ledger (
		month TEXT PRIMARY KEY,
		spent_usd REAL NOT NULL DEFAULT 0,
		alerted INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating budget ledger: %w", err)
	}

	return &Guard{
		db:      db,
		ceiling: cfg.MonthlyCeilingUSD,
		alertAt: cfg.AlertFraction * cfg.MonthlyCeilingUSD,
		onAlert: alert,
		now:     time.Now,
	}, nil
}

// monthKey returns the ledger key for the current calendar month.
func (g *Guard) monthKey() string {
	return g.now().UTC().Format("2006-01")
}

// Reserve atomically checks and commits a proposed cost against the
// current month's ledger. The check and the increment are one
// transaction: either the full amount is reserved or nothing is.
// Reservations may sum to exactly the ceiling; the next positive amount
// is refused with ErrBudgetExceeded.
func (g *Guard) Reserve(cost float64) error {
	if cost < 0 {
		return fmt.Errorf("reservation cost must not be negative, got %.4f", cost)
	}
	return g.apply(cost, true)
}

// Settle reconciles a prior reservation against the actual cost reported
// by the call. The delta is applied without a ceiling check: the money is
// already spent, so an overrun is recorded and the next Reserve refuses.
func (g *Guard) Settle(reserved, actual float64) error {
	return g.apply(actual-reserved, false)
}

// apply adjusts the month's spent counter by delta inside one IMMEDIATE
// transaction. When enforce is set the adjustment is refused if it would
// exceed the ceiling. The alert fires at most once per month, the first
// time spend crosses the threshold.
func (g *Guard) apply(delta float64, enforce bool) error {
	month := g.monthKey()

	tx, err := g.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning budget transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO budget_ledger (month, spent_usd, alerted) VALUES (?, 0, 0)`,
		month,
	); err != nil {
		return fmt.Errorf("initializing budget month %s: %w", month, err)
	}

	var spent float64
	var alerted int
	if err := tx.QueryRow(
		`SELECT spent_usd, alerted FROM budget_ledger WHERE month = ?`, month,
	).Scan(&spent, &alerted); err != nil {
		return fmt.Errorf("reading budget ledger: %w", err)
	}

	next := spent + delta
	if enforce && next > g.ceiling+1e-9 {
		return fmt.Errorf("reserving $%.4f with $%.4f of $%.2f spent: %w",
			delta, spent, g.ceiling, ErrBudgetExceeded)
	}
	if next < 0 {
		next = 0
	}

	fireAlert := alerted == 0 && next >= g.alertAt
	nextAlerted := alerted
	if fireAlert {
		nextAlerted = 1
	}

	if _, err := tx.Exec(
		`UPDATE budget_ledger SET spent_usd = ?, alerted = ? WHERE month = ?`,
		next, nextAlerted, month,
	); err != nil {
		return fmt.Errorf("updating budget ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing budget transaction: %w", err)
	}

	if fireAlert && g.onAlert != nil {
		g.onAlert(next, g.ceiling)
	}
	return nil
}

// Status summarizes the current month's ledger.
type Status struct {
	Month       string  `json:"month"`
	CeilingUSD  float64 `json:"ceiling_usd"`
	SpentUSD    float64 `json:"spent_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
	PercentUsed float64 `json:"percent_used"`
	Alerted     bool    `json:"alerted"`
}

// Status reports cumulative spend for the current month.
func (g *Guard) Status() (Status, error) {
	month := g.monthKey()

	var spent float64
	var alerted int
	err := g.db.QueryRow(
		`SELECT spent_usd, alerted FROM budget_ledger WHERE month = ?`, month,
	).Scan(&spent, &alerted)
	if errors.Is(err, sql.ErrNoRows) {
		spent, alerted = 0, 0
	} else if err != nil {
		return Status{}, fmt.Errorf("reading budget ledger: %w", err)
	}

	st := Status{
		Month:        month,
		CeilingUSD:   g.ceiling,
		SpentUSD:     spent,
		RemainingUSD: g.ceiling - spent,
		Alerted:      alerted != 0,
	}
	if g.ceiling > 0 {
		st.PercentUsed = spent / g.ceiling * 100
	}
	return st, nil
}

// Remaining returns the headroom left under this month's ceiling.
func (g *Guard) Remaining() (float64, error) {
	st, err := g.Status()
	if err != nil {
		return 0, err
	}
	return st.RemainingUSD, nil
}
