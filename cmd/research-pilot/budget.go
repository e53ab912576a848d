// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-pilot/internal/budget"
	"github.com/pdiddy/research-pilot/internal/store"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect the monthly spend ledger",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this month's spend against the ceiling",
	RunE:  runBudgetStatus,
}

func runBudgetStatus(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	guard, err := budget.NewGuard(st.DB(), cfg.Budget, nil)
	if err != nil {
		return err
	}

	status, err := guard.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Month:     %s\n", status.Month)
	fmt.Printf("Ceiling:   $%.2f\n", status.CeilingUSD)
	fmt.Printf("Spent:     $%.2f (%.1f%%)\n", status.SpentUSD, status.PercentUsed)
	fmt.Printf("Remaining: $%.2f\n", status.RemainingUSD)
	if status.Alerted {
		fmt.Println("Alert:     threshold crossed this month")
	}
	return nil
}

func init() {
	budgetCmd.AddCommand(budgetStatusCmd)
	rootCmd.AddCommand(budgetCmd)
}
