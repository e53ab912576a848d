// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/research-pilot/internal/store"
	"github.com/pdiddy/research-pilot/pkg/types"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage research projects (create, list, show)",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new research project",
	RunE:  runProjectCreate,
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	domain, _ := cmd.Flags().GetString("domain")
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	cfg := pipelineConfig(cmd)
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now().UTC()
	project := types.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Domain:    domain,
		Status:    types.ProjectActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.PutProject(context.Background(), project); err != nil {
		return err
	}

	fmt.Printf("Created project %s (%s)\n", project.ID, project.Name)
	return nil
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research projects",
	RunE:  runProjectList,
}

func runProjectList(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")

	cfg := pipelineConfig(cmd)
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	projects, err := st.ListProjects(context.Background(), types.ProjectStatus(statusFilter))
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	fmt.Printf("%-36s  %-25s  %-20s  %-8s  %s\n", "ID", "Name", "Domain", "Status", "Created")
	fmt.Println(strings.Repeat("-", 110))
	for _, p := range projects {
		fmt.Printf("%-36s  %-25s  %-20s  %-8s  %s\n",
			p.ID, truncate(p.Name, 25), truncate(p.Domain, 20), p.Status, formatTimestamp(p.CreatedAt))
	}
	return nil
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project and its pipeline progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	project, err := st.GetProject(ctx, args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(project)
	}

	fmt.Printf("Project:  %s\nName:     %s\nDomain:   %s\nStatus:   %s\nCreated:  %s\n",
		project.ID, project.Name, project.Domain, project.Status, formatTimestamp(project.CreatedAt))

	if cp, err := st.LatestStageCheckpoint(ctx, project.ID); err == nil {
		fmt.Printf("Progress: last completed stage %s at %s\n", cp.Stage, formatTimestamp(cp.CreatedAt))
	} else {
		fmt.Println("Progress: no stages completed")
	}

	runs, err := st.ListPipelineRuns(ctx, project.ID)
	if err != nil {
		return err
	}
	for _, r := range runs {
		line := fmt.Sprintf("Run %s: %s (cost $%.2f)", r.ID, r.Status, r.TotalCostUSD)
		if r.Error != "" {
			line += ", error: " + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	projectCreateCmd.Flags().String("name", "", "project name (required)")
	projectCreateCmd.Flags().String("domain", "", "research domain, e.g. machine_learning")

	projectListCmd.Flags().String("status", "", "filter by status (active, archived)")

	projectShowCmd.Flags().Bool("json", false, "output as JSON")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}
