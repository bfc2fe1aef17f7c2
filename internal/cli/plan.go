package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/crowdfund-deploy/internal/config"
	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
)

func createPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage the campaign plan",
	}

	cmd.AddCommand(createPlanInitCmd(a))
	cmd.AddCommand(createPlanShowCmd(a))

	return cmd
}

func createPlanInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the example campaign plan to a file",
		Long: `Write the built-in example campaign as a plan file to edit.
The format follows the file extension: .toml, .yaml or .yml.

EXAMPLES:
  crowdfund-deploy plan init
  crowdfund-deploy plan init crowdfund.yaml
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "crowdfund.toml"
			if len(args) == 1 {
				path = args[0]
			}
			return runPlanInit(a, path, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

func createPlanShowCmd(a *app) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the plan a deploy would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanShow(a, planPath)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "campaign plan file")

	return cmd
}

func runPlanInit(a *app, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	plan := config.DefaultPlan()
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		data, err = plan.EncodeTOML()
	case ".yaml", ".yml":
		data, err = yaml.Marshal(plan)
	default:
		return fmt.Errorf("unsupported plan format: %s (use .toml, .yaml or .yml)", path)
	}
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}

	fmt.Fprintf(a.out, "%s Created %s\n", okMark, path)
	return nil
}

func runPlanShow(a *app, planPath string) error {
	plan, path, err := config.LoadPlan(planPath)
	if err != nil {
		return err
	}
	goal, err := crowdfunding.ParseEther(plan.Campaign.Goal)
	if err != nil {
		return fmt.Errorf("campaign goal: %w", err)
	}
	tiers, err := crowdfunding.TiersFromPlan(plan.Tiers)
	if err != nil {
		return err
	}

	if path == "" {
		path = "built-in example"
	}
	owner := plan.Campaign.Owner
	if owner == "" {
		owner = "(deployer)"
	}

	out := printer{w: a.out}
	out.header("Campaign plan: %s", path)
	out.field("Owner", owner)
	out.field("Name", plan.Campaign.Name)
	out.field("Description", plan.Campaign.Description)
	out.field("Goal", fmt.Sprintf("%s ETH (%s wei)", crowdfunding.FormatEther(goal), goal))
	out.field("Duration", fmt.Sprintf("%d days", plan.Campaign.DurationDays))
	fmt.Fprintln(a.out)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIER\tAMOUNT (ETH)\tWEI")
	for i, t := range tiers {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, t.Name, crowdfunding.FormatEther(t.Amount), t.Amount)
	}
	return w.Flush()
}
