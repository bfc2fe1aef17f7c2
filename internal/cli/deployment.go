package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/crowdfunding"
	"github.com/pendergraft/crowdfund-deploy/internal/deployments/domain"
	"github.com/pendergraft/crowdfund-deploy/internal/deployments/transport"
)

func createDeploymentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Inspect deployment history",
	}

	cmd.AddCommand(createDeploymentListCmd(a))
	cmd.AddCommand(createDeploymentInfoCmd(a))

	return cmd
}

func createDeploymentListCmd(a *app) *cobra.Command {
	var filter domain.ListFilter
	var jsonOutput bool
	var limit int
	var server string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long: `List deployments recorded by previous runs, newest first.

EXAMPLES:
  # List all deployments
  crowdfund-deploy deployment list

  # Filter by chain
  crowdfund-deploy deployment list --chain-id 11155111

  # Show runs that stopped part way
  crowdfund-deploy deployment list --status failed

  # Ask a shared history server instead of the local database
  crowdfund-deploy deployment list --server http://deploys.internal:8080
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentList(cmd.Context(), a, server, filter, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&filter.ChainID, "chain-id", "", "filter by chain ID")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by status: deployed, complete, failed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&server, "server", "", "read history from a running server (env: "+serverEnv+")")

	return cmd
}

func createDeploymentInfoCmd(a *app) *cobra.Command {
	var jsonOutput bool
	var server string

	cmd := &cobra.Command{
		Use:   "info <address>",
		Short: "Show deployment details",
		Long: `Display a recorded deployment and the tiers it seeded.

EXAMPLES:
  crowdfund-deploy deployment info 0x5FbD...
  crowdfund-deploy deployment info 0x5FbD... --chain-id 31337
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, _ := cmd.Flags().GetString("chain-id")
			if chainID == "" {
				chainID = strconv.FormatInt(a.cfg.Network.ChainID, 10)
			}
			return runDeploymentInfo(cmd.Context(), a, server, chainID, args[0], jsonOutput)
		},
	}

	cmd.Flags().String("chain-id", "", "chain ID (default from CHAIN_ID)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&server, "server", "", "read history from a running server (env: "+serverEnv+")")

	return cmd
}

func runDeploymentList(ctx context.Context, a *app, server string, filter domain.ListFilter, limit int, jsonOutput bool) error {
	svc, done, err := a.historyService(ctx, server)
	if err != nil {
		return err
	}
	defer done()

	result, err := svc.List(ctx, filter, domain.PaginationParams{Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if jsonOutput {
		resp := transport.DeploymentListResponse{
			Data:       make([]transport.DeploymentItem, len(result.Deployments)),
			Pagination: transport.Pagination{Limit: limit, HasMore: result.HasMore},
		}
		for i, d := range result.Deployments {
			resp.Data[i] = transport.ToItem(d)
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(result.Deployments) == 0 {
		fmt.Fprintln(a.out, "No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tADDRESS\tCONTRACT\tSTATUS\tVERIFIED\tCREATED")
	for _, d := range result.Deployments {
		verified := d.VerificationStatus
		if verified == "" {
			verified = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			d.ChainID, truncateAddress(d.Address), d.ContractName, d.Status, verified, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	if result.HasMore {
		fmt.Fprintf(a.out, "\n(showing %d deployments, more available)\n", len(result.Deployments))
	}

	return nil
}

func runDeploymentInfo(ctx context.Context, a *app, server, chainID, address string, jsonOutput bool) error {
	svc, done, err := a.historyService(ctx, server)
	if err != nil {
		return err
	}
	defer done()

	d, err := svc.Get(ctx, chainID, address)
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(transport.ToResponse(d))
	}

	out := printer{w: a.out}
	out.header("Deployment %s", d.Address)
	out.field("Network", fmt.Sprintf("%s (chain %d)", d.Network, d.ChainID))
	out.field("Contract", d.ContractName)
	out.field("Deployer", d.DeployerAddress)
	out.field("Tx Hash", d.TxHash)
	out.field("Block", strconv.FormatInt(d.BlockNumber, 10))
	out.field("Status", d.Status)
	if d.FailedStep != "" {
		out.field("Failed step", fmt.Sprintf("%s: %s", d.FailedStep, d.Error))
	}
	if d.VerificationStatus != "" {
		out.field("Verified", d.VerificationStatus)
	}
	out.field("Recorded", d.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	if len(d.Tiers) == 0 {
		return nil
	}
	fmt.Fprintln(a.out)
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIER\tAMOUNT (ETH)\tBLOCK")
	for _, t := range d.Tiers {
		amount := t.AmountWei
		if wei, ok := new(big.Int).SetString(t.AmountWei, 10); ok {
			amount = crowdfunding.FormatEther(wei)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", t.Position, t.Name, amount, t.BlockNumber)
	}
	return w.Flush()
}
