package cli

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/crowdfund-deploy/internal/confirm"
	"github.com/pendergraft/crowdfund-deploy/internal/validation"
)

func createWaitCmd(a *app) *cobra.Command {
	var confirmations uint64

	cmd := &cobra.Command{
		Use:   "wait <tx-hash>",
		Short: "Wait for block confirmations on a transaction",
		Long: `Block until the chain head is the given number of blocks past the block
that included the transaction.

EXAMPLES:
  crowdfund-deploy wait 0x3f1c...
  crowdfund-deploy wait 0x3f1c... --confirmations 12
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("confirmations") {
				confirmations = a.cfg.Confirmations.Blocks
			}
			return runWait(cmd.Context(), a, args[0], confirmations)
		},
	}

	cmd.Flags().Uint64Var(&confirmations, "confirmations", 0, "confirmation depth (default from BLOCK_CONFIRMATIONS)")

	return cmd
}

func runWait(ctx context.Context, a *app, txHash string, confirmations uint64) error {
	if err := validation.ValidateTxHash(txHash); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	client, err := a.dial(ctx, a.cfg.Network.RPCURL, a.cfg.Network.ChainID)
	if err != nil {
		return err
	}
	defer client.Close()

	out := printer{w: a.out}
	waiter := confirm.New(client,
		confirm.WithPollInterval(a.cfg.Confirmations.PollInterval),
		confirm.WithTimeout(a.cfg.Confirmations.Timeout),
		confirm.WithLogger(a.logger),
		confirm.WithObserver(out.confirmations),
	)

	res, err := waiter.Wait(ctx, common.HexToHash(txHash), confirmations)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %d confirmations\n", okMark, confirmations)
	out.field("Included", fmt.Sprintf("block %d", res.InclusionBlock))
	out.field("Head", fmt.Sprintf("block %d", res.HeadBlock))
	out.field("Polls", fmt.Sprintf("%d", res.Polls))
	return nil
}
