package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/wire"
)

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Number historical records that lack a valid serial",
		Long: `Assign serials to records with a missing or invalid serial, in creation
order per scope. Safe to run multiple times (idempotent).

Run 'preview' first; 'apply' writes.`,
	}

	cmd.AddCommand(backfillRunCmd("preview", "Show the serials backfill would assign", false))
	cmd.AddCommand(backfillRunCmd("apply", "Assign serials", true))

	return cmd
}

func backfillRunCmd(use, short string, apply bool) *cobra.Command {
	var req primary.BackfillRequest

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			numbering, err := wire.NumberingAdapter()
			if err != nil {
				return err
			}
			return numbering.Backfill(ctx, req, apply)
		},
	}

	cmd.Flags().StringVar(&req.Kind, "kind", "", "Record kind (default all)")
	cmd.Flags().StringSliceVar(&req.BranchIDs, "branch", nil, "Branch IDs (repeatable)")
	cmd.Flags().IntSliceVar(&req.Years, "year", nil, "Creation years (repeatable)")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum records to process (0 = all)")

	return cmd
}
