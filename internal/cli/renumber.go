package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/core/serial"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/wire"
)

// RenumberCmd returns the renumber command
func RenumberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renumber",
		Short: "Recompute dense serials for whole scopes",
		Long: `Rewrite the serials of every record in the selected scopes to 1..N in
creation order. Counters are raised to N and never lowered.

Run 'preview' first; 'apply' writes.`,
	}

	cmd.AddCommand(renumberRunCmd("preview", "Show the serial changes", false))
	cmd.AddCommand(renumberRunCmd("apply", "Rewrite serials", true))

	return cmd
}

func renumberRunCmd(use, short string, apply bool) *cobra.Command {
	var (
		req  primary.RenumberRequest
		mode string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				m, err := serial.ParseMode(mode)
				if err != nil {
					return err
				}
				req.Mode = m
			}
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			numbering, err := wire.NumberingAdapter()
			if err != nil {
				return err
			}
			return numbering.Renumber(ctx, req, apply)
		},
	}

	cmd.Flags().StringVar(&req.Kind, "kind", "", "Record kind (default all)")
	cmd.Flags().StringSliceVar(&req.BranchIDs, "branch", nil, "Branch IDs (repeatable; per_branch_year only)")
	cmd.Flags().IntSliceVar(&req.Years, "year", nil, "Creation years (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", "", "Override the configured numbering mode")

	return cmd
}
