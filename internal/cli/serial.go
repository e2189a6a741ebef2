package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/wire"
)

// SerialCmd returns the serial command
func SerialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Allocate serials and inspect counters",
	}

	cmd.AddCommand(serialAllocateCmd())
	cmd.AddCommand(serialCountersCmd())

	return cmd
}

func serialAllocateCmd() *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "allocate <kind> <branch-id>",
		Short: "Issue the next serial of a scope",
		Long: `Issue the next serial for a record kind and branch, in the year of --at
(default now). The serial is not attached to any record.

--legacy uses the ledger-only allocator, which can issue duplicates under
concurrency. Only use it when no other writer is running.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			at, err := parseTimeFlag(cmd, "at")
			if err != nil {
				return err
			}
			if at.IsZero() {
				at = time.Now()
			}
			numbering, err := wire.NumberingAdapter()
			if err != nil {
				return err
			}
			return numbering.Allocate(ctx, args[0], args[1], at, legacy)
		},
	}

	cmd.Flags().String("at", "", "Anchor time (RFC3339); its year selects the scope")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Use the non-atomic ledger allocator")

	return cmd
}

func serialCountersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "List scope counters (ledger and KV)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			numbering, err := wire.NumberingAdapter()
			if err != nil {
				return err
			}
			return numbering.Counters(ctx)
		},
	}
}
