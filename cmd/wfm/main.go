package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/cli"
	"github.com/example/wfm/internal/version"
	"github.com/example/wfm/internal/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "wfm",
		Short:   "wfm - serial numbering for work orders and working reports",
		Version: version.String(),
		Long: `wfm numbers operational records with branch-and-year scoped serials
(NNNN/YY), backfills historical records and repairs duplicate or gapped
scopes.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.BranchCmd())
	rootCmd.AddCommand(cli.ProjectCmd())
	rootCmd.AddCommand(cli.RecordCmd())

	// Numbering maintenance
	rootCmd.AddCommand(cli.SerialCmd())
	rootCmd.AddCommand(cli.BackfillCmd())
	rootCmd.AddCommand(cli.RenumberCmd())
	rootCmd.AddCommand(cli.ServeCmd())

	err := rootCmd.Execute()
	if cerr := wire.Close(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
