package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/config"
	"github.com/example/wfm/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var mode, timezone string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize wfm in the current directory",
		Long: `Write .wfm/config.json (if missing) and create the database schema and
the KV store at the configured paths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(err, "failed to get working directory")
			}

			path := filepath.Join(wd, config.DirName, "config.json")
			if _, err := os.Stat(path); os.IsNotExist(err) {
				cfg := config.Default()
				if mode != "" {
					cfg.Numbering.Mode = mode
				}
				if timezone != "" {
					cfg.Numbering.Timezone = timezone
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveConfig(wd, cfg); err != nil {
					return err
				}
				fmt.Printf("✓ Config written to %s\n", path)
			} else {
				fmt.Printf("Config already exists at %s\n", path)
			}

			if err := wire.Init(); err != nil {
				return err
			}
			cfg := wire.Config()
			fmt.Printf("✓ Database ready at %s\n", cfg.DBPath)
			fmt.Printf("✓ KV store ready at %s\n", cfg.KVPath)
			fmt.Printf("  Numbering mode: %s (%s)\n", cfg.Numbering.Mode, cfg.Numbering.Timezone)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  wfm branch add MAD --name Madrid")
			fmt.Println("  wfm record create work_order \"First job\" --branch MAD")
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Numbering mode: per_branch_year or global_per_year")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone used to derive a record's year")

	return cmd
}
