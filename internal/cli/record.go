package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/wire"
)

// RecordCmd returns the record command
func RecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage work orders and working reports",
	}

	cmd.AddCommand(recordCreateCmd())
	cmd.AddCommand(recordUpdateCmd())
	cmd.AddCommand(recordActivateCmd())
	cmd.AddCommand(recordShowCmd())
	cmd.AddCommand(recordListCmd())
	cmd.AddCommand(recordHistoryCmd())

	return cmd
}

func recordCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <kind> <title>",
		Short: "Create a draft record",
		Long: `Create a work_order or working_report. The record is numbered as soon as
it is created, provided it has a branch (directly or through its project).

--created-at imports historical records with their original creation time.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			plannedAt, err := parseTimeFlag(cmd, "planned-at")
			if err != nil {
				return err
			}
			createdAt, err := parseTimeFlag(cmd, "created-at")
			if err != nil {
				return err
			}
			branch, _ := cmd.Flags().GetString("branch")
			project, _ := cmd.Flags().GetString("project")

			return wire.RecordAdapter().Create(ctx, primary.CreateRecordRequest{
				Kind:      args[0],
				Title:     args[1],
				BranchID:  branch,
				ProjectID: project,
				PlannedAt: plannedAt,
				CreatedAt: createdAt,
			})
		},
	}

	cmd.Flags().String("branch", "", "Branch ID")
	cmd.Flags().String("project", "", "Project ID")
	cmd.Flags().String("planned-at", "", "Planned start (RFC3339)")
	cmd.Flags().String("created-at", "", "Creation time for imported records (RFC3339)")

	return cmd
}

func recordUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <record-id>",
		Short: "Edit a record",
		Long: `Edit a record. --serial is an administrative correction; if it duplicates
another record's serial the scope is renumbered automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			req := primary.UpdateRecordRequest{
				RecordID:  args[0],
				Title:     optionalString(cmd, "title"),
				BranchID:  optionalString(cmd, "branch"),
				ProjectID: optionalString(cmd, "project"),
				Serial:    optionalString(cmd, "serial"),
			}
			if cmd.Flags().Changed("planned-at") {
				plannedAt, err := parseTimeFlag(cmd, "planned-at")
				if err != nil {
					return err
				}
				req.PlannedAt = &plannedAt
			}
			return wire.RecordAdapter().Update(ctx, req)
		},
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("branch", "", "New branch ID")
	cmd.Flags().String("project", "", "New project ID")
	cmd.Flags().String("serial", "", "Serial correction (NNNN/YY)")
	cmd.Flags().String("planned-at", "", "New planned start (RFC3339)")

	return cmd
}

func recordActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <record-id>",
		Short: "Activate a draft record (clock-in)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			return wire.RecordAdapter().Activate(ctx, args[0])
		},
	}
}

func recordShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show record details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			_, err = wire.RecordAdapter().Show(ctx, args[0])
			return err
		},
	}
}

func recordListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString("kind")
			status, _ := cmd.Flags().GetString("status")
			branch, _ := cmd.Flags().GetString("branch")
			limit, _ := cmd.Flags().GetInt("limit")

			return wire.RecordAdapter().List(ctx, primary.RecordFilters{
				Kind:     kind,
				Status:   status,
				BranchID: branch,
				Limit:    limit,
			})
		},
	}

	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().String("branch", "", "Filter by branch")
	cmd.Flags().Int("limit", 100, "Maximum rows")

	return cmd
}

func recordHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <record-id>",
		Short: "Show a record's audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			return wire.RecordAdapter().History(ctx, args[0])
		},
	}
}
