package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/wire"
)

// BranchCmd returns the branch command
func BranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage branches",
	}

	add := &cobra.Command{
		Use:   "add <branch-id>",
		Short: "Add a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			return wire.ReferenceAdapter().AddBranch(ctx, args[0], name)
		},
	}
	add.Flags().String("name", "", "Display name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			return wire.ReferenceAdapter().ListBranches(ctx)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// ProjectCmd returns the project command
func ProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Records without a branch of their own are numbered under their project's branch.",
	}

	add := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			branch, _ := cmd.Flags().GetString("branch")
			return wire.ReferenceAdapter().AddProject(ctx, args[0], name, branch)
		},
	}
	add.Flags().String("name", "", "Display name")
	add.Flags().String("branch", "", "Branch the project's records are numbered under")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := commandContext(cmd)
			if err != nil {
				return err
			}
			return wire.ReferenceAdapter().ListProjects(ctx)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
