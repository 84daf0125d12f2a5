package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install [specs...]",
		Aliases: []string{"i", "add"},
		Short:   "Install dependencies, optionally adding new ones",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := installOptions(cmd, args)
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Frozen, _ = cmd.Flags().GetBool("frozen-lockfile")
			opts.IgnoreScripts, _ = cmd.Flags().GetBool("ignore-scripts")
			asJSON, _ := cmd.Flags().GetBool("json")

			res, err := c.app.Install(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringSliceP("remove", "r", nil, "Remove dependencies from the project")
	cmd.Flags().Bool("dry-run", false, "Show the changes without applying them")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().Bool("frozen-lockfile", false, "Fail instead of updating the lockfile")
	cmd.Flags().Bool("ignore-scripts", false, "Do not run lifecycle scripts")
	return cmd
}

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [specs...]",
		Short: "Show the changes install would make",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			res, err := c.app.Plan(cmd.Context(), installOptions(cmd, args))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringSliceP("remove", "r", nil, "Remove dependencies from the project")
	cmd.Flags().Bool("json", false, "Print the plan as JSON")
	return cmd
}
