// Package commands implements the CLI commands for the nest package manager.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/nest/internal/app"
	"go.trai.ch/nest/internal/build"
)

// CLI represents the command line interface for nest.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(a *app.App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "nest",
		Short:         "A package manager for JavaScript projects and workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("dir", "C", ".", "Project directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every finished step with its duration")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newPlanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

func installOptions(cmd *cobra.Command, args []string) app.InstallOptions {
	dir, _ := cmd.Flags().GetString("dir")
	verbose, _ := cmd.Flags().GetBool("verbose")
	remove, _ := cmd.Flags().GetStringSlice("remove")
	return app.InstallOptions{
		Root:    dir,
		Add:     args,
		Remove:  remove,
		Verbose: verbose,
	}
}
