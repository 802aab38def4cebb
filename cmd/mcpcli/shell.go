package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the interactive shell",
	Long: `Run the interactive shell.

On a terminal the shell keeps a status line, command history (up/down) and
asks for tool parameters with a form. Otherwise it reads one command per
line from stdin and exits non-zero if any command failed.

Type help inside the shell for the list of commands.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	interactive := logging.IsInteractive()
	a, err := newApp(cmd, interactive, interactive)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if interactive {
		a.logger.Info("=== mcpcli shell starting ===", "version", version)
		err := shell.RunProgram(ctx, a.shell, a.bus, os.Stdin, os.Stdout)
		a.logger.Info("=== mcpcli shell exiting ===")
		return err
	}

	failed, err := shell.RunPlain(ctx, a.shell, cmd.InOrStdin(), a.out, false)
	if failed > 0 {
		// Failures were printed as they happened.
		return errReported
	}
	return err
}
