package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/logging"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// errReported is returned when the failure was already printed.
var errReported = errors.New("command failed")

var (
	settingsPath string
	v            = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "mcpcli",
	Short: "Interactive client for MCP servers",
	Long: `mcpcli launches an MCP server as a child process, talks to it over
stdio and lets you list, inspect and call its tools.

Running without a subcommand starts the interactive shell. When stdin is
not a terminal, commands are read one per line.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	RunE:    runShell,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Suppress errors from being printed twice
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&settingsPath, "config", "c", "", "Path to settings file (default: ~/.config/mcpcli/config.yaml)")
	pf.Duration("request-timeout", 0, "Timeout for each request to the server (default 30s)")
	pf.Duration("handshake-timeout", 0, "Timeout for the initialize handshake (default 30s)")
	pf.Duration("shutdown-grace", 0, "How long a server gets to exit before it is killed (default 5s)")
	pf.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")
	pf.String("config-dir", "", "Directory holding the default server record")

	bind := map[string]string{
		config.KeyRequestTimeout:   "request-timeout",
		config.KeyHandshakeTimeout: "handshake-timeout",
		config.KeyShutdownGrace:    "shutdown-grace",
		config.KeyLogLevel:         "log-level",
		config.KeyLogFormat:        "log-format",
		config.KeyConfigDir:        "config-dir",
	}
	for key, flag := range bind {
		mustBind(v, key, flag)
	}

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(logging.FormatText), string(logging.FormatJSON)}, cobra.ShellCompDirectiveNoFileComp
	})
}

// mustBind binds a persistent flag to a settings key. Unset flags leave the
// config file, environment and defaults in charge.
func mustBind(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			if hints := errors.FlattenHints(err); hints != "" {
				fmt.Fprintln(os.Stderr, hints)
			}
		}
		os.Exit(1)
	}
}
