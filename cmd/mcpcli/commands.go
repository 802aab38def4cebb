package main

import (
	"context"
	"fmt"

	"al.essio.dev/pkg/shellescape"
	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/schema"
	"github.com/Bigsy/mcpcli/internal/shell"
)

var (
	connectDefault bool
	genFormat      string
)

var connectCmd = &cobra.Command{
	Use:   "connect <name> <command> [args...]",
	Short: "Check that a server starts and answers the handshake",
	Long: `Launch a server, complete the MCP handshake, print its status and
disconnect. Use --default to remember the server for later runs; commands
such as list-tools and invoke-tool connect to the default server.

A command ending in .jar is started with java -jar.

Examples:
  mcpcli connect files npx -y @modelcontextprotocol/server-filesystem /tmp
  mcpcli connect --default files ./server.jar --verbose`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			line := "connect "
			if connectDefault {
				line += "--default "
			}
			if err := a.exec(ctx, line+shellescape.QuoteCommand(args)); err != nil {
				return err
			}
			return a.exec(ctx, "status")
		})
	},
}

var listToolsCmd = &cobra.Command{
	Use:     "list-tools",
	Aliases: []string{"ls"},
	Short:   "List the tools of the default server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDefaultServer(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "list-tools")
		})
	},
}

var describeToolCmd = &cobra.Command{
	Use:   "describe-tool [name]",
	Short: "Show a tool's description and parameters",
	Long: `Show a tool's description and parameters. The name may be the
advertised name or the short name shown by list-tools.

Without a name on a terminal, pick the tool from a fuzzy finder.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDefaultServer(cmd, func(ctx context.Context, a *app) error {
			if len(args) == 1 {
				return a.exec(ctx, "describe-tool "+shellescape.Quote(args[0]))
			}
			if !logging.IsInteractive() {
				return errors.WithHint(errors.New("tool name required"), "usage: mcpcli describe-tool <name>")
			}
			tool, err := a.pickTool()
			if err != nil || tool == nil {
				return err
			}
			fmt.Fprintln(a.out, a.shell.Renderer().Tool(*tool))
			return nil
		})
	},
}

var invokeToolCmd = &cobra.Command{
	Use:     "invoke-tool <name> [key=value ... | json]",
	Aliases: []string{"call"},
	Short:   "Call a tool on the default server",
	Long: `Call a tool on the default server and print its result.

Parameters are key=value pairs whose values are typed by their spelling
(numbers, true/false), or a single JSON object. Quote a value inside the
argument to keep it a string, e.g. 'id="42"'.

Without parameters on a terminal you are asked for each one.

Examples:
  mcpcli invoke-tool read_file path=/etc/hosts
  mcpcli invoke-tool search '{"query": "mcp", "limit": 5}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDefaultServer(cmd, func(ctx context.Context, a *app) error {
			return a.invoke(ctx, args[0], args[1:])
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect to the default server and show its details",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDefaultServer(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "status")
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the default server responds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDefaultServer(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "ping")
		})
	},
}

var showDefaultCmd = &cobra.Command{
	Use:   "show-default",
	Short: "Show the saved default server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "show-default")
		})
	},
}

var removeDefaultCmd = &cobra.Command{
	Use:   "remove-default",
	Short: "Forget the saved default server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "remove-default")
		})
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Print an mcpServers entry for the default server",
	Long: `Print an mcpServers entry for the default server, ready to paste
into an MCP host configuration.

Examples:
  mcpcli generate-config
  mcpcli generate-config --format yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.exec(ctx, "generate-config --format "+shellescape.Quote(genFormat))
		})
	},
}

func init() {
	// Everything after the server command belongs to the server.
	connectCmd.Flags().SetInterspersed(false)
	connectCmd.Flags().BoolVar(&connectDefault, "default", false, "Save the server as the default")

	invokeToolCmd.Flags().SetInterspersed(false)

	generateConfigCmd.Flags().StringVarP(&genFormat, "format", "f", config.FormatJSON, "Output format (json, yaml, toml)")
	_ = generateConfigCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{config.FormatJSON, config.FormatYAML, config.FormatTOML}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(connectCmd, listToolsCmd, describeToolCmd, invokeToolCmd,
		statusCmd, pingCmd, showDefaultCmd, removeDefaultCmd, generateConfigCmd)
}

// withApp runs fn with a non-interactive app that is closed afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd, logging.IsInteractive(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// withDefaultServer connects to the default server before running fn.
func withDefaultServer(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res := a.shell.Execute(ctx, "connect")
		if res.Err != nil {
			return a.report(res)
		}
		a.logger.Debug(res.Output)
		return fn(ctx, a)
	})
}

// exec runs one shell command line and prints its result.
func (a *app) exec(ctx context.Context, line string) error {
	return a.report(a.shell.Execute(ctx, line))
}

func (a *app) report(res shell.Result) error {
	if res.Err != nil {
		fmt.Fprintln(a.errOut, res.Output)
		return errReported
	}
	if res.Output != "" {
		fmt.Fprintln(a.out, res.Output)
	}
	return nil
}

func (a *app) fail(err error) error {
	fmt.Fprintln(a.errOut, a.shell.Renderer().Error(err))
	return errReported
}

func (a *app) invoke(ctx context.Context, name string, tokens []string) error {
	if len(tokens) == 0 && logging.IsInteractive() {
		tool, err := a.session.DescribeTool(name)
		if err != nil {
			return a.fail(err)
		}
		if len(tool.Params) > 0 {
			m, err := shell.NewParamForm(tool).Run()
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			if err != nil {
				return a.fail(err)
			}
			return a.report(a.shell.InvokeTool(ctx, tool, m))
		}
	}

	raw, err := a.session.Invoke(ctx, name, tokens)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, a.shell.Renderer().Result(raw))
	return nil
}

// pickTool lets the user choose a tool with a fuzzy finder. A nil tool means
// the user backed out.
func (a *app) pickTool() (*schema.Tool, error) {
	tools, err := a.session.ListTools()
	if err != nil {
		return nil, a.fail(err)
	}
	if len(tools) == 0 {
		fmt.Fprintln(a.out, a.shell.Renderer().ToolList(tools))
		return nil, nil
	}

	render := a.shell.Renderer()
	idx, err := fuzzyfinder.Find(tools,
		func(i int) string { return tools[i].Name },
		fuzzyfinder.WithPromptString("tool> "),
		fuzzyfinder.WithPreviewWindow(func(i, width, _ int) string {
			if i < 0 {
				return ""
			}
			render.Width = width / 2
			return render.Tool(tools[i])
		}))
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "tool picker")
	}
	return &tools[idx], nil
}
