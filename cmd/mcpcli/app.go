package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/events"
	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/process"
	"github.com/Bigsy/mcpcli/internal/session"
	"github.com/Bigsy/mcpcli/internal/shell"
	"github.com/Bigsy/mcpcli/internal/shell/theme"
)

// app wires settings, logging, the session and the shell for one run.
type app struct {
	settings *config.Settings
	logger   *slog.Logger
	bus      *events.Bus
	session  *session.Session
	store    *config.DefaultServerStore
	shell    *shell.Shell
	out      io.Writer
	errOut   io.Writer

	logFile *os.File
}

// newApp loads settings and builds the session. When logToFile is set, log
// output goes to the state directory instead of stderr so it does not draw
// over the terminal UI.
func newApp(cmd *cobra.Command, interactive, logToFile bool) (*app, error) {
	settings, err := config.Load(v, settingsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load settings")
	}

	level, _ := logging.ParseLevel(settings.LogLevel)
	format, _ := logging.ParseFormat(settings.LogFormat)

	a := &app{
		settings: settings,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}

	var logOut io.Writer = a.errOut
	if logToFile {
		f, err := logging.OpenFile(config.LogFilePath())
		if err != nil {
			return nil, err
		}
		a.logFile = f
		logOut = f
	} else if level == slog.LevelInfo {
		// Command output shares the terminal with stderr; info is too chatty there.
		level = slog.LevelWarn
	}
	a.logger = logging.New(logging.Config{Level: level, Format: format, Output: logOut})
	a.logger.Debug("mcpcli starting", "version", version, "config_dir", settings.ConfigDir)

	a.bus = events.NewBus(a.logger)
	a.bus.Subscribe(func(e events.Event) {
		switch evt := e.(type) {
		case events.StateChangedEvent:
			a.logger.Debug("state changed", "server", evt.ServerName(), "old", evt.OldState, "new", evt.NewState, "reason", evt.Reason)
		case events.ToolsUpdatedEvent:
			a.logger.Debug("tools updated", "server", evt.ServerName(), "count", len(evt.ToolNames))
		case events.ErrorEvent:
			a.logger.Warn(evt.Message, "server", evt.ServerName(), "error", evt.Err)
		}
	})

	sessOpts := session.Options{
		Logger:           a.logger,
		Bus:              a.bus,
		ClientName:       settings.ClientName,
		ClientVersion:    version,
		HandshakeTimeout: settings.HandshakeTimeout,
		RequestTimeout:   settings.RequestTimeout,
		ShutdownGrace:    settings.ShutdownGrace,
	}
	if pidPath, err := process.DefaultPIDPath(); err != nil {
		a.logger.Warn("PID tracking disabled", "error", err)
	} else {
		pids := process.NewPIDTracker(pidPath, a.logger)
		if n := pids.CleanupOrphans(); n > 0 {
			a.logger.Info("terminated servers orphaned by exited mcpcli processes", "count", n)
		}
		sessOpts.PIDs = pids
	}
	a.session = session.New(sessOpts)
	a.store = config.NewDefaultServerStore(settings.DefaultServerPath())

	th := theme.Plain()
	if interactive || logging.SupportsColor(os.Stdout) {
		th = theme.New()
	}
	a.shell = shell.New(shell.Options{
		Session:     a.session,
		Store:       a.store,
		Render:      shell.Renderer{Theme: th},
		Logger:      a.logger,
		Interactive: interactive,
	})
	return a, nil
}

// Close disconnects any server and releases the log file.
func (a *app) Close() {
	if err := a.shell.Close(); err != nil {
		a.logger.Warn("disconnect failed", "error", err)
	}
	a.bus.Close()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
