// ABOUTME: Root cobra command: global flags, config loading, and logger setup
// ABOUTME: Shared helpers build the backend service from the effective settings

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mauromedda/medassist/internal/backend"
	"github.com/mauromedda/medassist/internal/config"
	"github.com/mauromedda/medassist/internal/eventbus"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/rpc"
)

// app carries global flags and the state built by PersistentPreRunE.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	serverCmd  string

	settings   *config.Settings
	configPath string
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "medassist",
		Short:         "Medical assistant front-ends over an MCP server subprocess",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: search up for .medassist/config.yaml, fallback: ~/.medassist/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text|json")
	flags.StringVar(&a.serverCmd, "server-cmd", "", "MCP server command line, e.g. \"python server.py\"")

	root.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newAskCmd(a),
		newToolsCmd(a),
		newPromptCmd(a),
		newStubServerCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves settings with changed flags applied last, then installs the
// logger. Subcommand flags are folded in through overrides.
func (a *app) load(cmd *cobra.Command) error {
	overrides := map[string]any{}
	global := cmd.Root().PersistentFlags()
	if global.Changed("log-level") {
		overrides["log.level"] = a.logLevel
	}
	if global.Changed("log-format") {
		overrides["log.format"] = a.logFormat
	}
	if global.Changed("server-cmd") {
		overrides["server.command"] = a.serverCmd
		overrides["server.args"] = []string{}
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		overrides["web.listen"] = f.Value.String()
	}

	settings, path, err := config.Load(config.LoadOptions{
		ConfigFile: a.configFile,
		Overrides:  overrides,
	})
	if err != nil {
		return err
	}

	logger, err := log.Setup(log.Options{Level: settings.Log.Level, Format: settings.Log.Format})
	if err != nil {
		return err
	}
	cmd.SetContext(log.WithLogger(cmd.Context(), logger))

	a.settings = settings
	a.configPath = path
	a.logger = logger
	logger.Debug("config loaded", "path", path, "command", settings.Argv())
	return nil
}

// newBackend validates the settings and starts a backend service. The caller
// owns Shutdown.
func (a *app) newBackend(events *eventbus.Bus[backend.Event]) (*backend.Service, error) {
	s := a.settings
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	svc := backend.New(backend.Options{
		Command:         s.Argv(),
		Env:             s.EnvList(),
		Dir:             s.Server.Dir,
		ClientInfo:      rpc.ClientInfo{Name: s.Server.ClientName, Version: s.Server.ClientVersion},
		ProtocolVersion: s.Server.ProtocolVersion,
		CallTimeout:     s.Backend.CallTimeout,
		ShutdownTimeout: s.Backend.ShutdownTimeout,
		CloseTimeout:    s.Backend.CloseTimeout,
		Concurrency:     s.Backend.Concurrency,
		Temperature:     &s.Backend.Temperature,
		MaxTokens:       s.Backend.MaxTokens,
		Logger:          log.WithComponent("backend"),
		Events:          events,
	})
	svc.Start()
	return svc, nil
}
