// ABOUTME: Subcommands: serve, chat, ask, tools, prompt, stub-server, and version
// ABOUTME: Each front-end shares one backend service and shuts it down on exit

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mauromedda/medassist/internal/backend"
	"github.com/mauromedda/medassist/internal/eventbus"
	"github.com/mauromedda/medassist/internal/history"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/mode/print"
	"github.com/mauromedda/medassist/internal/mode/repl"
	"github.com/mauromedda/medassist/internal/prompts"
	"github.com/mauromedda/medassist/internal/stub"
	"github.com/mauromedda/medassist/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web chat front-end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := a.settings

			catalog, err := prompts.Load(s.PromptsDir)
			if err != nil {
				return err
			}
			store, err := history.NewStore(s.History)
			if err != nil {
				return err
			}
			defer store.Close()

			events := eventbus.New[backend.Event]()
			defer events.Close()
			svc, err := a.newBackend(events)
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			srv, err := web.New(web.Options{
				Backend:         svc,
				Store:           store,
				Catalog:         catalog,
				Events:          events,
				MaxHistoryChars: s.Web.MaxHistoryChars,
				MaxConns:        s.Web.MaxConns,
				CookieName:      s.Web.CookieName,
				CORSOrigins:     s.Web.CORSOrigins,
				Version:         version,
				Logger:          log.WithComponent("web"),
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, s.Web.Listen)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default from web.listen)")
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := prompts.Load(a.settings.PromptsDir)
			if err != nil {
				return err
			}
			svc, err := a.newBackend(nil)
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			styled, width := repl.DetectTerminal(os.Stdout)
			r := repl.New(repl.Options{
				In:      os.Stdin,
				Out:     os.Stdout,
				Backend: svc,
				Catalog: catalog,
				Styled:  styled,
				Width:   width,
				Logger:  log.WithComponent("repl"),
			})
			return r.Run(cmd.Context())
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Send one message and print the reply (reads stdin when no message is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newBackend(nil)
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			return print.Run(cmd.Context(), print.Config{
				OutputFormat: output,
				Stdin:        cmd.InOrStdin(),
				Stdout:       cmd.OutOrStdout(),
				Stderr:       cmd.ErrOrStderr(),
			}, svc, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text|json|stream-json")
	return cmd
}

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools advertised by the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newBackend(nil)
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			list, err := svc.ListTools(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing tools: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, t := range list {
				fmt.Fprintf(out, "%-22s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

func newPromptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <name> [key=value...]",
		Short: "Render a server prompt template, e.g. health_education_prompt topic=sleep",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make(map[string]string, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("argument %q: want key=value", kv)
				}
				params[k] = v
			}

			svc, err := a.newBackend(nil)
			if err != nil {
				return err
			}
			defer svc.Shutdown()

			out := svc.Prompt(cmd.Context(), args[0], params)
			if !out.OK() {
				return errors.New(out.Err.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			return nil
		},
	}
}

func newStubServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stub-server",
		Short: "Serve an offline stand-in MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := stub.New(stub.Options{Version: version, Logger: log.WithComponent("stub")})
			a.logger.Debug("stub server starting")
			return s.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "medassist %s (%s) built %s\n", version, commit, date)
		},
	}
}
