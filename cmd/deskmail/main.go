// Command deskmail exposes a mailbox, its tasks and its calendar as tools
// for AI assistants.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deskmail/deskmail/internal/assistant"
	"github.com/deskmail/deskmail/internal/config"
	"github.com/deskmail/deskmail/internal/mcp"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "deskmail",
		Short:        "Mail, calendar and task tools for AI assistants",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		serveCmd(flags),
		askCmd(flags),
		toolsCmd(flags),
		auditCmd(flags),
	)
	return cmd
}

// setup loads the configuration and builds the application.
func setup(flags *globalFlags) (*app, error) {
	if err := config.LoadEnv(flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Log, flags.debug)
	return newApp(cfg, logger)
}

// newLogger writes to stderr; stdout is reserved for the MCP protocol.
func newLogger(cfg config.LogConfig, debug bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(a.registry, a.cfg.Server.Name, a.cfg.Server.Version, a.logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}

func askCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about the mailbox with the configured LLM",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.LLM.APIKey == "" {
				return fmt.Errorf("llm.api_key is required for ask")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			asst := assistant.New(assistant.NewClient(a.cfg.LLM), a.registry, a.cfg.LLM, a.logger)
			answer, err := asst.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func toolsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a.registry.ToOpenAITools(nil))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, t := range a.registry.GetAll() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name(), firstLine(t.Description()))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tool schemas as JSON")
	return cmd
}

func auditCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show tool call statistics from the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if sessionID == "" {
				stats, err := a.store.GetStats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total calls: %d\nFailed calls: %d\n", stats.TotalCalls, stats.FailedCalls)
				return nil
			}

			calls, err := a.store.GetToolCalls(ctx, sessionID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, c := range calls {
				status := "ok"
				if c.Error != "" {
					status = c.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", c.CalledAt.Format("2006-01-02 15:04:05"), c.ToolName, c.Duration, status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "list the calls of one session")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
