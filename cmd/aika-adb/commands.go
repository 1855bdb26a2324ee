package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masato25/aika-adb/config"
	"github.com/masato25/aika-adb/internal/app"
	"github.com/masato25/aika-adb/pkg/adb"
	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/web"
)

type rootArgs struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	args := &rootArgs{}

	root := &cobra.Command{
		Use:           "aika-adb",
		Short:         "Oracle ADB AI agent: chat API, MCP server and tool gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&args.configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().StringSliceVar(&args.envFiles, "env-file", []string{".env"}, "Environment files loaded before the configuration")
	root.PersistentFlags().StringVar(&args.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		newServeCmd(args),
		newMCPCmd(args),
		newGatewayCmd(args),
		newQueryCmd(args),
		newPresetsCmd(args),
		newSchemaCmd(args),
		newInitDBCmd(args),
	)
	return root
}

// loadConfig reads the configuration and applies command line overrides.
func (r *rootArgs) loadConfig() (*config.Config, []string, error) {
	cfg, warnings, err := app.LoadConfig(r.configPath, r.envFiles...)
	if err != nil {
		return nil, warnings, err
	}
	if r.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(r.logLevel)
	}
	return cfg, warnings, nil
}

// newApp builds the application, logging configuration warnings.
func (r *rootArgs) newApp(ctx context.Context, mutate func(*config.Config)) (*app.App, error) {
	cfg, warnings, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	for _, w := range warnings {
		log.Warnw("configuration warning", "warning", w)
	}
	return app.New(ctx, cfg, log)
}

// logToStderr keeps stdout free for command output and the MCP protocol.
func logToStderr(cfg *config.Config) {
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(args *rootArgs) *cobra.Command {
	var withGateway bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API and web page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := args.newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			errCh := make(chan error, 2)
			go func() { errCh <- a.WebServer().Run(ctx, a.WebAddr()) }()
			running := 1
			if withGateway {
				go func() { errCh <- web.Serve(ctx, a.GatewayAddr(), a.Gateway().Handler(), a.Logger.Named("gateway")) }()
				running++
			}

			var result error
			for i := 0; i < running; i++ {
				if err := <-errCh; err != nil && result == nil {
					result = err
					stop()
				}
			}
			return result
		},
	}
	cmd.Flags().BoolVar(&withGateway, "gateway", false, "Also serve the REST tool gateway")
	return cmd
}

func newMCPCmd(args *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := args.newApp(cmd.Context(), logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.MCPServer().ServeStdio()
		},
	}
}

func newGatewayCmd(args *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the REST tool gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := args.newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return web.Serve(ctx, a.GatewayAddr(), a.Gateway().Handler(), a.Logger.Named("gateway"))
		},
	}
}

func newQueryCmd(args *rootArgs) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "query <message>",
		Short: "Send one message to the agent and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			a, err := args.newApp(cmd.Context(), logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Agent.Execute(cmd.Context(), sessionID, positional[0])
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to continue")
	return cmd
}

func newPresetsCmd(args *rootArgs) *cobra.Command {
	var apply string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List deployment presets, or apply one with --apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if apply == "" {
				for _, p := range config.Presets() {
					fmt.Fprintf(out, "%-12s %s\n", p.Name, p.Description)
				}
				return nil
			}

			preset, err := config.ApplyPreset(apply)
			if err != nil {
				return err
			}
			cfg, _, err := args.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Applied preset %s\n", preset.Name)
			return printJSON(out, cfg.Summary())
		},
	}
	cmd.Flags().StringVar(&apply, "apply", "", "Preset to apply before printing the resulting configuration")
	return cmd
}

func newSchemaCmd(args *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [table]",
		Short: "Print the schema overview, or the columns of one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			a, err := args.newApp(cmd.Context(), func(cfg *config.Config) {
				cfg.Tools.EnableOracle = true
				logToStderr(cfg)
			})
			if err != nil {
				return err
			}
			defer a.Close()

			explorer := adb.NewSchemaExplorer(a.DB)
			var result *adb.Result
			if len(positional) == 1 {
				result = explorer.Describe(cmd.Context(), positional[0], "")
			} else {
				result = explorer.Overview(cmd.Context(), "")
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.OK() {
				return fmt.Errorf("%s: %s", result.ErrorCode, result.ErrorMessage)
			}
			return nil
		},
	}
}

func newInitDBCmd(args *rootArgs) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create and seed the embedded database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := args.loadConfig()
			if err != nil {
				return err
			}
			if force && cfg.Database.Type == "sqlite3" {
				if err := os.Remove(cfg.Database.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to remove %s: %w", cfg.Database.Path, err)
				}
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return err
			}
			m, err := adb.Open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer m.Close()

			info, err := m.SchemaInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database ready (%s): %d tables, %d indexes\n", m.Driver(), info.TotalTables, info.TotalIndexes)
			for _, t := range info.Tables {
				fmt.Fprintf(out, "  %-14s %d rows\n", t.Name, t.RowCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete the sqlite file first")
	return cmd
}
