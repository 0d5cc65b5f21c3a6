package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hobeen-kim/postgres-mcp/internal/config"
	"github.com/hobeen-kim/postgres-mcp/internal/database"
	"github.com/hobeen-kim/postgres-mcp/internal/mcpserver"
	"github.com/hobeen-kim/postgres-mcp/internal/policy"
	"github.com/hobeen-kim/postgres-mcp/internal/proxy"
	"github.com/hobeen-kim/postgres-mcp/internal/telemetry"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	configPath string
	cfg        config.Config
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("postgres-mcp failed")
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "postgres-mcp",
		Short:         "Policy-gated PostgreSQL access for MCP clients",
		Long:          "postgres-mcp exposes a PostgreSQL database to MCP clients and a wire proxy,\nchecking every statement against a configured access mode before it executes.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	// An empty default keeps the flag from masking PG_ALLOW_WRITE handling
	// in config.Load; readonly is applied there.
	flags.String("access-mode", "", "access mode: readonly, limited or unrestricted (default readonly)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")

	viper.BindPFlag("policy.access_mode", flags.Lookup("access-mode"))
	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(serveCmd(), proxyCmd(), classifyCmd())
	return root
}

// setupLogging routes all output to stderr. stdout is reserved for the MCP
// protocol when serving stdio.
func setupLogging(c config.Logging) {
	var w io.Writer = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = os.Stderr
	})
	if c.Format == "json" {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

func startTelemetry() {
	if !cfg.Metrics.Enabled {
		return
	}
	telemetry.Init()
	go func() {
		if err := telemetry.Serve(cfg.Metrics.Addr); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			gate, err := policy.NewGate(cfg.AccessMode(), cfg.Policy.CacheSize)
			if err != nil {
				return err
			}
			startTelemetry()

			db, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			return mcpserver.New(gate, db, db.MaxRows(), version).ServeStdio()
		},
	}
}

func proxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the PostgreSQL wire protocol with the same statement gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			gate, err := policy.NewGate(cfg.AccessMode(), cfg.Policy.CacheSize)
			if err != nil {
				return err
			}
			startTelemetry()

			db, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			return proxy.New(db.Pool(), gate, cfg.Proxy.ListenAddr).ListenAndServe()
		},
	}
	cmd.Flags().String("listen", "127.0.0.1:6432", "proxy listen address (overrides PROXY_LISTEN_ADDR)")
	viper.BindPFlag("proxy.listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <sql>",
		Short: "Print the access decision for a statement without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := cfg.AccessMode()
			d := policy.Classify(args[0], mode)

			out := struct {
				Mode    string `json:"mode"`
				Kind    string `json:"kind"`
				Allowed bool   `json:"allowed"`
				Reason  string `json:"reason,omitempty"`
			}{mode.String(), d.Kind.String(), d.Allowed, d.Reason}

			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}
