package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/krwatch/listingpulse/internal/app"
	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/health"
	"github.com/krwatch/listingpulse/internal/store"
)

var (
	configDir string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "listingpulse",
	Short: "Real-time new-listing detection and trade-decision pipeline for Korean exchanges",
	Long: `listingpulse watches Upbit and Bithumb for new token listings and, within
seconds of detection, produces an advisory Go / No-Go decision: domestic
premium versus the global reference price, minus slippage, fees, gas and
hedge cost, gated by deposit/withdrawal state and compliance routes.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		if debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := config.LoadEnv()
		if err != nil {
			return fmt.Errorf("parse environment: %w", err)
		}
		cfg, err := config.Load(configDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.Run(ctx, env, cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(*cobra.Command, []string) error {
		env, err := config.LoadEnv()
		if err != nil {
			return fmt.Errorf("parse environment: %w", err)
		}
		db, err := store.Open(env.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(db, store.Migrations()); err != nil {
			return err
		}
		version, err := store.SchemaVersion(db)
		if err != nil {
			return err
		}
		log.Info().Int("schema_version", version).Msg("migrations applied")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the last health snapshot and derived status",
	RunE: func(*cobra.Command, []string) error {
		env, err := config.LoadEnv()
		if err != nil {
			return fmt.Errorf("parse environment: %w", err)
		}
		snap, err := health.ReadSnapshot(env.HealthFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", env.HealthFile, err)
		}
		out := struct {
			Status health.Status `json:"status"`
			health.Snapshot
		}{Status: health.Derive(snap, time.Now().UTC()), Snapshot: snap}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "directory holding the YAML config files")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, migrateCmd, healthCmd)
}
