package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/Druid-alpha/shoplux-BE/internal/config"
	"github.com/Druid-alpha/shoplux-BE/internal/telemetry"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator tools for orders, payments and the event outbox",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env carries what every subcommand needs once configuration is loaded.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

func newEnv(required ...string) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Require(required...); err != nil {
		return nil, err
	}

	e := &env{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	if slices.Contains(required, "postgres_url") {
		db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		e.db = db
	}
	return e, nil
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func age(t time.Time) string {
	return time.Since(t).Truncate(time.Second).String()
}
