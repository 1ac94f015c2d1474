// Command reconcile compares every book's available counter with its open
// borrowings and exits non-zero when they disagree.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"library-automation/internal/config"
	"library-automation/internal/firebase"
	"library-automation/internal/ledger"
	"library-automation/internal/logger"
)

func main() {
	pretty := flag.Bool("pretty", false, "indent the JSON report")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "library-reconcile", Output: os.Stderr})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "library-reconcile",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	fbClient, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		logg.Error(ctx, "failed to initialize firebase", err)
		os.Exit(1)
	}
	defer fbClient.Close()

	l := ledger.New(fbClient, ledger.WithLogger(logg), ledger.WithStoreTimeout(cfg.Store.Timeout))
	report, err := l.Reconcile(ctx)
	if err != nil {
		logg.Error(ctx, "reconciliation failed", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		logg.Error(ctx, "failed to write report", err)
		os.Exit(1)
	}
	if !report.Consistent() {
		os.Exit(2)
	}
}
