package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/services"
)

// withLedger opens the configured backend, runs fn and releases everything.
func withLedger(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, ledger *services.LedgerService) error) subcommands.ExitStatus {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	result, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.LogError(ctx, "Failed to open backend", err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.LogError(ctx, "Failed to close backend", err)
		}
	}()

	if err := fn(ctx, cfg, result.Ledger); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseTime accepts a date (midnight UTC) or an RFC 3339 timestamp. An empty
// string yields nil.
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q: want YYYY-MM-DD or RFC 3339", s)
}
