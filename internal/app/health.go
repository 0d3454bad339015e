package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/clipsheet/internal/classify"
	"horse.fit/clipsheet/internal/cli"
	"horse.fit/clipsheet/internal/config"
	"horse.fit/clipsheet/internal/db"
	"horse.fit/clipsheet/internal/logging"
	"horse.fit/clipsheet/internal/sheets"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Health check timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	creds, err := cfg.CredentialsJSON()
	if err != nil {
		logger.Error().Err(err).Msg("health check failed to load credentials")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	tokens, err := sheets.NewJWTTokenSource(creds, sheets.TokenOptions{})
	if err != nil {
		logger.Error().Err(err).Msg("health check failed to build token source")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	source, err := sheets.NewClient(cfg.ResolvedSourceSpreadsheetID(), tokens, sheets.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("health check failed to build sheets client")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	if _, err := source.ReadColumn(ctx, cfg.SourceTab, "A", 1); err != nil {
		logger.Error().Err(err).Str("tab", cfg.SourceTab).Msg("source tab read failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	fmt.Println("ok: source tab reachable")

	// The classifier degrades to keyword rules when the service is down, so
	// its probe result is informational only.
	if cfg.ClassifierEnabled() {
		rules, err := classify.NewRuleClassifier(classify.DefaultRules())
		if err != nil {
			logger.Error().Err(err).Msg("health check failed to build rule classifier")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		remote := classify.NewGeminiClient(cfg.GeminiAPIKey, classify.GeminiOptions{Model: cfg.GeminiModel})
		orchestrator := classify.NewOrchestrator(remote, rules, logger, classify.Options{})
		if orchestrator.Probe(ctx) {
			fmt.Println("ok: classification service answered")
		} else {
			fmt.Println("warn: classification service unavailable, runs will use keyword rules")
		}
	} else {
		fmt.Println("warn: no classifier API key, runs will use keyword rules")
	}

	// NewPool pings before returning.
	if cfg.LedgerEnabled() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("ledger health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		defer pool.Close()
		fmt.Println("ok: run ledger reachable")
	}

	logger.Info().Dur("timeout", *timeout).Msg("health check passed")
	return 0
}
