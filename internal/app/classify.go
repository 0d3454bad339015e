package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/clipsheet/internal/cli"
	"horse.fit/clipsheet/internal/config"
	"horse.fit/clipsheet/internal/globaltime"
	"horse.fit/clipsheet/internal/logging"
	"horse.fit/clipsheet/internal/pipeline"
)

func runClassify(args []string) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	tab := fs.String("tab", "", "Destination tab to classify (default: today's)")
	dryRun := fs.Bool("dry-run", false, "Compute labels without writing them back")

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

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("classify command failed to initialize services")
		fmt.Fprintf(os.Stderr, "Failed to initialize services: %v\n", err)
		return 1
	}
	defer svc.Cleanup()

	result, err := executeClassify(ctx, svc, logger, globaltime.Now(), pipeline.ClassifyOptions{
		Tab:    *tab,
		DryRun: *dryRun,
	})
	if err != nil {
		logger.Error().Err(err).Str("tab", *tab).Msg("classify failed")
		fmt.Fprintf(os.Stderr, "Classify failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"classify tab=%s rows=%d classified=%d service_items=%d fallback_items=%d batches=%d failed_batches=%d service_used=%t dry_run=%t\n",
		result.Tab,
		result.Rows,
		result.Classified,
		result.ServiceItems,
		result.FallbackItems,
		result.Batches,
		result.FailedBatches,
		result.ServiceUsed,
		result.DryRun,
	)
	return 0
}
