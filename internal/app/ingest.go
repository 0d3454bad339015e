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
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

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
		logger.Error().Err(err).Msg("ingest command failed to initialize services")
		fmt.Fprintf(os.Stderr, "Failed to initialize services: %v\n", err)
		return 1
	}
	defer svc.Cleanup()

	result, err := executeIngest(ctx, svc, logger, globaltime.Now())
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"ingest tab=%s scanned=%d appended=%d duplicate_url=%d outside_window=%d unparsable=%d missing_url=%d last_sequence=%d\n",
		result.Tab,
		result.Scanned,
		result.Appended,
		result.DuplicateURL,
		result.OutsideWindow,
		result.Unparsable,
		result.MissingURL,
		result.LastSequence,
	)
	return 0
}
