package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/clipsheet/internal/cli"
	"horse.fit/clipsheet/internal/config"
	"horse.fit/clipsheet/internal/globaltime"
	"horse.fit/clipsheet/internal/httpapi"
	"horse.fit/clipsheet/internal/logging"
	"horse.fit/clipsheet/internal/pipeline"
)

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	skipClassify := fs.Bool("skip-classify", false, "Append rows without labeling them")

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
		logger.Error().Err(err).Msg("process command failed to initialize services")
		fmt.Fprintf(os.Stderr, "Failed to initialize services: %v\n", err)
		return 1
	}
	defer svc.Cleanup()

	now := globaltime.Now()
	ingestResult, err := executeIngest(ctx, svc, logger, now)
	if err != nil {
		logger.Error().Err(err).Msg("ingest phase failed")
		fmt.Fprintf(os.Stderr, "Process failed during ingest: %v\n", err)
		return 1
	}
	fmt.Printf(
		"ingest tab=%s scanned=%d appended=%d duplicate_url=%d outside_window=%d unparsable=%d missing_url=%d last_sequence=%d\n",
		ingestResult.Tab,
		ingestResult.Scanned,
		ingestResult.Appended,
		ingestResult.DuplicateURL,
		ingestResult.OutsideWindow,
		ingestResult.Unparsable,
		ingestResult.MissingURL,
		ingestResult.LastSequence,
	)

	if *skipClassify {
		fmt.Printf("process tab=%s appended=%d classified=0 skip_classify=true\n", ingestResult.Tab, ingestResult.Appended)
		return 0
	}

	classifyResult, err := executeClassify(ctx, svc, logger, now, pipeline.ClassifyOptions{})
	if err != nil {
		logger.Error().Err(err).Msg("classify phase failed")
		fmt.Fprintf(os.Stderr, "Process failed during classify: %v\n", err)
		return 1
	}
	fmt.Printf(
		"classify tab=%s rows=%d classified=%d service_items=%d fallback_items=%d service_used=%t\n",
		classifyResult.Tab,
		classifyResult.Rows,
		classifyResult.Classified,
		classifyResult.ServiceItems,
		classifyResult.FallbackItems,
		classifyResult.ServiceUsed,
	)

	fmt.Printf(
		"process tab=%s appended=%d classified=%d service_used=%t\n",
		ingestResult.Tab,
		ingestResult.Appended,
		classifyResult.Classified,
		classifyResult.ServiceUsed,
	)
	return 0
}

// processRunner executes full pipeline runs one at a time. The scheduler and
// the manual API trigger share one instance, so a tick landing during a
// manual run is skipped instead of stacking.
type processRunner struct {
	services *services
	logger   zerolog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

func newProcessRunner(svc *services, logger zerolog.Logger, timeout time.Duration) *processRunner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &processRunner{services: svc, logger: logger, timeout: timeout}
}

// TriggerProcess starts a run in the background, or reports one in flight.
func (r *processRunner) TriggerProcess(context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return httpapi.ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		now := globaltime.Now()
		if _, err := executeIngest(ctx, r.services, r.logger, now); err != nil {
			r.logger.Error().Err(err).Msg("pipeline run failed during ingest")
			return
		}
		if _, err := executeClassify(ctx, r.services, r.logger, now, pipeline.ClassifyOptions{}); err != nil {
			r.logger.Error().Err(err).Msg("pipeline run failed during classify")
			return
		}
		r.logger.Info().Str("tab", pipeline.DailyTab(now)).Msg("pipeline run completed")
	}()
	return nil
}
