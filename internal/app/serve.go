package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/clipsheet/internal/cli"
	"horse.fit/clipsheet/internal/config"
	"horse.fit/clipsheet/internal/globaltime"
	"horse.fit/clipsheet/internal/httpapi"
	"horse.fit/clipsheet/internal/logging"
	"horse.fit/clipsheet/internal/pipeline"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	runTimeout := fs.Duration("run-timeout", 10*time.Minute, "Timeout for one scheduled pipeline run")
	noScheduler := fs.Bool("no-scheduler", false, "Serve the API without the daily trigger")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
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

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	svc, err := buildServices(initCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to initialize services")
		fmt.Fprintf(os.Stderr, "Failed to initialize services: %v\n", err)
		return 1
	}
	defer svc.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	runner := newProcessRunner(svc, logger, *runTimeout)
	if !*noScheduler {
		hour, minute, err := cfg.RunAtClock()
		if err != nil {
			logger.Error().Err(err).Msg("invalid RUN_AT value")
			fmt.Fprintf(os.Stderr, "Invalid RUN_AT: %v\n", err)
			return 1
		}
		go runScheduler(ctx, runner, logger, hour, minute)
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Ledger:     svc.Ledger,
		Trigger:    runner.TriggerProcess,
		AnchorHour: cfg.WindowAnchorHour,
	}, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// runScheduler fires one pipeline run at the configured JST clock time every
// day until the context is canceled.
func runScheduler(ctx context.Context, runner *processRunner, logger zerolog.Logger, hour, minute int) {
	for {
		now := globaltime.Now()
		next := nextRunTime(now, hour, minute)
		logger.Info().Time("next_run", next).Msg("daily pipeline trigger scheduled")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := runner.TriggerProcess(ctx); err != nil {
			logger.Warn().Err(err).Msg("scheduled pipeline run skipped")
		}
	}
}

// nextRunTime finds the next occurrence of the JST wall clock hour:minute
// strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	local := now.In(pipeline.JST)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, pipeline.JST)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
