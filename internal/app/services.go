package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/clipsheet/internal/classify"
	"horse.fit/clipsheet/internal/config"
	"horse.fit/clipsheet/internal/db"
	"horse.fit/clipsheet/internal/ledger"
	"horse.fit/clipsheet/internal/pipeline"
	"horse.fit/clipsheet/internal/sheets"
)

// services bundles everything a command needs once wiring is done. Ledger is
// nil without a DATABASE_URL; Cleanup is always safe to defer.
type services struct {
	Pipeline *pipeline.Service
	Ledger   *ledger.Service
	Cleanup  func()
}

// buildServices wires the spreadsheet stores, the hybrid classifier, and the
// optional run ledger out of the loaded configuration.
func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*services, error) {
	creds, err := cfg.CredentialsJSON()
	if err != nil {
		return nil, fmt.Errorf("load service account credentials: %w", err)
	}
	tokens, err := sheets.NewJWTTokenSource(creds, sheets.TokenOptions{})
	if err != nil {
		return nil, fmt.Errorf("build token source: %w", err)
	}

	dest, err := sheets.NewClient(cfg.SpreadsheetID, tokens, sheets.Options{})
	if err != nil {
		return nil, fmt.Errorf("build destination client: %w", err)
	}
	var source pipeline.RecordStore = dest
	if sourceID := cfg.ResolvedSourceSpreadsheetID(); sourceID != strings.TrimSpace(cfg.SpreadsheetID) {
		sourceClient, err := sheets.NewClient(sourceID, tokens, sheets.Options{})
		if err != nil {
			return nil, fmt.Errorf("build source client: %w", err)
		}
		source = sourceClient
	}

	rules, err := classify.NewRuleClassifier(classify.DefaultRules())
	if err != nil {
		return nil, fmt.Errorf("build rule classifier: %w", err)
	}
	var remote classify.TextService
	if cfg.ClassifierEnabled() {
		remote = classify.NewGeminiClient(cfg.GeminiAPIKey, classify.GeminiOptions{Model: cfg.GeminiModel})
	}
	orchestrator := classify.NewOrchestrator(remote, rules, logger, classify.Options{
		BatchSize:   cfg.ClassifyBatchSize,
		BatchPause:  cfg.ClassifyBatchPause,
		Temperature: cfg.ClassifyTemperature,
	})

	svc := pipeline.NewService(source, dest, orchestrator, logger, pipeline.Options{
		SourceTab:   cfg.SourceTab,
		SourceLabel: cfg.SourceLabel,
		AnchorHour:  cfg.WindowAnchorHour,
	})

	bundle := &services{
		Pipeline: svc,
		Cleanup:  func() {},
	}
	if cfg.LedgerEnabled() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect run ledger database: %w", err)
		}
		bundle.Ledger = ledger.NewService(pool, logger)
		bundle.Cleanup = func() { _ = pool.Close() }
	}
	return bundle, nil
}

// executeIngest runs the ingest phase with ledger bookkeeping. Ledger
// failures are logged and never abort the pass.
func executeIngest(ctx context.Context, svc *services, logger zerolog.Logger, now time.Time) (pipeline.IngestResult, error) {
	runID, err := svc.Ledger.StartRun(ctx, "ingest", pipeline.DailyTab(now))
	if err != nil {
		logger.Warn().Err(err).Msg("ledger insert failed for ingest run")
	}

	result, err := svc.Pipeline.RunIngest(ctx, now)
	if err != nil {
		if ledgerErr := svc.Ledger.FailRun(ctx, runID, err); ledgerErr != nil {
			logger.Warn().Err(ledgerErr).Int64("run_id", runID).Msg("ledger update failed")
		}
		return result, err
	}

	if ledgerErr := svc.Ledger.CompleteRun(ctx, runID, ledger.RunCounts{
		RowsScanned:  result.Scanned,
		RowsAppended: result.Appended,
	}); ledgerErr != nil {
		logger.Warn().Err(ledgerErr).Int64("run_id", runID).Msg("ledger update failed")
	}
	return result, nil
}

// executeClassify runs the classification phase with ledger bookkeeping.
func executeClassify(ctx context.Context, svc *services, logger zerolog.Logger, now time.Time, opts pipeline.ClassifyOptions) (pipeline.ClassifyResult, error) {
	tab := strings.TrimSpace(opts.Tab)
	if tab == "" {
		tab = pipeline.DailyTab(now)
	}
	runID, err := svc.Ledger.StartRun(ctx, "classify", tab)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger insert failed for classify run")
	}

	result, err := svc.Pipeline.RunClassify(ctx, now, opts)
	if err != nil {
		if ledgerErr := svc.Ledger.FailRun(ctx, runID, err); ledgerErr != nil {
			logger.Warn().Err(ledgerErr).Int64("run_id", runID).Msg("ledger update failed")
		}
		return result, err
	}

	if ledgerErr := svc.Ledger.CompleteRun(ctx, runID, ledger.RunCounts{
		RowsScanned:    result.Rows,
		RowsClassified: result.Classified,
		ServiceItems:   result.ServiceItems,
		FallbackItems:  result.FallbackItems,
		ServiceUsed:    result.ServiceUsed,
	}); ledgerErr != nil {
		logger.Warn().Err(ledgerErr).Int64("run_id", runID).Msg("ledger update failed")
	}
	return result, nil
}
