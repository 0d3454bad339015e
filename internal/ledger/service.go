package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/clipsheet/internal/db"
	"horse.fit/clipsheet/internal/globaltime"
)

// ErrDisabled is returned by queries when no ledger database is configured.
var ErrDisabled = errors.New("run ledger is not configured")

// maxErrorLength caps stored failure messages; upstream errors can carry
// whole response bodies.
const maxErrorLength = 4000

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// RunCounts carries the counters a finished pass reports.
type RunCounts struct {
	RowsScanned    int
	RowsAppended   int
	RowsClassified int
	ServiceItems   int
	FallbackItems  int
	ServiceUsed    bool
}

// RunRecord is one ledger row shaped for the operations API.
type RunRecord struct {
	RunID          int64      `json:"run_id"`
	Phase          string     `json:"phase"`
	Tab            string     `json:"tab"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	RowsScanned    int        `json:"rows_scanned"`
	RowsAppended   int        `json:"rows_appended"`
	RowsClassified int        `json:"rows_classified"`
	ServiceItems   int        `json:"service_items"`
	FallbackItems  int        `json:"fallback_items"`
	ServiceUsed    bool       `json:"service_used"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
}

// Service records pipeline passes in the ledger database. A nil Service is a
// disabled ledger: writes are no-ops and queries return ErrDisabled.
type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{pool: pool, logger: logger}
}

// StartRun opens a ledger row for a pass and returns its id. A zero id means
// the ledger is disabled and the matching Complete/Fail calls are no-ops.
func (s *Service) StartRun(ctx context.Context, phase, tab string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}

	run := db.PipelineRun{
		Phase:     phase,
		Tab:       tab,
		StartedAt: globaltime.UTC(),
		Status:    statusRunning,
	}
	if err := s.pool.GORM().WithContext(ctx).Create(&run).Error; err != nil {
		return 0, fmt.Errorf("insert pipeline run: %w", err)
	}
	return run.RunID, nil
}

// CompleteRun closes a ledger row with its counters.
func (s *Service) CompleteRun(ctx context.Context, runID int64, counts RunCounts) error {
	if s == nil || s.pool == nil || runID == 0 {
		return nil
	}

	now := globaltime.UTC()
	updates := map[string]any{
		"status":          statusCompleted,
		"finished_at":     &now,
		"rows_scanned":    counts.RowsScanned,
		"rows_appended":   counts.RowsAppended,
		"rows_classified": counts.RowsClassified,
		"service_items":   counts.ServiceItems,
		"fallback_items":  counts.FallbackItems,
		"service_used":    counts.ServiceUsed,
	}
	if err := s.pool.GORM().WithContext(ctx).Model(&db.PipelineRun{}).Where("run_id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("complete pipeline run %d: %w", runID, err)
	}
	return nil
}

// FailRun closes a ledger row with a truncated failure message.
func (s *Service) FailRun(ctx context.Context, runID int64, cause error) error {
	if s == nil || s.pool == nil || runID == 0 {
		return nil
	}

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}

	now := globaltime.UTC()
	updates := map[string]any{
		"status":        statusFailed,
		"finished_at":   &now,
		"error_message": &message,
	}
	if err := s.pool.GORM().WithContext(ctx).Model(&db.PipelineRun{}).Where("run_id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail pipeline run %d: %w", runID, err)
	}
	return nil
}

// RecentRuns lists the newest ledger rows, most recent first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}

	var runs []db.PipelineRun
	if err := s.pool.GORM().WithContext(ctx).Order("run_id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}

	records := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, RunRecord{
			RunID:          run.RunID,
			Phase:          run.Phase,
			Tab:            run.Tab,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
			Status:         run.Status,
			RowsScanned:    run.RowsScanned,
			RowsAppended:   run.RowsAppended,
			RowsClassified: run.RowsClassified,
			ServiceItems:   run.ServiceItems,
			FallbackItems:  run.FallbackItems,
			ServiceUsed:    run.ServiceUsed,
			ErrorMessage:   run.ErrorMessage,
		})
	}
	return records, nil
}

// Ping verifies the ledger database answers.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	return s.pool.Ping(ctx)
}
