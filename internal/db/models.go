package db

import "time"

// PipelineRun maps pipeline_runs, one row per ingest or classify pass.
type PipelineRun struct {
	RunID          int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	Phase          string     `gorm:"column:phase;type:text;not null"`
	Tab            string     `gorm:"column:tab;type:text;not null"`
	StartedAt      time.Time  `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt     *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status         string     `gorm:"column:status;type:text;not null;default:running"`
	RowsScanned    int        `gorm:"column:rows_scanned;type:integer;not null;default:0"`
	RowsAppended   int        `gorm:"column:rows_appended;type:integer;not null;default:0"`
	RowsClassified int        `gorm:"column:rows_classified;type:integer;not null;default:0"`
	ServiceItems   int        `gorm:"column:service_items;type:integer;not null;default:0"`
	FallbackItems  int        `gorm:"column:fallback_items;type:integer;not null;default:0"`
	ServiceUsed    bool       `gorm:"column:service_used;type:boolean;not null;default:false"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (PipelineRun) TableName() string { return "pipeline_runs" }
