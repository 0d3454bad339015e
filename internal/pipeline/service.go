package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"horse.fit/clipsheet/internal/classify"
)

// Classifier labels titles. The hybrid orchestrator is the production
// implementation; tests plug in deterministic stubs.
type Classifier interface {
	// ClassifyItems labels a whole run's worth of items, keyed by idx.
	ClassifyItems(ctx context.Context, items []classify.Item) (map[string]classify.Labels, classify.RunStats)

	// ClassifyTitle labels one title with the keyword rules alone.
	ClassifyTitle(title string) classify.Labels
}

// Options bind a Service to its tabs and collection window.
type Options struct {
	// SourceTab is the tab articles are scraped into.
	SourceTab string

	// SourceLabel fills the provenance column of every appended row.
	SourceLabel string

	// AnchorHour is the JST hour the daily window opens and closes on.
	AnchorHour int
}

// Service runs the two phases of the daily pipeline against a source tab and
// a dated destination tab.
type Service struct {
	source     RecordStore
	dest       RecordStore
	classifier Classifier
	logger     zerolog.Logger
	opts       Options
}

func NewService(source, dest RecordStore, classifier Classifier, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		source:     source,
		dest:       dest,
		classifier: classifier,
		logger:     logger,
		opts:       opts,
	}
}
