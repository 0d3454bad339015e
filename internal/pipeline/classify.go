package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horse.fit/clipsheet/internal/classify"
)

// ClassifyOptions select what one classification pass touches.
type ClassifyOptions struct {
	// Tab overrides the dated destination tab; empty means today's.
	Tab string

	// DryRun computes labels but skips the write-back.
	DryRun bool
}

// ClassifyResult counts what one classification pass did.
type ClassifyResult struct {
	Tab           string
	Rows          int
	Classified    int
	ServiceItems  int
	FallbackItems int
	Batches       int
	FailedBatches int
	ServiceUsed   bool
	DryRun        bool
}

// RunClassify labels the destination tab's titles and writes the sentiment
// and category columns back in bulk. Rows with empty titles keep empty
// labels. The write covers every data row so a re-run overwrites stale
// labels instead of leaving them behind.
func (s *Service) RunClassify(ctx context.Context, now time.Time, opts ClassifyOptions) (ClassifyResult, error) {
	if s == nil || s.dest == nil || s.classifier == nil {
		return ClassifyResult{}, errors.New("pipeline service is not initialized")
	}

	tab := strings.TrimSpace(opts.Tab)
	if tab == "" {
		tab = DailyTab(now)
	}
	result := ClassifyResult{Tab: tab, DryRun: opts.DryRun}

	titles, err := s.dest.ReadColumn(ctx, tab, columnTitle, startRow)
	if err != nil {
		return result, fmt.Errorf("read titles of %s: %w", tab, err)
	}
	result.Rows = len(titles)
	if len(titles) == 0 {
		s.logger.Info().Str("tab", tab).Msg("no rows to classify")
		return result, nil
	}

	sequenceCells, err := s.dest.ReadColumn(ctx, tab, columnSequence, startRow)
	if err != nil {
		return result, fmt.Errorf("read sequence column of %s: %w", tab, err)
	}

	items := make([]classify.Item, 0, len(titles))
	for i, title := range titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		items = append(items, classify.Item{Idx: itemIdx(sequenceCells, i), Title: title})
	}
	result.Classified = len(items)

	labeled, stats := s.classifier.ClassifyItems(ctx, items)
	result.ServiceItems = stats.ServiceItems
	result.FallbackItems = stats.FallbackItems
	result.Batches = stats.Batches
	result.FailedBatches = stats.FailedBatches
	result.ServiceUsed = stats.ServiceUsed

	sentiments := make([][]string, 0, len(titles))
	categories := make([][]string, 0, len(titles))
	for i, title := range titles {
		if strings.TrimSpace(title) == "" {
			sentiments = append(sentiments, []string{""})
			categories = append(categories, []string{""})
			continue
		}
		labels, ok := labeled[itemIdx(sequenceCells, i)]
		if !ok {
			labels = s.classifier.ClassifyTitle(title)
			result.FallbackItems++
		}
		sentiments = append(sentiments, []string{labels.Sentiment})
		categories = append(categories, []string{labels.Category})
	}

	if opts.DryRun {
		s.logger.Info().
			Str("tab", tab).
			Int("rows", result.Rows).
			Int("classified", result.Classified).
			Bool("service_used", result.ServiceUsed).
			Msg("classification dry run, skipping write-back")
		return result, nil
	}

	endRow := startRow + len(titles) - 1
	sentimentRange := fmt.Sprintf("%s%d:%s%d", columnSentiment, startRow, columnSentiment, endRow)
	if err := s.dest.UpdateRange(ctx, tab, sentimentRange, sentiments); err != nil {
		return result, fmt.Errorf("write sentiment column of %s: %w", tab, err)
	}
	categoryRange := fmt.Sprintf("%s%d:%s%d", columnCategory, startRow, columnCategory, endRow)
	if err := s.dest.UpdateRange(ctx, tab, categoryRange, categories); err != nil {
		return result, fmt.Errorf("write category column of %s: %w", tab, err)
	}

	s.logger.Info().
		Str("tab", tab).
		Int("rows", result.Rows).
		Int("classified", result.Classified).
		Int("service_items", result.ServiceItems).
		Int("fallback_items", result.FallbackItems).
		Int("batches", result.Batches).
		Int("failed_batches", result.FailedBatches).
		Bool("service_used", result.ServiceUsed).
		Msg("classification completed")
	return result, nil
}
