package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// IngestResult counts what one ingest pass did.
type IngestResult struct {
	Tab           string
	Scanned       int
	Appended      int
	DuplicateURL  int
	OutsideWindow int
	Unparsable    int
	MissingURL    int
	LastSequence  int
}

// RunIngest moves the current window's articles from the source tab into the
// dated destination tab: parse dates, filter to the window, drop URLs the tab
// already holds, then append numbered rows. Store errors abort the pass; bad
// individual rows are counted and skipped.
func (s *Service) RunIngest(ctx context.Context, now time.Time) (IngestResult, error) {
	if s == nil || s.source == nil || s.dest == nil {
		return IngestResult{}, errors.New("pipeline service is not initialized")
	}

	window := WindowFor(now, s.opts.AnchorHour)
	tab := DailyTab(now)
	result := IngestResult{Tab: tab}

	records, err := fetchSourceRecords(ctx, s.source, s.opts.SourceTab)
	if err != nil {
		return result, fmt.Errorf("read source tab %s: %w", s.opts.SourceTab, err)
	}
	result.Scanned = len(records)

	if err := s.dest.EnsureTab(ctx, tab); err != nil {
		return result, fmt.Errorf("ensure tab %s: %w", tab, err)
	}

	headerCells, err := s.dest.ReadColumn(ctx, tab, "A", 1)
	if err != nil {
		return result, fmt.Errorf("read header of %s: %w", tab, err)
	}
	if len(headerCells) == 0 {
		if err := s.dest.AppendRows(ctx, tab, [][]string{destinationHeader()}); err != nil {
			return result, fmt.Errorf("write header of %s: %w", tab, err)
		}
	}

	existingURLs, err := s.dest.ReadColumn(ctx, tab, columnURL, startRow)
	if err != nil {
		return result, fmt.Errorf("read existing urls of %s: %w", tab, err)
	}
	sequenceCells, err := s.dest.ReadColumn(ctx, tab, columnSequence, startRow)
	if err != nil {
		return result, fmt.Errorf("read sequence column of %s: %w", tab, err)
	}
	lastSeq := lastSequence(sequenceCells)

	seen := make(map[string]struct{}, len(existingURLs))
	for _, u := range existingURLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			seen[trimmed] = struct{}{}
		}
	}

	accepted := make([]SourceRecord, 0, len(records))
	for _, rec := range records {
		url := strings.TrimSpace(rec.URL)
		if url == "" {
			result.MissingURL++
			continue
		}

		postedAt, err := ParseSheetDate(rec.RawDate, now)
		if err != nil {
			result.Unparsable++
			s.logger.Warn().
				Int("source_row", rec.Row).
				Str("raw_date", rec.RawDate).
				Msg("dropping record with unparsable date")
			continue
		}
		if !window.Contains(postedAt) {
			result.OutsideWindow++
			continue
		}

		// First occurrence wins, within this batch and against the tab.
		if _, dup := seen[url]; dup {
			result.DuplicateURL++
			continue
		}
		seen[url] = struct{}{}

		rec.URL = url
		rec.PostedAt = postedAt
		accepted = append(accepted, rec)
	}

	result.LastSequence = lastSeq
	if len(accepted) == 0 {
		s.logger.Info().
			Str("tab", tab).
			Int("scanned", result.Scanned).
			Int("outside_window", result.OutsideWindow).
			Int("duplicate_url", result.DuplicateURL).
			Msg("ingest found nothing to append")
		return result, nil
	}

	// Physical rows continue right below the existing data; the URL column
	// counts the populated data rows since every row carries one.
	firstRow := startRow + len(existingURLs)
	rows := make([][]string, 0, len(accepted))
	for i, rec := range accepted {
		rows = append(rows, buildDestinationRow(rec, s.opts.SourceLabel, lastSeq+1+i, firstRow+i))
	}

	if err := s.dest.AppendRows(ctx, tab, rows); err != nil {
		return result, fmt.Errorf("append rows to %s: %w", tab, err)
	}
	result.Appended = len(rows)
	result.LastSequence = lastSeq + len(rows)

	s.logger.Info().
		Str("tab", tab).
		Int("scanned", result.Scanned).
		Int("appended", result.Appended).
		Int("duplicate_url", result.DuplicateURL).
		Int("outside_window", result.OutsideWindow).
		Int("unparsable", result.Unparsable).
		Int("last_sequence", result.LastSequence).
		Msg("ingest completed")
	return result, nil
}
