package pipeline

import "context"

// RecordStore is the minimal tabular surface the pipeline reads and writes.
// The production implementation talks to the spreadsheet API; tests use an
// in-memory table.
type RecordStore interface {
	// ReadColumn returns one column of a tab from startRow downward, one
	// string per populated row. Trailing empty rows are not reported, but
	// gaps inside the range come back as empty strings.
	ReadColumn(ctx context.Context, tab, column string, startRow int) ([]string, error)

	// EnsureTab creates the named tab when it does not exist yet.
	EnsureTab(ctx context.Context, tab string) error

	// AppendRows adds rows after the last populated row of the tab.
	AppendRows(ctx context.Context, tab string, rows [][]string) error

	// UpdateRange overwrites the cells of an A1-style range, e.g. "M2:M41".
	UpdateRange(ctx context.Context, tab, rangeRef string, values [][]string) error
}
