package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Destination tab layout. Row 1 is the header; data starts at startRow.
// Columns G and H are reserved for manual annotation and stay empty.
const (
	startRow = 2

	columnTitle     = "B"
	columnURL       = "C"
	columnSequence  = "L"
	columnSentiment = "M"
	columnCategory  = "N"
)

// Source tab layout, one scraped article per row.
const (
	sourceColumnTitle     = "A"
	sourceColumnURL       = "B"
	sourceColumnDate      = "C"
	sourceColumnPublisher = "D"
	sourceColumnComments  = "E"
	sourceColumnPaid      = "F"
)

// SourceRecord is one article row read from the source tab.
type SourceRecord struct {
	Row       int
	Title     string
	URL       string
	RawDate   string
	Publisher string
	Comments  string
	PaidFlag  string

	PostedAt time.Time
}

func destinationHeader() []string {
	return []string{
		"引用元",
		"タイトル",
		"URL",
		"投稿日",
		"媒体",
		"コメント数",
		"",
		"",
		"有料",
		"重複チェック",
		"タイトル（先頭20字）",
		"通番",
		"ポジネガ",
		"カテゴリ",
	}
}

// duplicateFormula flags rows whose fingerprint appears more than once in
// column K. sheetRow is the physical row the formula lands on.
func duplicateFormula(sheetRow int) string {
	return fmt.Sprintf(`=IF(COUNTIF(K$%d:K,K%d)>1,"重複","")`, startRow, sheetRow)
}

// buildDestinationRow lays one accepted record out across columns A to N.
// Sentiment and category stay empty until the classification pass fills them.
func buildDestinationRow(rec SourceRecord, sourceLabel string, sequence, sheetRow int) []string {
	return []string{
		sourceLabel,
		rec.Title,
		rec.URL,
		rec.PostedAt.In(JST).Format(postedAtLayout),
		rec.Publisher,
		rec.Comments,
		"",
		"",
		rec.PaidFlag,
		duplicateFormula(sheetRow),
		Fingerprint(rec.Title),
		strconv.Itoa(sequence),
		"",
		"",
	}
}

// fetchSourceRecords reads the six source columns and zips them into records.
// Column lengths can differ when trailing cells are empty; missing cells read
// as empty strings.
func fetchSourceRecords(ctx context.Context, store RecordStore, tab string) ([]SourceRecord, error) {
	columns := make(map[string][]string, 6)
	for _, column := range []string{
		sourceColumnTitle,
		sourceColumnURL,
		sourceColumnDate,
		sourceColumnPublisher,
		sourceColumnComments,
		sourceColumnPaid,
	} {
		cells, err := store.ReadColumn(ctx, tab, column, startRow)
		if err != nil {
			return nil, fmt.Errorf("read source column %s: %w", column, err)
		}
		columns[column] = cells
	}

	length := 0
	for _, cells := range columns {
		if len(cells) > length {
			length = len(cells)
		}
	}

	records := make([]SourceRecord, 0, length)
	for i := 0; i < length; i++ {
		records = append(records, SourceRecord{
			Row:       startRow + i,
			Title:     cellAt(columns[sourceColumnTitle], i),
			URL:       cellAt(columns[sourceColumnURL], i),
			RawDate:   cellAt(columns[sourceColumnDate], i),
			Publisher: cellAt(columns[sourceColumnPublisher], i),
			Comments:  cellAt(columns[sourceColumnComments], i),
			PaidFlag:  cellAt(columns[sourceColumnPaid], i),
		})
	}
	return records, nil
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// lastSequence scans a sequence column bottom-up for the most recent integer.
// Stray non-numeric cells are skipped; an unnumbered tab starts at zero.
func lastSequence(cells []string) int {
	for i := len(cells) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(strings.TrimSpace(cells[i])); err == nil {
			return n
		}
	}
	return 0
}

// itemIdx keys a destination row for classification: the trimmed sequence
// cell when present, the physical row number otherwise.
func itemIdx(sequenceCells []string, offset int) string {
	if offset < len(sequenceCells) {
		if v := strings.TrimSpace(sequenceCells[offset]); v != "" {
			return v
		}
	}
	return strconv.Itoa(startRow + offset)
}
