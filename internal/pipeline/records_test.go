package pipeline

import (
	"testing"
	"time"
)

func TestDuplicateFormula(t *testing.T) {
	t.Parallel()

	got := duplicateFormula(7)
	want := `=IF(COUNTIF(K$2:K,K7)>1,"重複","")`
	if got != want {
		t.Fatalf("unexpected formula: got %q want %q", got, want)
	}
}

func TestBuildDestinationRow(t *testing.T) {
	t.Parallel()

	rec := SourceRecord{
		Row:       4,
		Title:     "【速報】日産、新型 EV を発表！",
		URL:       "https://news.example.com/a1",
		Publisher: "example通信",
		Comments:  "12",
		PaidFlag:  "有料",
		PostedAt:  time.Date(2025, 8, 22, 16, 5, 0, 0, JST),
	}

	row := buildDestinationRow(rec, "Yahoo", 38, 9)
	if len(row) != 14 {
		t.Fatalf("unexpected cell count: got %d want 14", len(row))
	}

	want := []string{
		"Yahoo",
		"【速報】日産、新型 EV を発表！",
		"https://news.example.com/a1",
		"2025/08/22 16:05:00",
		"example通信",
		"12",
		"",
		"",
		"有料",
		`=IF(COUNTIF(K$2:K,K9)>1,"重複","")`,
		"速報日産新型EVを発表！",
		"38",
		"",
		"",
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("cell %d: got %q want %q", i, row[i], want[i])
		}
	}
}

func TestBuildDestinationRowNormalizesZone(t *testing.T) {
	t.Parallel()

	rec := SourceRecord{
		Title:    "海外発の記事",
		URL:      "https://news.example.com/utc",
		PostedAt: time.Date(2025, 8, 22, 16, 0, 0, 0, time.UTC),
	}

	row := buildDestinationRow(rec, "Yahoo", 1, 2)
	if got, want := row[3], "2025/08/23 01:00:00"; got != want {
		t.Fatalf("posted-at not rendered in JST: got %q want %q", got, want)
	}
}

func TestLastSequence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		cells []string
		want  int
	}{
		{"empty column", nil, 0},
		{"plain run", []string{"1", "2", "3"}, 3},
		{"skips stray text", []string{"3", "abc"}, 3},
		{"trims whitespace", []string{"1", " 7 "}, 7},
		{"all garbage", []string{"x", "y"}, 0},
	}
	for _, tc := range cases {
		if got := lastSequence(tc.cells); got != tc.want {
			t.Fatalf("%s: lastSequence(%q) = %d, want %d", tc.name, tc.cells, got, tc.want)
		}
	}
}

func TestItemIdx(t *testing.T) {
	t.Parallel()

	cells := []string{"1", " 2 ", ""}

	cases := []struct {
		name   string
		offset int
		want   string
	}{
		{"sequence cell", 0, "1"},
		{"trims sequence cell", 1, "2"},
		{"blank cell falls back to row", 2, "4"},
		{"past column end falls back to row", 5, "7"},
	}
	for _, tc := range cases {
		if got := itemIdx(cells, tc.offset); got != tc.want {
			t.Fatalf("%s: itemIdx(cells, %d) = %q, want %q", tc.name, tc.offset, got, tc.want)
		}
	}
}
