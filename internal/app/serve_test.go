package app

import (
	"testing"
	"time"

	"horse.fit/clipsheet/internal/pipeline"
)

func TestNextRunTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2025, 8, 23, 10, 0, 0, 0, pipeline.JST),
			want: time.Date(2025, 8, 23, 15, 5, 0, 0, pipeline.JST),
		},
		{
			name: "exactly at the trigger rolls to tomorrow",
			now:  time.Date(2025, 8, 23, 15, 5, 0, 0, pipeline.JST),
			want: time.Date(2025, 8, 24, 15, 5, 0, 0, pipeline.JST),
		},
		{
			name: "after the trigger rolls to tomorrow",
			now:  time.Date(2025, 8, 23, 16, 0, 0, 0, pipeline.JST),
			want: time.Date(2025, 8, 24, 15, 5, 0, 0, pipeline.JST),
		},
		{
			name: "utc clock is converted to jst",
			now:  time.Date(2025, 8, 23, 5, 0, 0, 0, time.UTC),
			want: time.Date(2025, 8, 23, 15, 5, 0, 0, pipeline.JST),
		},
	}
	for _, tc := range cases {
		if got := nextRunTime(tc.now, 15, 5); !got.Equal(tc.want) {
			t.Fatalf("%s: nextRunTime(%v) = %v, want %v", tc.name, tc.now, got, tc.want)
		}
	}
}
