package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubTextService answers the probe from fixed fields and batch calls from a
// scripted list, recording every request.
type stubTextService struct {
	probeText string
	probeErr  error

	batchTexts []string
	batchErrs  []error
	batchCall  int

	calls []generateCall
}

type generateCall struct {
	prompt string
	opts   GenerateOptions
}

func (s *stubTextService) Generate(_ context.Context, prompt string, opts GenerateOptions) (string, error) {
	s.calls = append(s.calls, generateCall{prompt: prompt, opts: opts})
	if prompt == probePrompt {
		return s.probeText, s.probeErr
	}
	i := s.batchCall
	s.batchCall++
	var text string
	if i < len(s.batchTexts) {
		text = s.batchTexts[i]
	}
	var err error
	if i < len(s.batchErrs) {
		err = s.batchErrs[i]
	}
	return text, err
}

func newTestOrchestrator(t *testing.T, service TextService, opts Options) *Orchestrator {
	t.Helper()
	return NewOrchestrator(service, newDefaultClassifier(t), zerolog.Nop(), opts)
}

func TestOrchestratorFallsBackWhenProbeFails(t *testing.T) {
	t.Parallel()

	service := &stubTextService{probeErr: errors.New("quota exhausted")}
	o := newTestOrchestrator(t, service, Options{})

	items := []Item{
		{Idx: "1", Title: "株価が年初来高値"},
		{Idx: "2", Title: "高速道路で事故"},
	}
	results, stats := o.ClassifyItems(context.Background(), items)

	want := RunStats{Items: 2, FallbackItems: 2}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}
	if got := results["1"]; got != (Labels{Sentiment: SentimentNeutral, Category: CategoryStock}) {
		t.Fatalf("unexpected rule labels for idx 1: %+v", got)
	}
	if got := results["2"]; got != (Labels{Sentiment: SentimentNegative, Category: CategoryOther}) {
		t.Fatalf("unexpected rule labels for idx 2: %+v", got)
	}
	if len(service.calls) != 1 {
		t.Fatalf("expected only the probe call, got %d calls", len(service.calls))
	}
}

func TestOrchestratorTreatsEmptyProbeReplyAsDown(t *testing.T) {
	t.Parallel()

	service := &stubTextService{probeText: "  \n"}
	o := newTestOrchestrator(t, service, Options{})

	_, stats := o.ClassifyItems(context.Background(), []Item{{Idx: "1", Title: "今日の天気"}})
	if stats.ServiceUsed {
		t.Fatal("blank probe reply must not count as service availability")
	}
	if stats.FallbackItems != 1 {
		t.Fatalf("unexpected fallback count: got %d want 1", stats.FallbackItems)
	}
}

func TestOrchestratorUsesServiceLabels(t *testing.T) {
	t.Parallel()

	service := &stubTextService{
		probeText: "OK",
		batchTexts: []string{
			"結果:\n```json\n[{\"idx\":\"1\",\"sentiment\":\"ポジティブ\",\"category\":\"株式\"},{\"idx\":2,\"sentiment\":\"ネガティブ\",\"category\":\"車\"}]\n```",
		},
	}
	o := newTestOrchestrator(t, service, Options{})

	items := []Item{
		{Idx: "1", Title: "株価が年初来高値"},
		{Idx: "2", Title: "高速道路で事故"},
	}
	results, stats := o.ClassifyItems(context.Background(), items)

	want := RunStats{Items: 2, ServiceItems: 2, Batches: 1, ServiceUsed: true}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}
	if got := results["1"]; got != (Labels{Sentiment: "ポジティブ", Category: "株式"}) {
		t.Fatalf("unexpected labels for idx 1: %+v", got)
	}
	// The numeric idx in the response keys the same item as the string form.
	if got := results["2"]; got != (Labels{Sentiment: "ネガティブ", Category: "車"}) {
		t.Fatalf("unexpected labels for idx 2: %+v", got)
	}

	if len(service.calls) != 2 {
		t.Fatalf("unexpected call count: got %d want 2", len(service.calls))
	}
	probe := service.calls[0]
	if probe.opts.Temperature != 0 || probe.opts.MaxOutputTokens != probeMaxOutputTokens || probe.opts.ResponseMIME != "text/plain" {
		t.Fatalf("unexpected probe options: %+v", probe.opts)
	}
	batch := service.calls[1]
	if batch.opts.Temperature != DefaultTemperature || batch.opts.MaxOutputTokens != batchMaxOutputTokens || batch.opts.ResponseMIME != "application/json" {
		t.Fatalf("unexpected batch options: %+v", batch.opts)
	}
	if !strings.HasPrefix(batch.prompt, batchPromptHeader) {
		t.Fatalf("batch prompt misses the taxonomy header: %q", batch.prompt)
	}
	if !strings.Contains(batch.prompt, "- idx:1 | title:株価が年初来高値") {
		t.Fatalf("batch prompt misses the input line: %q", batch.prompt)
	}
}

func TestOrchestratorRepairsUnlabeledItems(t *testing.T) {
	t.Parallel()

	service := &stubTextService{
		probeText: "OK",
		batchTexts: []string{
			`[{"idx":"1","sentiment":"ポジティブ","category":"株式"},{"idx":"2","sentiment":"ネガティブ"}]`,
		},
	}
	o := newTestOrchestrator(t, service, Options{})

	items := []Item{
		{Idx: "1", Title: "株価が年初来高値"},
		{Idx: "2", Title: "高速道路で事故"},
	}
	results, stats := o.ClassifyItems(context.Background(), items)

	want := RunStats{Items: 2, ServiceItems: 1, FallbackItems: 1, Batches: 1, ServiceUsed: true}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}
	// Idx 2 came back without a category, so the rules label it.
	if got := results["2"]; got != (Labels{Sentiment: SentimentNegative, Category: CategoryOther}) {
		t.Fatalf("unexpected repaired labels: %+v", got)
	}
}

func TestOrchestratorBatchFailureFallsBackToRules(t *testing.T) {
	t.Parallel()

	service := &stubTextService{
		probeText:  "OK",
		batchTexts: []string{"すみません、結果を出せませんでした。"},
	}
	o := newTestOrchestrator(t, service, Options{})

	items := []Item{
		{Idx: "1", Title: "株価が年初来高値"},
		{Idx: "2", Title: "高速道路で事故"},
	}
	results, stats := o.ClassifyItems(context.Background(), items)

	want := RunStats{Items: 2, FallbackItems: 2, Batches: 1, FailedBatches: 1, ServiceUsed: true}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}
	if got := results["1"]; got != (Labels{Sentiment: SentimentNeutral, Category: CategoryStock}) {
		t.Fatalf("unexpected rule labels: %+v", got)
	}
}

func TestOrchestratorSplitsBatchesAndPauses(t *testing.T) {
	t.Parallel()

	service := &stubTextService{
		probeText: "OK",
		batchTexts: []string{
			`[{"idx":"1","sentiment":"ニュートラル","category":"その他"},{"idx":"2","sentiment":"ニュートラル","category":"その他"}]`,
			`[{"idx":"3","sentiment":"ニュートラル","category":"その他"},{"idx":"4","sentiment":"ニュートラル","category":"その他"}]`,
			`[{"idx":"5","sentiment":"ニュートラル","category":"その他"}]`,
		},
	}
	var sleeps []time.Duration
	o := newTestOrchestrator(t, service, Options{
		BatchSize:  2,
		BatchPause: 10 * time.Millisecond,
		Sleep:      func(d time.Duration) { sleeps = append(sleeps, d) },
	})

	items := []Item{
		{Idx: "1", Title: "あ"}, {Idx: "2", Title: "い"}, {Idx: "3", Title: "う"},
		{Idx: "4", Title: "え"}, {Idx: "5", Title: "お"},
	}
	results, stats := o.ClassifyItems(context.Background(), items)

	want := RunStats{Items: 5, ServiceItems: 5, Batches: 3, ServiceUsed: true}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}
	if len(results) != 5 {
		t.Fatalf("unexpected result count: got %d want 5", len(results))
	}

	// A pause follows every batch except the last.
	if len(sleeps) != 2 {
		t.Fatalf("unexpected pause count: got %d want 2", len(sleeps))
	}
	for i, d := range sleeps {
		if d != 10*time.Millisecond {
			t.Fatalf("pause %d: got %v want %v", i, d, 10*time.Millisecond)
		}
	}

	if len(service.calls) != 4 {
		t.Fatalf("unexpected call count: got %d want 4", len(service.calls))
	}
	if p := service.calls[1].prompt; !strings.Contains(p, "- idx:2") || strings.Contains(p, "- idx:3") {
		t.Fatalf("first batch prompt crosses the batch boundary: %q", p)
	}
	if p := service.calls[3].prompt; !strings.Contains(p, "- idx:5") || strings.Contains(p, "- idx:4") {
		t.Fatalf("last batch prompt crosses the batch boundary: %q", p)
	}
}

func TestOrchestratorWithoutServiceUsesRules(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil, Options{})

	results, stats := o.ClassifyItems(context.Background(), []Item{{Idx: "1", Title: "株価が年初来高値"}})
	if stats.ServiceUsed {
		t.Fatal("nil service must not count as available")
	}
	if got := results["1"]; got != (Labels{Sentiment: SentimentNeutral, Category: CategoryStock}) {
		t.Fatalf("unexpected rule labels: %+v", got)
	}
}

func TestOrchestratorEmptyItemsSkipsProbe(t *testing.T) {
	t.Parallel()

	service := &stubTextService{probeText: "OK"}
	o := newTestOrchestrator(t, service, Options{})

	results, stats := o.ClassifyItems(context.Background(), nil)
	if len(results) != 0 || stats.Batches != 0 {
		t.Fatalf("unexpected work for empty input: results=%d stats=%+v", len(results), stats)
	}
	if len(service.calls) != 0 {
		t.Fatalf("probe sent for empty input: %d calls", len(service.calls))
	}
}

func TestClassifyTitleNilOrchestrator(t *testing.T) {
	t.Parallel()

	var o *Orchestrator
	got := o.ClassifyTitle("日産が新型セレナを発表")
	want := Labels{Sentiment: SentimentNeutral, Category: CategoryOther}
	if got != want {
		t.Fatalf("unexpected labels: got %+v want %+v", got, want)
	}
}
