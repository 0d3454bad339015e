package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBatchSize is how many titles one service request carries.
	DefaultBatchSize = 50

	// DefaultBatchPause is the rest between consecutive service requests.
	DefaultBatchPause = 500 * time.Millisecond

	// DefaultTemperature keeps batch labeling near-deterministic without
	// pinning it completely.
	DefaultTemperature = 0.2

	probePrompt          = "OKだけ返してください"
	probeMaxOutputTokens = 4
	batchMaxOutputTokens = 2048
)

// batchPromptHeader states the taxonomy and the output contract. The input
// lines are appended below it, one per title.
const batchPromptHeader = `【目的】
ニュース記事タイトルから以下を出力:
1) sentiment: ポジティブ/ネガティブ/ニュートラル
2) category: 以下のいずれか
   - 会社（◯◯）/車（新型◯◯/現行◯◯/旧型◯◯/競合）
   - 技術（EV/e-POWER/e-4ORCE/AD/ADAS/その他）
   - モータースポーツ/株式/政治・経済/スポーツ/その他

【制約】
- 出力はJSON配列のみ。コメント禁止。
- 各要素は {"idx": <id>, "sentiment": "...", "category": "..."}
`

// jsonArrayPattern pulls the first JSON array out of a response that may
// wrap it in markdown fences or prose. Greedy on purpose: the widest
// bracket-to-bracket span is the array.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// RunStats summarizes how one classification run split between the remote
// service and the keyword rules.
type RunStats struct {
	Items         int
	ServiceItems  int
	FallbackItems int
	Batches       int
	FailedBatches int
	ServiceUsed   bool
}

// Options tune the orchestrator. The zero value selects the defaults.
type Options struct {
	BatchSize   int
	BatchPause  time.Duration
	Temperature float64

	// Sleep is swapped out by tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Orchestrator labels batches of titles with the remote service and repairs
// every gap with the rule classifier. The service being down, slow, or
// malformed never fails a run; it only shifts work to the rules.
type Orchestrator struct {
	service TextService
	rules   *RuleClassifier
	logger  zerolog.Logger
	opts    Options
}

func NewOrchestrator(service TextService, rules *RuleClassifier, logger zerolog.Logger, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = DefaultBatchPause
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Orchestrator{
		service: service,
		rules:   rules,
		logger:  logger,
		opts:    opts,
	}
}

// Probe checks that the service answers a trivial prompt. Any error or an
// empty reply reports the service unusable.
func (o *Orchestrator) Probe(ctx context.Context) bool {
	if o == nil || o.service == nil {
		return false
	}
	text, err := o.service.Generate(ctx, probePrompt, GenerateOptions{
		Temperature:     0,
		MaxOutputTokens: probeMaxOutputTokens,
		ResponseMIME:    "text/plain",
	})
	if err != nil {
		o.logger.Warn().Err(err).Msg("classification service probe failed")
		return false
	}
	return strings.TrimSpace(text) != ""
}

// ClassifyItems labels every item and returns the results keyed by idx. The
// function is total: each input item gets an entry, from the service when it
// answered well and from the rules otherwise.
func (o *Orchestrator) ClassifyItems(ctx context.Context, items []Item) (map[string]Labels, RunStats) {
	stats := RunStats{Items: len(items)}
	results := make(map[string]Labels, len(items))
	if o == nil || len(items) == 0 {
		return results, stats
	}

	if !o.Probe(ctx) {
		o.logger.Info().Int("items", len(items)).Msg("classification service unavailable, using keyword rules")
		for _, item := range items {
			results[item.Idx] = o.rules.Classify(item.Title)
		}
		stats.FallbackItems = len(items)
		return results, stats
	}
	stats.ServiceUsed = true

	for start := 0; start < len(items); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		stats.Batches++

		labeled, err := o.classifyBatch(ctx, batch)
		if err != nil {
			stats.FailedBatches++
			stats.FallbackItems += len(batch)
			o.logger.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("classification batch failed, using keyword rules")
			for _, item := range batch {
				results[item.Idx] = o.rules.Classify(item.Title)
			}
		} else {
			for _, item := range batch {
				if labels, ok := labeled[item.Idx]; ok && labels.Sentiment != "" && labels.Category != "" {
					results[item.Idx] = labels
					stats.ServiceItems++
					continue
				}
				results[item.Idx] = o.rules.Classify(item.Title)
				stats.FallbackItems++
			}
		}

		if end < len(items) && o.opts.BatchPause > 0 {
			o.opts.Sleep(o.opts.BatchPause)
		}
	}

	return results, stats
}

// ClassifyTitle labels one title with the keyword rules alone. Write-back
// uses it to repair rows whose idx the batch results never covered.
func (o *Orchestrator) ClassifyTitle(title string) Labels {
	if o == nil || o.rules == nil {
		return Labels{Sentiment: SentimentNeutral, Category: CategoryOther}
	}
	return o.rules.Classify(title)
}

func (o *Orchestrator) classifyBatch(ctx context.Context, batch []Item) (map[string]Labels, error) {
	text, err := o.service.Generate(ctx, buildBatchPrompt(batch), GenerateOptions{
		Temperature:     o.opts.Temperature,
		MaxOutputTokens: batchMaxOutputTokens,
		ResponseMIME:    "application/json",
	})
	if err != nil {
		return nil, err
	}

	raw := jsonArrayPattern.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("response contains no JSON array")
	}

	parsed, err := decodeBatchItems([]byte(raw))
	if err != nil {
		return nil, err
	}

	labeled := make(map[string]Labels, len(parsed))
	for _, item := range parsed {
		if item.Idx == "" {
			continue
		}
		labeled[item.Idx] = Labels{Sentiment: item.Sentiment, Category: item.Category}
	}
	return labeled, nil
}

func buildBatchPrompt(batch []Item) string {
	var b strings.Builder
	b.WriteString(batchPromptHeader)
	b.WriteString("\n入力:")
	for _, item := range batch {
		b.WriteString(fmt.Sprintf("\n- idx:%s | title:%s", item.Idx, item.Title))
	}
	return b.String()
}
