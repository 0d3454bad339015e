package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Sentiment labels, written to the sheet as-is.
const (
	SentimentPositive = "ポジティブ"
	SentimentNegative = "ネガティブ"
	SentimentNeutral  = "ニュートラル"
)

// Fixed category labels. Company categories are parameterized on the maker
// name and built with fmt.Sprintf.
const (
	CategoryMotorsport     = "モータースポーツ"
	CategoryTechEV         = "技術（EV）"
	CategoryTechEPower     = "技術（e-POWER）"
	CategoryTechE4ORCE     = "技術（e-4ORCE）"
	CategoryTech           = "技術"
	CategoryVehicleNew     = "車（新型◯◯）"
	CategoryVehicleCurrent = "車（現行◯◯）"
	CategoryVehicleOld     = "車（旧型◯◯）"
	CategoryVehicle        = "車"
	CategoryVehicleRival   = "車（競合）"
	CategoryStock          = "株式"
	CategoryPolitics       = "政治・経済"
	CategorySports         = "スポーツ"
	CategoryOther          = "その他"
)

// Labels is one classification outcome.
type Labels struct {
	Sentiment string
	Category  string
}

// Item is one unit of classification work: the row key plus its title.
type Item struct {
	Idx   string
	Title string
}

const defaultVehiclePattern = `(?i)(RAV4|CX-[0-9]|シルビア|フォレスター|ウルス|スープラ|マイクラ|スカイライン|セレナ|ノート)`

// Rules carries every keyword list the deterministic classifier matches on.
// The zero value matches nothing; start from DefaultRules. A Rules value is
// treated as immutable once handed to NewRuleClassifier.
type Rules struct {
	// TargetBrand spellings identify the brand the sheet tracks; TargetLabel
	// is how that brand reads in the company category.
	TargetBrand []string
	TargetLabel string
	OtherMakers []string

	Positive []string
	Negative []string

	Motorsport  []string
	TechEV      []string
	TechEPower  []string
	TechE4ORCE  []string
	TechGeneric []string

	// VehiclePattern matches known model names; empty means the default.
	VehiclePattern string

	Stock    []string
	Politics []string
	Sports   []string
}

// DefaultRules returns the keyword sets tuned for the Nissan news sheet.
func DefaultRules() Rules {
	return Rules{
		TargetBrand: []string{"ニッサン", "日産", "NISSAN", "Nissan"},
		TargetLabel: "ニッサン",
		OtherMakers: []string{
			"トヨタ", "TOYOTA", "ホンダ", "HONDA", "スバル", "SUBARU",
			"マツダ", "MAZDA", "スズキ", "SUZUKI", "三菱", "MITSUBISHI",
			"ダイハツ", "DAIHATSU",
		},
		Positive: []string{
			"受注開始", "発売", "発表", "好発進", "優勝", "開催へ", "出会える",
			"目指す", "わかった", "メリット", "最適", "ナイス", "選ばれたワケ",
			"参戦", "総合優勝へ",
		},
		Negative: []string{
			"事故", "リコール", "リストラ", "値上げ", "中止", "苦戦", "不正",
			"炎上", "失業", "没個性？", "なぜ進化しない", "問題", "課題",
		},
		Motorsport: []string{
			"F1", "フォーミュラE", "ラリー", "WRC", "Super GT", "スーパーＧＴ", "参戦",
		},
		TechEV: []string{
			"EV化", "電気自動車", " EV", "EV ", "バッテリー", "電動", "充電",
		},
		TechEPower: []string{"e-POWER", "e POWER", "ePOWER"},
		TechE4ORCE: []string{"e-4ORCE", "E-4ORCE", "4WD", "AWD", "2WD"},
		TechGeneric: []string{
			"自動運転", "ADAS", "運転支援", "先進運転支援", "L2", "L3",
			"プラットフォーム", "空力", "技術",
		},
		Stock:    []string{"株価", "上場", "投資家", "決算", "通期見通し"},
		Politics: []string{"政治", "選挙", "税", "経済", "景気", "物価"},
		Sports:   []string{"野球", "サッカー", "バレーボール", "ラグビー", "五輪"},
	}
}

// RuleClassifier labels titles with the keyword cascade alone. It is the
// always-available fallback behind the remote classification service.
type RuleClassifier struct {
	rules   Rules
	vehicle *regexp.Regexp
}

func NewRuleClassifier(rules Rules) (*RuleClassifier, error) {
	pattern := strings.TrimSpace(rules.VehiclePattern)
	if pattern == "" {
		pattern = defaultVehiclePattern
	}
	vehicle, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile vehicle pattern: %w", err)
	}
	return &RuleClassifier{rules: rules, vehicle: vehicle}, nil
}

// Sentiment applies the positive/negative keyword lists. A title hitting
// both lists, or neither, is neutral.
func (c *RuleClassifier) Sentiment(title string) string {
	if c == nil {
		return SentimentNeutral
	}
	pos := containsAny(title, c.rules.Positive)
	neg := containsAny(title, c.rules.Negative)
	switch {
	case pos && !neg:
		return SentimentPositive
	case neg && !pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Category walks the ordered cascade and returns the first bucket that
// matches. Order is part of the contract: motorsport outranks the technology
// buckets, which outrank vehicles, companies, and the topical tails.
func (c *RuleClassifier) Category(title string) string {
	if c == nil {
		return CategoryOther
	}
	switch {
	case containsAny(title, c.rules.Motorsport):
		return CategoryMotorsport
	case containsAny(title, c.rules.TechEV):
		return CategoryTechEV
	case containsAny(title, c.rules.TechEPower):
		return CategoryTechEPower
	case containsAny(title, c.rules.TechE4ORCE):
		return CategoryTechE4ORCE
	case containsAny(title, c.rules.TechGeneric):
		return CategoryTech
	}

	if c.vehicle.MatchString(title) {
		if !containsAny(title, c.rules.TargetBrand) {
			return CategoryVehicleRival
		}
		switch {
		case strings.Contains(title, "新型"):
			return CategoryVehicleNew
		case strings.Contains(title, "現行"):
			return CategoryVehicleCurrent
		case strings.Contains(title, "旧型"):
			return CategoryVehicleOld
		}
		return CategoryVehicle
	}

	if containsAny(title, c.rules.TargetBrand) {
		return fmt.Sprintf("会社（%s）", c.rules.TargetLabel)
	}
	for _, maker := range c.rules.OtherMakers {
		if strings.Contains(title, maker) {
			return fmt.Sprintf("会社（%s）", maker)
		}
	}

	switch {
	case containsAny(title, c.rules.Stock):
		return CategoryStock
	case containsAny(title, c.rules.Politics):
		return CategoryPolitics
	case containsAny(title, c.rules.Sports):
		return CategorySports
	}
	return CategoryOther
}

// Classify labels a single title with both dimensions.
func (c *RuleClassifier) Classify(title string) Labels {
	return Labels{Sentiment: c.Sentiment(title), Category: c.Category(title)}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
