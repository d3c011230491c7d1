// Package summary narrates result sets in plain language from computed
// column statistics.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/llm"
	"github.com/vitebski/catchment-insights/internal/profile"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const (
	summaryTemperature = 0.3
	sampleRows         = 5
	maxCellLength      = 20
	truncatedLength    = 17
)

// Context describes where the data came from
type Context struct {
	UserQuestion      string   `json:"userQuestion,omitempty"`
	SQLQuery          string   `json:"sqlQuery,omitempty"`
	VisualizationType string   `json:"visualizationType,omitempty"`
	AnalysisSteps     []string `json:"analysisSteps,omitempty"`
}

// DataAnalysis is the computed description of a result set
type DataAnalysis struct {
	TotalRecords int                     `json:"totalRecords"`
	Columns      []string                `json:"columns"`
	Profile      []profile.ColumnProfile `json:"profile"`
}

// Summary is a narrated result set
type Summary struct {
	Text        string       `json:"text"`
	Analysis    DataAnalysis `json:"analysis"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// Builder produces summaries through the completion service
type Builder struct {
	Completer llm.Completer
	Model     string
	Logger    *logrus.Logger
}

// NewBuilder creates a new summary builder
func NewBuilder(completer llm.Completer, modelName string, logger *logrus.Logger) *Builder {
	return &Builder{Completer: completer, Model: modelName, Logger: logger}
}

// Analyze profiles every column of the result set
func Analyze(rows []models.Row) DataAnalysis {
	return DataAnalysis{
		TotalRecords: len(rows),
		Columns:      models.ColumnsOf(rows),
		Profile:      profile.Profile(rows),
	}
}

// Summarize narrates one result set
func (b *Builder) Summarize(ctx context.Context, rows []models.Row, c Context) (*Summary, error) {
	analysis := Analyze(rows)

	kinds := make(map[string]profile.Kind, len(analysis.Profile))
	stats := make(map[string]profile.Stats, len(analysis.Profile))
	for _, p := range analysis.Profile {
		kinds[p.Name] = p.Kind
		stats[p.Name] = p.Stats
	}

	steps := "N/A"
	if len(c.AnalysisSteps) > 0 {
		steps = strings.Join(c.AnalysisSteps, ", ")
	}

	sample := rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}

	prompt := fmt.Sprintf(summaryPrompt,
		orDefault(c.UserQuestion, "Data analysis request"),
		orDefault(c.SQLQuery, "N/A"),
		orDefault(c.VisualizationType, "N/A"),
		steps,
		analysis.TotalRecords,
		strings.Join(analysis.Columns, ", "),
		indentJSON(kinds),
		indentJSON(stats),
		FormatSample(sample),
	)

	text, err := b.complete(ctx, prompt)
	if err != nil {
		b.Logger.Errorf("Error generating summary: %v", err)
		return nil, apperrors.Wrap(apperrors.Summary, "Failed to generate data summary", err)
	}

	return &Summary{Text: text, Analysis: analysis, GeneratedAt: time.Now().UTC()}, nil
}

func (b *Builder) complete(ctx context.Context, prompt string) (string, error) {
	text, err := b.Completer.Complete(ctx, prompt, llm.Options{Model: b.Model, Temperature: summaryTemperature})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}

// FormatSample renders rows as a pipe-delimited table. Nulls print as null
// and strings longer than 20 characters are cut to 17 plus an ellipsis.
func FormatSample(rows []models.Row) string {
	if len(rows) == 0 {
		return "No data available"
	}

	headers := rows[0].Columns()
	var sb strings.Builder
	sb.WriteString(strings.Join(headers, " | "))
	sb.WriteString("\n")

	separators := make([]string, len(headers))
	for i := range separators {
		separators[i] = "---"
	}
	sb.WriteString(strings.Join(separators, " | "))
	sb.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, header := range headers {
			cells[i] = formatCell(row.Get(header))
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatCell(v models.Value) string {
	if v.IsNull() {
		return "null"
	}
	s := v.String()
	if v.Kind() == models.StringKind {
		if r := []rune(s); len(r) > maxCellLength {
			return string(r[:truncatedLength]) + "..."
		}
	}
	return s
}

// Comparison narrates the differences between labelled result sets
type Comparison struct {
	Text        string            `json:"text"`
	Datasets    []LabeledAnalysis `json:"datasets"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// LabeledAnalysis is one side of a comparison
type LabeledAnalysis struct {
	Label    string       `json:"label"`
	Analysis DataAnalysis `json:"analysis"`
}

// Compare narrates two or more datasets side by side
func (b *Builder) Compare(ctx context.Context, datasets [][]models.Row, labels []string, c Context) (*Comparison, error) {
	if len(datasets) < 2 {
		return nil, apperrors.New(apperrors.InvalidInput, "At least two datasets required for comparison")
	}

	comparisons := make([]LabeledAnalysis, 0, len(datasets))
	for i, rows := range datasets {
		label := fmt.Sprintf("Dataset %d", i+1)
		if i < len(labels) && labels[i] != "" {
			label = labels[i]
		}
		comparisons = append(comparisons, LabeledAnalysis{Label: label, Analysis: Analyze(rows)})
	}

	prompt := fmt.Sprintf(comparisonPrompt, indentJSON(c), indentJSON(comparisons))
	text, err := b.complete(ctx, prompt)
	if err != nil {
		b.Logger.Errorf("Error generating comparison summary: %v", err)
		return nil, apperrors.Wrap(apperrors.Summary, "Failed to generate comparison summary", err)
	}

	return &Comparison{Text: text, Datasets: comparisons, GeneratedAt: time.Now().UTC()}, nil
}

// Trend classifies a series of step changes
type Trend struct {
	Direction     string  `json:"direction"`
	Strength      string  `json:"strength"`
	AverageChange float64 `json:"averageChange"`
	Volatility    string  `json:"volatility"`
	Consistency   float64 `json:"consistency"`
}

// CalculateTrend classifies a time-ordered series. The direction follows
// whichever of rising or falling steps outnumbers the other by more than
// 1.5 times; strength is the dominant direction's share of all steps;
// volatility compares the spread of steps with the mean step.
func CalculateTrend(values []float64) Trend {
	if len(values) < 2 {
		return Trend{Direction: "insufficient data", Strength: "none", Volatility: "low"}
	}

	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		changes = append(changes, values[i]-values[i-1])
	}

	total := 0.0
	positive, negative := 0, 0
	for _, c := range changes {
		total += c
		switch {
		case c > 0:
			positive++
		case c < 0:
			negative++
		}
	}
	average := total / float64(len(changes))

	direction := "stable"
	switch {
	case float64(positive) > float64(negative)*1.5:
		direction = "increasing"
	case float64(negative) > float64(positive)*1.5:
		direction = "decreasing"
	}

	consistency := float64(max(positive, negative)) / float64(len(changes))
	strength := "weak"
	switch {
	case consistency > 0.7:
		strength = "strong"
	case consistency > 0.5:
		strength = "moderate"
	}

	variance := 0.0
	for _, c := range changes {
		variance += (c - average) * (c - average)
	}
	deviation := math.Sqrt(variance / float64(len(changes)))

	volatility := "low"
	switch {
	case deviation > math.Abs(average)*2:
		volatility = "high"
	case deviation > math.Abs(average):
		volatility = "moderate"
	}

	return Trend{
		Direction:     direction,
		Strength:      strength,
		AverageChange: average,
		Volatility:    volatility,
		Consistency:   consistency * 100,
	}
}

// TrendSummary narrates a time series
type TrendSummary struct {
	Text        string    `json:"text"`
	Trend       Trend     `json:"trend"`
	DateColumn  string    `json:"dateColumn"`
	ValueColumn string    `json:"valueColumn"`
	DataPoints  int       `json:"dataPoints"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Trend narrates the movement of valueCol over dateCol
func (b *Builder) Trend(ctx context.Context, rows []models.Row, dateCol, valueCol string, c Context) (*TrendSummary, error) {
	if len(rows) == 0 {
		return nil, apperrors.New(apperrors.EmptyData, "Data must be a non-empty array")
	}
	if dateCol == "" || valueCol == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "Date and value columns are required for trend analysis")
	}

	sorted := append([]models.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dateKey(sorted[i].Get(dateCol)) < dateKey(sorted[j].Get(dateCol))
	})

	values := make([]float64, 0, len(sorted))
	for _, row := range sorted {
		values = append(values, profile.NumberOrZero(row.Get(valueCol)))
	}
	trend := CalculateTrend(values)

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	first, last := values[0], values[len(values)-1]
	totalChange := "N/A"
	if first != 0 {
		totalChange = fmt.Sprintf("%.2f", (last-first)/first*100)
	}

	prompt := fmt.Sprintf(trendPrompt,
		dateCol,
		valueCol,
		len(sorted),
		sorted[0].Get(dateCol).String(),
		sorted[len(sorted)-1].Get(dateCol).String(),
		trend.Direction,
		trend.Strength,
		trend.AverageChange,
		trend.Volatility,
		models.Number(first).String(),
		models.Number(last).String(),
		models.Number(hi).String(),
		models.Number(lo).String(),
		totalChange,
		indentJSON(c),
	)

	text, err := b.complete(ctx, prompt)
	if err != nil {
		b.Logger.Errorf("Error generating trend analysis: %v", err)
		return nil, apperrors.Wrap(apperrors.Summary, "Failed to generate trend analysis", err)
	}

	return &TrendSummary{
		Text:        text,
		Trend:       trend,
		DateColumn:  dateCol,
		ValueColumn: valueCol,
		DataPoints:  len(sorted),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// dateKey orders unparseable dates after every parseable one
func dateKey(v models.Value) float64 {
	if t, ok := profile.ParseDate(v); ok {
		return float64(t.UnixNano())
	}
	return math.Inf(1)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func indentJSON(v any) string {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
