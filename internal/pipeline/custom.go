package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitebski/catchment-insights/internal/sqlvalidator"
	"github.com/vitebski/catchment-insights/internal/summary"
	"github.com/vitebski/catchment-insights/internal/visualization"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const emptyDataMessage = "Data must be a non-empty array"

// CustomSQLResult is the envelope for caller-supplied SQL
type CustomSQLResult struct {
	Success    bool                     `json:"success"`
	QueryKind  string                   `json:"queryKind,omitempty"`
	Data       []models.Row             `json:"data,omitempty"`
	RowCount   int                      `json:"rowCount"`
	Error      string                   `json:"error,omitempty"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

// VisualizationResult is the envelope for a caller-requested chart
type VisualizationResult struct {
	Success       bool                         `json:"success"`
	Visualization *visualization.Visualization `json:"visualization,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

// VisualizationList is the envelope for stored charts
type VisualizationList struct {
	Success        bool                  `json:"success"`
	Visualizations []visualization.Entry `json:"visualizations"`
	Error          string                `json:"error,omitempty"`
}

// SummaryResult is the envelope for caller-requested narratives. Exactly one
// of the payload fields is set on success.
type SummaryResult struct {
	Success    bool                  `json:"success"`
	Summary    *summary.Summary      `json:"summary,omitempty"`
	Comparison *summary.Comparison   `json:"comparison,omitempty"`
	Trend      *summary.TrendSummary `json:"trend,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ValidateOnly checks a query without running it
func (p *Pipeline) ValidateOnly(query string) models.ValidationResult {
	return p.Validator.Validate(query)
}

// ExecuteCustomSQL validates then runs caller-supplied SQL. An invalid query
// never reaches the executor.
func (p *Pipeline) ExecuteCustomSQL(ctx context.Context, query string, opts models.QueryOptions) CustomSQLResult {
	q := sqlvalidator.NewQuery(query)
	validation := p.Validator.Validate(q.Text)
	if !validation.IsValid {
		p.Logger.Warnf("Rejected custom %s statement: %s", q.Kind, strings.Join(validation.Errors, ", "))
		return CustomSQLResult{
			Success:    false,
			QueryKind:  q.Kind,
			Error:      "SQL validation failed: " + strings.Join(validation.Errors, ", "),
			Validation: &validation,
		}
	}

	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = p.TimeoutMs
	}
	p.Logger.Debugf("Executing custom %s statement", q.Kind)
	result := p.Executor.Execute(ctx, q.Text, opts)
	return CustomSQLResult{
		Success:    result.Success,
		QueryKind:  q.Kind,
		Data:       result.Data,
		RowCount:   result.RowCount,
		Error:      result.Error,
		Validation: &validation,
		Warnings:   validation.Warnings,
	}
}

// CreateCustomVisualization builds a chart from caller-supplied rows
func (p *Pipeline) CreateCustomVisualization(rows []models.Row, opts visualization.Options) VisualizationResult {
	if len(rows) == 0 {
		return VisualizationResult{Error: emptyDataMessage}
	}

	viz, err := p.Visualizer.Build(rows, opts)
	if err != nil {
		p.Logger.Errorf("Custom visualization failed: %v", err)
		return VisualizationResult{Error: err.Error()}
	}
	return VisualizationResult{Success: true, Visualization: viz}
}

// GenerateCustomSummary narrates caller-supplied rows
func (p *Pipeline) GenerateCustomSummary(ctx context.Context, rows []models.Row, c summary.Context) SummaryResult {
	if len(rows) == 0 {
		return SummaryResult{Error: emptyDataMessage}
	}

	s, err := p.Summarizer.Summarize(ctx, rows, c)
	if err != nil {
		return SummaryResult{Error: err.Error()}
	}
	return SummaryResult{Success: true, Summary: s}
}

// CompareSummary narrates two or more labelled datasets
func (p *Pipeline) CompareSummary(ctx context.Context, datasets [][]models.Row, labels []string, c summary.Context) SummaryResult {
	for i, rows := range datasets {
		if len(rows) == 0 {
			return SummaryResult{Error: fmt.Sprintf("Dataset %d: %s", i+1, emptyDataMessage)}
		}
	}

	s, err := p.Summarizer.Compare(ctx, datasets, labels, c)
	if err != nil {
		return SummaryResult{Error: err.Error()}
	}
	return SummaryResult{Success: true, Comparison: s}
}

// TrendSummary narrates a time series
func (p *Pipeline) TrendSummary(ctx context.Context, rows []models.Row, dateCol, valueCol string, c summary.Context) SummaryResult {
	s, err := p.Summarizer.Trend(ctx, rows, dateCol, valueCol, c)
	if err != nil {
		return SummaryResult{Error: err.Error()}
	}
	return SummaryResult{Success: true, Trend: s}
}

// ListVisualizations returns stored charts, newest first
func (p *Pipeline) ListVisualizations() VisualizationList {
	entries, err := p.Visualizer.List()
	if err != nil {
		return VisualizationList{Visualizations: []visualization.Entry{}, Error: err.Error()}
	}
	return VisualizationList{Success: true, Visualizations: entries}
}

// DeleteVisualization removes a stored chart. It reports false when the file
// was already gone.
func (p *Pipeline) DeleteVisualization(filename string) bool {
	return p.Visualizer.Delete(filename)
}

// TestConnection checks the configured database
func (p *Pipeline) TestConnection(ctx context.Context) models.ConnectionStatus {
	return p.Executor.TestConnection(ctx)
}

// GetAvailableTables lists the tables the executor can see
func (p *Pipeline) GetAvailableTables(ctx context.Context) models.TablesResult {
	return p.Executor.ListTables(ctx)
}

// GetTableSchema describes one table
func (p *Pipeline) GetTableSchema(ctx context.Context, table string) models.TableSchemaResult {
	if strings.TrimSpace(table) == "" {
		return models.TableSchemaResult{Schema: []models.Row{}, Error: "table name is required"}
	}
	return p.Executor.GetTableSchema(ctx, table)
}
