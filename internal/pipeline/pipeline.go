// Package pipeline turns a natural-language question into data, a chart and
// a narrative by running generation, validation, execution, visualization and
// summary stages in sequence.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/sqlvalidator"
	"github.com/vitebski/catchment-insights/internal/summary"
	"github.com/vitebski/catchment-insights/internal/visualization"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// Generator turns a question into a candidate SQL query
type Generator interface {
	Generate(ctx context.Context, text string, schema *models.SchemaDescription) (string, error)
}

// Validator checks a candidate query before it reaches the database
type Validator interface {
	Validate(query string) models.ValidationResult
}

// Executor runs validated queries and answers catalog questions
type Executor interface {
	Execute(ctx context.Context, query string, opts models.QueryOptions) models.QueryResult
	TestConnection(ctx context.Context) models.ConnectionStatus
	ListTables(ctx context.Context) models.TablesResult
	GetTableSchema(ctx context.Context, table string) models.TableSchemaResult
}

// Visualizer builds and manages stored charts
type Visualizer interface {
	Build(rows []models.Row, opts visualization.Options) (*visualization.Visualization, error)
	List() ([]visualization.Entry, error)
	Delete(filename string) bool
}

// Summarizer narrates result sets
type Summarizer interface {
	Summarize(ctx context.Context, rows []models.Row, c summary.Context) (*summary.Summary, error)
	Compare(ctx context.Context, datasets [][]models.Row, labels []string, c summary.Context) (*summary.Comparison, error)
	Trend(ctx context.Context, rows []models.Row, dateCol, valueCol string, c summary.Context) (*summary.TrendSummary, error)
}

// SchemaSource describes the database for the generator prompt
type SchemaSource interface {
	Describe(ctx context.Context) (models.SchemaDescription, error)
}

// Options controls a single run
type Options struct {
	IncludeVisualization bool                      `json:"includeVisualization"`
	IncludeSummary       bool                      `json:"includeSummary"`
	VisualizationType    string                    `json:"visualizationType,omitempty"`
	VisualizationLibrary string                    `json:"visualizationLibrary,omitempty"`
	MaxRows              int                       `json:"maxRows,omitempty" validate:"gte=0"`
	Schema               *models.SchemaDescription `json:"databaseSchema,omitempty"`
}

// DefaultOptions returns options for a full run
func DefaultOptions() Options {
	return Options{
		IncludeVisualization: true,
		IncludeSummary:       true,
		VisualizationType:    string(visualization.Auto),
		MaxRows:              models.DefaultQueryOptions().MaxRows,
	}
}

// Timings holds per-stage durations in milliseconds. A nil stage never ran.
type Timings struct {
	SQLGeneration  *int64 `json:"sqlGeneration"`
	Validation     *int64 `json:"validation"`
	QueryExecution *int64 `json:"queryExecution"`
	Visualization  *int64 `json:"visualization"`
	Summary        *int64 `json:"summary"`
	Total          int64  `json:"total"`
}

// Run is the state of one pipeline execution
type Run struct {
	ID            string
	UserInput     string
	SQLQuery      string
	Query         models.Query
	Validation    *models.ValidationResult
	QueryResult   *models.QueryResult
	Visualization *visualization.Visualization
	Summary       *summary.Summary
	Errors        []string
	Warnings      []string
	Timings       Timings
}

// Result is the caller-facing view of a run
type Result struct {
	RunID         string                       `json:"runId"`
	UserInput     string                       `json:"userInput"`
	SQLQuery      string                       `json:"sqlQuery,omitempty"`
	QueryKind     string                       `json:"queryKind,omitempty"`
	Data          []models.Row                 `json:"data"`
	RowCount      int                          `json:"rowCount"`
	Visualization *visualization.Visualization `json:"visualization,omitempty"`
	Summary       *summary.Summary             `json:"summary,omitempty"`
	Errors        []string                     `json:"errors,omitempty"`
	Warnings      []string                     `json:"warnings"`
	Timings       Timings                      `json:"executionTime"`
}

// Response is the envelope returned for every run
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Result  Result `json:"result"`
}

// Pipeline orchestrates the analysis stages
type Pipeline struct {
	Generator  Generator
	Validator  Validator
	Executor   Executor
	Visualizer Visualizer
	Summarizer Summarizer
	// Schema is used when a run supplies no schema of its own
	Schema *models.SchemaDescription
	// SchemaSource is asked when neither the run nor Schema has one
	SchemaSource SchemaSource
	TimeoutMs    int
	Logger       *logrus.Logger
}

// NewPipeline creates a new analysis pipeline
func NewPipeline(
	generator Generator,
	validator Validator,
	executor Executor,
	visualizer Visualizer,
	summarizer Summarizer,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		Generator:  generator,
		Validator:  validator,
		Executor:   executor,
		Visualizer: visualizer,
		Summarizer: summarizer,
		TimeoutMs:  models.DefaultQueryOptions().TimeoutMs,
		Logger:     logger,
	}
}

// stage times fn into slot whether or not it succeeds
func stage(slot **int64, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start).Milliseconds()
	*slot = &elapsed
	return err
}

// ProcessQuery runs the full analysis for a question. It never returns an
// error; failures are reported in the envelope.
func (p *Pipeline) ProcessQuery(ctx context.Context, userInput string, opts Options) Response {
	start := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		UserInput: userInput,
		Errors:    []string{},
		Warnings:  []string{},
	}
	log := p.Logger.WithField("run", run.ID)

	err := p.process(ctx, run, opts, log)
	run.Timings.Total = time.Since(start).Milliseconds()

	if err != nil {
		log.Errorf("Pipeline failed: %v", err)
		run.Errors = append(run.Errors, err.Error())
		return Response{
			Success: false,
			Error:   err.Error(),
			Result: Result{
				RunID:     run.ID,
				UserInput: run.UserInput,
				SQLQuery:  run.SQLQuery,
				QueryKind: run.Query.Kind,
				Errors:    run.Errors,
				Warnings:  run.Warnings,
				Timings:   run.Timings,
			},
		}
	}

	log.Infof("Pipeline completed in %dms", run.Timings.Total)
	data := run.QueryResult.Data
	if data == nil {
		data = []models.Row{}
	}
	return Response{
		Success: true,
		Result: Result{
			RunID:         run.ID,
			UserInput:     run.UserInput,
			SQLQuery:      run.SQLQuery,
			QueryKind:     run.Query.Kind,
			Data:          data,
			RowCount:      run.QueryResult.RowCount,
			Visualization: run.Visualization,
			Summary:       run.Summary,
			Warnings:      run.Warnings,
			Timings:       run.Timings,
		},
	}
}

func (p *Pipeline) process(ctx context.Context, run *Run, opts Options, log *logrus.Entry) error {
	log.Info("Generating SQL query")
	err := stage(&run.Timings.SQLGeneration, func() error {
		schema := p.resolveSchema(ctx, opts.Schema)
		query, err := p.Generator.Generate(ctx, run.UserInput, schema)
		run.SQLQuery = query
		return err
	})
	if err != nil {
		return err
	}
	run.Query = sqlvalidator.NewQuery(run.SQLQuery)
	log.Debugf("Generated %s statement: %s", run.Query.Kind, run.Query.Text)

	log.Info("Validating SQL query")
	err = stage(&run.Timings.Validation, func() error {
		validation := p.Validator.Validate(run.SQLQuery)
		run.Validation = &validation
		if !validation.IsValid {
			return apperrors.New(apperrors.Validation, "SQL validation failed: "+strings.Join(validation.Errors, ", "))
		}
		run.Warnings = append(run.Warnings, validation.Warnings...)
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Executing query")
	err = stage(&run.Timings.QueryExecution, func() error {
		result := p.Executor.Execute(ctx, run.SQLQuery, models.QueryOptions{
			MaxRows:        opts.MaxRows,
			TimeoutMs:      p.TimeoutMs,
			ReturnMetadata: true,
		})
		run.QueryResult = &result
		if !result.Success {
			return apperrors.New(apperrors.Execution, "Query execution failed: "+result.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("Query returned %d row(s)", run.QueryResult.RowCount)

	rows := run.QueryResult.Data
	if opts.IncludeVisualization && len(rows) > 0 {
		log.Info("Creating visualization")
		err = stage(&run.Timings.Visualization, func() error {
			viz, err := p.Visualizer.Build(rows, visualization.Options{
				Type:    opts.VisualizationType,
				Title:   "Results for: " + run.UserInput,
				Library: opts.VisualizationLibrary,
				Format:  visualization.FormatHTML,
			})
			run.Visualization = viz
			return err
		})
		if err != nil {
			log.Warnf("Visualization skipped: %v", err)
			run.Warnings = append(run.Warnings, "Visualization creation failed: "+err.Error())
		}
	}

	if opts.IncludeSummary && len(rows) > 0 {
		log.Info("Generating summary")
		err = stage(&run.Timings.Summary, func() error {
			c := summary.Context{SQLQuery: run.SQLQuery, UserQuestion: run.UserInput}
			if run.Visualization != nil {
				c.VisualizationType = string(run.Visualization.Type)
			}
			s, err := p.Summarizer.Summarize(ctx, rows, c)
			run.Summary = s
			return err
		})
		if err != nil {
			log.Warnf("Summary skipped: %v", err)
			run.Warnings = append(run.Warnings, "Summary generation failed: "+err.Error())
		}
	}

	return nil
}

// resolveSchema prefers the run's schema, then the configured one, then a
// live description. A failed live description leaves the prompt without one.
func (p *Pipeline) resolveSchema(ctx context.Context, requested *models.SchemaDescription) *models.SchemaDescription {
	if requested != nil {
		return requested
	}
	if p.Schema != nil {
		return p.Schema
	}
	if p.SchemaSource == nil {
		return nil
	}

	schema, err := p.SchemaSource.Describe(ctx)
	if err != nil {
		p.Logger.Warnf("Failed to describe database schema, generating without it: %v", err)
		return nil
	}
	if len(schema.Tables) == 0 {
		return nil
	}
	return &schema
}
