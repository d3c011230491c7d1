// Package executor runs validated queries against the local database or the
// remote query proxy and normalizes the outcome into QueryResult envelopes.
//
// Every exported method is total: failures come back as envelopes with
// success=false, never as errors or panics.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/internal/decomposer"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// EnvironmentDev selects local database execution
const EnvironmentDev = "dev"

// remote connection checks read one row from this table
const defaultProbeTable = "catchments"

var trailingTerminatorRe = regexp.MustCompile(`;?\s*$`)

// LocalDatabase is the scoped connection used in dev mode
type LocalDatabase interface {
	ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error)
	Ping(ctx context.Context) error
	TablesQuery() string
	DescribeQuery(table string) (string, error)
}

// RemoteProxy is the HTTP query proxy used outside dev mode
type RemoteProxy interface {
	Query(ctx context.Context, query string) ([]models.Row, error)
	QueryParts(ctx context.Context, d decomposer.Decomposition) ([]models.Row, error)
}

// QueryExecutor dispatches queries on the configured environment
type QueryExecutor struct {
	Environment string
	Local       LocalDatabase
	Remote      RemoteProxy
	ProbeTable  string
	Logger      *logrus.Logger
}

// NewQueryExecutor creates a query executor
func NewQueryExecutor(environment string, local LocalDatabase, remote RemoteProxy, logger *logrus.Logger) *QueryExecutor {
	if environment == "" {
		environment = "production"
	}
	return &QueryExecutor{
		Environment: environment,
		Local:       local,
		Remote:      remote,
		ProbeTable:  defaultProbeTable,
		Logger:      logger,
	}
}

// IsLocal reports whether queries run against the local database
func (e *QueryExecutor) IsLocal() bool {
	return e.Environment == EnvironmentDev
}

// ApplyRowLimit appends LIMIT maxRows unless the text already mentions LIMIT.
// The check is a case-insensitive substring test, so a LIMIT inside a string
// literal or subquery also suppresses the clause.
func ApplyRowLimit(query string, maxRows int) string {
	trimmed := strings.TrimSpace(query)
	if maxRows <= 0 || strings.Contains(strings.ToLower(trimmed), "limit") {
		return trimmed
	}
	return trailingTerminatorRe.ReplaceAllString(trimmed, "") + fmt.Sprintf(" LIMIT %d", maxRows)
}

func withDefaults(opts models.QueryOptions) models.QueryOptions {
	defaults := models.DefaultQueryOptions()
	if opts.MaxRows == 0 {
		opts.MaxRows = defaults.MaxRows
	}
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = defaults.TimeoutMs
	}
	return opts
}

// Execute runs a query and returns the normalized result
func (e *QueryExecutor) Execute(ctx context.Context, query string, opts models.QueryOptions) (result models.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Errorf("Query execution panicked: %v", r)
			result = models.FailedQuery(fmt.Sprintf("%v", r))
		}
	}()

	opts = withDefaults(opts)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	var rows []models.Row
	var err error
	if e.IsLocal() {
		rows, err = e.executeLocal(ctx, query, opts)
	} else {
		rows, err = e.executeRemote(ctx, query, opts)
	}
	if err != nil {
		e.Logger.Errorf("Query execution error: %v", err)
		return models.FailedQuery(err.Error())
	}
	if rows == nil {
		rows = []models.Row{}
	}

	e.Logger.Infof("Query returned %d row(s) in %s", len(rows), time.Since(start).Round(time.Millisecond))

	result = models.QueryResult{
		Success:  true,
		Data:     rows,
		RowCount: len(rows),
	}
	if opts.ReturnMetadata {
		result.Metadata = &models.QueryMetadata{
			RowCount:    len(rows),
			Columns:     models.ColumnsOf(rows),
			Environment: e.Environment,
		}
	}
	return result
}

func (e *QueryExecutor) executeLocal(ctx context.Context, query string, opts models.QueryOptions) ([]models.Row, error) {
	if e.Local == nil {
		return nil, apperrors.New(apperrors.Execution, "local database is not configured")
	}
	finalQuery := ApplyRowLimit(query, opts.MaxRows)
	e.Logger.Debugf("Executing local query: %s", finalQuery)
	return e.Local.ExecuteQuery(ctx, finalQuery)
}

// executeRemote forwards the raw query first and falls back to the decomposed form
func (e *QueryExecutor) executeRemote(ctx context.Context, query string, opts models.QueryOptions) ([]models.Row, error) {
	if e.Remote == nil {
		return nil, apperrors.New(apperrors.Execution, "query proxy is not configured")
	}
	finalQuery := ApplyRowLimit(query, opts.MaxRows)
	e.Logger.Debugf("Executing raw cloud query: %s", finalQuery)

	rows, err := e.Remote.Query(ctx, finalQuery)
	if err == nil {
		return rows, nil
	}
	e.Logger.Warnf("Raw query execution failed, retrying as decomposed query: %v", err)

	parts, ok := decomposer.Decompose(finalQuery)
	if !ok {
		return nil, apperrors.Newf(apperrors.Decomposition, "Unable to parse SELECT query: %s", query)
	}
	return e.Remote.QueryParts(ctx, parts)
}

// TestConnection checks that the configured backend answers
func (e *QueryExecutor) TestConnection(ctx context.Context) (status models.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = connectionFailed(fmt.Errorf("%v", r))
		}
	}()

	if e.IsLocal() {
		if e.Local == nil {
			return connectionFailed(fmt.Errorf("local database is not configured"))
		}
		if err := e.Local.Ping(ctx); err != nil {
			return connectionFailed(err)
		}
		return models.ConnectionStatus{Success: true, Message: "Local database connection successful"}
	}

	if e.Remote == nil {
		return connectionFailed(fmt.Errorf("query proxy is not configured"))
	}
	probe := decomposer.Decomposition{Table: e.ProbeTable, SelectList: "1", Clauses: []string{"LIMIT 1"}}
	if _, err := e.Remote.QueryParts(ctx, probe); err != nil {
		return connectionFailed(err)
	}
	return models.ConnectionStatus{Success: true, Message: "Cloud database connection successful"}
}

func connectionFailed(err error) models.ConnectionStatus {
	return models.ConnectionStatus{
		Success: false,
		Message: "Connection failed: " + err.Error(),
		Error:   err.Error(),
	}
}

// ListTables returns the table names visible to queries
func (e *QueryExecutor) ListTables(ctx context.Context) (result models.TablesResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.TablesResult{Success: false, Tables: []string{}, Error: fmt.Sprintf("%v", r)}
		}
	}()

	tables, err := e.listTables(ctx)
	if err != nil {
		e.Logger.Errorf("Error getting available tables: %v", err)
		return models.TablesResult{Success: false, Tables: []string{}, Error: err.Error()}
	}
	return models.TablesResult{Success: true, Tables: tables}
}

func (e *QueryExecutor) listTables(ctx context.Context) ([]string, error) {
	var rows []models.Row
	var err error
	key := "table_name"

	if e.IsLocal() {
		if e.Local == nil {
			return nil, fmt.Errorf("local database is not configured")
		}
		rows, err = e.Local.ExecuteQuery(ctx, e.Local.TablesQuery())
		key = ""
	} else {
		if e.Remote == nil {
			return nil, fmt.Errorf("query proxy is not configured")
		}
		rows, err = e.Remote.QueryParts(ctx, decomposer.Decomposition{
			Table:      "information_schema.tables",
			SelectList: "table_name",
			Clauses:    []string{"WHERE table_schema = DATABASE()"},
		})
	}
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		col := key
		if col == "" || !row.Has(col) {
			cols := row.Columns()
			if len(cols) == 0 {
				continue
			}
			col = cols[0]
		}
		tables = append(tables, row.Get(col).String())
	}
	return tables, nil
}

// GetTableSchema describes the columns of one table
func (e *QueryExecutor) GetTableSchema(ctx context.Context, table string) (result models.TableSchemaResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.TableSchemaResult{Success: false, Schema: []models.Row{}, Error: fmt.Sprintf("%v", r)}
		}
	}()

	rows, err := e.tableSchema(ctx, table)
	if err != nil {
		e.Logger.Errorf("Error getting table schema: %v", err)
		return models.TableSchemaResult{Success: false, Schema: []models.Row{}, Error: err.Error()}
	}
	return models.TableSchemaResult{Success: true, Schema: rows}
}

func (e *QueryExecutor) tableSchema(ctx context.Context, table string) ([]models.Row, error) {
	if !connector.ValidIdentifier(table) {
		return nil, apperrors.Newf(apperrors.InvalidInput, "invalid table name: %s", table)
	}

	if e.IsLocal() {
		if e.Local == nil {
			return nil, fmt.Errorf("local database is not configured")
		}
		query, err := e.Local.DescribeQuery(table)
		if err != nil {
			return nil, err
		}
		return e.Local.ExecuteQuery(ctx, query)
	}

	if e.Remote == nil {
		return nil, fmt.Errorf("query proxy is not configured")
	}
	return e.Remote.QueryParts(ctx, decomposer.Decomposition{
		Table:      "information_schema.columns",
		SelectList: "column_name, data_type, is_nullable",
		Clauses: []string{
			fmt.Sprintf("WHERE table_name = '%s'", table),
			"AND table_schema = DATABASE()",
		},
	})
}
