package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/internal/decomposer"
	"github.com/vitebski/catchment-insights/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

type fakeLocal struct {
	queries  []string
	rows     []models.Row
	err      error
	pingErr  error
	panicMsg string
}

func (f *fakeLocal) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.queries = append(f.queries, query)
	return f.rows, f.err
}

func (f *fakeLocal) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeLocal) TablesQuery() string { return "SHOW TABLES" }

func (f *fakeLocal) DescribeQuery(table string) (string, error) { return "DESCRIBE " + table, nil }

type fakeRemote struct {
	raw      []string
	parts    []decomposer.Decomposition
	rawErr   error
	partsErr error
	rows     []models.Row
}

func (f *fakeRemote) Query(ctx context.Context, query string) ([]models.Row, error) {
	f.raw = append(f.raw, query)
	if f.rawErr != nil {
		return nil, f.rawErr
	}
	return f.rows, nil
}

func (f *fakeRemote) QueryParts(ctx context.Context, d decomposer.Decomposition) ([]models.Row, error) {
	f.parts = append(f.parts, d)
	if f.partsErr != nil {
		return nil, f.partsErr
	}
	return f.rows, nil
}

func schoolRows() []models.Row {
	return []models.Row{
		models.NewRow(models.Col("school_name", "Maple"), models.Col("capacity", 350)),
		models.NewRow(models.Col("school_name", "Cedar"), models.Col("capacity", 410)),
	}
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		maxRows int
		want    string
	}{
		{"appends limit", "SELECT * FROM schools", 100, "SELECT * FROM schools LIMIT 100"},
		{"strips terminator", "SELECT * FROM schools;  ", 5, "SELECT * FROM schools LIMIT 5"},
		{"keeps existing limit", "SELECT * FROM schools LIMIT 10;", 5, "SELECT * FROM schools LIMIT 10;"},
		{"case insensitive", "select * from schools limit 3", 500, "select * from schools limit 3"},
		{"limit inside literal suppresses", "SELECT * FROM t WHERE note = 'no limit'", 5, "SELECT * FROM t WHERE note = 'no limit'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyRowLimit(tt.query, tt.maxRows); got != tt.want {
				t.Errorf("ApplyRowLimit(%q, %d) = %q, want %q", tt.query, tt.maxRows, got, tt.want)
			}
		})
	}
}

func TestApplyRowLimitIdempotent(t *testing.T) {
	query := "SELECT * FROM schools LIMIT 10"
	for _, maxRows := range []int{1, 10, 10000} {
		got := ApplyRowLimit(ApplyRowLimit(query, maxRows), maxRows)
		if strings.Count(strings.ToUpper(got), "LIMIT") != 1 {
			t.Errorf("Expected a single LIMIT clause for maxRows %d, got %q", maxRows, got)
		}
	}
}

func TestExecuteLocal(t *testing.T) {
	local := &fakeLocal{rows: schoolRows()}
	e := NewQueryExecutor(EnvironmentDev, local, nil, testLogger())

	result := e.Execute(context.Background(), "SELECT school_name, capacity FROM schools;", models.DefaultQueryOptions())
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.RowCount != 2 {
		t.Errorf("Expected 2 rows, got %d", result.RowCount)
	}
	if diff := cmp.Diff([]string{"SELECT school_name, capacity FROM schools LIMIT 10000"}, local.queries); diff != "" {
		t.Errorf("Unexpected executed queries (-want +got):\n%s", diff)
	}

	want := &models.QueryMetadata{RowCount: 2, Columns: []string{"school_name", "capacity"}, Environment: "dev"}
	if diff := cmp.Diff(want, result.Metadata); diff != "" {
		t.Errorf("Unexpected metadata (-want +got):\n%s", diff)
	}
}

func TestExecuteWithoutMetadata(t *testing.T) {
	e := NewQueryExecutor(EnvironmentDev, &fakeLocal{rows: schoolRows()}, nil, testLogger())
	opts := models.QueryOptions{MaxRows: 10}

	result := e.Execute(context.Background(), "SELECT * FROM schools", opts)
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.Metadata != nil {
		t.Errorf("Expected no metadata, got %+v", result.Metadata)
	}
}

func TestExecuteNeverFails(t *testing.T) {
	tests := []struct {
		name     string
		executor *QueryExecutor
		wantErr  string
	}{
		{
			name:     "driver error",
			executor: NewQueryExecutor(EnvironmentDev, &fakeLocal{err: errors.New("Table 'schools.nope' doesn't exist")}, nil, testLogger()),
			wantErr:  "Table 'schools.nope' doesn't exist",
		},
		{
			name:     "panic",
			executor: NewQueryExecutor(EnvironmentDev, &fakeLocal{panicMsg: "driver exploded"}, nil, testLogger()),
			wantErr:  "driver exploded",
		},
		{
			name:     "missing local database",
			executor: NewQueryExecutor(EnvironmentDev, nil, nil, testLogger()),
			wantErr:  "local database is not configured",
		},
		{
			name:     "missing proxy",
			executor: NewQueryExecutor("production", nil, nil, testLogger()),
			wantErr:  "query proxy is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.executor.Execute(context.Background(), "SELECT * FROM nope", models.DefaultQueryOptions())
			if result.Success {
				t.Fatal("Expected failure")
			}
			if result.Error != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, result.Error)
			}
			if result.Data == nil || len(result.Data) != 0 || result.RowCount != 0 {
				t.Errorf("Expected empty data, got %+v", result)
			}
		})
	}
}

func TestExecuteRemoteRawFirst(t *testing.T) {
	remote := &fakeRemote{rows: schoolRows()}
	e := NewQueryExecutor("production", nil, remote, testLogger())

	result := e.Execute(context.Background(), "SELECT school_name FROM schools", models.DefaultQueryOptions())
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if diff := cmp.Diff([]string{"SELECT school_name FROM schools LIMIT 10000"}, remote.raw); diff != "" {
		t.Errorf("Unexpected raw queries (-want +got):\n%s", diff)
	}
	if len(remote.parts) != 0 {
		t.Errorf("Expected no structured call, got %d", len(remote.parts))
	}
	if result.Metadata.Environment != "production" {
		t.Errorf("Unexpected environment %q", result.Metadata.Environment)
	}
}

func TestExecuteRemoteFallsBackToDecomposition(t *testing.T) {
	remote := &fakeRemote{rows: schoolRows(), rawErr: errors.New("API request failed: 400")}
	e := NewQueryExecutor("production", nil, remote, testLogger())

	opts := models.DefaultQueryOptions()
	opts.MaxRows = 25
	result := e.Execute(context.Background(), "SELECT school_name FROM schools WHERE capacity > 100", opts)
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}

	want := []decomposer.Decomposition{{
		Table:      "schools",
		SelectList: "school_name",
		Clauses:    []string{"WHERE capacity > 100", "LIMIT 25"},
	}}
	if diff := cmp.Diff(want, remote.parts); diff != "" {
		t.Errorf("Unexpected structured call (-want +got):\n%s", diff)
	}
}

func TestExecuteRemoteFallbackKeepsLimitTail(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SELECT school_name FROM schools LIMIT 10, 20", []string{"LIMIT 10, 20"}},
		{"SELECT school_name FROM schools ORDER BY capacity LIMIT 5 OFFSET 10;", []string{"ORDER BY capacity", "LIMIT 5 OFFSET 10"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			remote := &fakeRemote{rows: schoolRows(), rawErr: errors.New("API request failed: 400")}
			e := NewQueryExecutor("production", nil, remote, testLogger())

			result := e.Execute(context.Background(), tt.query, models.DefaultQueryOptions())
			if !result.Success {
				t.Fatalf("Expected success, got error %q", result.Error)
			}
			if len(remote.parts) != 1 {
				t.Fatalf("Expected one structured call, got %d", len(remote.parts))
			}
			if diff := cmp.Diff(tt.want, remote.parts[0].Clauses); diff != "" {
				t.Errorf("Unexpected clauses (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecuteRemoteUndecomposable(t *testing.T) {
	remote := &fakeRemote{rawErr: errors.New("API request failed: 400")}
	e := NewQueryExecutor("production", nil, remote, testLogger())

	result := e.Execute(context.Background(), "SHOW TABLES", models.DefaultQueryOptions())
	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.Error != "Unable to parse SELECT query: SHOW TABLES" {
		t.Errorf("Unexpected error %q", result.Error)
	}
}

func TestTestConnection(t *testing.T) {
	local := NewQueryExecutor(EnvironmentDev, &fakeLocal{}, nil, testLogger())
	if status := local.TestConnection(context.Background()); !status.Success || status.Message != "Local database connection successful" {
		t.Errorf("Unexpected local status %+v", status)
	}

	failing := NewQueryExecutor(EnvironmentDev, &fakeLocal{pingErr: errors.New("connection refused")}, nil, testLogger())
	status := failing.TestConnection(context.Background())
	if status.Success || status.Message != "Connection failed: connection refused" || status.Error != "connection refused" {
		t.Errorf("Unexpected failing status %+v", status)
	}

	remote := &fakeRemote{}
	cloud := NewQueryExecutor("production", nil, remote, testLogger())
	if status := cloud.TestConnection(context.Background()); !status.Success || status.Message != "Cloud database connection successful" {
		t.Errorf("Unexpected cloud status %+v", status)
	}
	if len(remote.parts) != 1 || remote.parts[0].Table != "catchments" {
		t.Errorf("Unexpected probe %+v", remote.parts)
	}
}

func TestListTables(t *testing.T) {
	local := &fakeLocal{rows: []models.Row{
		models.NewRow(models.Col("Tables_in_schools", "catchments")),
		models.NewRow(models.Col("Tables_in_schools", "schools")),
	}}
	e := NewQueryExecutor(EnvironmentDev, local, nil, testLogger())

	result := e.ListTables(context.Background())
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if diff := cmp.Diff([]string{"catchments", "schools"}, result.Tables); diff != "" {
		t.Errorf("Unexpected tables (-want +got):\n%s", diff)
	}

	remote := &fakeRemote{rows: []models.Row{models.NewRow(models.Col("table_name", "schools"))}}
	cloud := NewQueryExecutor("production", nil, remote, testLogger())
	result = cloud.ListTables(context.Background())
	if diff := cmp.Diff([]string{"schools"}, result.Tables); diff != "" {
		t.Errorf("Unexpected cloud tables (-want +got):\n%s", diff)
	}
	if remote.parts[0].Table != "information_schema.tables" {
		t.Errorf("Unexpected table listing call %+v", remote.parts[0])
	}

	broken := NewQueryExecutor(EnvironmentDev, &fakeLocal{err: errors.New("boom")}, nil, testLogger())
	result = broken.ListTables(context.Background())
	if result.Success || result.Error != "boom" || result.Tables == nil {
		t.Errorf("Unexpected failure result %+v", result)
	}
}

func TestGetTableSchema(t *testing.T) {
	local := &fakeLocal{rows: []models.Row{models.NewRow(models.Col("Field", "school_id"), models.Col("Type", "int"))}}
	e := NewQueryExecutor(EnvironmentDev, local, nil, testLogger())

	result := e.GetTableSchema(context.Background(), "schools")
	if !result.Success || len(result.Schema) != 1 {
		t.Fatalf("Unexpected result %+v", result)
	}
	if local.queries[0] != "DESCRIBE schools" {
		t.Errorf("Unexpected describe query %q", local.queries[0])
	}

	result = e.GetTableSchema(context.Background(), "schools; DROP TABLE x")
	if result.Success {
		t.Fatal("Expected invalid table name to fail")
	}
	if !strings.Contains(result.Error, "invalid table name") {
		t.Errorf("Unexpected error %q", result.Error)
	}

	remote := &fakeRemote{}
	cloud := NewQueryExecutor("production", nil, remote, testLogger())
	cloud.GetTableSchema(context.Background(), "schools")
	wantClauses := []string{"WHERE table_name = 'schools'", "AND table_schema = DATABASE()"}
	if diff := cmp.Diff(wantClauses, remote.parts[0].Clauses); diff != "" {
		t.Errorf("Unexpected schema clauses (-want +got):\n%s", diff)
	}
}

func TestDecompositionErrorKind(t *testing.T) {
	e := NewQueryExecutor("production", nil, &fakeRemote{rawErr: errors.New("nope")}, testLogger())
	_, err := e.executeRemote(context.Background(), "DESCRIBE schools", models.DefaultQueryOptions())
	if !apperrors.Is(err, apperrors.Decomposition) {
		t.Errorf("Expected a decomposition error, got %v", err)
	}
}

func TestExecuteAgainstSQLite(t *testing.T) {
	logger := testLogger()
	conn := &connector.DatabaseConnector{
		Driver: connector.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "schools.db"),
		Logger: logger,
	}
	ctx := context.Background()

	if _, err := conn.ExecuteStatement(ctx, "CREATE TABLE schools (school_id INTEGER PRIMARY KEY, school_name TEXT)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	params := [][]interface{}{{1, "Maple"}, {2, "Cedar"}, {3, "Birch"}}
	if _, err := conn.ExecuteMany(ctx, "INSERT INTO schools (school_id, school_name) VALUES (?, ?)", params); err != nil {
		t.Fatalf("Failed to insert rows: %v", err)
	}

	e := NewQueryExecutor(EnvironmentDev, conn, nil, logger)
	opts := models.DefaultQueryOptions()
	opts.MaxRows = 2

	result := e.Execute(ctx, "SELECT school_id, school_name FROM schools ORDER BY school_id", opts)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if result.RowCount != 2 {
		t.Errorf("Expected the row limit to apply, got %d rows", result.RowCount)
	}
	if got := result.Data[1].Get("school_name").String(); got != "Cedar" {
		t.Errorf("Unexpected second row %q", got)
	}

	tables := e.ListTables(ctx)
	if diff := cmp.Diff([]string{"schools"}, tables.Tables); diff != "" {
		t.Errorf("Unexpected tables (-want +got):\n%s", diff)
	}

	schema := e.GetTableSchema(ctx, "schools")
	if !schema.Success || len(schema.Schema) != 2 {
		t.Errorf("Unexpected schema %+v", schema)
	}
}
