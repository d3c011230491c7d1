// Package analyzer builds the schema description handed to SQL generation.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/pkg/models"
	"github.com/yourbasic/graph"
	"gopkg.in/yaml.v3"
)

// Source lists tables and describes their columns
type Source interface {
	ListTables(ctx context.Context) models.TablesResult
	GetTableSchema(ctx context.Context, table string) models.TableSchemaResult
}

// Querier runs raw metadata queries against the local database
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error)
}

// SchemaAnalyzer introspects the database and orders tables so referenced
// tables come before the tables that reference them
type SchemaAnalyzer struct {
	Source          Source
	Keys            Querier
	Driver          string
	Database        string
	Tables          []string
	TableColumns    map[string][]models.Column
	ForeignKeys     map[string][]models.ForeignKey
	DependencyGraph *graph.Mutable
	TableIndexMap   map[string]int
	IndexTableMap   map[int]string
	Logger          *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer. keys may be nil, in which
// case foreign keys are not read.
func NewSchemaAnalyzer(source Source, keys Querier, driver, database string, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		Source:        source,
		Keys:          keys,
		Driver:        driver,
		Database:      database,
		TableColumns:  make(map[string][]models.Column),
		ForeignKeys:   make(map[string][]models.ForeignKey),
		TableIndexMap: make(map[string]int),
		IndexTableMap: make(map[int]string),
		Logger:        logger,
	}
}

// AnalyzeSchema reads tables, columns and foreign keys
func (sa *SchemaAnalyzer) AnalyzeSchema(ctx context.Context) error {
	tablesResult := sa.Source.ListTables(ctx)
	if !tablesResult.Success {
		sa.Logger.Errorf("Error getting tables: %s", tablesResult.Error)
		return fmt.Errorf("failed to list tables: %s", tablesResult.Error)
	}

	sa.Tables = append([]string(nil), tablesResult.Tables...)
	sort.Strings(sa.Tables)

	for _, table := range sa.Tables {
		schemaResult := sa.Source.GetTableSchema(ctx, table)
		if !schemaResult.Success {
			sa.Logger.Warnf("Failed to retrieve columns for table %s: %s", table, schemaResult.Error)
			continue
		}

		columns := make([]models.Column, 0, len(schemaResult.Schema))
		for _, row := range schemaResult.Schema {
			if column, ok := ColumnFromRow(row); ok {
				columns = append(columns, column)
			}
		}
		sa.TableColumns[table] = columns
	}

	for i, table := range sa.Tables {
		sa.TableIndexMap[table] = i
		sa.IndexTableMap[i] = table
	}
	sa.DependencyGraph = graph.New(len(sa.Tables))

	if sa.Keys == nil {
		return nil
	}

	fks, err := sa.readForeignKeys(ctx)
	if err != nil {
		sa.Logger.Warnf("Error getting foreign keys, tables stay in name order: %v", err)
		return nil
	}

	for _, fk := range fks {
		sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)

		// Edges point from the referenced table to the referencing one
		if fk.Table == fk.ReferencedTable {
			continue
		}
		srcIdx, ok := sa.TableIndexMap[fk.ReferencedTable]
		if !ok {
			continue
		}
		destIdx, ok := sa.TableIndexMap[fk.Table]
		if !ok {
			continue
		}
		sa.DependencyGraph.Add(srcIdx, destIdx)
	}

	return nil
}

func (sa *SchemaAnalyzer) readForeignKeys(ctx context.Context) ([]models.ForeignKey, error) {
	if sa.Driver == connector.DriverSQLite {
		var fks []models.ForeignKey
		for _, table := range sa.Tables {
			if !connector.ValidIdentifier(table) {
				continue
			}
			rows, err := sa.Keys.ExecuteQuery(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", table))
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				fks = append(fks, models.ForeignKey{
					Table:            table,
					Column:           lookup(row, "from").String(),
					ReferencedTable:  lookup(row, "table").String(),
					ReferencedColumn: lookup(row, "to").String(),
				})
			}
		}
		return fks, nil
	}

	fkQuery := `
		SELECT
			table_name,
			column_name,
			referenced_table_name,
			referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		AND referenced_table_name IS NOT NULL
		ORDER BY table_name, column_name
	`
	rows, err := sa.Keys.ExecuteQuery(ctx, fkQuery, sa.Database)
	if err != nil {
		return nil, err
	}

	fks := make([]models.ForeignKey, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, models.ForeignKey{
			Table:            lookup(row, "table_name").String(),
			Column:           lookup(row, "column_name").String(),
			ReferencedTable:  lookup(row, "referenced_table_name").String(),
			ReferencedColumn: lookup(row, "referenced_column_name").String(),
		})
	}
	return fks, nil
}

// GetCircularTables returns tables that take part in a reference cycle
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circular := make(map[string]bool)
	if sa.DependencyGraph == nil {
		return circular
	}
	for _, component := range graph.StrongComponents(sa.DependencyGraph) {
		if len(component) < 2 {
			continue
		}
		for _, idx := range component {
			circular[sa.IndexTableMap[idx]] = true
		}
	}
	return circular
}

// GetTableOrder returns tables with referenced tables first. Tables caught in
// a cycle are appended last in name order.
func (sa *SchemaAnalyzer) GetTableOrder() []string {
	if sa.DependencyGraph == nil {
		return append([]string(nil), sa.Tables...)
	}

	if order, ok := graph.TopSort(sa.DependencyGraph); ok {
		return sa.names(order)
	}

	circular := sa.GetCircularTables()

	var acyclic []string
	for _, table := range sa.Tables {
		if !circular[table] {
			acyclic = append(acyclic, table)
		}
	}

	sub := graph.New(len(acyclic))
	subIndex := make(map[string]int, len(acyclic))
	for i, table := range acyclic {
		subIndex[table] = i
	}
	for _, table := range acyclic {
		for _, fk := range sa.ForeignKeys[table] {
			src, ok := subIndex[fk.ReferencedTable]
			if !ok || fk.ReferencedTable == table {
				continue
			}
			sub.Add(src, subIndex[table])
		}
	}

	ordered := make([]string, 0, len(sa.Tables))
	if order, ok := graph.TopSort(sub); ok {
		for _, idx := range order {
			ordered = append(ordered, acyclic[idx])
		}
	} else {
		ordered = append(ordered, acyclic...)
	}

	var circularList []string
	for table := range circular {
		circularList = append(circularList, table)
	}
	sort.Strings(circularList)

	return append(ordered, circularList...)
}

func (sa *SchemaAnalyzer) names(order []int) []string {
	out := make([]string, 0, len(order))
	for _, idx := range order {
		out = append(out, sa.IndexTableMap[idx])
	}
	return out
}

// Describe analyzes the schema and returns it in dependency order
func (sa *SchemaAnalyzer) Describe(ctx context.Context) (models.SchemaDescription, error) {
	if err := sa.AnalyzeSchema(ctx); err != nil {
		return models.SchemaDescription{}, err
	}

	description := models.SchemaDescription{Database: sa.Database}
	for _, table := range sa.GetTableOrder() {
		description.Tables = append(description.Tables, models.TableInfo{
			Name:        table,
			Columns:     sa.TableColumns[table],
			ForeignKeys: sa.ForeignKeys[table],
		})
	}

	sa.Logger.Infof("Described %d table(s) for query generation", len(description.Tables))
	return description, nil
}

// ColumnFromRow reads a column description from DESCRIBE, PRAGMA table_info
// or information_schema.columns output
func ColumnFromRow(row models.Row) (models.Column, bool) {
	name := firstText(row, "field", "column_name", "name")
	if name == "" {
		return models.Column{}, false
	}

	column := models.Column{
		Name:     name,
		DataType: firstText(row, "type", "data_type", "column_type"),
	}

	switch {
	case has(row, "null"):
		column.IsNullable = strings.EqualFold(lookup(row, "null").String(), "YES")
	case has(row, "is_nullable"):
		column.IsNullable = strings.EqualFold(lookup(row, "is_nullable").String(), "YES")
	case has(row, "notnull"):
		column.IsNullable = lookup(row, "notnull").String() == "0"
	default:
		column.IsNullable = true
	}

	switch {
	case has(row, "key"):
		column.ColumnKey = lookup(row, "key").String()
	case has(row, "column_key"):
		column.ColumnKey = lookup(row, "column_key").String()
	case has(row, "pk"):
		if pk := lookup(row, "pk").String(); pk != "" && pk != "0" {
			column.ColumnKey = "PRI"
		}
	}

	if comment := firstText(row, "column_comment", "comment"); comment != "" {
		column.Comment = comment
	}

	return column, true
}

// lookup finds a column ignoring case; MySQL 8 upper-cases information_schema names
func lookup(row models.Row, name string) models.Value {
	if row.Has(name) {
		return row.Get(name)
	}
	for _, col := range row.Columns() {
		if strings.EqualFold(col, name) {
			return row.Get(col)
		}
	}
	return models.Null()
}

func has(row models.Row, name string) bool {
	for _, col := range row.Columns() {
		if strings.EqualFold(col, name) {
			return true
		}
	}
	return false
}

func firstText(row models.Row, names ...string) string {
	for _, name := range names {
		if has(row, name) {
			if s := lookup(row, name).String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// LoadSchemaFile reads a schema description from a YAML file
func LoadSchemaFile(path string) (models.SchemaDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SchemaDescription{}, fmt.Errorf("failed to read schema file: %w", err)
	}

	var description models.SchemaDescription
	if err := yaml.Unmarshal(data, &description); err != nil {
		return models.SchemaDescription{}, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	if len(description.Tables) == 0 {
		return models.SchemaDescription{}, fmt.Errorf("schema file %s describes no tables", path)
	}
	return description, nil
}
