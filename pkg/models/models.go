package models

// Query is a trimmed SQL string with its leading command kind
type Query struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// ValidationResult represents the outcome of checking a SQL string
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// QueryOptions controls a single query execution
type QueryOptions struct {
	MaxRows        int  `json:"maxRows"`
	TimeoutMs      int  `json:"timeoutMs"`
	ReturnMetadata bool `json:"returnMetadata"`
}

// DefaultQueryOptions returns the execution defaults
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		MaxRows:        10000,
		TimeoutMs:      30000,
		ReturnMetadata: true,
	}
}

// QueryMetadata describes the shape of a result set
type QueryMetadata struct {
	RowCount    int      `json:"rowCount"`
	Columns     []string `json:"columns"`
	Environment string   `json:"environment"`
}

// QueryResult represents the outcome of a query execution
type QueryResult struct {
	Success  bool           `json:"success"`
	Data     []Row          `json:"data"`
	RowCount int            `json:"rowCount"`
	Metadata *QueryMetadata `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// FailedQuery builds the failure shape of a QueryResult
func FailedQuery(message string) QueryResult {
	return QueryResult{Success: false, Data: []Row{}, RowCount: 0, Error: message}
}

// Column represents a database column with its properties
type Column struct {
	Name       string `json:"name" yaml:"name"`
	DataType   string `json:"type" yaml:"type"`
	IsNullable bool   `json:"nullable" yaml:"nullable"`
	ColumnKey  string `json:"key,omitempty" yaml:"key,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string `json:"table" yaml:"table"`
	Column           string `json:"column" yaml:"column"`
	ReferencedTable  string `json:"referencedTable" yaml:"referencedTable"`
	ReferencedColumn string `json:"referencedColumn" yaml:"referencedColumn"`
}

// TableInfo represents information about a table
type TableInfo struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

// SchemaDescription is the schema context handed to SQL generation
type SchemaDescription struct {
	Database string      `json:"database,omitempty" yaml:"database,omitempty"`
	Tables   []TableInfo `json:"tables" yaml:"tables"`
}

// ConnectionStatus is returned by connection checks
type ConnectionStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TablesResult lists the tables available to queries
type TablesResult struct {
	Success bool     `json:"success"`
	Tables  []string `json:"tables"`
	Error   string   `json:"error,omitempty"`
}

// TableSchemaResult describes one table's columns
type TableSchemaResult struct {
	Success bool   `json:"success"`
	Schema  []Row  `json:"schema"`
	Error   string `json:"error,omitempty"`
}
