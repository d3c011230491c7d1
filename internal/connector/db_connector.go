package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/pkg/models"
	_ "modernc.org/sqlite"
)

const (
	// DriverMySQL selects the MySQL driver
	DriverMySQL = "mysql"
	// DriverSQLite selects the embedded SQLite driver
	DriverSQLite = "sqlite"
)

// OpenFunc opens a database handle; tests replace it with sqlmock
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// DatabaseConnector opens one scoped connection per statement.
// Every call acquires a handle, runs exactly one statement and closes the
// handle again, even on error. There is no pooling across calls.
type DatabaseConnector struct {
	Driver   string
	Host     string
	User     string
	Password string
	Database string
	Port     string
	Path     string
	Timeout  time.Duration
	Logger   *logrus.Logger
	Open     OpenFunc
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = getEnvOrDefault("DB_HOST", "127.0.0.1")
	}
	if user == "" {
		user = getEnvOrDefault("DB_USER", "root")
	}
	if password == "" {
		password = getEnvOrDefault("DB_PASSWORD", "")
	}
	if database == "" {
		database = getEnvOrDefault("DB_NAME", "schools")
	}
	if port == "" {
		port = getEnvOrDefault("DB_PORT", "3306")
	}

	return &DatabaseConnector{
		Driver:   getEnvOrDefault("DB_DRIVER", DriverMySQL),
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Path:     getEnvOrDefault("DB_PATH", ""),
		Timeout:  time.Duration(GetEnvInt("QUERY_TIMEOUT_MS", 30000)) * time.Millisecond,
		Logger:   logger,
		Open:     sql.Open,
	}
}

// DSN builds the data source name for the configured driver
func (dc *DatabaseConnector) DSN() (string, error) {
	switch dc.Driver {
	case DriverSQLite:
		if dc.Path == "" {
			return "", fmt.Errorf("database path must be provided via DB_PATH when DB_DRIVER is sqlite")
		}
		return dc.Path, nil
	case DriverMySQL, "":
		if dc.Database == "" {
			return "", fmt.Errorf("database name must be provided either as an argument or as DB_NAME environment variable")
		}
		cfg := mysql.NewConfig()
		cfg.User = dc.User
		cfg.Passwd = dc.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(dc.Host, dc.Port)
		cfg.DBName = dc.Database
		cfg.ParseTime = true
		if dc.Timeout > 0 {
			cfg.Timeout = dc.Timeout
			cfg.ReadTimeout = dc.Timeout
		}
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", dc.Driver)
	}
}

func (dc *DatabaseConnector) driverName() string {
	if dc.Driver == "" {
		return DriverMySQL
	}
	return dc.Driver
}

// connect acquires a single-connection handle for one call
func (dc *DatabaseConnector) connect() (*sql.DB, error) {
	dsn, err := dc.DSN()
	if err != nil {
		return nil, err
	}

	open := dc.Open
	if open == nil {
		open = sql.Open
	}

	db, err := open(dc.driverName(), dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s database: %v", dc.driverName(), err)
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// release closes a scoped handle
func (dc *DatabaseConnector) release(db *sql.DB) {
	if err := db.Close(); err != nil {
		dc.Logger.Warnf("Error closing database connection: %v", err)
		return
	}
	dc.Logger.Debug("Database connection released")
}

// Ping opens a connection, verifies it and releases it
func (dc *DatabaseConnector) Ping(ctx context.Context) error {
	db, err := dc.connect()
	if err != nil {
		return err
	}
	defer dc.release(db)

	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.driverName(), err)
		return err
	}

	dc.Logger.Infof("Connected to %s database: %s", dc.driverName(), dc.target())
	return nil
}

func (dc *DatabaseConnector) target() string {
	if dc.driverName() == DriverSQLite {
		return dc.Path
	}
	return dc.Database
}

// ExecuteQuery executes a SQL query and returns the rows in column order
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error) {
	db, err := dc.connect()
	if err != nil {
		return nil, err
	}
	defer dc.release(db)

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	numericColumns := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			numericColumns[i] = isNumericType(ct.DatabaseTypeName())
		}
	}

	results := []models.Row{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		var row models.Row
		for i, col := range columns {
			row.Set(col, convertValue(values[i], numericColumns[i]))
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	db, err := dc.connect()
	if err != nil {
		return 0, err
	}
	defer dc.release(db)

	result, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing statement: %v", err)
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		dc.Logger.Errorf("Error getting affected rows: %v", err)
		return 0, err
	}

	return affected, nil
}

// ExecuteMany executes a SQL statement with multiple parameter sets in one transaction
func (dc *DatabaseConnector) ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error) {
	db, err := dc.connect()
	if err != nil {
		return 0, err
	}
	defer dc.release(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		dc.Logger.Errorf("Error preparing statement: %v", err)
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var totalAffected int64
	for _, params := range paramsList {
		result, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			dc.Logger.Errorf("Error executing batch statement: %v", err)
			tx.Rollback()
			return 0, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			dc.Logger.Errorf("Error getting affected rows: %v", err)
			tx.Rollback()
			return 0, err
		}

		totalAffected += affected
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		tx.Rollback()
		return 0, err
	}

	return totalAffected, nil
}

// convertValue maps a scanned driver value onto the row value space
func convertValue(val interface{}, numeric bool) models.Value {
	b, ok := val.([]byte)
	if !ok {
		return models.FromAny(val)
	}
	s := string(b)
	if numeric {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return models.Number(f)
		}
	}
	return models.String(s)
}

func isNumericType(name string) bool {
	switch strings.ToUpper(name) {
	case "INT", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT", "INTEGER",
		"UNSIGNED INT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED BIGINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL":
		return true
	}
	return false
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer value from an environment variable
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_$]+(\.[A-Za-z0-9_$]+)?$`)

// ValidIdentifier reports whether a table name is safe to splice into SQL
func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// TablesQuery returns the statement listing base tables for the driver
func (dc *DatabaseConnector) TablesQuery() string {
	if dc.driverName() == DriverSQLite {
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
	return "SHOW TABLES"
}

// DescribeQuery returns the statement describing a table's columns for the driver
func (dc *DatabaseConnector) DescribeQuery(table string) (string, error) {
	if !ValidIdentifier(table) {
		return "", fmt.Errorf("invalid table name: %s", table)
	}
	if dc.driverName() == DriverSQLite {
		return fmt.Sprintf("PRAGMA table_info(%s)", table), nil
	}
	return fmt.Sprintf("DESCRIBE %s", table), nil
}
