package utils

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/analyzer"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// maxPrintedRows bounds the rows rendered in a terminal table
const maxPrintedRows = 50

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("CATCHMENT_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// RequiredVariables lists the environment variables the configured mode needs
func RequiredVariables() []string {
	if os.Getenv("CATCHMENT_ENV") != "dev" {
		return []string{"PROXY_BASE_URL", "GCP_PROJECT_ID"}
	}
	if os.Getenv("DB_DRIVER") == "sqlite" {
		return []string{"DB_PATH"}
	}
	return []string{"DB_HOST", "DB_USER", "DB_NAME"}
}

var secretVariables = map[string]bool{
	"DB_PASSWORD": true,
	"LLM_API_KEY": true,
}

var loggedPrefixes = []string{"CATCHMENT_", "DB_", "LLM_", "PROXY_", "GCP_", "QUERY_"}

// LoadEnvironmentVariables loads environment variables from .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	var missingVars []string
	for _, v := range RequiredVariables() {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}
	if os.Getenv("LLM_API_KEY") == "" {
		logger.Warning("LLM_API_KEY is not set; question answering and chat are unavailable")
	}

	if len(missingVars) > 0 {
		logger.Warningf("Missing required environment variables: %s", strings.Join(missingVars, ", "))
		logger.Info("These can be provided via environment variables or a .env file")
		return false
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		for _, env := range os.Environ() {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 || !hasAnyPrefix(parts[0], loggedPrefixes) {
				continue
			}
			if secretVariables[parts[0]] {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// RowsTable lays rows out as a header line followed by at most limit rows
func RowsTable(rows []models.Row, limit int) pterm.TableData {
	columns := models.ColumnsOf(rows)
	data := pterm.TableData{columns}
	for i, row := range rows {
		if limit > 0 && i >= limit {
			break
		}
		line := make([]string, len(columns))
		for j, col := range columns {
			v := row.Get(col)
			if v.IsNull() {
				line[j] = "NULL"
				continue
			}
			line[j] = v.String()
		}
		data = append(data, line)
	}
	return data
}

// PrintRows renders a result set as a terminal table
func PrintRows(rows []models.Row) {
	if len(rows) == 0 {
		pterm.Info.Println("No rows returned")
		return
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(RowsTable(rows, maxPrintedRows)).Render(); err != nil {
		pterm.Error.Printfln("Could not render rows: %v", err)
	}
	if len(rows) > maxPrintedRows {
		pterm.Info.Printfln("Showing %d of %d rows", maxPrintedRows, len(rows))
	}
}

// PrintValidation prints the outcome of a query validation
func PrintValidation(result models.ValidationResult) {
	if result.IsValid {
		pterm.Success.Println("Query is valid")
	} else {
		pterm.Error.Println("Query is invalid")
	}
	printList("Errors", result.Errors)
	printList("Warnings", result.Warnings)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	pterm.Println(pterm.Bold.Sprint(title + ":"))
	bullets := make([]pterm.BulletListItem, 0, len(items))
	for _, item := range items {
		bullets = append(bullets, pterm.BulletListItem{Level: 1, Text: item})
	}
	_ = pterm.DefaultBulletList.WithItems(bullets).Render()
}

// RunReport is what the terminal shows for one analysis run
type RunReport struct {
	Question      string
	SQLQuery      string
	RowCount      int
	Visualization string
	Summary       string
	Warnings      []string
	Errors        []string
	TotalMs       int64
}

// PrintRunReport prints the outcome of an analysis run
func PrintRunReport(report RunReport, rows []models.Row) {
	pterm.DefaultSection.Println("Question")
	pterm.Println(report.Question)

	if report.SQLQuery != "" {
		pterm.DefaultSection.Println("SQL")
		pterm.Println(report.SQLQuery)
	}

	if len(report.Errors) > 0 {
		pterm.DefaultSection.Println("Failed")
		printList("Errors", report.Errors)
		printList("Warnings", report.Warnings)
		return
	}

	pterm.DefaultSection.Printfln("Results (%d rows)", report.RowCount)
	PrintRows(rows)

	if report.Visualization != "" {
		pterm.Success.Printfln("Visualization saved: %s", report.Visualization)
	}
	if report.Summary != "" {
		pterm.DefaultSection.Println("Summary")
		pterm.Println(report.Summary)
	}
	printList("Warnings", report.Warnings)
	pterm.Info.Printfln("Completed in %dms", report.TotalMs)
}

// PrintSchemaAnalysis prints the tables, relationships and dependency order
func PrintSchemaAnalysis(schemaAnalyzer *analyzer.SchemaAnalyzer) {
	tables := schemaAnalyzer.Tables
	foreignKeys := schemaAnalyzer.ForeignKeys
	circularTables := schemaAnalyzer.GetCircularTables()
	orderedTables := schemaAnalyzer.GetTableOrder()

	pterm.DefaultSection.Println("Database schema")
	pterm.Printf("Total tables: %d\n", len(tables))
	pterm.Printf("Tables with foreign keys: %d\n", len(foreignKeys))
	pterm.Printf("Tables in circular dependencies: %d\n", len(circularTables))

	if len(circularTables) > 0 {
		var circular []string
		for table := range circularTables {
			circular = append(circular, table)
		}
		sort.Strings(circular)
		printList("Circular dependencies", circular)
	}

	data := pterm.TableData{{"#", "Table", "Columns", "References"}}
	for i, table := range orderedTables {
		var refs []string
		for _, fk := range foreignKeys[table] {
			refs = append(refs, fmt.Sprintf("%s -> %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			table,
			strconv.Itoa(len(schemaAnalyzer.TableColumns[table])),
			strings.Join(refs, ", "),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Querier runs read queries
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]models.Row, error)
}

// VerifyTableRows checks that a table holds at least minRecords rows
func VerifyTableRows(ctx context.Context, db Querier, table string, minRecords int, logger *logrus.Logger) (bool, int) {
	logger.Infof("Verifying that %s has at least %d record(s)...", table, minRecords)

	query := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table)
	result, err := db.ExecuteQuery(ctx, query)
	if err != nil {
		logger.Warningf("Could not verify record count for table %s: %v", table, err)
		return false, 0
	}
	if len(result) == 0 {
		logger.Warningf("No result returned for count query on table: %s", table)
		return false, 0
	}

	v := result[0].Get("count")
	count, ok := v.Float()
	if !ok {
		parsed, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			logger.Warningf("Could not parse count for table %s: %v", table, err)
			return false, 0
		}
		count = float64(parsed)
	}

	if int(count) < minRecords {
		logger.Warningf("Table %s has only %d/%d expected records", table, int(count), minRecords)
		return false, int(count)
	}
	logger.Infof("Verification successful: %s has %d record(s)", table, int(count))
	return true, int(count)
}
