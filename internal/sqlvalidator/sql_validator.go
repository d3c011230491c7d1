// Package sqlvalidator implements the pattern-based safety gate that every
// generated or user supplied query passes before it reaches a database.
//
// The checks are regular expressions and token counts, not a SQL grammar.
// Quotes, comments or LIMIT keywords inside string literals are counted like
// any other text, so adversarial literals can be misclassified.
package sqlvalidator

import (
	"regexp"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const (
	maxQueryLength      = 10000
	maxNestedSubqueries = 3
)

// dangerousPattern pairs a compiled expression with the source reported to users
type dangerousPattern struct {
	source string
	re     *regexp.Regexp
}

func insensitive(source string) dangerousPattern {
	return dangerousPattern{source: source, re: regexp.MustCompile("(?i)" + source)}
}

func sensitive(source string) dangerousPattern {
	return dangerousPattern{source: source, re: regexp.MustCompile(source)}
}

var dangerousPatterns = []dangerousPattern{
	// statement chaining
	insensitive(`;\s*drop\s+`),
	insensitive(`;\s*delete\s+`),
	insensitive(`;\s*update\s+`),
	insensitive(`;\s*insert\s+`),
	insensitive(`;\s*create\s+`),
	insensitive(`;\s*alter\s+`),
	insensitive(`;\s*truncate\s+`),
	insensitive(`union\s+select`),
	// comments
	sensitive(`--\s*$`),
	sensitive(`\/\*[\s\S]*?\*\/`),
	// command execution
	insensitive(`xp_cmdshell`),
	insensitive(`sp_executesql`),
	insensitive(`exec\s*\(`),
	insensitive(`execute\s*\(`),
	insensitive(`';\s*exec`),
	insensitive(`';\s*execute`),
	// file access
	insensitive(`load_file\s*\(`),
	insensitive(`into\s+outfile`),
	insensitive(`into\s+dumpfile`),
	// timing probes
	insensitive(`benchmark\s*\(`),
	insensitive(`sleep\s*\(`),
	insensitive(`pg_sleep\s*\(`),
	insensitive(`waitfor\s+delay`),
	// metadata probing
	insensitive(`information_schema`),
	insensitive(`mysql\.user`),
	insensitive(`pg_user`),
	insensitive(`sysobjects`),
	insensitive(`syscolumns`),
	insensitive(`msysaces`),
	insensitive(`msysqueries`),
	// injection idioms
	insensitive(`admin\s*'`),
	sensitive(`1=1`),
	insensitive(`'or'1'='1`),
	insensitive(`"or"1"="1`),
	insensitive(`'\s+or\s+'`),
	insensitive(`"\s+or\s+"`),
	insensitive(`concat\s*\(`),
	insensitive(`group_concat\s*\(`),
	insensitive(`@@version`),
	insensitive(`@@hostname`),
	insensitive(`user\s*\(\)`),
	insensitive(`database\s*\(\)`),
	insensitive(`version\s*\(\)`),
	insensitive(`current_user`),
	insensitive(`current_database`),
	insensitive(`getdate\s*\(\)`),
	insensitive(`rand\s*\(\)`),
}

var allowedKeywords = []string{
	"SELECT", "FROM", "WHERE", "JOIN", "INNER JOIN", "LEFT JOIN", "RIGHT JOIN",
	"FULL JOIN", "ON", "AS", "ORDER BY", "GROUP BY", "HAVING", "LIMIT",
	"DISTINCT", "COUNT", "SUM", "AVG", "MIN", "MAX", "AND", "OR", "NOT",
	"IN", "BETWEEN", "LIKE", "IS", "NULL", "DESC", "ASC", "CASE", "WHEN",
	"THEN", "ELSE", "END", "IF", "IFNULL", "COALESCE", "CONCAT", "SUBSTRING",
	"LENGTH", "UPPER", "LOWER", "TRIM", "CAST", "CONVERT", "DATE", "TIME",
	"DATETIME", "YEAR", "MONTH", "DAY", "HOUR", "MINUTE", "SECOND",
	"DATE_FORMAT", "STR_TO_DATE", "NOW", "CURDATE", "CURTIME",
}

var (
	nestedSelectRe   = regexp.MustCompile(`(?i)\(\s*select`)
	lineCommentRe    = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe   = regexp.MustCompile(`\/\*[\s\S]*?\*\/`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
	commaRe          = regexp.MustCompile(`\s*,\s*`)
	operatorRe       = regexp.MustCompile(`\s*(<=|>=|<>|!=|=|<|>)\s*`)
	keywordRe        = regexp.MustCompile(`(?i)\b(` + strings.Join(allowedKeywords, "|") + `)\b`)
	leadingKeywordRe = regexp.MustCompile(`^\s*([A-Za-z]+)`)
)

// Validator checks SQL strings against the deny-list and balance rules
type Validator struct {
	Logger *logrus.Logger
}

// NewValidator creates a new SQL validator
func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{Logger: logger}
}

// Validate checks a query and reports every violated rule
func (v *Validator) Validate(query string) models.ValidationResult {
	result := models.ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if query == "" {
		return fail(result, "Query must be a non-empty string")
	}

	cleanQuery := strings.TrimSpace(query)
	if cleanQuery == "" {
		return fail(result, "Query cannot be empty")
	}

	if !strings.HasPrefix(strings.ToLower(cleanQuery), "select") {
		return fail(result, "Only SELECT queries are allowed")
	}

	for _, pattern := range dangerousPatterns {
		if pattern.re.MatchString(cleanQuery) {
			result.Errors = append(result.Errors, "Potentially dangerous SQL pattern detected: "+pattern.source)
		}
	}

	semicolons := strings.Count(cleanQuery, ";")
	if semicolons > 1 {
		result.Errors = append(result.Errors, "Multiple statements not allowed")
	} else if semicolons == 1 && !strings.HasSuffix(cleanQuery, ";") {
		result.Errors = append(result.Errors, "Semicolon must only appear at the end of the query")
	}

	if strings.Count(cleanQuery, "'")%2 != 0 {
		result.Errors = append(result.Errors, "Unmatched single quotes detected")
	}
	if strings.Count(cleanQuery, `"`)%2 != 0 {
		result.Errors = append(result.Errors, "Unmatched double quotes detected")
	}
	if strings.Count(cleanQuery, "`")%2 != 0 {
		result.Errors = append(result.Errors, "Unmatched backticks detected")
	}

	if strings.Count(cleanQuery, "(") != strings.Count(cleanQuery, ")") {
		result.Errors = append(result.Errors, "Unmatched parentheses detected")
	}

	if len(cleanQuery) > maxQueryLength {
		result.Warnings = append(result.Warnings, "Query is very long and may impact performance")
	}

	if len(nestedSelectRe.FindAllStringIndex(cleanQuery, -1)) > maxNestedSubqueries {
		result.Warnings = append(result.Warnings, "Query has many nested subqueries which may impact performance")
	}

	result.IsValid = len(result.Errors) == 0
	if v.Logger != nil && !result.IsValid {
		v.Logger.Debugf("Query rejected with %d violation(s): %s", len(result.Errors), strings.Join(result.Errors, "; "))
	}

	return result
}

func fail(result models.ValidationResult, message string) models.ValidationResult {
	result.IsValid = false
	result.Errors = append(result.Errors, message)
	return result
}

// Sanitize strips comments, collapses whitespace and terminates the query with a semicolon
func (v *Validator) Sanitize(query string) string {
	sanitized := strings.TrimSpace(query)
	if sanitized == "" {
		return ""
	}

	sanitized = lineCommentRe.ReplaceAllString(sanitized, "")
	sanitized = blockCommentRe.ReplaceAllString(sanitized, "")
	sanitized = whitespaceRe.ReplaceAllString(sanitized, " ")

	if !strings.HasSuffix(sanitized, ";") {
		sanitized += ";"
	}

	return sanitized
}

// Format uppercases known keywords and normalizes spacing around commas and operators
func (v *Validator) Format(query string) string {
	formatted := strings.TrimSpace(query)
	if formatted == "" {
		return ""
	}

	formatted = keywordRe.ReplaceAllStringFunc(formatted, strings.ToUpper)
	formatted = commaRe.ReplaceAllString(formatted, ", ")
	formatted = operatorRe.ReplaceAllString(formatted, " $1 ")
	formatted = whitespaceRe.ReplaceAllString(formatted, " ")

	return strings.TrimSpace(formatted)
}

// NewQuery trims a SQL string and derives its command kind
func NewQuery(text string) models.Query {
	trimmed := strings.TrimSpace(text)
	return models.Query{Text: trimmed, Kind: CommandKind(trimmed)}
}

// CommandKind returns the statement kind of a query, such as SELECT or UPDATE.
// The SQL parser is consulted first; unparseable text falls back to the leading keyword.
func CommandKind(query string) string {
	stmt, err := sqlparser.Parse(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if err == nil {
		switch stmt.(type) {
		case *sqlparser.Select, *sqlparser.Union:
			return "SELECT"
		case *sqlparser.Insert:
			return "INSERT"
		case *sqlparser.Update:
			return "UPDATE"
		case *sqlparser.Delete:
			return "DELETE"
		}
	}

	match := leadingKeywordRe.FindStringSubmatch(query)
	if match == nil {
		return ""
	}
	return strings.ToUpper(match[1])
}
