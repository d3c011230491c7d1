// Package decomposer splits a SELECT statement into the table, select list and
// trailing clauses expected by the remote query proxy.
//
// Parsing is regex based. It understands a single SELECT ... FROM with optional
// WHERE, GROUP BY, HAVING, ORDER BY and LIMIT clauses and nothing more.
package decomposer

import (
	"fmt"
	"regexp"
	"strings"
)

// Decomposition is a SELECT statement reduced to its parts
type Decomposition struct {
	Table      string   `json:"table"`
	SelectList string   `json:"select"`
	Clauses    []string `json:"conditions"`
}

// clauseRule locates one clause keyword and the keywords that end it
type clauseRule struct {
	label string
	start *regexp.Regexp
	stop  *regexp.Regexp
}

var (
	selectPrefixRe = regexp.MustCompile(`(?is)^select\s+`)
	fromRe         = regexp.MustCompile(`(?is)\s+from\s+`)
	tableRe        = regexp.MustCompile("(?is)^([`\\w.]+(?:\\s+as\\s+\\w+)?)")
	tableFallback  = regexp.MustCompile(`^(\S+)`)
	tableCleanRe   = regexp.MustCompile("[`;]")
	trailingRe     = regexp.MustCompile(`\s*;?\s*$`)
	limitRe        = regexp.MustCompile(`(?is)\blimit\s+(.+?)\s*;?\s*$`)
)

// clauses are listed in the order they are emitted
var clauses = []clauseRule{
	{
		label: "WHERE",
		start: regexp.MustCompile(`(?is)\bwhere\s+`),
		stop:  regexp.MustCompile(`(?is)\s+(?:group\s+by|order\s+by|limit|having)\s`),
	},
	{
		label: "GROUP BY",
		start: regexp.MustCompile(`(?is)\bgroup\s+by\s+`),
		stop:  regexp.MustCompile(`(?is)\s+(?:having|order\s+by|limit)\s`),
	},
	{
		label: "HAVING",
		start: regexp.MustCompile(`(?is)\bhaving\s+`),
		stop:  regexp.MustCompile(`(?is)\s+(?:order\s+by|limit)\s`),
	},
	{
		label: "ORDER BY",
		start: regexp.MustCompile(`(?is)\border\s+by\s+`),
		stop:  regexp.MustCompile(`(?is)\s+limit\s`),
	},
}

// Decompose parses a SELECT statement. The boolean is false when the text has
// no recognizable SELECT ... FROM shape.
func Decompose(query string) (Decomposition, bool) {
	cleanQuery := strings.TrimSpace(query)

	prefix := selectPrefixRe.FindStringIndex(cleanQuery)
	if prefix == nil {
		return Decomposition{}, false
	}
	rest := cleanQuery[prefix[1]:]

	from := fromRe.FindStringIndex(rest)
	if from == nil {
		return Decomposition{}, false
	}

	selectList := strings.TrimSpace(rest[:from[0]])
	if selectList == "" {
		selectList = "*"
	}

	afterFrom := rest[from[1]:]
	tableMatch := tableRe.FindStringSubmatch(afterFrom)
	if tableMatch == nil {
		tableMatch = tableFallback.FindStringSubmatch(afterFrom)
	}
	if tableMatch == nil {
		return Decomposition{}, false
	}
	table := tableCleanRe.ReplaceAllString(strings.TrimSpace(tableMatch[1]), "")
	if table == "" {
		return Decomposition{}, false
	}

	d := Decomposition{
		Table:      table,
		SelectList: selectList,
		Clauses:    []string{},
	}

	for _, rule := range clauses {
		if body := extractClause(cleanQuery, rule); body != "" {
			d.Clauses = append(d.Clauses, rule.label+" "+body)
		}
	}

	// The whole tail is kept so "LIMIT 10, 20" and "LIMIT 5 OFFSET 10" survive
	if m := limitRe.FindStringSubmatch(cleanQuery); m != nil {
		d.Clauses = append(d.Clauses, "LIMIT "+m[1])
	}

	return d, true
}

// extractClause returns the text after a clause keyword up to the next stop keyword
func extractClause(query string, rule clauseRule) string {
	loc := rule.start.FindStringIndex(query)
	if loc == nil {
		return ""
	}
	body := query[loc[1]:]

	if stop := rule.stop.FindStringIndex(body); stop != nil {
		body = body[:stop[0]]
	} else {
		body = trailingRe.ReplaceAllString(body, "")
	}

	return strings.TrimSpace(body)
}

// SQL rebuilds a statement from the decomposed parts
func (d Decomposition) SQL() string {
	if len(d.Clauses) == 0 {
		return fmt.Sprintf("SELECT %s FROM %s;", d.SelectList, d.Table)
	}
	return fmt.Sprintf("SELECT %s FROM %s %s;", d.SelectList, d.Table, strings.Join(d.Clauses, " "))
}
