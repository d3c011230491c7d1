// Package profile classifies result-set columns and computes per-column
// statistics. Chart selection and summaries both rely on it, so a column is
// typed the same way everywhere.
package profile

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitebski/catchment-insights/pkg/models"
)

// Kind is the inferred type of a column
type Kind string

const (
	Numeric     Kind = "numeric"
	Date        Kind = "date"
	Categorical Kind = "categorical"
	Text        Kind = "text"
	Empty       Kind = "empty"
)

const (
	// a column takes a type when at least 4 in 5 non-null values parse as it
	typedShareNum = 4
	typedShareDen = 5

	maxCategories   = 10
	categoricalRate = 0.1
	mostCommonLimit = 5
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	time.RFC1123,
	time.RFC1123Z,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ValueCount is one entry of a frequency table
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Stats holds the statistics relevant to a column's kind
type Stats struct {
	Count        int          `json:"count"`
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	Mean         *float64     `json:"mean,omitempty"`
	Median       *float64     `json:"median,omitempty"`
	Earliest     string       `json:"earliest,omitempty"`
	Latest       string       `json:"latest,omitempty"`
	UniqueValues int          `json:"uniqueValues,omitempty"`
	MostCommon   []ValueCount `json:"mostCommon,omitempty"`
}

// ColumnProfile is the derived description of one column
type ColumnProfile struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Stats Stats  `json:"stats"`
}

// Analysis is the typing of a whole result set
type Analysis struct {
	Columns []string
	Kinds   map[string]Kind
}

// Analyze types every column of the result set. Columns come from the first row.
func Analyze(rows []models.Row) Analysis {
	columns := models.ColumnsOf(rows)
	kinds := make(map[string]Kind, len(columns))
	for _, col := range columns {
		kinds[col] = Classify(rows, col)
	}
	return Analysis{Columns: columns, Kinds: kinds}
}

// ColumnsOfKind returns the columns of the given kind in column order
func (a Analysis) ColumnsOfKind(kind Kind) []string {
	var out []string
	for _, col := range a.Columns {
		if a.Kinds[col] == kind {
			out = append(out, col)
		}
	}
	return out
}

// First returns the first column of the given kind
func (a Analysis) First(kind Kind) (string, bool) {
	for _, col := range a.Columns {
		if a.Kinds[col] == kind {
			return col, true
		}
	}
	return "", false
}

// Classify infers the kind of one column
func Classify(rows []models.Row, column string) Kind {
	values := nonNull(rows, column)
	if len(values) == 0 {
		return Empty
	}

	numeric, dates := 0, 0
	for _, v := range values {
		if _, ok := ParseNumber(v); ok {
			numeric++
		}
		if _, ok := ParseDate(v); ok {
			dates++
		}
	}

	switch {
	case atLeastShare(numeric, len(values)):
		return Numeric
	case atLeastShare(dates, len(values)):
		return Date
	}

	unique := countUnique(values)
	if unique <= maxCategories || float64(unique)/float64(len(values)) < categoricalRate {
		return Categorical
	}
	return Text
}

func atLeastShare(n, total int) bool {
	return n*typedShareDen >= total*typedShareNum
}

func nonNull(rows []models.Row, column string) []models.Value {
	values := make([]models.Value, 0, len(rows))
	for _, row := range rows {
		v := row.Get(column)
		if !v.IsNull() {
			values = append(values, v)
		}
	}
	return values
}

func countUnique(values []models.Value) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v.Kind().String()+":"+v.String()] = struct{}{}
	}
	return len(seen)
}

// ParseNumber reads a finite number from a number or numeric string value
func ParseNumber(v models.Value) (float64, bool) {
	switch v.Kind() {
	case models.NumberKind:
		f, _ := v.Float()
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case models.StringKind:
		s, _ := v.Text()
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// NumberOrZero parses a value as a number, defaulting to zero
func NumberOrZero(v models.Value) float64 {
	f, ok := ParseNumber(v)
	if !ok {
		return 0
	}
	return f
}

// ParseDate reads a timestamp from a date value or a date-like string
func ParseDate(v models.Value) (time.Time, bool) {
	if v.Kind() != models.DateKind && v.Kind() != models.StringKind {
		return time.Time{}, false
	}
	s, _ := v.Text()
	return parseDateString(strings.TrimSpace(s))
}

func parseDateString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Profile computes the kind and statistics of every column
func Profile(rows []models.Row) []ColumnProfile {
	analysis := Analyze(rows)
	profiles := make([]ColumnProfile, 0, len(analysis.Columns))
	for _, col := range analysis.Columns {
		kind := analysis.Kinds[col]
		profiles = append(profiles, ColumnProfile{
			Name:  col,
			Kind:  kind,
			Stats: columnStats(nonNull(rows, col), kind),
		})
	}
	return profiles
}

func columnStats(values []models.Value, kind Kind) Stats {
	switch kind {
	case Numeric:
		return numericStats(values)
	case Date:
		return dateStats(values)
	case Empty:
		return Stats{}
	default:
		return frequencyStats(values)
	}
}

func numericStats(values []models.Value) Stats {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := ParseNumber(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return Stats{}
	}

	minV, maxV, sum := nums[0], nums[0], 0.0
	for _, n := range nums {
		minV = math.Min(minV, n)
		maxV = math.Max(maxV, n)
		sum += n
	}
	mean := sum / float64(len(nums))
	median := Median(nums)

	return Stats{
		Count:  len(nums),
		Min:    &minV,
		Max:    &maxV,
		Mean:   &mean,
		Median: &median,
	}
}

func dateStats(values []models.Value) Stats {
	var earliest, latest time.Time
	count := 0
	for _, v := range values {
		t, ok := ParseDate(v)
		if !ok {
			continue
		}
		if count == 0 || t.Before(earliest) {
			earliest = t
		}
		if count == 0 || t.After(latest) {
			latest = t
		}
		count++
	}
	if count == 0 {
		return Stats{}
	}
	return Stats{
		Count:    count,
		Earliest: earliest.UTC().Format(time.RFC3339),
		Latest:   latest.UTC().Format(time.RFC3339),
	}
}

func frequencyStats(values []models.Value) Stats {
	return Stats{
		Count:        len(values),
		UniqueValues: countUnique(values),
		MostCommon:   MostCommon(values, mostCommonLimit),
	}
}

// MostCommon returns the most frequent values, ties kept in first-seen order
func MostCommon(values []models.Value, limit int) []ValueCount {
	var counts []ValueCount
	index := make(map[string]int)
	for _, v := range values {
		key := v.String()
		if i, ok := index[key]; ok {
			counts[i].Count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, ValueCount{Value: key, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// Median returns the middle value, averaging the two middle values for even counts
func Median(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
