package visualization

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/profile"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// ChartType names a kind of chart
type ChartType string

const (
	Auto       ChartType = "auto"
	Bar        ChartType = "bar"
	Scatter    ChartType = "scatter"
	Pie        ChartType = "pie"
	Histogram  ChartType = "histogram"
	TimeSeries ChartType = "time_series"
	Table      ChartType = "table"
)

// histogram charts are preferred over bar charts above this many rows
const barRowLimit = 50

const unknownLabel = "Unknown"

// ParseChartType validates a requested chart type; empty means auto
func ParseChartType(s string) (ChartType, error) {
	switch t := ChartType(s); t {
	case "":
		return Auto, nil
	case Auto, Bar, Scatter, Pie, Histogram, TimeSeries, Table:
		return t, nil
	default:
		return "", apperrors.Newf(apperrors.Visualization, "Unsupported visualization type: %s", s)
	}
}

// SelectType picks a chart for the data. The rules are checked in order and
// depend only on the row count and the column kinds.
func SelectType(rows []models.Row, analysis profile.Analysis) ChartType {
	numeric := analysis.ColumnsOfKind(profile.Numeric)
	categorical := analysis.ColumnsOfKind(profile.Categorical)
	dates := analysis.ColumnsOfKind(profile.Date)

	switch {
	case len(rows) == 1:
		return Table
	case len(dates) > 0 && len(numeric) > 0:
		return TimeSeries
	case len(numeric) >= 2:
		return Scatter
	case len(categorical) > 0 && len(numeric) > 0:
		if len(rows) > barRowLimit {
			return Histogram
		}
		return Bar
	case len(categorical) > 0:
		return Pie
	case len(numeric) > 0:
		return Histogram
	default:
		return Table
	}
}

// Chart is the dialect-neutral shape of a chart. Category charts fill Labels
// and Values; point charts fill X and Y; time series fill Labels and Y.
type Chart struct {
	Type   ChartType
	Title  string
	XTitle string
	YTitle string
	Width  int
	Height int
	Labels []string
	Values []float64
	X      []float64
	Y      []float64
}

// Points returns the number of plotted data points
func (c Chart) Points() int {
	switch {
	case len(c.X) > 0:
		return len(c.X)
	case len(c.Labels) > 0:
		return len(c.Labels)
	default:
		return len(c.Values)
	}
}

// Shape builds the chart of the given type from the data
func Shape(rows []models.Row, analysis profile.Analysis, chartType ChartType, title string) (Chart, error) {
	switch chartType {
	case Bar:
		return barChart(rows, analysis, title), nil
	case Scatter:
		return scatterChart(rows, analysis, title), nil
	case Pie:
		return pieChart(rows, analysis, title), nil
	case Histogram:
		return histogramChart(rows, analysis, title), nil
	case TimeSeries:
		return timeSeriesChart(rows, analysis, title), nil
	default:
		return Chart{}, apperrors.Newf(apperrors.Visualization, "Unsupported visualization type: %s", chartType)
	}
}

func barChart(rows []models.Row, analysis profile.Analysis, title string) Chart {
	categoryCol, hasCategory := analysis.First(profile.Categorical)
	numericCol, hasNumeric := analysis.First(profile.Numeric)

	if !hasCategory || !hasNumeric {
		firstCol := ""
		if len(analysis.Columns) > 0 {
			firstCol = analysis.Columns[0]
		}
		labels, values := Aggregate(rows, firstCol, "")
		return Chart{Type: Bar, Title: title, XTitle: firstCol, YTitle: "Count", Labels: labels, Values: values}
	}

	labels, values := Aggregate(rows, categoryCol, numericCol)
	return Chart{Type: Bar, Title: title, XTitle: categoryCol, YTitle: numericCol, Labels: labels, Values: values}
}

func scatterChart(rows []models.Row, analysis profile.Analysis, title string) Chart {
	numeric := analysis.ColumnsOfKind(profile.Numeric)
	if len(numeric) == 0 && len(analysis.Columns) > 0 {
		numeric = analysis.Columns[:1]
	}
	if len(numeric) == 0 {
		return Chart{Type: Scatter, Title: title}
	}
	xCol := numeric[0]
	yCol := xCol
	if len(numeric) > 1 {
		yCol = numeric[1]
	}

	x := make([]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, row := range rows {
		x = append(x, profile.NumberOrZero(row.Get(xCol)))
		y = append(y, profile.NumberOrZero(row.Get(yCol)))
	}
	return Chart{Type: Scatter, Title: title, XTitle: xCol, YTitle: yCol, X: x, Y: y}
}

func pieChart(rows []models.Row, analysis profile.Analysis, title string) Chart {
	categoryCol, ok := analysis.First(profile.Categorical)
	if !ok && len(analysis.Columns) > 0 {
		categoryCol = analysis.Columns[0]
	}
	labels, values := Aggregate(rows, categoryCol, "")
	return Chart{Type: Pie, Title: title, XTitle: categoryCol, Labels: labels, Values: values}
}

func histogramChart(rows []models.Row, analysis profile.Analysis, title string) Chart {
	numericCol, ok := analysis.First(profile.Numeric)
	if !ok {
		return barChart(rows, analysis, title)
	}

	x := make([]float64, 0, len(rows))
	for _, row := range rows {
		x = append(x, profile.NumberOrZero(row.Get(numericCol)))
	}
	return Chart{Type: Histogram, Title: title, XTitle: numericCol, YTitle: "Frequency", X: x}
}

func timeSeriesChart(rows []models.Row, analysis profile.Analysis, title string) Chart {
	dateCol, hasDate := analysis.First(profile.Date)
	numericCol, hasNumeric := analysis.First(profile.Numeric)
	if !hasDate || !hasNumeric {
		return scatterChart(rows, analysis, title)
	}

	type point struct {
		label string
		at    float64
		value float64
	}
	points := make([]point, 0, len(rows))
	for _, row := range rows {
		p := point{label: row.Get(dateCol).String(), at: math.Inf(1), value: profile.NumberOrZero(row.Get(numericCol))}
		if t, ok := profile.ParseDate(row.Get(dateCol)); ok {
			p.at = float64(t.UnixNano())
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].at < points[j].at })

	chart := Chart{Type: TimeSeries, Title: title, XTitle: dateCol, YTitle: numericCol}
	for _, p := range points {
		chart.Labels = append(chart.Labels, p.label)
		chart.Y = append(chart.Y, p.value)
	}
	return chart
}

// Aggregate groups rows by a column. Without a value column each group's
// row count is returned; with one, the average of the group's numeric values
// (0 for a group without any). Groups keep first-seen order and null or empty
// keys are grouped as Unknown.
func Aggregate(rows []models.Row, groupCol, valueCol string) ([]string, []float64) {
	type group struct {
		count int
		sum   float64
		n     int
	}

	var labels []string
	groups := make(map[string]*group)

	for _, row := range rows {
		key := row.Get(groupCol).String()
		if key == "" {
			key = unknownLabel
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			labels = append(labels, key)
		}
		g.count++

		if valueCol != "" {
			if f, ok := profile.ParseNumber(row.Get(valueCol)); ok {
				g.sum += f
				g.n++
			}
		}
	}

	values := make([]float64, 0, len(labels))
	for _, label := range labels {
		g := groups[label]
		switch {
		case valueCol == "":
			values = append(values, float64(g.count))
		case g.n > 0:
			values = append(values, g.sum/float64(g.n))
		default:
			values = append(values, 0)
		}
	}
	return labels, values
}

// Bins splits values into equal-width buckets for dialects without a
// native histogram
func Bins(values []float64, count int) ([]string, []float64) {
	if len(values) == 0 || count <= 0 {
		return []string{}, []float64{}
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []string{formatNumber(lo)}, []float64{float64(len(values))}
	}

	width := (hi - lo) / float64(count)
	counts := make([]float64, count)
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= count {
			i = count - 1
		}
		counts[i]++
	}

	labels := make([]string, count)
	for i := range labels {
		labels[i] = fmt.Sprintf("%s-%s", formatNumber(lo+float64(i)*width), formatNumber(lo+float64(i+1)*width))
	}
	return labels, counts
}

func formatNumber(f float64) string {
	return models.Number(math.Round(f*100) / 100).String()
}
