package visualization

// ChartJSDialect renders Chart.js configurations
type ChartJSDialect struct{}

const histogramBins = 10

var piePalette = []string{
	"rgb(55, 83, 109)",
	"rgb(26, 118, 255)",
	"rgb(255, 144, 14)",
	"rgb(44, 160, 101)",
	"rgb(214, 39, 40)",
	"rgb(148, 103, 189)",
	"rgb(140, 86, 75)",
	"rgb(227, 119, 194)",
	"rgb(127, 127, 127)",
	"rgb(188, 189, 34)",
}

// Name implements Dialect
func (ChartJSDialect) Name() string { return LibraryChartJS }

// Payload implements Dialect
func (ChartJSDialect) Payload(c Chart) map[string]any {
	var chartType string
	var labels []string
	var dataset map[string]any

	switch c.Type {
	case Bar:
		chartType = "bar"
		labels = c.Labels
		dataset = map[string]any{"label": c.YTitle, "data": c.Values, "backgroundColor": markerColor}
	case Histogram:
		chartType = "bar"
		var counts []float64
		labels, counts = Bins(c.X, histogramBins)
		dataset = map[string]any{"label": "Frequency", "data": counts, "backgroundColor": markerColor}
	case Pie:
		chartType = "pie"
		labels = c.Labels
		dataset = map[string]any{"data": c.Values, "backgroundColor": palette(len(c.Labels))}
	case Scatter:
		chartType = "scatter"
		points := make([]map[string]float64, 0, len(c.X))
		for i := range c.X {
			points = append(points, map[string]float64{"x": c.X[i], "y": c.Y[i]})
		}
		dataset = map[string]any{"label": c.YTitle, "data": points, "backgroundColor": markerColor}
	case TimeSeries:
		chartType = "line"
		labels = c.Labels
		dataset = map[string]any{"label": c.YTitle, "data": c.Y, "borderColor": markerColor, "fill": false}
	}

	options := map[string]any{
		"responsive": false,
		"plugins": map[string]any{
			"title": map[string]any{"display": c.Title != "", "text": c.Title},
		},
	}
	if c.Type != Pie {
		options["scales"] = map[string]any{
			"x": map[string]any{"title": map[string]any{"display": c.XTitle != "", "text": c.XTitle}},
			"y": map[string]any{"title": map[string]any{"display": c.YTitle != "", "text": c.YTitle}},
		}
	}

	data := map[string]any{"datasets": []any{dataset}}
	if labels != nil {
		data["labels"] = labels
	}

	return map[string]any{
		"type":    chartType,
		"data":    data,
		"options": options,
	}
}

// Page implements Dialect
func (ChartJSDialect) Page(c Chart, payload map[string]any) ([]byte, error) {
	return renderChartPage(chartJSPage, c, map[string]any{"config": payload})
}

func palette(n int) []string {
	colors := make([]string, n)
	for i := range colors {
		colors[i] = piePalette[i%len(piePalette)]
	}
	return colors
}
