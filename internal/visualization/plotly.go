package visualization

// PlotlyDialect renders Plotly traces and layouts
type PlotlyDialect struct{}

// Name implements Dialect
func (PlotlyDialect) Name() string { return LibraryPlotly }

// Payload implements Dialect
func (PlotlyDialect) Payload(c Chart) map[string]any {
	var trace map[string]any
	layout := map[string]any{
		"title":  c.Title,
		"width":  c.Width,
		"height": c.Height,
	}

	switch c.Type {
	case Bar:
		trace = map[string]any{
			"type":   "bar",
			"x":      c.Labels,
			"y":      c.Values,
			"marker": map[string]any{"color": markerColor},
		}
	case Scatter:
		trace = map[string]any{
			"type":   "scatter",
			"mode":   "markers",
			"x":      c.X,
			"y":      c.Y,
			"marker": map[string]any{"color": markerColor, "size": 8},
		}
	case Pie:
		trace = map[string]any{
			"type":         "pie",
			"labels":       c.Labels,
			"values":       c.Values,
			"textinfo":     "label+percent",
			"textposition": "outside",
		}
	case Histogram:
		trace = map[string]any{
			"type":    "histogram",
			"x":       c.X,
			"marker":  map[string]any{"color": markerColor},
			"opacity": 0.7,
		}
	case TimeSeries:
		trace = map[string]any{
			"type":   "scatter",
			"mode":   "lines+markers",
			"x":      c.Labels,
			"y":      c.Y,
			"line":   map[string]any{"color": markerColor},
			"marker": map[string]any{"size": 6},
		}
	}

	if c.Type != Pie {
		xaxis := map[string]any{"title": c.XTitle}
		if c.Type == TimeSeries {
			xaxis["type"] = "date"
		}
		layout["xaxis"] = xaxis
		layout["yaxis"] = map[string]any{"title": c.YTitle}
	}

	return map[string]any{
		"data":   []any{trace},
		"layout": layout,
	}
}

// Page implements Dialect
func (PlotlyDialect) Page(c Chart, payload map[string]any) ([]byte, error) {
	config := map[string]any{
		"responsive":             true,
		"displayModeBar":         true,
		"modeBarButtonsToRemove": []string{"pan2d", "lasso2d"},
	}
	return renderChartPage(plotlyPage, c, map[string]any{
		"data":   payload["data"],
		"layout": payload["layout"],
		"config": config,
	})
}
