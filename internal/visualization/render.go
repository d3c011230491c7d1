package visualization

import (
	"bytes"
	"encoding/json"
	"html/template"
	"time"

	"github.com/vitebski/catchment-insights/pkg/models"
)

const defaultTitle = "Data Visualization"

var plotlyPage = template.Must(template.New("plotly").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <script src="https://cdn.plot.ly/plotly-2.26.0.min.js"></script>
    <style>
        body { margin: 20px; font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f8f9fa; }
        .container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        #plotDiv { width: 100%; height: {{.Height}}px; margin: 20px 0; }
        .info { color: #666; font-size: 14px; margin-top: 20px; padding: 15px; background: #f1f3f4; border-radius: 4px; }
        h1 { color: #333; border-bottom: 2px solid #4285f4; padding-bottom: 10px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div id="plotDiv"></div>
        <div class="info">
            <strong>Generated:</strong> {{.Generated}}<br>
            <strong>Data Points:</strong> {{.Points}}
        </div>
    </div>
    <script>
        const data = {{.Vars.data}};
        const layout = {{.Vars.layout}};
        const config = {{.Vars.config}};
        layout.font = { family: 'Segoe UI, Arial, sans-serif' };
        layout.plot_bgcolor = 'rgba(0,0,0,0)';
        layout.paper_bgcolor = 'rgba(0,0,0,0)';
        layout.margin = { l: 60, r: 30, t: 80, b: 60 };
        Plotly.newPlot('plotDiv', data, layout, config).catch(function (error) {
            document.getElementById('plotDiv').textContent = 'Error creating visualization: ' + error.message;
        });
    </script>
</body>
</html>
`))

var chartJSPage = template.Must(template.New("chartjs").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="utf-8">
    <script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.0/dist/chart.umd.min.js"></script>
    <style>
        body { margin: 20px; font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f8f9fa; }
        .container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; }
        h1 { color: #333; }
        .info { color: #666; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <canvas id="chart" width="{{.Width}}" height="{{.Height}}"></canvas>
        <div class="info">
            <strong>Generated:</strong> {{.Generated}}<br>
            <strong>Data Points:</strong> {{.Points}}
        </div>
    </div>
    <script>
        new Chart(document.getElementById('chart'), {{.Vars.config}});
    </script>
</body>
</html>
`))

var tablePage = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="utf-8">
    <style>
        table { border-collapse: collapse; width: 100%; margin: 20px 0; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; font-weight: bold; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        h1 { color: #333; text-align: center; }
        body { font-family: Arial, sans-serif; margin: 20px; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <table>
        <thead>
            <tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
        </thead>
        <tbody>
{{- range .Rows}}
            <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
        </tbody>
    </table>
</body>
</html>
`))

type chartPage struct {
	Title     string
	Width     int
	Height    int
	Points    int
	Generated string
	Vars      map[string]template.JS
}

func renderChartPage(tpl *template.Template, c Chart, vars map[string]any) ([]byte, error) {
	page := chartPage{
		Title:     c.Title,
		Width:     c.Width,
		Height:    c.Height,
		Points:    c.Points(),
		Generated: time.Now().Format("2006-01-02 15:04:05"),
		Vars:      make(map[string]template.JS, len(vars)),
	}
	if page.Title == "" {
		page.Title = defaultTitle
	}

	for name, v := range vars {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		// json.Marshal escapes <, > and & so the text is safe inside a script element
		page.Vars[name] = template.JS(encoded)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TableData is the plain shape of a table visualization
type TableData struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTableData renders every cell as text; nulls become empty cells
func NewTableData(rows []models.Row) TableData {
	columns := models.ColumnsOf(rows)
	data := TableData{Columns: columns, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = row.Get(col).String()
		}
		data.Rows = append(data.Rows, cells)
	}
	return data
}

func renderTablePage(title string, data TableData) ([]byte, error) {
	if title == "" {
		title = defaultTitle
	}
	var buf bytes.Buffer
	err := tablePage.Execute(&buf, struct {
		Title string
		TableData
	}{Title: title, TableData: data})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
