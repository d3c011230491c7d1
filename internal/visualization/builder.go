// Package visualization picks a chart for a result set, shapes it for Plotly
// or Chart.js and stores the rendered page or image.
//
// Column typing comes from the profile package so charts and summaries agree
// on what a column is. Category charts average the paired numeric column per
// group; they never sum it.
package visualization

import (
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/profile"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const (
	defaultWidth  = 800
	defaultHeight = 600
)

const (
	// FormatHTML stores a standalone page
	FormatHTML = "html"
	// FormatJSON returns the payload without storing anything
	FormatJSON = "json"
	// FormatPNG stores a raster image; Chart.js dialect only
	FormatPNG = "png"
)

// Options controls how a visualization is built
type Options struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Library  string `json:"library,omitempty"`
	Format   string `json:"format,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Visualization is the outcome of a build
type Visualization struct {
	Type     ChartType      `json:"type"`
	Library  string         `json:"library"`
	Format   string         `json:"format"`
	Title    string         `json:"title"`
	Filename string         `json:"filename,omitempty"`
	URL      string         `json:"url,omitempty"`
	Payload  map[string]any `json:"payload"`
}

// Builder builds and stores visualizations
type Builder struct {
	Store    *Store
	Dialects map[string]Dialect
	Logger   *logrus.Logger
}

// NewBuilder creates a builder writing to dir
func NewBuilder(dir string, logger *logrus.Logger) *Builder {
	return &Builder{
		Store:    NewStore(dir, logger),
		Dialects: Dialects(),
		Logger:   logger,
	}
}

// Build creates a visualization for the rows
func (b *Builder) Build(rows []models.Row, opts Options) (*Visualization, error) {
	if len(rows) == 0 {
		return nil, apperrors.New(apperrors.EmptyData, "Data must be a non-empty array")
	}

	requested, err := ParseChartType(opts.Type)
	if err != nil {
		return nil, err
	}
	format := opts.Format
	if format == "" {
		format = FormatHTML
	}
	if format != FormatHTML && format != FormatJSON && format != FormatPNG {
		return nil, apperrors.Newf(apperrors.Visualization, "Unsupported format: %s", format)
	}
	dialect, err := lookupDialect(b.Dialects, opts.Library)
	if err != nil {
		return nil, err
	}
	if format == FormatPNG && dialect.Name() != LibraryChartJS {
		return nil, apperrors.New(apperrors.InvalidInput, "png format requires the chartjs library")
	}

	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	analysis := profile.Analyze(rows)
	chartType := requested
	if chartType == Auto {
		chartType = SelectType(rows, analysis)
	}
	b.Logger.Debugf("Building %s visualization over %d row(s)", chartType, len(rows))

	viz := &Visualization{
		Type:    chartType,
		Library: dialect.Name(),
		Format:  format,
		Title:   title,
	}

	if chartType == Table {
		return b.buildTable(viz, rows, opts.Filename)
	}

	chart, err := Shape(rows, analysis, chartType, title)
	if err != nil {
		return nil, err
	}
	chart.Width = width
	chart.Height = height
	// a fallback shape may have changed the chart type
	viz.Type = chart.Type
	viz.Payload = dialect.Payload(chart)

	switch format {
	case FormatJSON:
		return viz, nil
	case FormatPNG:
		image, err := Rasterize(chart)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Visualization, "Failed to rasterize chart", err)
		}
		return b.store(viz, opts.Filename, "chart", ".png", image)
	default:
		page, err := dialect.Page(chart, viz.Payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Visualization, "Failed to render chart", err)
		}
		return b.store(viz, opts.Filename, "plot", ".html", page)
	}
}

func (b *Builder) buildTable(viz *Visualization, rows []models.Row, filename string) (*Visualization, error) {
	data := NewTableData(rows)
	viz.Payload = map[string]any{"columns": data.Columns, "rows": data.Rows}

	if viz.Format != FormatHTML {
		viz.Format = FormatJSON
		return viz, nil
	}

	page, err := renderTablePage(viz.Title, data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Visualization, "Failed to render table", err)
	}
	return b.store(viz, filename, "table", ".html", page)
}

func (b *Builder) store(viz *Visualization, filename, prefix, ext string, content []byte) (*Visualization, error) {
	name, err := b.Store.Save(filename, prefix, ext, content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Visualization, "Failed to store visualization", err)
	}
	viz.Filename = name
	viz.URL = URL(name)
	return viz, nil
}

// List returns the stored visualizations, newest first
func (b *Builder) List() ([]Entry, error) {
	return b.Store.List()
}

// Delete removes a stored visualization
func (b *Builder) Delete(filename string) bool {
	return b.Store.Delete(filename)
}
