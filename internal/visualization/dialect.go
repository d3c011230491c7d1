package visualization

import (
	"github.com/vitebski/catchment-insights/internal/apperrors"
)

const (
	// LibraryPlotly renders declarative trace/layout documents
	LibraryPlotly = "plotly"
	// LibraryChartJS renders dataset/options documents
	LibraryChartJS = "chartjs"
)

const markerColor = "rgb(55, 83, 109)"

// Dialect turns a shaped chart into a library-specific payload and page
type Dialect interface {
	Name() string
	Payload(c Chart) map[string]any
	Page(c Chart, payload map[string]any) ([]byte, error)
}

// Dialects returns the supported dialects keyed by library name
func Dialects() map[string]Dialect {
	return map[string]Dialect{
		LibraryPlotly:  PlotlyDialect{},
		LibraryChartJS: ChartJSDialect{},
	}
}

func lookupDialect(dialects map[string]Dialect, library string) (Dialect, error) {
	if library == "" {
		library = LibraryPlotly
	}
	d, ok := dialects[library]
	if !ok {
		return nil, apperrors.Newf(apperrors.Visualization, "Unsupported visualization library: %s", library)
	}
	return d, nil
}
