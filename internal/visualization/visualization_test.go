package visualization

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/profile"
	"github.com/vitebski/catchment-insights/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

func schools() []models.Row {
	return []models.Row{
		models.NewRow(models.Col("school_id", "SCH-001"), models.Col("school_name", "Maple Primary"), models.Col("enrollment_capacity", 350)),
		models.NewRow(models.Col("school_id", "SCH-002"), models.Col("school_name", "Cedar High"), models.Col("enrollment_capacity", 900)),
		models.NewRow(models.Col("school_id", "SCH-003"), models.Col("school_name", "Birch Academy"), models.Col("enrollment_capacity", 420)),
	}
}

func numericRows(n int) []models.Row {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.NewRow(models.Col("capacity", 100+i), models.Col("students", 80+i))
	}
	return rows
}

func categoryRows(n int) []models.Row {
	types := []string{"Primary", "Secondary", "Special"}
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.NewRow(models.Col("school_type", types[i%len(types)]), models.Col("capacity", 100+i))
	}
	return rows
}

func TestSelectType(t *testing.T) {
	tests := []struct {
		name string
		rows []models.Row
		want ChartType
	}{
		{"single row", schools()[:1], Table},
		{"date and number", []models.Row{
			models.NewRow(models.Col("month", "2024-01-01"), models.Col("enrolments", 10)),
			models.NewRow(models.Col("month", "2024-02-01"), models.Col("enrolments", 12)),
		}, TimeSeries},
		{"two numbers", numericRows(5), Scatter},
		{"category and number", schools(), Bar},
		{"category and number over fifty rows", categoryRows(51), Histogram},
		{"category only", []models.Row{
			models.NewRow(models.Col("school_type", "Primary")),
			models.NewRow(models.Col("school_type", "Secondary")),
		}, Pie},
		{"number only", []models.Row{
			models.NewRow(models.Col("capacity", 1)),
			models.NewRow(models.Col("capacity", 2)),
		}, Histogram},
		{"free text only", func() []models.Row {
			var rows []models.Row
			for i := 0; i < 12; i++ {
				rows = append(rows, models.NewRow(models.Col("note", fmt.Sprintf("note %d", i))))
			}
			return rows
		}(), Table},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := profile.Analyze(tt.rows)
			if got := SelectType(tt.rows, analysis); got != tt.want {
				t.Errorf("SelectType() = %s, want %s (kinds %v)", got, tt.want, analysis.Kinds)
			}
			// repeated selection over the same data is stable
			if again := SelectType(tt.rows, profile.Analyze(tt.rows)); again != tt.want {
				t.Errorf("Second SelectType() = %s, want %s", again, tt.want)
			}
		})
	}
}

func TestAggregateAverages(t *testing.T) {
	rows := []models.Row{
		models.NewRow(models.Col("district", "North"), models.Col("capacity", 100)),
		models.NewRow(models.Col("district", "South"), models.Col("capacity", 300)),
		models.NewRow(models.Col("district", "North"), models.Col("capacity", 200)),
		models.NewRow(models.Col("district", nil), models.Col("capacity", 50)),
		models.NewRow(models.Col("district", "East"), models.Col("capacity", nil)),
	}

	labels, values := Aggregate(rows, "district", "capacity")
	if diff := cmp.Diff([]string{"North", "South", "Unknown", "East"}, labels); diff != "" {
		t.Errorf("Unexpected labels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{150, 300, 50, 0}, values); diff != "" {
		t.Errorf("Unexpected averages (-want +got):\n%s", diff)
	}

	_, counts := Aggregate(rows, "district", "")
	if diff := cmp.Diff([]float64{2, 1, 1, 1}, counts); diff != "" {
		t.Errorf("Unexpected counts (-want +got):\n%s", diff)
	}
}

func TestBins(t *testing.T) {
	labels, counts := Bins([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}, 5)
	if len(labels) != 5 || len(counts) != 5 {
		t.Fatalf("Expected 5 bins, got %d/%d", len(labels), len(counts))
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total != 10 {
		t.Errorf("Expected every value in a bin, got %v", counts)
	}
	if labels[0] != "0-2" {
		t.Errorf("Unexpected first label %q", labels[0])
	}

	labels, counts = Bins([]float64{4, 4}, 5)
	if len(labels) != 1 || counts[0] != 2 {
		t.Errorf("Expected a single bin for constant values, got %v %v", labels, counts)
	}
}

func TestBuildEmptyData(t *testing.T) {
	b := NewBuilder(t.TempDir(), testLogger())
	_, err := b.Build(nil, Options{})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if err.Error() != "Data must be a non-empty array" || !apperrors.Is(err, apperrors.EmptyData) {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestBuildPlotlyHTML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "viz")
	b := NewBuilder(dir, testLogger())
	b.Store.now = func() time.Time { return time.UnixMilli(1700000000000) }

	viz, err := b.Build(schools(), Options{Title: "Capacity by school"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if viz.Type != Bar || viz.Library != LibraryPlotly || viz.Format != FormatHTML {
		t.Errorf("Unexpected visualization %+v", viz)
	}
	if viz.Filename != "plot_1700000000000.html" || viz.URL != "/visualizations/plot_1700000000000.html" {
		t.Errorf("Unexpected file reference %q %q", viz.Filename, viz.URL)
	}

	page, err := os.ReadFile(filepath.Join(dir, viz.Filename))
	if err != nil {
		t.Fatalf("Expected the page to be written: %v", err)
	}
	for _, want := range []string{"plotly-2.26.0.min.js", "Capacity by school", `"type":"bar"`, markerColor} {
		if !bytes.Contains(page, []byte(want)) {
			t.Errorf("Expected page to contain %q", want)
		}
	}

	layout := viz.Payload["layout"].(map[string]any)
	if layout["width"] != 800 || layout["height"] != 600 {
		t.Errorf("Expected default dimensions, got %v x %v", layout["width"], layout["height"])
	}
	if yaxis := layout["yaxis"].(map[string]any); yaxis["title"] != "enrollment_capacity" {
		t.Errorf("Unexpected y axis %v", yaxis)
	}
}

func TestBuildJSONDoesNotStore(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, testLogger())

	viz, err := b.Build(schools(), Options{Format: FormatJSON, Library: LibraryChartJS, Type: "pie"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if viz.Filename != "" || viz.URL != "" {
		t.Errorf("Expected nothing stored, got %q", viz.Filename)
	}
	if viz.Payload["type"] != "pie" {
		t.Errorf("Unexpected chart.js type %v", viz.Payload["type"])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected an empty directory, got %d entries", len(entries))
	}
}

func TestBuildChartJSPNG(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, testLogger())

	for _, chartType := range []string{"bar", "pie", "scatter", "histogram", "time_series"} {
		viz, err := b.Build(schools(), Options{Library: LibraryChartJS, Format: FormatPNG, Type: chartType, Width: 320, Height: 240})
		if err != nil {
			t.Fatalf("Unexpected error for %s: %v", chartType, err)
		}
		if !strings.HasPrefix(viz.Filename, "chart_") || !strings.HasSuffix(viz.Filename, ".png") {
			t.Errorf("Unexpected filename %q", viz.Filename)
		}
		image, err := os.ReadFile(filepath.Join(dir, viz.Filename))
		if err != nil {
			t.Fatalf("Expected the image to be written: %v", err)
		}
		if !bytes.HasPrefix(image, []byte("\x89PNG")) {
			t.Errorf("Expected a PNG file for %s", chartType)
		}
	}

	if _, err := b.Build(schools(), Options{Format: FormatPNG}); !apperrors.Is(err, apperrors.InvalidInput) {
		t.Errorf("Expected png with plotly to be rejected, got %v", err)
	}
}

func TestBuildRejectsUnknownOptions(t *testing.T) {
	b := NewBuilder(t.TempDir(), testLogger())

	tests := []struct {
		opts Options
		want string
	}{
		{Options{Type: "radar"}, "Unsupported visualization type: radar"},
		{Options{Format: "svg"}, "Unsupported format: svg"},
		{Options{Library: "d3"}, "Unsupported visualization library: d3"},
	}
	for _, tt := range tests {
		_, err := b.Build(schools(), tt.opts)
		if err == nil || err.Error() != tt.want {
			t.Errorf("Build(%+v) error = %v, want %q", tt.opts, err, tt.want)
		}
	}
}

func TestBuildTableEscapesCells(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, testLogger())

	rows := []models.Row{models.NewRow(models.Col("school_name", "<script>alert(1)</script>"), models.Col("capacity", nil))}
	viz, err := b.Build(rows, Options{Filename: "../escape.html"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if viz.Type != Table || viz.Filename != "escape.html" {
		t.Errorf("Unexpected visualization %+v", viz)
	}

	page, err := os.ReadFile(filepath.Join(dir, "escape.html"))
	if err != nil {
		t.Fatalf("Expected the table page in the store directory: %v", err)
	}
	if bytes.Contains(page, []byte("<script>alert(1)</script>")) {
		t.Error("Expected table cells to be escaped")
	}
	if !bytes.Contains(page, []byte("&lt;script&gt;")) {
		t.Error("Expected escaped markup in the table")
	}
}

func TestBuildForcesRenderedExtension(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, testLogger())

	tests := []struct {
		opts Options
		want string
	}{
		{Options{Filename: "enrollment-report"}, "enrollment-report.html"},
		{Options{Filename: "capacity.png"}, "capacity.html"},
		{Options{Filename: "q3.summary"}, "q3.summary.html"},
		{Options{Filename: "Report.HTML"}, "Report.HTML"},
		{Options{Filename: "chart.html", Library: LibraryChartJS, Format: FormatPNG}, "chart.png"},
	}

	for _, tt := range tests {
		viz, err := b.Build(schools(), tt.opts)
		if err != nil {
			t.Fatalf("Unexpected error for %q: %v", tt.opts.Filename, err)
		}
		if viz.Filename != tt.want || viz.URL != URL(tt.want) {
			t.Errorf("Build(%q) stored %q at %q, want %q", tt.opts.Filename, viz.Filename, viz.URL, tt.want)
		}
	}

	entries, err := b.Store.List()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	listed := map[string]bool{}
	for _, e := range entries {
		listed[e.Filename] = true
	}
	for _, tt := range tests {
		if !listed[tt.want] {
			t.Errorf("Expected %q in the listing, got %v", tt.want, listed)
		}
	}

	image, err := os.ReadFile(filepath.Join(dir, "chart.png"))
	if err != nil || !bytes.HasPrefix(image, []byte("\x89PNG")) {
		t.Errorf("Expected chart.png to hold the PNG image, err %v", err)
	}
}

func TestStoreListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())

	names := []string{"old.html", "mid.png", "new.jpeg"}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range names {
		if _, err := store.Save(name, "", "", []byte("x")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		mtime := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(filepath.Join(dir, name), mtime, mtime); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Filename)
	}
	if diff := cmp.Diff([]string{"new.jpeg", "mid.png", "old.html"}, got); diff != "" {
		t.Errorf("Unexpected listing (-want +got):\n%s", diff)
	}
	if entries[0].URL != "/visualizations/new.jpeg" {
		t.Errorf("Unexpected URL %q", entries[0].URL)
	}

	if !store.Delete("sub/../mid.png") {
		t.Error("Expected the first delete to succeed")
	}
	if store.Delete("mid.png") {
		t.Error("Expected deleting a missing file to report false")
	}
	if store.Delete("..") {
		t.Error("Expected a parent reference to be refused")
	}
}

func TestStoreListMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"), testLogger())
	entries, err := store.List()
	if err != nil || len(entries) != 0 {
		t.Errorf("Expected an empty listing, got %v, %v", entries, err)
	}
}

func TestStoreTimestampCollision(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger())
	store.now = func() time.Time { return time.UnixMilli(42) }

	first, _ := store.Save("", "plot", ".html", []byte("a"))
	second, _ := store.Save("", "plot", ".html", []byte("b"))
	if first != "plot_42.html" || second != "plot_43.html" {
		t.Errorf("Unexpected names %q and %q", first, second)
	}
}
