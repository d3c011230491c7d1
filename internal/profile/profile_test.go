package profile

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vitebski/catchment-insights/pkg/models"
)

func schoolRows() []models.Row {
	return []models.Row{
		models.NewRow(models.Col("school_id", "SCH-001"), models.Col("school_name", "Maple Elementary"), models.Col("enrollment_capacity", 350), models.Col("opened_on", "2001-09-01")),
		models.NewRow(models.Col("school_id", "SCH-002"), models.Col("school_name", "Cedar Secondary"), models.Col("enrollment_capacity", "900"), models.Col("opened_on", "1998-09-01")),
		models.NewRow(models.Col("school_id", "SCH-003"), models.Col("school_name", "Birch Middle"), models.Col("enrollment_capacity", 610.5), models.Col("opened_on", nil)),
	}
}

func TestAnalyze(t *testing.T) {
	analysis := Analyze(schoolRows())

	wantColumns := []string{"school_id", "school_name", "enrollment_capacity", "opened_on"}
	if diff := cmp.Diff(wantColumns, analysis.Columns); diff != "" {
		t.Errorf("Unexpected columns (-want +got):\n%s", diff)
	}

	wantKinds := map[string]Kind{
		"school_id":           Categorical,
		"school_name":         Categorical,
		"enrollment_capacity": Numeric,
		"opened_on":           Date,
	}
	if diff := cmp.Diff(wantKinds, analysis.Kinds); diff != "" {
		t.Errorf("Unexpected kinds (-want +got):\n%s", diff)
	}

	if col, ok := analysis.First(Numeric); !ok || col != "enrollment_capacity" {
		t.Errorf("Expected enrollment_capacity as first numeric column, got %q", col)
	}
	if _, ok := analysis.First(Text); ok {
		t.Error("Expected no text column")
	}
}

func TestClassifyThresholds(t *testing.T) {
	// 4 of 5 numeric is enough
	rows := []models.Row{
		models.NewRow(models.Col("v", 1)),
		models.NewRow(models.Col("v", 2)),
		models.NewRow(models.Col("v", "3")),
		models.NewRow(models.Col("v", 4.5)),
		models.NewRow(models.Col("v", "n/a")),
	}
	if kind := Classify(rows, "v"); kind != Numeric {
		t.Errorf("Expected numeric, got %s", kind)
	}

	// 3 of 5 is not
	rows[3] = models.NewRow(models.Col("v", "unknown"))
	if kind := Classify(rows, "v"); kind != Categorical {
		t.Errorf("Expected categorical, got %s", kind)
	}

	// nulls are ignored
	rows = []models.Row{
		models.NewRow(models.Col("v", nil)),
		models.NewRow(models.Col("v", nil)),
		models.NewRow(models.Col("v", 7)),
	}
	if kind := Classify(rows, "v"); kind != Numeric {
		t.Errorf("Expected numeric, got %s", kind)
	}

	rows = []models.Row{models.NewRow(models.Col("v", nil))}
	if kind := Classify(rows, "v"); kind != Empty {
		t.Errorf("Expected empty, got %s", kind)
	}
}

func TestClassifyTextAndCategorical(t *testing.T) {
	var rows []models.Row
	for i := 0; i < 20; i++ {
		rows = append(rows, models.NewRow(
			models.Col("name", fmt.Sprintf("School %c", 'A'+i)),
			models.Col("district", fmt.Sprintf("District %d", i%3)),
		))
	}

	if kind := Classify(rows, "name"); kind != Text {
		t.Errorf("Expected text for 20 distinct names, got %s", kind)
	}
	if kind := Classify(rows, "district"); kind != Categorical {
		t.Errorf("Expected categorical for 3 districts, got %s", kind)
	}

	// many distinct values but a low distinct ratio still counts as categorical
	rows = nil
	for i := 0; i < 300; i++ {
		rows = append(rows, models.NewRow(models.Col("zone", fmt.Sprintf("Z%d", i%20))))
	}
	if kind := Classify(rows, "zone"); kind != Categorical {
		t.Errorf("Expected categorical for low distinct ratio, got %s", kind)
	}
}

func TestProfile(t *testing.T) {
	profiles := Profile(schoolRows())
	if len(profiles) != 4 {
		t.Fatalf("Expected 4 profiles, got %d", len(profiles))
	}

	capacity := profiles[2]
	if capacity.Kind != Numeric || capacity.Stats.Count != 3 {
		t.Fatalf("Unexpected capacity profile: %+v", capacity)
	}
	if *capacity.Stats.Min != 350 || *capacity.Stats.Max != 900 {
		t.Errorf("Unexpected min/max: %v/%v", *capacity.Stats.Min, *capacity.Stats.Max)
	}
	if *capacity.Stats.Median != 610.5 {
		t.Errorf("Expected median 610.5, got %v", *capacity.Stats.Median)
	}
	if *capacity.Stats.Mean != (350+900+610.5)/3 {
		t.Errorf("Unexpected mean %v", *capacity.Stats.Mean)
	}

	opened := profiles[3]
	if opened.Kind != Date || opened.Stats.Earliest != "1998-09-01T00:00:00Z" || opened.Stats.Latest != "2001-09-01T00:00:00Z" {
		t.Errorf("Unexpected date profile: %+v", opened)
	}

	names := profiles[1]
	if names.Stats.UniqueValues != 3 || len(names.Stats.MostCommon) != 3 {
		t.Errorf("Unexpected categorical profile: %+v", names)
	}
}

func TestMostCommon(t *testing.T) {
	values := []models.Value{
		models.String("b"), models.String("a"), models.String("b"),
		models.String("c"), models.String("a"), models.String("b"),
		models.String("d"), models.String("e"), models.String("f"),
	}
	got := MostCommon(values, 5)
	want := []ValueCount{
		{Value: "b", Count: 3},
		{Value: "a", Count: 2},
		{Value: "c", Count: 1},
		{Value: "d", Count: 1},
		{Value: "e", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected frequencies (-want +got):\n%s", diff)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{}, 0},
	}
	for _, tt := range tests {
		if got := Median(tt.in); got != tt.want {
			t.Errorf("Median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   models.Value
		want float64
		ok   bool
	}{
		{models.Number(4), 4, true},
		{models.String(" 12.5 "), 12.5, true},
		{models.String("12abc"), 0, false},
		{models.String(""), 0, false},
		{models.String("Inf"), 0, false},
		{models.Bool(true), 0, false},
		{models.Null(), 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseNumber(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
