package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/llm"
	"github.com/vitebski/catchment-insights/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

type stubCompleter struct {
	reply  string
	err    error
	prompt string
	opts   llm.Options
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	s.prompt = prompt
	s.opts = opts
	return s.reply, s.err
}

func TestGenerate(t *testing.T) {
	completer := &stubCompleter{reply: "  SELECT * FROM schools LIMIT 10;\n"}
	g := NewSQLGenerator(completer, "gpt-4o", testLogger())

	schema := &models.SchemaDescription{Tables: []models.TableInfo{{
		Name:    "schools",
		Columns: []models.Column{{Name: "school_id", DataType: "int", ColumnKey: "PRI"}},
	}}}

	got, err := g.Generate(context.Background(), "show all schools", schema)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "SELECT * FROM schools LIMIT 10;" {
		t.Errorf("Unexpected SQL %q", got)
	}

	if completer.opts.Temperature != 0 || completer.opts.Model != "gpt-4o" {
		t.Errorf("Unexpected completion options %+v", completer.opts)
	}
	if !strings.Contains(completer.prompt, "User Request: show all schools") {
		t.Errorf("Expected the question in the prompt:\n%s", completer.prompt)
	}
	if !strings.Contains(completer.prompt, "Database Schema:") || !strings.Contains(completer.prompt, `"school_id"`) {
		t.Errorf("Expected the schema in the prompt:\n%s", completer.prompt)
	}
}

func TestGenerateWithoutSchema(t *testing.T) {
	completer := &stubCompleter{reply: "```sql\nSELECT COUNT(*) FROM schools\n```"}
	g := NewSQLGenerator(completer, "", testLogger())

	got, err := g.Generate(context.Background(), "how many schools", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "SELECT COUNT(*) FROM schools" {
		t.Errorf("Unexpected SQL %q", got)
	}
	if strings.Contains(completer.prompt, "Database Schema:") {
		t.Error("Expected no schema section without a schema")
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name      string
		completer *stubCompleter
	}{
		{"completion error", &stubCompleter{err: errors.New("503 overloaded")}},
		{"empty completion", &stubCompleter{reply: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSQLGenerator(tt.completer, "", testLogger())
			_, err := g.Generate(context.Background(), "anything", nil)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !apperrors.Is(err, apperrors.Generation) {
				t.Errorf("Expected a generation error, got %v", err)
			}
			if !strings.HasPrefix(err.Error(), "Failed to generate SQL query") {
				t.Errorf("Unexpected message %q", err.Error())
			}
		})
	}
}
