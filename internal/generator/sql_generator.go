// Package generator turns natural-language questions into candidate SQL.
//
// The output is not validated here; callers must run it through the SQL
// validator before executing it.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/llm"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const promptTemplate = `
You are an expert SQL query generator. Your task is to convert natural language text into valid MySQL SQL queries, for visualizing as a graph.

%sInstructions:
1. Generate a valid MySQL query based on the user's natural language request
2. Use proper MySQL syntax and conventions
3. Include appropriate WHERE clauses, JOINs, and other SQL constructs as needed
4. Return ONLY the SQL query without explanations or markdown formatting
5. Ensure the query is safe and follows best practices

User Request: %s

SQL Query:`

// SQLGenerator asks the completion service for a single SQL statement
type SQLGenerator struct {
	Completer llm.Completer
	Model     string
	Logger    *logrus.Logger
}

// NewSQLGenerator creates a new SQL generator
func NewSQLGenerator(completer llm.Completer, modelName string, logger *logrus.Logger) *SQLGenerator {
	return &SQLGenerator{
		Completer: completer,
		Model:     modelName,
		Logger:    logger,
	}
}

// BuildPrompt renders the generation prompt, embedding the schema as JSON when given
func BuildPrompt(text string, schema *models.SchemaDescription) (string, error) {
	schemaContext := ""
	if schema != nil {
		encoded, err := json.MarshalIndent(schema, "", " ")
		if err != nil {
			return "", err
		}
		schemaContext = fmt.Sprintf("Database Schema:\n%s\n\n", encoded)
	}
	return fmt.Sprintf(promptTemplate, schemaContext, text), nil
}

// Generate returns the trimmed completion for a question. There are no
// retries; any completion failure or empty answer is a generation error.
func (g *SQLGenerator) Generate(ctx context.Context, text string, schema *models.SchemaDescription) (string, error) {
	prompt, err := BuildPrompt(text, schema)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Generation, "Failed to generate SQL query", err)
	}

	g.Logger.Debugf("SQL generation prompt:\n%s", prompt)

	completion, err := g.Completer.Complete(ctx, prompt, llm.Options{Model: g.Model, Temperature: 0})
	if err != nil {
		g.Logger.Errorf("Error generating SQL: %v", err)
		return "", apperrors.Wrap(apperrors.Generation, "Failed to generate SQL query", err)
	}

	sqlQuery := strings.TrimSpace(llm.StripCodeFences(completion))
	if sqlQuery == "" {
		return "", apperrors.New(apperrors.Generation, "Failed to generate SQL query: empty completion")
	}

	g.Logger.Infof("Generated SQL: %s", sqlQuery)
	return sqlQuery, nil
}
