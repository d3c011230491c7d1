package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/pipeline"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// maxToolRows bounds the rows echoed back to the chat model
const maxToolRows = 20

// Analyst answers questions with the analysis pipeline
type Analyst interface {
	ProcessQuery(ctx context.Context, userInput string, opts pipeline.Options) pipeline.Response
}

// QueryTool runs queryDatabase calls through the analysis pipeline
type QueryTool struct {
	Analyst Analyst
	Logger  *logrus.Logger
}

// NewQueryTool creates a query tool
func NewQueryTool(analyst Analyst, logger *logrus.Logger) *QueryTool {
	return &QueryTool{Analyst: analyst, Logger: logger}
}

type queryArgs struct {
	Question string `json:"question"`
}

type queryToolResult struct {
	Success   bool         `json:"success"`
	SQLQuery  string       `json:"sqlQuery,omitempty"`
	RowCount  int          `json:"rowCount"`
	Rows      []models.Row `json:"rows,omitempty"`
	Truncated bool         `json:"truncated,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Execute implements ToolExecutor
func (q *QueryTool) Execute(ctx context.Context, name ToolName, arguments string) (string, error) {
	if name != QueryDatabase {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	var args queryArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if strings.TrimSpace(args.Question) == "" {
		return "", fmt.Errorf("question is required")
	}

	opts := pipeline.DefaultOptions()
	opts.IncludeVisualization = false

	q.Logger.Infof("Chat agent querying database: %s", args.Question)
	resp := q.Analyst.ProcessQuery(ctx, args.Question, opts)

	result := queryToolResult{
		Success:  resp.Success,
		SQLQuery: resp.Result.SQLQuery,
		RowCount: resp.Result.RowCount,
		Rows:     resp.Result.Data,
		Error:    resp.Error,
	}
	if len(result.Rows) > maxToolRows {
		result.Rows = result.Rows[:maxToolRows]
		result.Truncated = true
	}
	if resp.Result.Summary != nil {
		result.Summary = resp.Result.Summary.Text
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
