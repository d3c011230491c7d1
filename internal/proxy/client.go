// Package proxy talks to the remote query proxy that fronts the cloud dataset.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/decomposer"
	"github.com/vitebski/catchment-insights/pkg/models"
)

// queryRequest is the body of POST /query
type queryRequest struct {
	Fun        string   `json:"fun"`
	ProjectID  string   `json:"projectId"`
	DatasetID  string   `json:"datasetId"`
	Query      string   `json:"query"`
	Table      string   `json:"table,omitempty"`
	Select     string   `json:"select,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// Client posts queries to the proxy with a bearer identity token
type Client struct {
	BaseURL   string
	ProjectID string
	DatasetID string
	Tokens    TokenSource
	HTTP      *http.Client
	Logger    *logrus.Logger
}

// NewClient creates a proxy client
func NewClient(baseURL, projectID, datasetID string, tokens TokenSource, timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProjectID: projectID,
		DatasetID: datasetID,
		Tokens:    tokens,
		HTTP:      &http.Client{Timeout: timeout},
		Logger:    logger,
	}
}

// Query forwards a complete SQL string
func (c *Client) Query(ctx context.Context, query string) ([]models.Row, error) {
	return c.post(ctx, queryRequest{
		Fun:       "get",
		ProjectID: c.ProjectID,
		DatasetID: c.DatasetID,
		Query:     query,
	})
}

// QueryParts sends a decomposed SELECT as table, select list and conditions
func (c *Client) QueryParts(ctx context.Context, d decomposer.Decomposition) ([]models.Row, error) {
	return c.post(ctx, queryRequest{
		Fun:        "get",
		ProjectID:  c.ProjectID,
		DatasetID:  c.DatasetID,
		Query:      d.SQL(),
		Table:      d.Table,
		Select:     d.SelectList,
		Conditions: d.Clauses,
	})
}

func (c *Client) post(ctx context.Context, body queryRequest) ([]models.Row, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("query proxy URL is not configured")
	}

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.Logger.Debugf("Posting query to proxy: %s", body.Query)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed: %d %s. Query: %s. Error: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), body.Query, strings.TrimSpace(string(raw)))
	}

	return decodeRows(raw)
}

// decodeRows accepts either an array of row objects or a single object
func decodeRows(raw []byte) ([]models.Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []models.Row{}, nil
	}

	if trimmed[0] == '[' {
		rows := []models.Row{}
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("invalid proxy response: %w", err)
		}
		return rows, nil
	}

	var row models.Row
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, fmt.Errorf("invalid proxy response: %w", err)
	}
	return []models.Row{row}, nil
}
