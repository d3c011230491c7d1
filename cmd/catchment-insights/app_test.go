package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/agent"
	"github.com/vitebski/catchment-insights/internal/config"
)

// completionServer answers every chat completion with a fixed SQL reply and
// records the request bodies it received
type completionServer struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (c *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.mu.Lock()
	c.requests = append(c.requests, body)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "SELECT COUNT(*) FROM schools"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`))
}

func (c *completionServer) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		t.Fatal("Expected a completion request")
	}
	return c.requests[len(c.requests)-1]
}

func toolCount(body map[string]any) int {
	tools, _ := body["tools"].([]any)
	return len(tools)
}

func testConfig(t *testing.T, llmURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Environment: "dev",
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dir, "schools.db"),
		},
		LLM: config.LLMConfig{
			APIKey:    "sk-test",
			BaseURL:   llmURL,
			Model:     "gpt-4o",
			MaxTokens: 200,
		},
		VisualizationDir: filepath.Join(dir, "visualizations"),
		HTTPAddr:         ":0",
		MaxRows:          100,
		TimeoutMs:        5000,
	}
}

func TestCompletionsStayToolFreeAfterChatAgent(t *testing.T) {
	llmServer := &completionServer{}
	srv := httptest.NewServer(llmServer)
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	ctx := context.Background()

	a, err := newApp(ctx, testConfig(t, srv.URL), logger)
	if err != nil {
		t.Fatalf("Failed to wire app: %v", err)
	}
	chatAgent, err := a.chatAgent()
	if err != nil || chatAgent == nil {
		t.Fatalf("Expected a chat agent, got %v (err %v)", chatAgent, err)
	}

	sql, err := a.pipeline.Generator.Generate(ctx, "How many schools are there?", nil)
	if err != nil {
		t.Fatalf("Unexpected generation error: %v", err)
	}
	if sql != "SELECT COUNT(*) FROM schools" {
		t.Errorf("Unexpected SQL %q", sql)
	}
	if n := toolCount(llmServer.last(t)); n != 0 {
		t.Errorf("Expected SQL generation to send no tools, got %d", n)
	}

	if _, err := chatAgent.Turn(ctx, "s-1", []*schema.Message{{Role: schema.User, Content: "colour schools red"}}); err != nil {
		t.Fatalf("Unexpected chat error: %v", err)
	}
	if n := toolCount(llmServer.last(t)); n != len(agent.ToolInfos()) {
		t.Errorf("Expected the chat turn to declare %d tools, got %d", len(agent.ToolInfos()), n)
	}

	if _, err := a.pipeline.Generator.Generate(ctx, "List districts", nil); err != nil {
		t.Fatalf("Unexpected generation error after a chat turn: %v", err)
	}
	if n := toolCount(llmServer.last(t)); n != 0 {
		t.Errorf("Expected generation after a chat turn to send no tools, got %d", n)
	}
}

func TestChatAgentWithoutKey(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	cfg := testConfig(t, "")
	cfg.LLM.APIKey = ""

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Failed to wire app: %v", err)
	}
	chatAgent, err := a.chatAgent()
	if err != nil || chatAgent != nil {
		t.Errorf("Expected no agent without a key, got %v (err %v)", chatAgent, err)
	}
}
