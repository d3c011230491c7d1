package main

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/agent"
	"github.com/vitebski/catchment-insights/internal/analyzer"
	"github.com/vitebski/catchment-insights/internal/config"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/internal/executor"
	"github.com/vitebski/catchment-insights/internal/generator"
	"github.com/vitebski/catchment-insights/internal/llm"
	"github.com/vitebski/catchment-insights/internal/pipeline"
	"github.com/vitebski/catchment-insights/internal/proxy"
	"github.com/vitebski/catchment-insights/internal/sqlvalidator"
	"github.com/vitebski/catchment-insights/internal/summary"
	"github.com/vitebski/catchment-insights/internal/visualization"
)

// app is the fully wired service
type app struct {
	cfg        config.Config
	logger     *logrus.Logger
	db         *connector.DatabaseConnector
	executor   *executor.QueryExecutor
	analyzer   *analyzer.SchemaAnalyzer
	visualizer *visualization.Builder
	chatModel  model.ToolCallingChatModel
	pipeline   *pipeline.Pipeline
}

// newApp validates the configuration and wires every component. The chat
// model is only created when an API key is configured; without one the
// generation and summary stages fail with a descriptive error.
func newApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	var local executor.LocalDatabase
	var remote executor.RemoteProxy
	if cfg.IsLocal() {
		a.db = connector.NewDatabaseConnector(cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port, logger)
		a.db.Driver = cfg.Database.Driver
		a.db.Path = cfg.Database.Path
		a.db.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		local = a.db
	} else {
		tokens := proxy.NewMetadataTokenSource(cfg.Proxy.IdentityURL, cfg.Proxy.BaseURL, logger)
		remote = proxy.NewClient(cfg.Proxy.BaseURL, cfg.Proxy.ProjectID, cfg.Proxy.DatasetID, tokens,
			time.Duration(cfg.TimeoutMs)*time.Millisecond, logger)
	}
	a.executor = executor.NewQueryExecutor(cfg.Environment, local, remote, logger)

	// Foreign keys can only be read from the local database
	var keys analyzer.Querier
	database := cfg.Proxy.DatasetID
	if a.db != nil {
		keys = a.db
		database = cfg.Database.Name
	}
	a.analyzer = analyzer.NewSchemaAnalyzer(a.executor, keys, cfg.Database.Driver, database, logger)

	if cfg.LLM.APIKey != "" {
		chatModel, err := llm.NewChatModel(ctx, llm.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		a.chatModel = chatModel
	}

	completer := llm.NewEinoCompleter(a.chatModel, cfg.LLM.MaxTokens, logger)

	a.visualizer = visualization.NewBuilder(cfg.VisualizationDir, logger)
	a.pipeline = pipeline.NewPipeline(
		generator.NewSQLGenerator(completer, cfg.LLM.Model, logger),
		sqlvalidator.NewValidator(logger),
		a.executor,
		a.visualizer,
		summary.NewBuilder(completer, cfg.LLM.Model, logger),
		logger,
	)
	a.pipeline.TimeoutMs = cfg.TimeoutMs
	a.pipeline.SchemaSource = a.analyzer

	if cfg.SchemaFile != "" {
		schema, err := analyzer.LoadSchemaFile(cfg.SchemaFile)
		if err != nil {
			return nil, err
		}
		logger.Infof("Loaded schema for %d table(s) from %s", len(schema.Tables), cfg.SchemaFile)
		a.pipeline.Schema = &schema
	}

	return a, nil
}

// defaultOptions applies the configured row limit to a full run
func (a *app) defaultOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.MaxRows = a.cfg.MaxRows
	return opts
}

// chatAgent builds the tool-calling agent, or nil when no model is configured
func (a *app) chatAgent() (*agent.ChatAgent, error) {
	if a.chatModel == nil {
		return nil, nil
	}
	dispatcher := agent.NewDispatcher(agent.NewQueryTool(a.pipeline, a.logger), a.logger)
	return agent.NewChatAgent(a.chatModel, dispatcher, agent.NewFlagRegistry(), a.logger)
}
