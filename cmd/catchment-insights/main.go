package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/catchment-insights/internal/agent"
	"github.com/vitebski/catchment-insights/internal/config"
	"github.com/vitebski/catchment-insights/internal/sample"
	"github.com/vitebski/catchment-insights/internal/server"
	"github.com/vitebski/catchment-insights/internal/utils"
	"github.com/vitebski/catchment-insights/internal/visualization"
	"github.com/vitebski/catchment-insights/pkg/models"
)

func main() {
	var (
		envFile  string
		logLevel string
		logger   *logrus.Logger
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// load wires the service after flags have been parsed
	load := func() (*app, error) {
		return newApp(ctx, config.FromEnv(), logger)
	}

	rootCmd := &cobra.Command{
		Use:   "catchment-insights",
		Short: "Ask questions about school catchment data in plain English",
		Long: `Catchment Insights

Turns natural-language questions into validated SQL, runs them against the
schools database and returns the rows together with a chart and a short
narrative summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			logger = utils.SetupLogging(logLevel)

			// Load environment variables
			utils.LoadEnvironmentVariables(envFile, logger)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCommand(ctx, load),
		askCommand(ctx, load),
		validateCommand(load),
		execCommand(ctx, load),
		tablesCommand(ctx, load),
		schemaCommand(ctx, load),
		vizCommand(load),
		chatCommand(ctx, load),
		pingCommand(ctx, load),
		seedCommand(ctx, load),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

type loader func() (*app, error)

func serveCommand(ctx context.Context, load loader) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}

			var chat server.Chatter
			chatAgent, err := a.chatAgent()
			if err != nil {
				return err
			}
			if chatAgent != nil {
				chat = chatAgent
			} else {
				a.logger.Warn("LLM_API_KEY is not set; /api/chat is disabled")
			}

			return server.NewServer(a.pipeline, chat, a.cfg.VisualizationDir, a.logger).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default: HTTP_ADDR or :5051)")
	return cmd
}

func askCommand(ctx context.Context, load loader) *cobra.Command {
	var (
		noViz     bool
		noSummary bool
		chartType string
		library   string
		maxRows   int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with SQL, a chart and a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if err := a.cfg.RequireLLM(); err != nil {
				return err
			}

			opts := a.defaultOptions()
			opts.IncludeVisualization = !noViz
			opts.IncludeSummary = !noSummary
			opts.VisualizationType = chartType
			opts.VisualizationLibrary = library
			if maxRows > 0 {
				opts.MaxRows = maxRows
			}

			question := strings.Join(args, " ")
			response := a.pipeline.ProcessQuery(ctx, question, opts)
			result := response.Result

			report := utils.RunReport{
				Question: question,
				SQLQuery: result.SQLQuery,
				RowCount: result.RowCount,
				Warnings: result.Warnings,
				Errors:   result.Errors,
				TotalMs:  result.Timings.Total,
			}
			if result.Visualization != nil {
				report.Visualization = result.Visualization.Filename
			}
			if result.Summary != nil {
				report.Summary = result.Summary.Text
			}
			utils.PrintRunReport(report, result.Data)

			if !response.Success {
				return fmt.Errorf("%s", response.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noViz, "no-viz", false, "Skip the visualization stage")
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "Skip the summary stage")
	cmd.Flags().StringVarP(&chartType, "type", "t", string(visualization.Auto), "Chart type (auto, bar, scatter, pie, histogram, time_series, table)")
	cmd.Flags().StringVar(&library, "library", "", "Chart library (plotly, chartjs)")
	cmd.Flags().IntVarP(&maxRows, "max-rows", "r", 0, "Maximum number of rows (default: QUERY_MAX_ROWS)")
	return cmd
}

func validateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a SQL query without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			result := a.pipeline.ValidateOnly(strings.Join(args, " "))
			utils.PrintValidation(result)
			if !result.IsValid {
				return fmt.Errorf("query is invalid")
			}
			return nil
		},
	}
}

func execCommand(ctx context.Context, load loader) *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Validate and run a SQL query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			opts := models.DefaultQueryOptions()
			opts.MaxRows = a.cfg.MaxRows
			if maxRows > 0 {
				opts.MaxRows = maxRows
			}

			result := a.pipeline.ExecuteCustomSQL(ctx, strings.Join(args, " "), opts)
			if result.Validation != nil && !result.Validation.IsValid {
				utils.PrintValidation(*result.Validation)
			}
			if !result.Success {
				return fmt.Errorf("%s", result.Error)
			}
			utils.PrintRows(result.Data)
			for _, w := range result.Warnings {
				pterm.Warning.Println(w)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxRows, "max-rows", "r", 0, "Maximum number of rows (default: QUERY_MAX_ROWS)")
	return cmd
}

func tablesCommand(ctx context.Context, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables available to queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			result := a.pipeline.GetAvailableTables(ctx)
			if !result.Success {
				return fmt.Errorf("failed to list tables: %s", result.Error)
			}
			items := make([]pterm.BulletListItem, 0, len(result.Tables))
			for _, table := range result.Tables {
				items = append(items, pterm.BulletListItem{Level: 0, Text: table})
			}
			return pterm.DefaultBulletList.WithItems(items).Render()
		},
	}
}

func schemaCommand(ctx context.Context, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [table]",
		Short: "Describe one table, or analyze every table and its relationships",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				result := a.pipeline.GetTableSchema(ctx, args[0])
				if !result.Success {
					return fmt.Errorf("failed to describe %s: %s", args[0], result.Error)
				}
				utils.PrintRows(result.Schema)
				return nil
			}

			if err := a.analyzer.AnalyzeSchema(ctx); err != nil {
				return fmt.Errorf("failed to analyze schema: %w", err)
			}
			utils.PrintSchemaAnalysis(a.analyzer)
			return nil
		},
	}
}

func vizCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Manage stored visualizations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored visualizations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			result := a.pipeline.ListVisualizations()
			if !result.Success {
				return fmt.Errorf("failed to list visualizations: %s", result.Error)
			}
			if len(result.Visualizations) == 0 {
				pterm.Info.Println("No visualizations stored")
				return nil
			}
			data := pterm.TableData{{"Filename", "Created", "URL"}}
			for _, entry := range result.Visualizations {
				data = append(data, []string{entry.Filename, entry.Created.Format("2006-01-02 15:04:05"), entry.URL})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}

	remove := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a stored visualization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if !a.pipeline.DeleteVisualization(args[0]) {
				return fmt.Errorf("visualization %s not found", args[0])
			}
			pterm.Success.Printfln("Deleted %s", args[0])
			return nil
		},
	}

	var (
		rows      int
		seed      int64
		chartType string
		library   string
		format    string
	)
	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Render a chart from generated school data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			result := a.pipeline.CreateCustomVisualization(sample.SchoolRows(rows, seed), visualization.Options{
				Type:    chartType,
				Title:   "Sample schools",
				Library: library,
				Format:  format,
			})
			if !result.Success {
				return fmt.Errorf("failed to build visualization: %s", result.Error)
			}
			pterm.Success.Printfln("Rendered %s chart: %s", result.Visualization.Type, result.Visualization.Filename)
			return nil
		},
	}
	sampleCmd.Flags().IntVarP(&rows, "rows", "r", 25, "Number of sample schools")
	sampleCmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	sampleCmd.Flags().StringVarP(&chartType, "type", "t", string(visualization.Auto), "Chart type")
	sampleCmd.Flags().StringVar(&library, "library", "", "Chart library (plotly, chartjs)")
	sampleCmd.Flags().StringVarP(&format, "format", "f", visualization.FormatHTML, "Output format (html, json, png)")

	cmd.AddCommand(list, remove, sampleCmd)
	return cmd
}

func chatCommand(ctx context.Context, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the map assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if err := a.cfg.RequireLLM(); err != nil {
				return err
			}
			chatAgent, err := a.chatAgent()
			if err != nil {
				return err
			}

			sessionID := uuid.NewString()
			var history []agent.Message
			pterm.Info.Println("Type a message, or an empty line to quit")

			scanner := bufio.NewScanner(os.Stdin)
			for {
				pterm.Print(pterm.Bold.Sprint("> "))
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}

				history = append(history, agent.Message{Role: "user", Content: line})
				result, err := chatAgent.Turn(ctx, sessionID, agent.Messages(history))
				if err != nil {
					pterm.Error.Println(err)
					history = history[:len(history)-1]
					continue
				}
				history = append(history, agent.Message{Role: "assistant", Content: result.FinalText})

				pterm.Println(result.FinalText)
				printFlags(result.Flags)
			}
		},
	}
}

// printFlags lists the UI changes requested during a turn
func printFlags(flags agent.PendingUIFlags) {
	if !flags.Any() {
		return
	}
	encoded, err := json.Marshal(flags)
	if err != nil {
		return
	}
	var byName map[string]agent.Flag
	if err := json.Unmarshal(encoded, &byName); err != nil {
		return
	}

	names := make([]string, 0, len(byName))
	for name, flag := range byName {
		if flag.Changed {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	data := pterm.TableData{{"Setting", "Value"}}
	for _, name := range names {
		value, _ := json.Marshal(byName[name].Value)
		data = append(data, []string{name, string(value)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func pingCommand(ctx context.Context, load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			status := a.pipeline.TestConnection(ctx)
			if !status.Success {
				return fmt.Errorf("connection failed: %s", status.Error)
			}
			pterm.Success.Println(status.Message)
			return nil
		},
	}
}

func seedCommand(ctx context.Context, load loader) *cobra.Command {
	var (
		rows       int
		seed       int64
		minRecords int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the local development database with generated schools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if !a.cfg.IsLocal() {
				return fmt.Errorf("seeding is only available with CATCHMENT_ENV=dev")
			}

			inserted, err := sample.NewSeeder(a.db, a.cfg.Database.Driver, a.logger).Seed(ctx, rows, seed)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Inserted %d school(s)", inserted)

			if minRecords <= 0 {
				minRecords = rows
			}
			if ok, count := utils.VerifyTableRows(ctx, a.db, "schools", minRecords, a.logger); !ok {
				return fmt.Errorf("schools holds %d of %d expected rows", count, minRecords)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "r", 100, "Number of schools to generate")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().IntVarP(&minRecords, "min-records", "n", 0, "Minimum rows expected after seeding (default: --rows)")
	return cmd
}
