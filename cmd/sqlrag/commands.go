package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sqlrag/internal/api"
	"github.com/kalambet/sqlrag/internal/config"
	"github.com/kalambet/sqlrag/internal/history"
	"github.com/kalambet/sqlrag/internal/openrouter"
	"github.com/kalambet/sqlrag/internal/pipeline"
	"github.com/kalambet/sqlrag/internal/retrieval"
	"github.com/kalambet/sqlrag/internal/storage"
)

// openLocalApp loads config and builds an in-process app for one command.
var openLocalApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return newApp(ctx, cfg)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about the database",
	Long: `Answer a question about the database.

By default the question is answered in-process. With --remote it is sent to
a running "sqlrag serve".

Examples:
  sqlrag ask "Which country has the most deliveries in status Analysis?"
  sqlrag ask --remote --json "How many shipments left last week?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		asJSON, _ := cmd.Flags().GetBool("json")
		question := strings.Join(args, " ")
		ctx := cmd.Context()

		var out pipeline.Outcome
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(ctx, "/v1/ask", api.AskRequest{Question: question})
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
		} else {
			a, err := openLocalApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			out = a.pipeline.Answer(ctx, question)
		}

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		writeOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("remote", false, "send the question to a running server")
	askCmd.Flags().Bool("json", false, "print the full outcome as JSON")
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Load or search table descriptions",
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Embed a YAML or TOML schema file into the context store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openLocalApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path := a.cfg.Schema.File
		if len(args) == 1 {
			path = args[0]
		}
		n, err := a.loadSchema(ctx, path)
		if err != nil {
			return err
		}
		total, err := a.schema.Count(ctx)
		if err != nil {
			return err
		}
		printSuccess("Loaded %d new table(s) from %s (%d stored)", n, path, total)
		return nil
	},
}

var schemaSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Show the table descriptions nearest to a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()
		a, err := openLocalApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.schema.RetrieveContext(ctx, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if len(res.Matches) == 0 {
			printWarning("No tables stored. Run: sqlrag schema load")
			return nil
		}
		w := cmd.OutOrStdout()
		for _, m := range res.Matches {
			fmt.Fprintf(w, "%s %s\n%s\n\n", colorize(colorBold, m.ID), colorize(colorCyan, fmt.Sprintf("(distance %.3f)", m.Distance)), m.Content)
		}
		return nil
	},
}

func init() {
	schemaSearchCmd.Flags().Int("limit", 3, "number of tables to show")
	schemaCmd.AddCommand(schemaLoadCmd)
	schemaCmd.AddCommand(schemaSearchCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect cached question/query pairs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent cached questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/history?limit="+strconv.Itoa(limit))
		if err != nil {
			return err
		}
		var body struct {
			Entries []history.Entry `json:"entries"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}
		if len(body.Entries) == 0 {
			printWarning("History is empty")
			return nil
		}
		w := cmd.OutOrStdout()
		for _, e := range body.Entries {
			fmt.Fprintf(w, "%s  %s\n  %s\n", colorize(colorBold, e.CreatedAt.Local().Format(time.DateTime)), e.Question, colorize(colorCyan, truncateRunes(oneLine(e.Query), 120)))
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "number of entries")
	historyCmd.AddCommand(historyListCmd)
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run log",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if status != "" {
			q.Set("status", status)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/runs?"+q.Encode())
		if err != nil {
			return err
		}
		var body struct {
			Runs []api.RunView `json:"runs"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, r := range body.Runs {
			cached := ""
			if r.FromCache {
				cached = " (cached)"
			}
			fmt.Fprintf(w, "%s  %-8s %6dms  %s%s\n", r.ID, r.Status, r.DurationMs, truncateRunes(r.Question, 80), cached)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run with its attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/runs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return fmt.Errorf("run %s: %w", args[0], storage.ErrNotFound)
		}
		var run api.RunView
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), run)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "number of runs")
	runsListCmd.Flags().String("status", "", "filter by status (done, failed, rejected)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sqlrag system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		showStatus(cmd.Context(), cfg)
		return nil
	},
}

func showStatus(ctx context.Context, cfg config.Config) {
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	printStatus("LLM", "%s (%s)", cfg.LLM.Model, cfg.LLM.Provider)
	printStatus("Embeddings", "%s (%s)", cfg.Embed.Model, cfg.Embed.Provider)
	if cfg.LLM.Provider == "ollama" || cfg.Embed.Provider == "ollama" {
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}
	if cfg.LLM.Provider == "openrouter" {
		printStatus("OpenRouter", "%s", openRouterStatus(ctx, cfg))
	}
	printStatus("Database", "%s", cfg.Database.Driver)
	printStatus("Schema file", "%s", cfg.Schema.File)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Storage", "unavailable: %v", err)
		return
	}
	defer store.Close()

	vectors := retrieval.NewSQLiteStore(store.DB())
	if n, err := vectors.Count(ctx, retrieval.CollectionSchema); err == nil {
		printStatus("Tables", "%d", n)
	}
	if n, err := vectors.Count(ctx, history.Collection); err == nil {
		printStatus("History", "%d", n)
	}
	if counts, err := store.CountRuns(ctx); err == nil {
		printStatus("Runs", "%d done, %d failed, %d rejected", counts[storage.RunDone], counts[storage.RunFailed], counts[storage.RunRejected])
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
}

// openRouterStatus reports whether the configured model is listed by
// OpenRouter for the configured key.
func openRouterStatus(ctx context.Context, cfg config.Config) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := openrouter.NewClientWithBaseURL(cfg.OpenRouter.APIKey, cfg.OpenRouter.BaseURL).ListModels(ctx)
	if err != nil {
		return fmt.Sprintf("unreachable (%v)", err)
	}
	for _, m := range models {
		if m.ID == cfg.LLM.Model {
			return fmt.Sprintf("reachable, %s available", m.ID)
		}
	}
	return fmt.Sprintf("reachable, model %s not listed", cfg.LLM.Model)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
