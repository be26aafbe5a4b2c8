package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hattiebot/toolpilot/internal/agent"
	"github.com/hattiebot/toolpilot/internal/aggregator"
	"github.com/hattiebot/toolpilot/internal/catalog"
	"github.com/hattiebot/toolpilot/internal/config"
	"github.com/hattiebot/toolpilot/internal/connectors"
	"github.com/hattiebot/toolpilot/internal/health"
	"github.com/hattiebot/toolpilot/internal/logging"
	"github.com/hattiebot/toolpilot/internal/openrouter"
	"github.com/hattiebot/toolpilot/internal/store"
)

// app holds the wired components for one CLI run.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *store.DB
	catalog  *catalog.Catalog
	parsers  *aggregator.Registry
	manager  *connectors.Manager
	client   *openrouter.Client
	orch     *agent.Orchestrator
	health   *health.Registry
	detach   func()
	userID   string
	startErr error
}

// newApp loads config, opens the store, starts the connectors and, when withModel
// is set, builds the model client and orchestrator.
func newApp(cmd *cobra.Command, withModel bool) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	configDir, _ := cmd.Flags().GetString("config-dir")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configDir, configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	if withModel {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenRouter API key not set: add api_key to config or set OPENROUTER_API_KEY")
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("model not set: add model to config or set TOOLPILOT_MODEL")
		}
	}

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		catalog: catalog.New(log),
		parsers: aggregator.NewRegistry(),
		health:  health.NewRegistry(),
		userID:  cfg.UserID,
	}
	a.detach = store.NewRecorder(db, cfg.UserID, log).Attach(a.catalog)
	a.manager = connectors.NewManager(a.catalog, a.parsers, cfg.ToolOutputMaxRunes, log)
	// A connector that fails to start is logged and left out; the rest keep working.
	a.startErr = a.manager.StartAll(ctx, cfg.Connectors)

	a.health.Register("catalog", a.catalog)
	a.health.Register("store", db)

	if withModel {
		a.client = openrouter.NewClient(cfg.APIKey, cfg.Model, log,
			openrouter.WithBaseURL(cfg.BaseURL),
			openrouter.WithConfigDir(cfg.ConfigDir),
		)
		a.health.Register("llm_client", a.client)
		a.orch = agent.New(a.catalog, a.client,
			agent.WithLogger(log),
			agent.WithMaxParallel(cfg.MaxParallel),
			agent.WithToolTimeout(cfg.ToolTimeout),
			agent.WithCalendarMarkers(cfg.CalendarMarkers),
			agent.WithAggregator(aggregator.New(a.client, a.parsers, log)),
			agent.WithToolHealth(db),
		)
	}
	return a, nil
}

func (a *app) ask(ctx context.Context, utterance string, req agent.Request) agent.Result {
	if req.UserID == "" {
		req.UserID = a.userID
	}
	res := a.orch.SelectAndExecute(ctx, utterance, req)
	cliLog := logging.Component(a.log, "cli")
	cliLog.Debug().
		Str("outcome", string(res.Outcome)).
		Str("tool", res.ToolCalled).
		Int("invocations", len(res.AllResults)).
		Msg("request handled")
	return res
}

func (a *app) Close() {
	a.manager.StopAll()
	if a.detach != nil {
		a.detach()
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close db")
	}
}
