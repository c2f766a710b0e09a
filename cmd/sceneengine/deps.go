package main

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/config"
	"github.com/taleforge/sceneengine/internal/gateway"
	"github.com/taleforge/sceneengine/internal/logging"
	"github.com/taleforge/sceneengine/internal/narrator"
	"github.com/taleforge/sceneengine/internal/realtime"
	"github.com/taleforge/sceneengine/internal/store"
	"github.com/taleforge/sceneengine/internal/validator"
	"github.com/taleforge/sceneengine/internal/workflow"
)

// deps is the wired object graph shared by the subcommands.
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	hub    *realtime.Hub
	engine *workflow.Engine
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").With("path", configFile).Wrap(err)
	}
	logger := logging.Setup("sceneengine", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("db_path", cfg.DBPath).Wrap(err)
	}
	return db, nil
}

// buildDeps wires the engine. Without a narrator the gateway is present but
// never called, which is enough for maintenance commands.
func buildDeps(withNarrator bool) (*deps, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, logger: logger, db: db}

	var n gateway.Narrator
	if withNarrator {
		client, err := narrator.New(narrator.Config{
			BaseURL: cfg.Narrator.BaseURL,
			APIKey:  cfg.Narrator.APIKey,
			Model:   cfg.Narrator.Model,
			Timeout: cfg.Narrator.Timeout,
			Logger:  logger,
		})
		if err != nil {
			d.Close()
			return nil, oops.Code("NARRATOR_INIT_FAILED").Wrap(err)
		}
		n = client
	}

	classifier := classify.Default()
	gw := gateway.New(n, validator.New(classifier), gateway.NewRegistry(cfg.GatewaySettings(), nil), classifier, nil)
	gw.Pricing = cfg.TierPricing()
	gw.Model = cfg.Narrator.Model
	gw.Sink = &store.UsageRecorder{DB: db, Repo: &store.UsageRepo{}}
	gw.Logger = logger

	d.hub = realtime.NewHub(logger)
	d.engine = workflow.NewEngine(db, gw, d.hub, cfg.WorkflowOptions(), logger)
	return d, nil
}
