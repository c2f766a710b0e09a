package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/taleforge/sceneengine/internal/guard"
	"github.com/taleforge/sceneengine/internal/ipc"
	"github.com/taleforge/sceneengine/internal/store"
	"github.com/taleforge/sceneengine/internal/workflow"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the recovery supervisor",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	d, err := buildDeps(true)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := workflow.NewSupervisor(d.engine, d.cfg.RecoveryConfig())
	// Scenes orphaned by a previous crash are swept once before serving.
	if ids, err := sup.RecoverStuck(ctx); err != nil {
		d.logger.Warn("startup recovery sweep failed", "error", err)
	} else if len(ids) > 0 {
		d.logger.Info("startup recovery reset scenes", "count", len(ids))
	}
	sup.StartMonitoring(ctx)
	defer sup.StopMonitoring()

	srv := ipc.NewServer(&ipc.Handler{
		Engine:       d.engine,
		Hub:          d.hub,
		Guard:        guard.New(d.cfg.GuardConfig()),
		DB:           d.db,
		EventRepo:    &store.EventRepo{},
		CampaignLogs: &store.CampaignLogRepo{},
		Logger:       d.logger,
		Version:      version,
	}, d.cfg.ListenAddr)

	go func() {
		<-ctx.Done()
		d.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("server shutdown", "error", err)
		}
	}()

	d.logger.Info("scene engine listening", "addr", d.cfg.ListenAddr, "model", d.cfg.Narrator.Model)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Code("SERVER_FAILED").With("addr", d.cfg.ListenAddr).Wrap(err)
	}
	return nil
}
