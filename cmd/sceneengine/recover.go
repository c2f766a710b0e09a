package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/taleforge/sceneengine/internal/workflow"
)

// NewRecoverCmd creates the recover subcommand.
func NewRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reset scenes stuck in RESOLVING",
		Long: `Run one stuck-scene sweep: every scene that has been RESOLVING for longer
than the resolution timeout plus the stuck grace is returned to
AWAITING_ACTIONS with its actions still pending.`,
		RunE: runRecover,
	}
}

func runRecover(cmd *cobra.Command, _ []string) error {
	d, err := buildDeps(false)
	if err != nil {
		return err
	}
	defer d.Close()

	sup := workflow.NewSupervisor(d.engine, d.cfg.RecoveryConfig())
	ids, err := sup.RecoverStuck(context.Background())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		cmd.Println("No stuck scenes")
		return nil
	}
	for _, id := range ids {
		cmd.Printf("Recovered %s\n", id)
	}
	return nil
}
