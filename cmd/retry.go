package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRetryCmd creates the 'retry' subcommand: a one-off drain of the due
// failed tasks, without starting the periodic loop.
func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Re-dispatches all currently due failed tasks once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			due, err := rt.queue.DueTasks()
			if err != nil {
				return err
			}
			rt.logger.Info("draining due tasks", zap.Int("count", len(due)))

			rt.sched.DrainOnce(ctx)
			return nil
		},
	}
}
