package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/state"
)

// newCollectCmd creates the 'collect' subcommand: one resumable paginated
// collection session with the retry scheduler running alongside.
func newCollectCmd() *cobra.Command {
	var (
		taskType string
		pageURL  string
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs a resumable paginated collection session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()

			if pageURL == "" {
				pageURL = rt.cfg.Collector.PageURL
			}
			if pageURL == "" {
				return fmt.Errorf("a page URL template is required (--url or collector.page_url)")
			}
			if maxPages == 0 {
				maxPages = rt.cfg.Collector.MaxPages
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt.session.StartRetryScheduler()
			defer rt.session.StopRetryScheduler()

			err = rt.session.CollectPages(ctx, taskType, func(ctx context.Context, page int) (int, bool, error) {
				resp, err := rt.session.Request(ctx, fetch.Request{
					Method: http.MethodGet,
					URL:    fmt.Sprintf(pageURL, page),
				})
				if err != nil {
					return 0, false, err
				}
				more := maxPages == 0 || page < maxPages
				// An empty page marks the end of the listing.
				if len(resp.Body) == 0 || resp.StatusCode == http.StatusNoContent {
					more = false
				}
				return 1, more, nil
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("collection: %w", err)
			}

			stats := rt.session.GetStats()
			rt.logger.Info("session stats",
				zap.Int64("total", stats.TotalRequests),
				zap.Int64("succeeded", stats.SuccessfulRequests),
				zap.Int64("failed", stats.FailedRequests),
				zap.Int64("retried", stats.RetriedRequests),
				zap.Int64("circuit_open", stats.CircuitOpenRejections),
				zap.String("breaker_state", stats.BreakerState),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "task-type", state.TaskListCollection, "task type key for checkpointing")
	cmd.Flags().StringVar(&pageURL, "url", "", "page URL template containing %d")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 = until empty page)")

	return cmd
}
