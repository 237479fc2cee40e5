// Package cmd defines and implements the CLI commands for the collector
// executable.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liblib-tools/collector/internal/breaker"
	"github.com/liblib-tools/collector/internal/collector"
	"github.com/liblib-tools/collector/internal/config"
	"github.com/liblib-tools/collector/internal/fetch"
	"github.com/liblib-tools/collector/internal/logging"
	"github.com/liblib-tools/collector/internal/proxy"
	"github.com/liblib-tools/collector/internal/ratelimit"
	"github.com/liblib-tools/collector/internal/scheduler"
	"github.com/liblib-tools/collector/internal/state"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "A resilient paginated-API collector.",
		Long: `collector runs long-lived paginated collection sessions against an
unreliable remote API without losing progress or overwhelming it: rate
limiting, circuit breaking, proxy rotation, durable checkpoints and a
failed-task queue with scheduled re-delivery.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles everything a command needs.
type runtime struct {
	cfg         config.Config
	logger      *zap.Logger
	session     *collector.Session
	checkpoints *state.CheckpointStore
	queue       *state.FailedTaskQueue
	sched       *scheduler.Scheduler
}

// buildRuntime loads configuration and assembles the resilience stack.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxConcurrent:     cfg.RateLimit.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	proxies := proxy.New(proxy.Config{
		Enabled:  cfg.Proxy.Enabled,
		Proxies:  cfg.Proxy.Proxies,
		Cooldown: cfg.ProxyCooldown(),
	}, logger)

	brk, err := breaker.New(breaker.Config{
		Name:             "remote-api",
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout(),
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init circuit breaker: %w", err)
	}

	policy, err := fetch.NewPolicy(
		cfg.Retry.MaxRetries,
		time.Duration(cfg.Retry.BaseDelay*float64(time.Second)),
		cfg.Retry.BackoffFactor,
		time.Duration(cfg.Retry.MaxDelay*float64(time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("init retry policy: %w", err)
	}

	transport := fetch.NewHTTPTransport(cfg.HTTPTimeout())
	mw := fetch.NewMiddleware(limiter, proxies, brk, policy, transport, cfg.HTTP.UserAgents, logger)

	checkpoints, err := state.NewCheckpointStore(cfg.State.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("init checkpoint store: %w", err)
	}
	queue, err := state.NewFailedTaskQueue(
		cfg.State.Dir,
		time.Duration(cfg.Scheduler.RetryDelaySeconds)*time.Second,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init failed task queue: %w", err)
	}
	runs, err := state.NewRunStateStore(cfg.State.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("init run state store: %w", err)
	}

	dispatch := newDispatch(mw, cfg.Collector.PageURL)
	sched, err := scheduler.New(scheduler.Config{
		CheckInterval: time.Duration(cfg.Scheduler.CheckIntervalSeconds) * time.Second,
		MaxAttempts:   cfg.Scheduler.MaxAttempts,
		RetryDelay:    time.Duration(cfg.Scheduler.RetryDelaySeconds) * time.Second,
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxDelay:      time.Duration(cfg.Scheduler.MaxDelaySeconds) * time.Second,
	}, queue, dispatch, logger)
	if err != nil {
		return nil, fmt.Errorf("init retry scheduler: %w", err)
	}

	session := collector.NewSession(mw, checkpoints, queue, runs, sched, logger)

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		session:     session,
		checkpoints: checkpoints,
		queue:       queue,
		sched:       sched,
	}, nil
}
