// Package worker provides the loop abstractions used by the ingestion worker
// and the analyzer sweeps: a poll-based process loop and a multi-ticker loop
// where each periodic job runs on its own cadence.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	tickPollInterval = 100 * time.Millisecond
	logFieldWorker   = "worker"
	logFieldTask     = "task"
)

// ProcessFunc is called each iteration to process available work. It should
// return quickly when no work is pending.
type ProcessFunc func(ctx context.Context) error

// Config configures a poll-based worker loop.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// PollInterval is the pause between process iterations.
	PollInterval time.Duration

	// Process is called each iteration.
	Process ProcessFunc

	// OnError is called when Process fails. Return true to continue,
	// false to exit the loop with that error.
	OnError func(err error) bool

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs a poll-based worker loop until the context is canceled or
// OnError requests an exit. Errors from Process are logged, not fatal,
// unless OnError says otherwise.
func Loop(ctx context.Context, cfg Config) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		if cfg.Process != nil {
			if err := cfg.Process(ctx); err != nil {
				if cfg.OnError != nil && !cfg.OnError(err) {
					return err
				}

				logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
			}
		}

		if err := Wait(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

// TickerTask is one periodic job with its own interval.
type TickerTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// TickerConfig configures a multi-ticker loop.
type TickerConfig struct {
	Name   string
	Tasks  []TickerTask
	Logger *zerolog.Logger
}

// TickerLoop runs each task on its own ticker. Tasks with a valid interval
// are also run once at startup. Returns a wrapped context error on cancel.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	if len(cfg.Tasks) == 0 {
		<-ctx.Done()

		return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
	}

	tickers := make([]*time.Ticker, len(cfg.Tasks))

	for i, task := range cfg.Tasks {
		if task.Interval > 0 {
			tickers[i] = time.NewTicker(task.Interval)
		}
	}

	defer func() {
		for _, t := range tickers {
			if t != nil {
				t.Stop()
			}
		}
	}()

	for i, task := range cfg.Tasks {
		if tickers[i] != nil && task.Run != nil {
			logger.Debug().Str(logFieldTask, task.Name).Msg("running initial task")
			task.Run(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		for i, task := range cfg.Tasks {
			if tickers[i] == nil || task.Run == nil {
				continue
			}

			select {
			case <-tickers[i].C:
				logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
				task.Run(ctx)
			default:
			}
		}

		if err := Wait(ctx, tickPollInterval); err != nil {
			return err
		}
	}
}

// Wait blocks until duration elapses or the context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// RecoverPanic recovers from panics in a sweep and logs them.
// Use as: defer worker.RecoverPanic(logger, "coordination sweep").
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
