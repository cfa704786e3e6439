// Package sweep runs the periodic timeout check over running sessions.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
)

// Ticker is the slice of the orchestrator the sweep drives.
type Ticker interface {
	RunningSessions(ctx context.Context) ([]engine.Session, error)
	Tick(ctx context.Context, sessionID string) (orchestrator.TickResult, error)
}

type Options struct {
	Ticker      Ticker
	Notifier    orchestrator.Notifier
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Interval    time.Duration
	Concurrency int
}

type Sweeper struct {
	ticker      Ticker
	notify      orchestrator.Notifier
	metrics     *metrics.Recorder
	log         *zap.Logger
	interval    time.Duration
	concurrency int
}

func New(opts Options) *Sweeper {
	s := &Sweeper{
		ticker:      opts.Ticker,
		notify:      opts.Notifier,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s
}

// Run sweeps every interval until ctx is cancelled. Failures are logged and
// never stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("concurrency", s.concurrency))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				for _, e := range multierr.Errors(err) {
					s.log.Warn("sweep", zap.Error(e))
				}
			}
		}
	}
}

// Sweep checks every running session once. Each session is handled on its
// own; the returned error combines the sessions that failed.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := time.Now()
	sessions, err := s.ticker.RunningSessions(ctx)
	if err != nil {
		s.metrics.ObserveSweep(time.Since(start), 1)
		return err
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, sess := range sessions {
		id := sess.ID
		g.Go(func() error {
			res, err := s.ticker.Tick(ctx, id)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("session %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			s.report(res)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ObserveSweep(time.Since(start), len(multierr.Errors(errs)))
	return errs
}

func (s *Sweeper) report(res orchestrator.TickResult) {
	if res.Advance != nil {
		s.log.Debug("round timed out",
			zap.String("session_id", res.SessionID),
			zap.Int("round", res.RoundNumber),
			zap.Bool("advanced", res.Advance.Advanced))
		return
	}
	if s.notify == nil || res.Status != engine.SessionRunning || res.TimerState != engine.TimerRunning {
		return
	}
	s.notify.Publish(engine.Event{
		Kind:      engine.EvtTimerTick,
		SessionID: res.SessionID,
		Round:     res.RoundNumber,
		At:        time.Now(),
		Payload: orchestrator.TimerTick{
			RoundNumber:      res.RoundNumber,
			RemainingSeconds: res.RemainingSeconds,
			TimerState:       res.TimerState,
		},
	})
}
