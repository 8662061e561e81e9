package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/status"
)

// ErrPassInFlight is returned by TriggerNow while a pass is already running.
var ErrPassInFlight = errors.New("sync pass already in flight")

// Runner invokes the orchestrator on a fixed interval and on manual
// triggers, guaranteeing that passes never overlap.
type Runner struct {
	orch     *Orchestrator
	interval time.Duration
	machine  *status.Machine
	logger   *zap.Logger

	trigger chan struct{}
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a runner. interval <= 0 disables the timer, leaving only
// manual triggers.
func NewRunner(orch *Orchestrator, interval time.Duration, machine *status.Machine, logger *zap.Logger) *Runner {
	return &Runner{
		orch:     orch,
		interval: interval,
		machine:  machine,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The first pass runs immediately.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

// TriggerNow schedules an immediate pass. Returns ErrPassInFlight when one
// is already running.
func (r *Runner) TriggerNow() error {
	if r.running.Load() {
		return ErrPassInFlight
	}
	select {
	case r.trigger <- struct{}{}:
		return nil
	default:
		return ErrPassInFlight
	}
}

// Running reports whether a pass is currently executing.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.runOnce(ctx)
		case <-r.trigger:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("sync pass skipped, previous pass still running")
		return
	}
	defer r.running.Store(false)

	if err := r.machine.Transition(status.Syncing); err != nil {
		r.logger.Warn("cannot enter syncing state", zap.Error(err))
		return
	}

	result, err := r.orch.RunPass(ctx)
	switch {
	case err != nil:
		r.logger.Error("sync pass aborted", zap.Error(err))
		_ = r.machine.Transition(status.Degraded)
	case result.ShopsFailed > 0:
		_ = r.machine.Transition(status.Degraded)
	default:
		_ = r.machine.Transition(status.Idle)
	}
}
