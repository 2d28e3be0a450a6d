// Package watcher rescans a page whenever its document structure changes.
package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/config"
)

// RescanFunc rebuilds the detected forms of the page.
type RescanFunc func(ctx context.Context) error

// Watcher turns mutation notifications into rescans. Bursts inside the
// debounce window collapse into one rescan, and rescans are rate limited.
type Watcher struct {
	source  dom.MutationSource
	rescan  RescanFunc
	window  time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a watcher. A zero debounce window rescans once per
// notification; a zero rate disables limiting.
func New(source dom.MutationSource, rescan RescanFunc, cfg config.WatcherConfig, logger *zap.Logger) *Watcher {
	w := &Watcher{
		source: source,
		rescan: rescan,
		window: cfg.DebounceWindow,
		logger: logger.Named("watcher"),
	}
	if cfg.RescanRate > 0 {
		burst := cfg.RescanBurst
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RescanRate), burst)
	}
	return w
}

// Run watches until ctx is done. It returns nil on cancellation and an error
// only when the subscription cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	mutations, err := w.source.Mutations(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to mutations: %w", err)
	}
	w.logger.Debug("Watching for DOM mutations.", zap.Duration("debounce", w.window))

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-mutations:
			if !ok {
				return nil
			}
			if w.window <= 0 {
				if !w.fire(ctx) {
					return nil
				}
				continue
			}
			// (Re)start the window.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.window)
			timerC = timer.C

		case <-timerC:
			timer, timerC = nil, nil
			if !w.fire(ctx) {
				return nil
			}
		}
	}
}

// fire runs one rescan. It reports false when ctx ended while waiting for the limiter.
func (w *Watcher) fire(ctx context.Context) bool {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return ctx.Err() == nil
		}
	}
	if err := w.rescan(ctx); err != nil {
		w.logger.Warn("Mutation-driven rescan failed.", zap.Error(err))
	}
	return true
}
