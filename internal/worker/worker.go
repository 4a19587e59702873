// SPDX-License-Identifier: AGPL-3.0-only
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SyncFunc is one sync pass. The worker never inspects the error beyond
// logging it.
type SyncFunc func(ctx context.Context) error

// Worker reruns a sync function on a fixed interval. A tick that fires while
// the previous run is still going is skipped, runs never overlap.
type Worker struct {
	syncFn   SyncFunc
	Ticker   *time.Ticker
	StopChan chan bool
	log      zerolog.Logger
	mu       sync.Mutex
	running  bool
	active   bool
}

func NewWorker(syncFn SyncFunc, log zerolog.Logger) *Worker {
	return &Worker{
		syncFn:   syncFn,
		StopChan: make(chan bool),
		log:      log.With().Str("component", "worker").Logger(),
	}
}

func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		w.log.Warn().Msg("scheduler already active")
		return
	}
	w.active = true
	w.mu.Unlock()

	w.Ticker = time.NewTicker(interval)
	go func() {
		defer func() {
			w.mu.Lock()
			w.active = false
			w.mu.Unlock()
		}()
		for {
			select {
			case <-w.Ticker.C:
				w.SyncNow(ctx)
			case <-w.StopChan:
				w.Ticker.Stop()
				return
			}
		}
	}()
	w.log.Info().Dur("interval", interval).Msg("background worker started")
}

// Stop shuts the scheduler down. It blocks until a run in progress finishes.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		w.log.Warn().Msg("scheduler not active")
		return
	}
	w.mu.Unlock()

	w.StopChan <- true
	w.log.Info().Msg("background worker stopped")
}

func (w *Worker) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *Worker) SyncNow(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.log.Info().Msg("sync already in progress, skipping")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.syncFn(ctx); err != nil {
		w.log.Error().Err(err).Msg("scheduled sync failed")
	}
}
