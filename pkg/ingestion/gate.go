// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GateOptions configures a Gate.
type GateOptions struct {
	// AcquireTimeout bounds how long Acquire waits for a permit. Zero
	// means wait until grant, cancellation or dispose.
	AcquireTimeout time.Duration
}

// gateWaiter is one queued Acquire. done is buffered so the granter never
// blocks; it carries nil (granted) or ErrDisposed.
type gateWaiter struct {
	done     chan error
	enqueued time.Time
}

// Gate is a counting permit gate with a strict FIFO waiter queue. The same
// primitive bounds chunk parsing, cross-batch inserts and the store
// connection pool, so fairness, timeout and dispose semantics are identical
// everywhere in the pipeline.
//
// Release with waiters queued hands the permit directly to the oldest
// waiter; the free count does not change. Releasing more than was acquired
// restores the free count at most to capacity and is not an error.
type Gate struct {
	mu       sync.Mutex
	capacity int
	free     int
	waiters  []*gateWaiter
	disposed bool

	acquireTimeout time.Duration
	logger         *slog.Logger

	// Counters, all guarded by mu.
	totalAcquires  int64
	totalReleases  int64
	peakWaiting    int
	grantedWaits   int64
	totalWaitNanos int64
	timeouts       int64
	cancellations  int64
}

// GateMetrics is a point-in-time snapshot of gate counters. AverageWait
// covers only acquisitions that actually queued.
type GateMetrics struct {
	Capacity      int
	Available     int
	Waiting       int
	PeakWaiting   int
	TotalAcquires int64
	TotalReleases int64
	AverageWait   time.Duration
	Timeouts      int64
	Cancellations int64
	Disposed      bool
}

// NewGate returns a gate holding capacity permits. A capacity below 1 is
// treated as 1. A nil logger falls back to slog.Default().
func NewGate(capacity int, opts GateOptions, logger *slog.Logger) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		capacity:       capacity,
		free:           capacity,
		acquireTimeout: opts.AcquireTimeout,
		logger:         logger,
	}
}

// Acquire obtains a permit, queueing in FIFO order behind earlier waiters.
// It fails with ErrDisposed after Dispose, ErrCancelled when ctx ends first
// (a context already done fails before enqueueing) and ErrTimeout when the
// configured acquire timeout elapses first.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return ErrDisposed
	}
	if ctx.Err() != nil {
		g.cancellations++
		g.mu.Unlock()
		return ErrCancelled
	}
	// The free count only grows while the queue is empty, so free > 0
	// means nobody is ahead of us.
	if g.free > 0 && len(g.waiters) == 0 {
		g.free--
		g.totalAcquires++
		g.mu.Unlock()
		return nil
	}
	w := &gateWaiter{done: make(chan error, 1), enqueued: time.Now()}
	g.waiters = append(g.waiters, w)
	if n := len(g.waiters); n > g.peakWaiting {
		g.peakWaiting = n
	}
	g.mu.Unlock()

	var timeoutC <-chan time.Time
	if g.acquireTimeout > 0 {
		t := time.NewTimer(g.acquireTimeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case err := <-w.done:
		return err
	case <-timeoutC:
		return g.abandon(w, ErrTimeout)
	case <-ctx.Done():
		return g.abandon(w, ErrCancelled)
	}
}

// abandon resolves a waiter whose timer fired or whose context ended. If the
// waiter is still queued it is removed and fails with reason. If a grant or
// dispose raced in first, that outcome wins, same as
// golang.org/x/sync/semaphore.
func (g *Gate) abandon(w *gateWaiter, reason error) error {
	g.mu.Lock()
	for i, q := range g.waiters {
		if q != w {
			continue
		}
		g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
		switch reason {
		case ErrTimeout:
			g.timeouts++
			recordGateTimeout()
		case ErrCancelled:
			g.cancellations++
		}
		g.mu.Unlock()
		return reason
	}
	g.mu.Unlock()
	// Resolved under the same lock that dequeued it; the outcome is
	// already buffered.
	return <-w.done
}

// TryAcquire takes a permit without waiting. It reports false when none is
// free, when waiters are queued ahead, or after Dispose.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed || g.free == 0 || len(g.waiters) > 0 {
		return false
	}
	g.free--
	g.totalAcquires++
	return true
}

// Release returns a permit. With waiters queued the permit is handed to the
// oldest one and the free count is untouched. After Dispose it is a silent
// no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return
	}
	g.totalReleases++
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		wait := time.Since(w.enqueued)
		g.grantedWaits++
		g.totalWaitNanos += int64(wait)
		g.totalAcquires++
		w.done <- nil
		observeGateWait(wait)
		return
	}
	if g.free < g.capacity {
		g.free++
	}
}

// Dispose fails every queued waiter with ErrDisposed, zeroes the free count
// and makes later Acquire calls fail immediately. It is idempotent.
func (g *Gate) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disposed {
		return
	}
	g.disposed = true
	g.free = 0
	for _, w := range g.waiters {
		w.done <- ErrDisposed
	}
	if n := len(g.waiters); n > 0 {
		g.logger.Info("gate.dispose", "failed_waiters", n)
	}
	g.waiters = nil
}

// Metrics returns a snapshot of the gate counters.
func (g *Gate) Metrics() GateMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := GateMetrics{
		Capacity:      g.capacity,
		Available:     g.free,
		Waiting:       len(g.waiters),
		PeakWaiting:   g.peakWaiting,
		TotalAcquires: g.totalAcquires,
		TotalReleases: g.totalReleases,
		Timeouts:      g.timeouts,
		Cancellations: g.cancellations,
		Disposed:      g.disposed,
	}
	if g.grantedWaits > 0 {
		m.AverageWait = time.Duration(g.totalWaitNanos / g.grantedWaits)
	}
	return m
}
