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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ParserPool is a soft reuse cache for parser instances. It is not
// admission control: Acquire never blocks and is never capped, it only
// reuses an idle instance when one exists. MaxPoolSize bounds how many
// idle instances are retained on Release; anything beyond that is
// dropped and reclaimed by the garbage collector. Concurrency limiting
// is the Gate's job.
type ParserPool struct {
	mu      sync.Mutex
	factory ParserFactory
	idle    []Parser
	active  map[Parser]struct{}
	maxIdle int
	logger  *slog.Logger

	created      int64
	reused       int64
	discarded    int64
	resetErrors  int64
	peakActive   int
	acquires     int64
	releases     int64
	acquireNanos int64
}

// PoolMetrics is a point-in-time snapshot of pool counters.
type PoolMetrics struct {
	PoolSize       int
	ActiveCount    int
	PeakActive     int
	Created        int64
	Reused         int64
	Discarded      int64
	ResetErrors    int64
	TotalAcquires  int64
	TotalReleases  int64
	AverageAcquire time.Duration
}

// NewParserPool returns a pool that constructs parsers with factory and
// retains at most maxIdle idle instances. A maxIdle below 1 falls back
// to DefaultMaxPoolSize. A nil logger falls back to slog.Default().
func NewParserPool(factory ParserFactory, maxIdle int, logger *slog.Logger) *ParserPool {
	if maxIdle < 1 {
		maxIdle = DefaultMaxPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParserPool{
		factory: factory,
		active:  make(map[Parser]struct{}),
		maxIdle: maxIdle,
		logger:  logger,
	}
}

// Acquire pops an idle parser or constructs a new one. It never blocks
// and never fails because the pool is "full"; the only error is a
// factory failure, which is wrapped and returned.
func (p *ParserPool) Acquire() (Parser, error) {
	start := time.Now()
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		parser := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active[parser] = struct{}{}
		p.reused++
		p.acquires++
		p.acquireNanos += int64(time.Since(start))
		if len(p.active) > p.peakActive {
			p.peakActive = len(p.active)
		}
		p.mu.Unlock()
		return parser, nil
	}
	p.mu.Unlock()

	// Construct outside the lock; factories may be expensive.
	parser, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("acquire parser: %w", err)
	}

	p.mu.Lock()
	p.active[parser] = struct{}{}
	p.created++
	p.acquires++
	p.acquireNanos += int64(time.Since(start))
	if len(p.active) > p.peakActive {
		p.peakActive = len(p.active)
	}
	p.mu.Unlock()
	return parser, nil
}

// Release returns a parser to the pool. Instances the pool never handed
// out are ignored. The parser is reset before it goes back on the idle
// list; a reset failure is logged and the instance discarded, never
// propagated. When the idle list is already at capacity the instance is
// discarded as well.
func (p *ParserPool) Release(parser Parser) {
	if parser == nil {
		return
	}
	p.mu.Lock()
	if _, tracked := p.active[parser]; !tracked {
		p.mu.Unlock()
		return
	}
	delete(p.active, parser)
	p.releases++
	p.mu.Unlock()

	if err := parser.Reset(); err != nil {
		p.mu.Lock()
		p.resetErrors++
		p.discarded++
		p.mu.Unlock()
		p.logger.Warn("pool.reset.failed", "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.maxIdle {
		p.discarded++
		return
	}
	p.idle = append(p.idle, parser)
}

// PoolSize reports how many idle parsers are currently retained.
func (p *ParserPool) PoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// ActiveCount reports how many parsers are currently checked out.
func (p *ParserPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Dispose drops all idle and active bookkeeping. Instances still
// checked out keep working; releasing them afterwards is a no-op
// because the pool no longer tracks them. Idempotent.
func (p *ParserPool) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = nil
	p.active = make(map[Parser]struct{})
}

// Metrics returns a snapshot of the pool counters.
func (p *ParserPool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := PoolMetrics{
		PoolSize:      len(p.idle),
		ActiveCount:   len(p.active),
		PeakActive:    p.peakActive,
		Created:       p.created,
		Reused:        p.reused,
		Discarded:     p.discarded,
		ResetErrors:   p.resetErrors,
		TotalAcquires: p.acquires,
		TotalReleases: p.releases,
	}
	if p.acquires > 0 {
		m.AverageAcquire = time.Duration(p.acquireNanos / p.acquires)
	}
	return m
}
