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
	"errors"
	"testing"
)

// fakeParser is a minimal Parser for pool tests.
type fakeParser struct {
	content    string
	resetErr   error
	resetCalls int
}

func (f *fakeParser) LoadContent(content string) { f.content = content }

func (f *fakeParser) ExtractAllConstructs() (*ParseResult, error) {
	return &ParseResult{CountsByKind: map[ConstructKind]int{}}, nil
}

func (f *fakeParser) Reset() error {
	f.resetCalls++
	f.content = ""
	return f.resetErr
}

func fakeFactory() (Parser, error) { return &fakeParser{}, nil }

func TestPoolAcquireNeverBlocks(t *testing.T) {
	pool := NewParserPool(fakeFactory, 2, testLogger())

	// Three acquires against a maxIdle of 2: the cap governs retention,
	// not checkout.
	parsers := make([]Parser, 3)
	for i := range parsers {
		p, err := pool.Acquire()
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		parsers[i] = p
	}
	if got := pool.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount = %d, want 3", got)
	}

	for _, p := range parsers {
		pool.Release(p)
	}
	if got := pool.PoolSize(); got != 2 {
		t.Errorf("PoolSize after releases = %d, want 2 (third discarded)", got)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after releases = %d, want 0", got)
	}

	m := pool.Metrics()
	if m.Created != 3 {
		t.Errorf("Created = %d, want 3", m.Created)
	}
	if m.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", m.Discarded)
	}
	if m.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3", m.PeakActive)
	}
}

func TestPoolReuse(t *testing.T) {
	pool := NewParserPool(fakeFactory, 4, testLogger())

	p1, err := pool.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p1.LoadContent("class Foo {}")
	pool.Release(p1)

	p2, err := pool.Acquire()
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if p2 != p1 {
		t.Error("expected the released instance to be reused")
	}
	if fp := p2.(*fakeParser); fp.content != "" {
		t.Errorf("reused parser not reset, content = %q", fp.content)
	}
	if m := pool.Metrics(); m.Reused != 1 {
		t.Errorf("Reused = %d, want 1", m.Reused)
	}
}

func TestPoolReleaseSwallowsResetFailure(t *testing.T) {
	pool := NewParserPool(fakeFactory, 4, testLogger())

	p, err := pool.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.(*fakeParser).resetErr = errors.New("scratch state corrupted")

	// Must not panic and must not retain the broken instance.
	pool.Release(p)

	if got := pool.PoolSize(); got != 0 {
		t.Errorf("PoolSize = %d after failed reset, want 0", got)
	}
	m := pool.Metrics()
	if m.ResetErrors != 1 {
		t.Errorf("ResetErrors = %d, want 1", m.ResetErrors)
	}
	if m.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", m.Discarded)
	}
}

func TestPoolIgnoresUntrackedRelease(t *testing.T) {
	pool := NewParserPool(fakeFactory, 4, testLogger())

	stranger := &fakeParser{}
	pool.Release(stranger)
	pool.Release(nil)

	if got := pool.PoolSize(); got != 0 {
		t.Errorf("PoolSize = %d after untracked release, want 0", got)
	}
	if stranger.resetCalls != 0 {
		t.Error("pool reset an instance it never handed out")
	}

	// Double release of a tracked instance: second is untracked by then.
	p, err := pool.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pool.Release(p)
	pool.Release(p)
	if got := pool.PoolSize(); got != 1 {
		t.Errorf("PoolSize = %d after double release, want 1", got)
	}
}

func TestPoolAcquireFactoryFailure(t *testing.T) {
	boom := errors.New("grammar unavailable")
	pool := NewParserPool(func() (Parser, error) { return nil, boom }, 2, testLogger())

	if _, err := pool.Acquire(); !errors.Is(err, boom) {
		t.Fatalf("acquire error = %v, want wrapped factory error", err)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d after failed acquire, want 0", got)
	}
}

func TestPoolDispose(t *testing.T) {
	pool := NewParserPool(fakeFactory, 4, testLogger())

	held, err := pool.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	released, err := pool.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pool.Release(released)

	pool.Dispose()
	pool.Dispose() // idempotent

	if got := pool.PoolSize(); got != 0 {
		t.Errorf("PoolSize = %d after dispose, want 0", got)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d after dispose, want 0", got)
	}

	// Releasing the instance that was out during dispose is a no-op.
	pool.Release(held)
	if got := pool.PoolSize(); got != 0 {
		t.Errorf("PoolSize = %d after post-dispose release, want 0", got)
	}

	// The pool still works after dispose.
	if _, err := pool.Acquire(); err != nil {
		t.Errorf("acquire after dispose: %v", err)
	}
}
