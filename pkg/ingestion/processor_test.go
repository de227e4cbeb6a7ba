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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// scriptedParser extracts one class construct per "class " line and
// fails on any content containing a FAIL marker.
type scriptedParser struct {
	content string
	delay   time.Duration
}

func (s *scriptedParser) LoadContent(content string) { s.content = content }

func (s *scriptedParser) ExtractAllConstructs() (*ParseResult, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if strings.Contains(s.content, "FAIL") {
		return nil, errors.New("scripted parse failure")
	}
	res := &ParseResult{CountsByKind: make(map[ConstructKind]int)}
	for _, line := range strings.Split(s.content, "\n") {
		rest, ok := strings.CutPrefix(line, "class ")
		if !ok {
			continue
		}
		res.Constructs = append(res.Constructs, Construct{
			Name:      strings.TrimSpace(rest),
			Kind:      KindClass,
			Namespace: "Dump",
		})
		res.CountsByKind[KindClass]++
	}
	return res, nil
}

func (s *scriptedParser) Reset() error {
	s.content = ""
	return nil
}

func scriptedFactory() (Parser, error) { return &scriptedParser{}, nil }

// tenChunkContent is 100 fixed-width lines of 10 bytes: chunk size 100
// cuts it into exactly 10 chunks of 10 lines each. Line 55 carries a
// FAIL marker so chunk index 5 fails to parse.
func tenChunkContent() string {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		if i == 55 {
			b.WriteString("FAIL-C55x\n")
			continue
		}
		fmt.Fprintf(&b, "class C%02d\n", i)
	}
	return b.String()
}

func TestProcessorContinuesPastChunkError(t *testing.T) {
	pool := NewParserPool(scriptedFactory, 4, testLogger())
	proc := NewChunkProcessor(pool, NewGate(4, GateOptions{}, testLogger()), testLogger())

	res, err := proc.ProcessContent(context.Background(), tenChunkContent(), ProcessorOptions{
		ChunkSize:      100,
		ChunkOverlap:   0,
		MaxConcurrency: 4,
	})
	if err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}

	if res.State != StateCompletedWithErrors {
		t.Errorf("State = %s, want %s", res.State, StateCompletedWithErrors)
	}
	if res.TotalChunks != 10 {
		t.Errorf("TotalChunks = %d, want 10", res.TotalChunks)
	}
	if res.ProcessedChunks != 10 {
		t.Errorf("ProcessedChunks = %d, want 10", res.ProcessedChunks)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %d, want 1", len(res.Errors))
	}
	if res.Errors[0].ChunkIndex != 5 {
		t.Errorf("failed chunk = %d, want 5", res.Errors[0].ChunkIndex)
	}
	if res.Coverage != 1.0 {
		t.Errorf("Coverage = %v, want 1.0", res.Coverage)
	}

	// 90 class lines survive: the failed chunk's 10 lines yield nothing.
	if got := len(res.Parse.Constructs); got != 90 {
		t.Errorf("merged constructs = %d, want 90", got)
	}
	if got := res.Parse.CountsByKind[KindClass]; got != 90 {
		t.Errorf("CountsByKind[class] = %d, want 90", got)
	}

	if res.Metrics.PeakConcurrency < 1 || res.Metrics.PeakConcurrency > 4 {
		t.Errorf("PeakConcurrency = %d, want within [1,4]", res.Metrics.PeakConcurrency)
	}
}

func TestProcessorStopOnError(t *testing.T) {
	pool := NewParserPool(scriptedFactory, 4, testLogger())
	proc := NewChunkProcessor(pool, nil, testLogger())

	_, err := proc.ProcessContent(context.Background(), tenChunkContent(), ProcessorOptions{
		ChunkSize:      100,
		ChunkOverlap:   0,
		MaxConcurrency: 1,
		StopOnError:    true,
	})
	if err == nil {
		t.Fatal("expected an error with StopOnError")
	}
	var cerr *ChunkError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *ChunkError", err)
	}
	if cerr.ChunkIndex != 5 {
		t.Errorf("ChunkIndex = %d, want 5", cerr.ChunkIndex)
	}
	if got := proc.State(); got != StateError {
		t.Errorf("State = %s, want %s", got, StateError)
	}
}

func TestProcessorCancellation(t *testing.T) {
	pool := NewParserPool(scriptedFactory, 4, testLogger())
	proc := NewChunkProcessor(pool, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.ProcessContent(ctx, tenChunkContent(), ProcessorOptions{
		ChunkSize: 100,
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if got := proc.State(); got != StateCancelled {
		t.Errorf("State = %s, want %s", got, StateCancelled)
	}
}

func TestProcessorPauseAndResume(t *testing.T) {
	slowFactory := func() (Parser, error) {
		return &scriptedParser{delay: 25 * time.Millisecond}, nil
	}
	pool := NewParserPool(slowFactory, 4, testLogger())
	proc := NewChunkProcessor(pool, NewGate(2, GateOptions{}, testLogger()), testLogger())

	var content strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&content, "class P%03d\n", i)
	}

	type outcome struct {
		res *ProcessResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := proc.ProcessContent(context.Background(), content.String(), ProcessorOptions{
			ChunkSize:      110, // 10 lines per chunk, 20 chunks
			ChunkOverlap:   0,
			MaxConcurrency: 2,
		})
		done <- outcome{res, err}
	}()

	deadline := time.After(2 * time.Second)
	for proc.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("processor never started")
		case <-time.After(time.Millisecond):
		}
	}

	state, err := proc.Pause()
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if state.State != StatePaused {
		t.Fatalf("snapshot state = %s, want %s", state.State, StatePaused)
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("paused run returned error: %v", out.err)
	}
	if out.res.State != StatePaused {
		t.Errorf("run result state = %s, want %s", out.res.State, StatePaused)
	}
	if out.res.ProcessedChunks >= out.res.TotalChunks {
		t.Fatalf("pause left nothing pending: %d/%d processed",
			out.res.ProcessedChunks, out.res.TotalChunks)
	}

	// The snapshot must survive a serialization round trip and resume
	// in a fresh processor without re-running finished chunks.
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	var restored ProcessingState
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}

	proc2 := RestoreState(&restored,
		NewParserPool(slowFactory, 4, testLogger()),
		NewGate(2, GateOptions{}, testLogger()),
		testLogger())
	res, err := proc2.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("resumed state = %s, want %s", res.State, StateCompleted)
	}
	if res.ProcessedChunks != res.TotalChunks {
		t.Errorf("resumed processed %d/%d chunks", res.ProcessedChunks, res.TotalChunks)
	}
	if got := len(res.Parse.Constructs); got != 200 {
		t.Errorf("merged constructs = %d, want 200", got)
	}
}

func TestProcessorRejectsConcurrentRun(t *testing.T) {
	slowFactory := func() (Parser, error) {
		return &scriptedParser{delay: 50 * time.Millisecond}, nil
	}
	pool := NewParserPool(slowFactory, 2, testLogger())
	proc := NewChunkProcessor(pool, nil, testLogger())

	go proc.ProcessContent(context.Background(), strings.Repeat("class A\n", 100), ProcessorOptions{ChunkSize: 64})

	deadline := time.After(2 * time.Second)
	for proc.State() != StateProcessing {
		select {
		case <-deadline:
			t.Fatal("processor never started")
		case <-time.After(time.Millisecond):
		}
	}
	if _, err := proc.ProcessContent(context.Background(), "class B\n", ProcessorOptions{}); err == nil {
		t.Error("expected rejection while a run is active")
	}
	proc.Pause()
}

func TestBuildChunksPartitionInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "public class X%d\n{\n\tint f;\n}\n", i)
	}
	content := b.String()

	chunks := buildChunks(content, 300, 32)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}

	var pos int64
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if c.StartOffset != pos {
			t.Errorf("chunk %d starts at %d, want %d (no gaps, no overlap in ranges)",
				i, c.StartOffset, pos)
		}
		if c.EndOffset <= c.StartOffset {
			t.Errorf("chunk %d is empty: [%d,%d)", i, c.StartOffset, c.EndOffset)
		}
		if int(c.EndOffset-c.StartOffset) != c.Size {
			t.Errorf("chunk %d Size %d disagrees with range [%d,%d)",
				i, c.Size, c.StartOffset, c.EndOffset)
		}
		pos = c.EndOffset
	}
	if pos != int64(len(content)) {
		t.Errorf("chunks cover %d bytes, want %d", pos, len(content))
	}

	// Interior cuts snap to a line boundary.
	for _, c := range chunks[:len(chunks)-1] {
		if content[c.EndOffset-1] != '\n' {
			t.Errorf("chunk %d cut mid-line at offset %d", c.Index, c.EndOffset)
		}
	}
}

func TestBuildChunksNoNewlines(t *testing.T) {
	content := strings.Repeat("x", 1000)
	chunks := buildChunks(content, 256, 16)
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	for i, c := range chunks {
		if c.Size == 0 {
			t.Errorf("chunk %d is zero-length", i)
		}
	}
}

func TestCombineChunkResultsDeduplicates(t *testing.T) {
	player := Construct{Name: "Player", Kind: KindClass, Namespace: "Game"}
	mode := Construct{Name: "Mode", Kind: KindEnum, Namespace: "Game"}

	chunks := []*Chunk{
		{Index: 1, Processed: true, Result: &ParseResult{
			Constructs:   []Construct{player, mode},
			CountsByKind: map[ConstructKind]int{KindClass: 1, KindEnum: 1},
		}},
		{Index: 0, Processed: true, Result: &ParseResult{
			Constructs:   []Construct{player},
			CountsByKind: map[ConstructKind]int{KindClass: 1},
			SyntaxErrors: 2,
		}},
	}

	merged := combineChunkResults(chunks)
	if got := len(merged.Constructs); got != 2 {
		t.Fatalf("merged constructs = %d, want 2", got)
	}
	// Chunk order wins: index 0's copy of Player is kept.
	if merged.Constructs[0].QualifiedName() != "Game.Player" {
		t.Errorf("first construct = %s, want Game.Player", merged.Constructs[0].QualifiedName())
	}
	if merged.CountsByKind[KindClass] != 1 || merged.CountsByKind[KindEnum] != 1 {
		t.Errorf("CountsByKind = %v, want one class and one enum", merged.CountsByKind)
	}
	if merged.SyntaxErrors != 2 {
		t.Errorf("SyntaxErrors = %d, want 2", merged.SyntaxErrors)
	}
}
