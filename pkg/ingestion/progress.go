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

import "time"

// Phase identifies which stage of an operation a progress event belongs to.
type Phase string

const (
	PhaseReading    Phase = "reading"
	PhaseParsing    Phase = "parsing"
	PhaseChunking   Phase = "chunking"
	PhaseEmbedding  Phase = "embedding"
	PhaseIndexing   Phase = "indexing"
	PhaseFinalizing Phase = "finalizing"
)

// ProgressEvent is an observational snapshot sent to a progress sink.
// Events are advisory; they are never authoritative state.
type ProgressEvent struct {
	Phase          Phase
	Percent        float64
	BytesProcessed int64
	TotalBytes     int64
	ItemsDone      int
	ItemsTotal     int
	ETA            time.Duration
}

// ProgressFunc receives progress events. Sinks are invoked on their own
// goroutine so a slow or blocking sink can never stall the pipeline.
type ProgressFunc func(ProgressEvent)

// notify delivers an event to fn fire-and-forget. A nil fn is allowed.
func notify(fn ProgressFunc, ev ProgressEvent) {
	if fn == nil {
		return
	}
	go fn(ev)
}
