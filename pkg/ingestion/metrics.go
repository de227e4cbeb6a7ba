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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds the Prometheus collectors for the pipeline.
// Registration is lazy so importing the package never touches the default
// registry; the first record call does.
type metricsIngestion struct {
	once sync.Once

	gateTimeouts  prometheus.Counter
	gateWait      prometheus.Histogram
	chunksOK      prometheus.Counter
	chunkErrors   prometheus.Counter
	chunkDuration prometheus.Histogram
	embedCalls    prometheus.Counter
	embedRetries  prometheus.Counter
	embedHits     prometheus.Counter
	batches       prometheus.Counter
	insertRetries prometheus.Counter
	insertTime    prometheus.Histogram
	docsIndexed   prometheus.Counter
	docsSkipped   prometheus.Counter
	bufferFlushes prometheus.Counter
}

var ingMetrics metricsIngestion

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.gateTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_gate_timeouts_total",
			Help: "Esperas de permiso agotadas por timeout",
		})
		m.gateWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dredge_ing_gate_wait_seconds",
			Help:    "Tiempo de espera por un permiso",
			Buckets: latencyBuckets,
		})
		m.chunksOK = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_chunks_processed_total",
			Help: "Chunks procesados con éxito",
		})
		m.chunkErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_chunk_errors_total",
			Help: "Errores de parseo por chunk",
		})
		m.chunkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dredge_ing_chunk_seconds",
			Help:    "Duración del procesamiento por chunk",
			Buckets: latencyBuckets,
		})
		m.embedCalls = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_embed_calls_total",
			Help: "Llamadas al proveedor de embeddings",
		})
		m.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_embed_retries_total",
			Help: "Reintentos de embeddings",
		})
		m.embedHits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_embed_cache_hits_total",
			Help: "Aciertos de la caché de embeddings",
		})
		m.batches = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_batches_total",
			Help: "Lotes de documentos insertados",
		})
		m.insertRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_insert_retries_total",
			Help: "Reintentos de inserción por lote",
		})
		m.insertTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dredge_ing_insert_seconds",
			Help:    "Duración de la inserción por lote",
			Buckets: latencyBuckets,
		})
		m.docsIndexed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_documents_indexed_total",
			Help: "Documentos indexados",
		})
		m.docsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_documents_skipped_total",
			Help: "Documentos omitidos por hash duplicado",
		})
		m.bufferFlushes = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dredge_ing_buffer_flushes_total",
			Help: "Descargas de búfer por presión de memoria",
		})
		prometheus.MustRegister(
			m.gateTimeouts, m.gateWait,
			m.chunksOK, m.chunkErrors, m.chunkDuration,
			m.embedCalls, m.embedRetries, m.embedHits,
			m.batches, m.insertRetries, m.insertTime,
			m.docsIndexed, m.docsSkipped,
			m.bufferFlushes,
		)
	})
}

func recordGateTimeout() {
	ingMetrics.init()
	ingMetrics.gateTimeouts.Inc()
}

func observeGateWait(d time.Duration) {
	ingMetrics.init()
	ingMetrics.gateWait.Observe(d.Seconds())
}

func recordChunkProcessed(d time.Duration) {
	ingMetrics.init()
	ingMetrics.chunksOK.Inc()
	ingMetrics.chunkDuration.Observe(d.Seconds())
}

func recordChunkError() {
	ingMetrics.init()
	ingMetrics.chunkErrors.Inc()
}

func recordEmbedCall() {
	ingMetrics.init()
	ingMetrics.embedCalls.Inc()
}

func recordEmbedRetry() {
	ingMetrics.init()
	ingMetrics.embedRetries.Inc()
}

func recordEmbedCacheHit() {
	ingMetrics.init()
	ingMetrics.embedHits.Inc()
}

func recordBatchInsert(d time.Duration) {
	ingMetrics.init()
	ingMetrics.batches.Inc()
	ingMetrics.insertTime.Observe(d.Seconds())
}

func recordInsertRetry() {
	ingMetrics.init()
	ingMetrics.insertRetries.Inc()
}

func recordDocumentsIndexed(indexed, skipped int) {
	ingMetrics.init()
	ingMetrics.docsIndexed.Add(float64(indexed))
	ingMetrics.docsSkipped.Add(float64(skipped))
}

func recordBufferFlush() {
	ingMetrics.init()
	ingMetrics.bufferFlushes.Inc()
}
