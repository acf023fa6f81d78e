package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	SessionsTotal         *prometheus.CounterVec
	SessionsActive        prometheus.Gauge
	SessionDuration       prometheus.Histogram
	BytesTransferredTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter
	ChunksRetransmitted   *prometheus.CounterVec

	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration prometheus.Histogram

	FECReconstructionsTotal        prometheus.Counter
	FECReconstructionFailuresTotal prometheus.Counter

	CryptoOperationsTotal   *prometheus.CounterVec
	CryptoOperationDuration prometheus.Histogram

	BitmapPersistDuration   prometheus.Histogram
	DatabaseOperationsTotal *prometheus.CounterVec
	DiskSpaceUsedBytes      prometheus.Gauge

	activeSessions int64
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_sessions_total", Help: "Total transfer sessions by terminal status"},
			[]string{"status"},
		),
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{Name: "airdock_sessions_active", Help: "Currently running transfer sessions"},
		),
		SessionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airdock_session_duration_seconds",
				Help:    "Session completion time distribution",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),
		BytesTransferredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_bytes_transferred_total", Help: "Total bytes transferred"},
			[]string{"direction"},
		),
		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "airdock_chunks_sent_total", Help: "Total chunks sent"},
		),
		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "airdock_chunks_received_total", Help: "Total chunks received"},
		),
		ChunksRetransmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_chunks_retransmitted_total", Help: "Chunks requiring retransmission"},
			[]string{"reason"},
		),
		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_connections_total", Help: "TCP connection attempts"},
			[]string{"result"},
		),
		ConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{Name: "airdock_connections_active", Help: "Active TCP connections"},
		),
		ConnectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airdock_connection_duration_seconds",
				Help:    "Connection lifetime",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		FECReconstructionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "airdock_fec_reconstructions_total", Help: "Chunks reconstructed via forward error correction"},
		),
		FECReconstructionFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{Name: "airdock_fec_reconstruction_failures_total", Help: "Failed FEC reconstructions"},
		),
		CryptoOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_crypto_operations_total", Help: "Cryptographic operations performed"},
			[]string{"operation"},
		),
		CryptoOperationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airdock_crypto_operation_duration_seconds",
				Help:    "Crypto operation latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),
		BitmapPersistDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airdock_bitmap_persist_duration_seconds",
				Help:    "Bitmap persistence latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
			},
		),
		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "airdock_database_operations_total", Help: "Database operation count"},
			[]string{"operation", "result"},
		),
		DiskSpaceUsedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{Name: "airdock_disk_space_used_bytes", Help: "Disk space used by received files"},
		),
	}
}

// RecordSessionStart increments active session counters.
func (m *Metrics) RecordSessionStart() {
	atomic.AddInt64(&m.activeSessions, 1)
	m.SessionsActive.Set(float64(atomic.LoadInt64(&m.activeSessions)))
}

// RecordSessionComplete records terminal session metrics.
func (m *Metrics) RecordSessionComplete(status string, durationSeconds float64) {
	atomic.AddInt64(&m.activeSessions, -1)
	m.SessionsActive.Set(float64(atomic.LoadInt64(&m.activeSessions)))
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a sent chunk.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for a received chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordChunkRetransmit increments retransmit counters.
func (m *Metrics) RecordChunkRetransmit(reason string) {
	m.ChunksRetransmitted.WithLabelValues(reason).Inc()
}

// RecordConnection logs a dial/accept attempt's outcome.
func (m *Metrics) RecordConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ConnectionsTotal.WithLabelValues(result).Inc()
	if success {
		m.ConnectionsActive.Inc()
	}
}

// RecordConnectionClose updates metrics for a closed connection.
func (m *Metrics) RecordConnectionClose(durationSeconds float64) {
	m.ConnectionsActive.Dec()
	m.ConnectionDuration.Observe(durationSeconds)
}

// RecordCryptoOperation records cryptographic operation duration.
func (m *Metrics) RecordCryptoOperation(operation string, durationSeconds float64) {
	m.CryptoOperationsTotal.WithLabelValues(operation).Inc()
	m.CryptoOperationDuration.Observe(durationSeconds)
}

// RecordFECReconstruction updates FEC reconstruction counters.
func (m *Metrics) RecordFECReconstruction(success bool) {
	if success {
		m.FECReconstructionsTotal.Inc()
	} else {
		m.FECReconstructionFailuresTotal.Inc()
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
