// Package observability wraps the daemon's structured logging, Prometheus metrics, and
// distributed tracing behind a small facade the rest of the daemon depends on.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession adds session_id context to logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithPeer adds peer_device_id context to logger.
func (l *Logger) WithPeer(peerDeviceID string) *Logger {
	return &Logger{logger: l.logger.With().Str("peer_device_id", peerDeviceID).Logger()}
}

// WithFile adds file context to logger.
func (l *Logger) WithFile(relativePath string, sizeBytes int64) *Logger {
	return &Logger{
		logger: l.logger.With().
			Str("relative_path", relativePath).
			Int64("size_bytes", sizeBytes).
			Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// SessionStarted logs a send_files or accepted-connection session entering "running".
func (l *Logger) SessionStarted(sessionID, direction, peerDeviceID string, totalBytes int64, fileCount int) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("direction", direction).
		Str("peer_device_id", peerDeviceID).
		Int64("total_bytes", totalBytes).
		Int("file_count", fileCount).
		Msg("session started")
}

// ChunkRetransmitted logs a chunk that timed out or failed verification and was rescheduled.
func (l *Logger) ChunkRetransmitted(sessionID, fileID string, chunkIndex int, reason string) {
	l.logger.Debug().
		Str("session_id", sessionID).
		Str("file_id", fileID).
		Int("chunk_index", chunkIndex).
		Str("reason", reason).
		Msg("chunk retransmitted")
}

// SessionProgress logs a throttled progress snapshot.
func (l *Logger) SessionProgress(sessionID string, transferredBytes, totalBytes int64, speedBps float64) {
	progress := 0.0
	if totalBytes > 0 {
		progress = float64(transferredBytes) / float64(totalBytes) * 100.0
	}
	l.logger.Debug().
		Str("session_id", sessionID).
		Int64("transferred_bytes", transferredBytes).
		Int64("total_bytes", totalBytes).
		Float64("progress_percent", progress).
		Float64("speed_bps", speedBps).
		Msg("session progress")
}

// SessionFinished logs a session reaching a terminal status.
func (l *Logger) SessionFinished(sessionID, status string, duration time.Duration, errCode string) {
	ev := l.logger.Info()
	if status != "success" {
		ev = l.logger.Warn()
	}
	ev.Str("session_id", sessionID).
		Str("status", status).
		Float64("duration_seconds", duration.Seconds()).
		Str("error_code", errCode).
		Msg("session finished")
}

// AuthFailed logs a rejected handshake.
func (l *Logger) AuthFailed(peerDeviceID, remoteAddr, reason string) {
	l.logger.Warn().
		Str("peer_device_id", peerDeviceID).
		Str("remote_addr", remoteAddr).
		Str("reason", reason).
		Msg("pairing authentication failed")
}

// ConnectionEstablished logs a newly accepted or dialed TCP connection.
func (l *Logger) ConnectionEstablished(remoteAddr, role string) {
	l.logger.Info().
		Str("remote_addr", remoteAddr).
		Str("role", role).
		Msg("connection established")
}

// ConnectionFailed logs a dial or accept failure.
func (l *Logger) ConnectionFailed(remoteAddr string, err error) {
	l.logger.Error().
		Str("remote_addr", remoteAddr).
		Err(err).
		Msg("connection failed")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
