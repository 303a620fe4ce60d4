package soundftp

import (
	"io"
	"log/slog"
	"time"

	"github.com/gonzalop/soundftp/ftp"
)

// Option configures a Session.
type Option func(*Session)

// ProgressFunc receives the running byte count of a transfer. name is
// the remote file name as passed to the operation.
type ProgressFunc func(name string, transferred int64)

// WithTimeout sets the deadline for connecting and for every control
// command. The default is 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, ftp.WithTimeout(timeout))
	}
}

// WithTransferTimeout sets the idle deadline of data connections and the
// wait for a transfer's completion reply. The default is 5 minutes.
func WithTransferTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, ftp.WithTransferTimeout(timeout))
	}
}

// WithLogger mirrors the operation log to logger (Info for successes,
// Warn for failures) and passes it to the protocol engine, which logs
// commands and replies at Debug.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	s := soundftp.New(soundftp.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger == nil {
			return
		}
		s.logger = logger
		s.engineOpts = append(s.engineOpts, ftp.WithLogger(logger))
	}
}

// WithActiveMode uses PORT/EPRT data connections instead of passive mode.
func WithActiveMode() Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, ftp.WithActiveMode())
	}
}

// WithDisableEPSV goes straight to PASV for passive data connections.
func WithDisableEPSV() Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, ftp.WithDisableEPSV())
	}
}

// WithBandwidthLimit caps transfer throughput in bytes per second.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, ftp.WithBandwidthLimit(bytesPerSecond))
	}
}

// WithProgress reports the progress of downloads and uploads.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) {
		s.progress = fn
	}
}

// WithMetrics records every operation and transfer on collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Session) {
		s.metrics = collector
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
