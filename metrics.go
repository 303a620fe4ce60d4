package soundftp

import "time"

// MetricsCollector is an optional interface for collecting session metrics.
// Implementations can send metrics to monitoring systems like Prometheus.
// See the prommetrics package for one.
//
// Methods are called synchronously at the end of each operation and
// should not block. The session checks for a nil collector, so
// implementations don't need to handle nil receivers.
type MetricsCollector interface {
	// RecordOperation records one public session operation.
	// op is the operation name (e.g., "connect", "download", "list").
	// success indicates whether it returned a nil error.
	// duration is how long it took, including waiting for the session.
	RecordOperation(op string, success bool, duration time.Duration)

	// RecordTransfer records a completed file transfer.
	// direction is "download" or "upload".
	// bytes is the number of bytes moved over the data connection.
	RecordTransfer(direction string, bytes int64, duration time.Duration)
}
