package metrics

import "time"

// FsyncMetrics provides observability for the fsync adapter.
//
// Implementations collect metrics about requests, protocol errors,
// throughput, connection lifecycle and SLEEP waits. This interface is
// optional: when the adapter is given nil it uses a no-op implementation.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	adapter := fsync.New(config, prometheus.NewFsyncMetrics())
//
//	// Without metrics (no-op)
//	adapter := fsync.New(config, nil)
type FsyncMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - command: Command token (e.g., "GET", "PUT")
	//   - status: Status of the last response frame ("OK", "OUT", "ACK",
	//     "ERROR"), empty when nothing was written
	//   - duration: Time taken to process the request
	RecordRequest(command string, status string, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for command.
	RecordRequestStart(command string)

	// RecordRequestEnd decrements the in-flight gauge for command.
	RecordRequestEnd(command string)

	// RecordBytesTransferred records content bytes moved by GET ("out")
	// or PUT ("in").
	RecordBytesTransferred(command string, direction string, bytes int64)

	// RecordProtocolError counts a malformed request by error kind.
	RecordProtocolError(kind string)

	// RecordSleep records how a SLEEP ended ("woken", "cancelled",
	// "abandoned") and how long it waited.
	RecordSleep(outcome string, duration time.Duration)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired.
	RecordConnectionForceClosed()
}

// NewNoopFsyncMetrics returns an FsyncMetrics that records nothing.
func NewNoopFsyncMetrics() FsyncMetrics {
	return noopFsyncMetrics{}
}

type noopFsyncMetrics struct{}

func (noopFsyncMetrics) RecordRequest(command string, status string, duration time.Duration) {}
func (noopFsyncMetrics) RecordRequestStart(command string)                                   {}
func (noopFsyncMetrics) RecordRequestEnd(command string)                                     {}
func (noopFsyncMetrics) RecordBytesTransferred(command string, direction string, bytes int64) {
}
func (noopFsyncMetrics) RecordProtocolError(kind string)                    {}
func (noopFsyncMetrics) RecordSleep(outcome string, duration time.Duration) {}
func (noopFsyncMetrics) SetActiveConnections(count int32)                   {}
func (noopFsyncMetrics) RecordConnectionAccepted()                          {}
func (noopFsyncMetrics) RecordConnectionClosed()                            {}
func (noopFsyncMetrics) RecordConnectionForceClosed()                       {}
