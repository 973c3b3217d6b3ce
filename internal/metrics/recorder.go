// Package metrics records agent activity as Prometheus metrics and serves
// them over HTTP.
package metrics

// Connect attempt results.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultRefused = "refused"
)

// Dispatch and publish statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPanic = "panic"
)

// Recorder receives agent events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ConnectAttempt(result string)
	Restart()
	SetConnected(connected bool)
	MessageRouted(messageID string)
	DecodeError()
	Dispatch(listener, status string)
	Publish(messageID, status string)
	SetSupportedOperations(n int)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a recorder that discards all events.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ConnectAttempt(string)      {}
func (NoopRecorder) Restart()                   {}
func (NoopRecorder) SetConnected(bool)          {}
func (NoopRecorder) MessageRouted(string)       {}
func (NoopRecorder) DecodeError()               {}
func (NoopRecorder) Dispatch(string, string)    {}
func (NoopRecorder) Publish(string, string)     {}
func (NoopRecorder) SetSupportedOperations(int) {}
