// Package obslog defines the logging interface used throughout this
// service.
//
// Given that there're many go logging frameworks out there, business
// code shouldn't pick one directly. Instead it logs through this
// interface, gated by topic, and the process wires in a concrete
// implementation (see obslog/logrus) at startup.
package obslog

// Topics specify the mask of enabled logging topics.
//
// The logger checks whether the current call's topic is enabled before
// doing any work, so a disabled topic costs nothing beyond the mask
// check.
type Topics int

const (
	// TopicRequest records the inbound HTTP request's method and path.
	TopicRequest Topics = 1 << iota

	// TopicLock is the topic for lock acquisition and release decisions.
	// Neither pathlock nor storage logs under it.
	TopicLock

	// TopicFS records filesystem mutations performed by storage.
	TopicFS

	// TopicError records every handler error that is about to be
	// translated into a client-facing response.
	TopicError
)

const AllTopics = Topics(0) | TopicRequest | TopicLock | TopicFS | TopicError

// M is shorthand for a structured field set.
type M = map[string]any

// Log is the logger interface every package in this service logs
// through.
type Log interface {
	// Enabled reports whether any of topics is currently enabled.
	Enabled(topics Topics) bool

	// Log emits msg under topics, if enabled.
	Log(topics Topics, msg string, fields M)
}

// NoLog is the null implementation of Log, used as the default so tests
// and callers that don't care about logging don't need a real logger.
type NoLog struct{}

func (NoLog) Enabled(Topics) bool   { return false }
func (NoLog) Log(Topics, string, M) {}

var _ Log = NoLog{}
