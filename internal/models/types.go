package models

// Protocol is the transport protocol of a scanned port
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol maps a raw protocol token onto a Protocol.
// The second return value is false for anything other than tcp or udp.
func ParseProtocol(s string) (Protocol, bool) {
	switch Protocol(s) {
	case ProtocolTCP, ProtocolUDP:
		return Protocol(s), true
	default:
		return "", false
	}
}

// TaskStatus represents the current state of a background scan task
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// Terminal reports whether the task has finished, successfully or not.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// ScriptChange classifies how a script result moved between two scans
type ScriptChange string

const (
	ScriptNew     ScriptChange = "new"
	ScriptRemoved ScriptChange = "removed"
	ScriptChanged ScriptChange = "changed"
)
