package common

import "fmt"

// SyncErrType enumerates the failures that the synchronization layer reports
// to its callers.
type SyncErrType uint32

const (
	// NotSerializable means a state snapshot could not be cloned for the wire.
	NotSerializable SyncErrType = iota
	// AlreadyListening means a second listener was registered on a channel.
	AlreadyListening
	// ChannelClosed means the channel was used after Close.
	ChannelClosed
	// NodeShutdown means the node no longer accepts requests.
	NodeShutdown
)

// SyncErr is the error type returned by the channel and node packages. The
// component names the part of the system that failed, the key the offending
// value (a peer address, a channel name, a message id).
type SyncErr struct {
	component string
	errType   SyncErrType
	key       string
}

// NewSyncErr ...
func NewSyncErr(component string, errType SyncErrType, key string) SyncErr {
	return SyncErr{
		component: component,
		errType:   errType,
		key:       key,
	}
}

// Error ...
func (e SyncErr) Error() string {
	m := ""
	switch e.errType {
	case NotSerializable:
		m = "Not Serializable"
	case AlreadyListening:
		m = "Already Listening"
	case ChannelClosed:
		m = "Channel Closed"
	case NodeShutdown:
		m = "Node Shutdown"
	}

	return fmt.Sprintf("%s, %s, %s", e.component, e.key, m)
}

// IsSync checks that an error is of type SyncErr and that its code matches the
// provided SyncErr code.
func IsSync(err error, t SyncErrType) bool {
	syncErr, ok := err.(SyncErr)
	return ok && syncErr.errType == t
}
