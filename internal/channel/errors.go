package channel

import (
	"errors"
	"fmt"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrDisconnected     = errors.New("channel disconnected")
	ErrNoToken          = errors.New("not signed in")
	ErrAckTimeout       = errors.New("ack timeout")
	ErrDuplicateHandler = errors.New("event handler already registered")
)

// AckError is a server-reported failure on an acknowledged emit. It is
// surfaced to the user by the subsystem that issued the request and
// never crosses subsystem boundaries as a panic.
type AckError struct {
	Event  EventType
	Reason string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Event, e.Reason)
}
