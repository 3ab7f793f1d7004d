package cli

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by transactions issued before Connect or after
// the connection was lost.
var ErrNotConnected = errors.New("not connected to relay server")

// HandshakeError reports that the first line received after connecting was
// not the ready sentinel.
type HandshakeError struct {
	Address string
	Got     string
	Err     error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake with %s failed: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("handshake with %s failed: unexpected greeting %q", e.Address, e.Got)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ConnectionError wraps a network failure on the relay connection.
type ConnectionError struct {
	Op      string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relay %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that does not fit the expected response.
type ProtocolError struct {
	Expected string
	Got      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s, got %q", e.Expected, e.Got)
}
