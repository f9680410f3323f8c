// Package transport defines the capability interface the protocol core
// drives. Concrete BLE, serial, or CoAP links implement it; the core never
// sees past this contract.
package transport

import (
	"context"
	"errors"

	"github.com/danmuck/devlink/internal/protocol"
)

var (
	// ErrTimeout and ErrDisconnected are transient: the chunk loop may retry
	// the in-flight exchange a bounded number of times.
	ErrTimeout      = errors.New("transport: exchange timed out")
	ErrDisconnected = errors.New("transport: link disconnected")
	// ErrBusy means the transport disallows concurrent use and an exchange
	// is already in flight. Callers must serialize externally; the core
	// fails fast rather than queueing.
	ErrBusy = errors.New("transport: exchange already in flight")
)

// Transport is one framed request/response link to a device.
type Transport interface {
	// Send transmits one framed request and blocks until the matching reply
	// or a transport-level timeout.
	Send(ctx context.Context, req []byte) ([]byte, error)
	// MTU is the negotiated maximum packet size for this connection.
	MTU() int
	// Scheme reports the framing this link speaks.
	Scheme() protocol.Scheme
}

// ConnPriorityRequester is an optional capability: a transport may accept a
// hint to switch into a higher-throughput connection mode. The core requests
// it opportunistically at transfer start and ignores failures.
type ConnPriorityRequester interface {
	RequestHighThroughput() error
}

// Transient reports whether err is a transport failure eligible for bounded
// retry within a chunk loop.
func Transient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDisconnected)
}
