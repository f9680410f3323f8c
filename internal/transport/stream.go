package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/header"
)

const DefaultStreamMTU = 512

// Stream speaks a standard scheme over any byte stream (serial line, pty,
// TCP bridge). Replies are reassembled with protocol.ExpectedLength since
// the stream itself carries no packet boundaries. One exchange at a time;
// a second concurrent Send fails fast with ErrBusy.
type Stream struct {
	rw     io.ReadWriteCloser
	scheme protocol.Scheme
	mtu    int

	mu   sync.Mutex
	busy bool
}

// NewStream wraps rw as a standard-scheme transport. mtu <= 0 selects
// DefaultStreamMTU.
func NewStream(rw io.ReadWriteCloser, scheme protocol.Scheme, mtu int) (*Stream, error) {
	if scheme.IsCoap() {
		return nil, fmt.Errorf("transport: stream cannot carry %s", scheme)
	}
	if mtu <= 0 {
		mtu = DefaultStreamMTU
	}
	return &Stream{rw: rw, scheme: scheme, mtu: mtu}, nil
}

func (s *Stream) MTU() int                { return s.mtu }
func (s *Stream) Scheme() protocol.Scheme { return s.scheme }

func (s *Stream) Close() error { return s.rw.Close() }

func (s *Stream) Send(ctx context.Context, req []byte) ([]byte, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.rw.Write(req); err != nil {
		return nil, wrapStreamErr(err)
	}
	return s.readPacket()
}

// readPacket buffers the fixed header, asks the response builder how many
// bytes the packet declares, then reads the remainder.
func (s *Stream) readPacket() ([]byte, error) {
	buf := make([]byte, header.Size)
	if _, err := io.ReadFull(s.rw, buf); err != nil {
		return nil, wrapStreamErr(err)
	}
	total, err := protocol.ExpectedLength(s.scheme, buf)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, total)
	copy(packet, buf)
	if total > header.Size {
		if _, err := io.ReadFull(s.rw, packet[header.Size:]); err != nil {
			return nil, wrapStreamErr(err)
		}
	}
	return packet, nil
}

func wrapStreamErr(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	default:
		return err
	}
}
