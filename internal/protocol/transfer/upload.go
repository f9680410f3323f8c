package transfer

import (
	"context"
	"fmt"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
	"github.com/danmuck/devlink/internal/transport"
)

// Upload pushes one resource to the device in chunks sized to the
// negotiated MTU. The structural mirror of Download: the source buffer is
// sliced instead of accumulated, and the device acknowledges each chunk
// with the next expected offset.
type Upload struct {
	controller
	group uint16
	cmd   uint8
	obs   UploadObserver
}

// NewUpload builds an upload controller for one command (group, cmd) bound
// to tr. Single-use, like Download.
func NewUpload(tr transport.Transport, group uint16, cmd uint8, obs UploadObserver, cfg Config) *Upload {
	u := &Upload{group: group, cmd: cmd, obs: obs}
	u.init(tr, cfg, "upload")
	return u
}

// Start begins uploading data as resource. Fails with ErrAlreadyInProgress
// when a session exists.
func (u *Upload) Start(ctx context.Context, resource string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return u.begin(ctx, resource, data, u.step, u.deliver)
}

func (u *Upload) step(ctx context.Context, s *session) error {
	n, err := u.chunkLen(s)
	if err != nil {
		return err
	}
	end := s.offset + int64(n)
	if end > s.total {
		end = s.total
	}
	doc := payload.Document{
		{Key: "name", Value: payload.Text(s.resource)},
		{Key: "off", Value: payload.Int(s.offset)},
	}
	if s.offset == 0 {
		doc = append(doc, payload.Entry{Key: "len", Value: payload.Int(s.total)})
	}
	doc = append(doc, payload.Entry{Key: "data", Value: payload.Bytes(s.buf[s.offset:end])})

	seq := s.nextSeq()
	pkt, err := protocol.EncodeRequest(header.OpWriteRequest, 0, u.group, seq, u.cmd, doc)
	if err != nil {
		return err
	}
	resp, err := transport.Exchange(ctx, u.tr, pkt)
	if err != nil {
		return err
	}
	if resp.Header != nil && resp.Header.Seq != seq {
		return fmt.Errorf("%w: got %d want %d", ErrSeqMismatch, resp.Header.Seq, seq)
	}
	if !resp.OK() {
		return &protocol.ReturnCodeError{RC: resp.RC}
	}

	// The device reports the next offset it expects. It may acknowledge
	// less than was sent; it must never move backwards or past the end.
	off, ok := docInt(resp.Doc, "off")
	if !ok {
		return fmt.Errorf("%w: missing off", ErrBadChunk)
	}
	if off < s.offset || off > s.total {
		return fmt.Errorf("%w: off %d outside [%d,%d]", ErrBadChunk, off, s.offset, s.total)
	}
	if off == s.offset && s.offset < s.total {
		return fmt.Errorf("%w: device accepted no bytes", ErrBadChunk)
	}
	s.offset = off
	return nil
}

// chunkLen sizes the data slice so the whole request packet fits the MTU.
// The surrounding document is probed with empty data; the slack covers the
// CBOR length prefix the real byte string adds.
func (u *Upload) chunkLen(s *session) (int, error) {
	probe := payload.Document{
		{Key: "name", Value: payload.Text(s.resource)},
		{Key: "off", Value: payload.Int(s.offset)},
		{Key: "len", Value: payload.Int(s.total)},
		{Key: "data", Value: payload.Bytes(nil)},
	}
	body, err := payload.Encode(probe)
	if err != nil {
		return 0, err
	}
	const byteStringSlack = 3
	n := s.mtu - header.Size - len(body) - byteStringSlack
	if n <= 0 {
		return 0, fmt.Errorf("%w: mtu %d", ErrMTUTooSmall, s.mtu)
	}
	return n, nil
}

func (u *Upload) deliver(ev event) {
	switch ev.kind {
	case eventProgress:
		u.obs.OnProgress(ev.current, ev.total, ev.ts)
	case eventCompleted:
		u.obs.OnCompleted()
	case eventCancelled:
		u.obs.OnCancelled()
	case eventFailed:
		u.obs.OnFailed(ev.err)
	}
}
