package transfer

import (
	"context"
	"fmt"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
	"github.com/danmuck/devlink/internal/transport"
)

// Download pulls one resource from the device in chunks. The device sizes
// each chunk; the total is learned from the first response's len field.
type Download struct {
	controller
	group uint16
	cmd   uint8
	obs   DownloadObserver
}

// NewDownload builds a download controller for one command (group, cmd)
// bound to tr. The controller is single-use: one session, then terminal.
func NewDownload(tr transport.Transport, group uint16, cmd uint8, obs DownloadObserver, cfg Config) *Download {
	d := &Download{group: group, cmd: cmd, obs: obs}
	d.init(tr, cfg, "download")
	return d
}

// Start begins downloading resource. Fails with ErrAlreadyInProgress when a
// session exists.
func (d *Download) Start(ctx context.Context, resource string) error {
	return d.begin(ctx, resource, nil, d.step, d.deliver)
}

func (d *Download) step(ctx context.Context, s *session) error {
	doc := payload.Document{
		{Key: "name", Value: payload.Text(s.resource)},
		{Key: "off", Value: payload.Int(s.offset)},
	}
	seq := s.nextSeq()
	pkt, err := protocol.EncodeRequest(header.OpReadRequest, 0, d.group, seq, d.cmd, doc)
	if err != nil {
		return err
	}
	resp, err := transport.Exchange(ctx, d.tr, pkt)
	if err != nil {
		return err
	}
	if resp.Header != nil && resp.Header.Seq != seq {
		return fmt.Errorf("%w: got %d want %d", ErrSeqMismatch, resp.Header.Seq, seq)
	}
	if !resp.OK() {
		return &protocol.ReturnCodeError{RC: resp.RC}
	}

	off, ok := docInt(resp.Doc, "off")
	if !ok {
		return fmt.Errorf("%w: missing off", ErrBadChunk)
	}
	if off != s.offset {
		return fmt.Errorf("%w: off %d, expected %d", ErrBadChunk, off, s.offset)
	}
	data, ok := docBytes(resp.Doc, "data")
	if !ok {
		return fmt.Errorf("%w: missing data", ErrBadChunk)
	}
	if !s.totalKnown {
		total, ok := docInt(resp.Doc, "len")
		if !ok {
			return fmt.Errorf("%w: first chunk missing len", ErrBadChunk)
		}
		s.total = total
		s.totalKnown = true
	}
	if s.offset+int64(len(data)) > s.total {
		return fmt.Errorf("%w: chunk overruns declared length", ErrBadChunk)
	}
	if len(data) == 0 && s.offset < s.total {
		return fmt.Errorf("%w: empty chunk before end of data", ErrBadChunk)
	}

	// Offset advances only once the chunk is in hand, never speculatively.
	s.buf = append(s.buf, data...)
	s.offset += int64(len(data))
	return nil
}

func (d *Download) deliver(ev event) {
	switch ev.kind {
	case eventProgress:
		d.obs.OnProgress(ev.current, ev.total, ev.ts)
	case eventCompleted:
		d.obs.OnCompleted(ev.data)
	case eventCancelled:
		d.obs.OnCancelled()
	case eventFailed:
		d.obs.OnFailed(ev.err)
	}
}

func docInt(doc payload.Document, key string) (int64, bool) {
	v, ok := doc.Get(key)
	if !ok {
		return 0, false
	}
	n, err := v.Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

func docBytes(doc payload.Document, key string) ([]byte, bool) {
	v, ok := doc.Get(key)
	if !ok {
		return nil, false
	}
	b, err := v.Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}
