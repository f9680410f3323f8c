package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
	"github.com/danmuck/devlink/internal/testutil/testlog"
)

func packet(t *testing.T, h header.Header, doc payload.Document) []byte {
	t.Helper()
	body, err := payload.Encode(doc)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	h.Len = uint16(len(body))
	return append(h.Bytes(), body...)
}

// readRequest reassembles one request packet from the server side of a pipe.
func readRequest(t *testing.T, r io.Reader) []byte {
	t.Helper()
	head := make([]byte, header.Size)
	if _, err := io.ReadFull(r, head); err != nil {
		t.Errorf("read request header: %v", err)
		return nil
	}
	total, err := protocol.ExpectedLength(protocol.SchemeSerial, head)
	if err != nil {
		t.Errorf("expected length: %v", err)
		return nil
	}
	req := make([]byte, total)
	copy(req, head)
	if _, err := io.ReadFull(r, req[header.Size:]); err != nil {
		t.Errorf("read request payload: %v", err)
		return nil
	}
	return req
}

func TestStreamRoundTrip(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		req := readRequest(t, server)
		if req == nil {
			return
		}
		h, err := header.Decode(req)
		if err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := packet(t, header.Header{
			Op: header.OpReadResponse, Group: h.Group, Seq: h.Seq, ID: h.ID,
		}, payload.Document{
			{Key: "off", Value: payload.Int(0)},
			{Key: "data", Value: payload.Bytes([]byte("hello"))},
			{Key: "len", Value: payload.Int(5)},
		})
		// Dribble the response to exercise reassembly.
		for _, b := range resp {
			if _, err := server.Write([]byte{b}); err != nil {
				t.Errorf("write response: %v", err)
				return
			}
		}
	}()

	tr, err := NewStream(client, protocol.SchemeSerial, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	if tr.MTU() != DefaultStreamMTU {
		t.Fatalf("mtu = %d", tr.MTU())
	}
	req := packet(t, header.Header{Op: header.OpReadRequest, Group: 8, Seq: 1}, payload.Document{
		{Key: "name", Value: payload.Text("/lfs/x")},
		{Key: "off", Value: payload.Int(0)},
	})
	raw, err := tr.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := protocol.BuildResponse(tr.Scheme(), raw)
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	if resp.Header.Seq != 1 || !resp.OK() {
		t.Fatalf("response = %+v", resp)
	}
	data, _ := resp.Doc.Get("data")
	b, err := data.Bytes()
	if err != nil || string(b) != "hello" {
		t.Fatalf("data = %q, %v", b, err)
	}
}

func TestStreamDisconnectMidResponse(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		req := readRequest(t, server)
		if req == nil {
			return
		}
		// Header promises a payload that never arrives.
		hdr := header.Encode(header.OpReadResponse, 0, 8, 1, 0, 64)
		if _, err := server.Write(hdr); err != nil {
			t.Errorf("write header: %v", err)
		}
		server.Close()
	}()

	tr, err := NewStream(client, protocol.SchemeBLE, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	req := packet(t, header.Header{Op: header.OpReadRequest, Group: 8, Seq: 1}, payload.Document{
		{Key: "name", Value: payload.Text("/lfs/x")},
		{Key: "off", Value: payload.Int(0)},
	})
	_, err = tr.Send(context.Background(), req)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestStreamRejectsCoapSchemes(t *testing.T) {
	testlog.Start(t)
	client, _ := net.Pipe()
	defer client.Close()
	for _, scheme := range []protocol.Scheme{protocol.SchemeCoapBLE, protocol.SchemeCoapUDP} {
		if _, err := NewStream(client, scheme, 0); err == nil {
			t.Fatalf("%v: expected constructor error", scheme)
		}
	}
}

func TestStreamSecondSendBusy(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr, err := NewStream(client, protocol.SchemeSerial, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	req := packet(t, header.Header{Op: header.OpReadRequest, Seq: 1}, payload.Document{
		{Key: "d", Value: payload.Text("ping")},
	})

	inFlight := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		readRequest(t, server)
		close(inFlight)
	}()
	go func() {
		_, err := tr.Send(context.Background(), req)
		firstDone <- err
	}()

	<-inFlight
	if _, err := tr.Send(context.Background(), req); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	resp := packet(t, header.Header{Op: header.OpReadResponse, Seq: 1}, payload.Document{
		{Key: "r", Value: payload.Text("ping")},
	})
	if _, err := server.Write(resp); err != nil {
		t.Fatalf("write response: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Fatalf("first send: %v", err)
	}
}

func TestTransientClassification(t *testing.T) {
	testlog.Start(t)
	if !Transient(wrapStreamErr(os.ErrDeadlineExceeded)) {
		t.Fatalf("deadline not transient")
	}
	if !Transient(wrapStreamErr(io.EOF)) || !Transient(wrapStreamErr(io.ErrUnexpectedEOF)) {
		t.Fatalf("eof not transient")
	}
	if Transient(errors.New("parse error")) {
		t.Fatalf("arbitrary error classified transient")
	}
	if Transient(ErrBusy) {
		t.Fatalf("busy is not retryable in-flight")
	}
}

// coapLink is a canned CoAP transport for Exchange dispatch tests.
type coapLink struct {
	reply CoapReply
}

func (c *coapLink) Send(ctx context.Context, req []byte) ([]byte, error) {
	return nil, errors.New("plain send unsupported on coap link")
}
func (c *coapLink) MTU() int                { return 512 }
func (c *coapLink) Scheme() protocol.Scheme { return protocol.SchemeCoapUDP }

func (c *coapLink) SendCoap(ctx context.Context, req []byte) (CoapReply, error) {
	return c.reply, nil
}

func TestExchangeCoapSuccess(t *testing.T) {
	testlog.Start(t)
	body, err := payload.Encode(payload.Document{
		{Key: "off", Value: payload.Int(128)},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hdr := header.Encode(header.OpWriteResponse, 0, 8, 4, 0, uint16(len(body)))
	link := &coapLink{reply: CoapReply{
		Bytes:      append(append([]byte{}, hdr...), body...),
		Header:     hdr,
		Payload:    body,
		CodeClass:  2,
		CodeDetail: 4,
	}}
	resp, err := Exchange(context.Background(), link, nil)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.CoapCode != 204 {
		t.Fatalf("coap code = %d", resp.CoapCode)
	}
	if resp.Header == nil || resp.Header.Seq != 4 {
		t.Fatalf("header = %+v", resp.Header)
	}
}

func TestExchangeCoapErrorClass(t *testing.T) {
	testlog.Start(t)
	link := &coapLink{reply: CoapReply{CodeClass: 4, CodeDetail: 4}}
	_, err := Exchange(context.Background(), link, nil)
	var coapErr *protocol.CoapError
	if !errors.As(err, &coapErr) || coapErr.Code() != 404 {
		t.Fatalf("expected CoapError 404, got %v", err)
	}
}

func TestExchangeStandard(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		req := readRequest(t, server)
		if req == nil {
			return
		}
		h, _ := header.Decode(req)
		resp := packet(t, header.Header{Op: header.OpWriteResponse, Seq: h.Seq}, payload.Document{
			{Key: "rc", Value: payload.Int(0)},
			{Key: "off", Value: payload.Int(64)},
		})
		server.Write(resp)
	}()

	tr, err := NewStream(client, protocol.SchemeBLE, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	req := packet(t, header.Header{Op: header.OpWriteRequest, Seq: 9}, payload.Document{
		{Key: "off", Value: payload.Int(0)},
	})
	resp, err := Exchange(context.Background(), tr, req)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !resp.OK() || resp.Header.Seq != 9 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestStreamContextAlreadyCancelled(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr, err := NewStream(client, protocol.SchemeSerial, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Send(ctx, []byte{0}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
