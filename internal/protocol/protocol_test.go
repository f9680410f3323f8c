package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
	"github.com/danmuck/devlink/internal/testutil/testlog"
)

func responsePacket(t *testing.T, h header.Header, doc payload.Document) []byte {
	t.Helper()
	body, err := payload.Encode(doc)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	h.Len = uint16(len(body))
	return append(h.Bytes(), body...)
}

func TestEncodeRequestLayout(t *testing.T) {
	testlog.Start(t)
	doc := payload.Document{
		{Key: "name", Value: payload.Text("/lfs/cfg")},
		{Key: "off", Value: payload.Int(0)},
	}
	pkt, err := EncodeRequest(header.OpReadRequest, 0, 8, 3, 0, doc)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	h, err := header.Decode(pkt)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.Op != header.OpReadRequest || h.Group != 8 || h.Seq != 3 || h.ID != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if int(h.Len) != len(pkt)-header.Size {
		t.Fatalf("len field %d, payload %d", h.Len, len(pkt)-header.Size)
	}
	got, err := payload.Decode(pkt[header.Size:])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if v, _ := got.Get("name"); mustText(t, v) != "/lfs/cfg" {
		t.Fatalf("name mismatch")
	}
}

func TestBuildResponse(t *testing.T) {
	testlog.Start(t)
	pkt := responsePacket(t, header.Header{Op: header.OpReadResponse, Group: 8, Seq: 1}, payload.Document{
		{Key: "off", Value: payload.Int(256)},
		{Key: "data", Value: payload.Bytes([]byte{9, 9})},
	})
	resp, err := BuildResponse(SchemeBLE, pkt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resp.Scheme != SchemeBLE {
		t.Fatalf("scheme = %v", resp.Scheme)
	}
	if resp.Header == nil || resp.Header.Seq != 1 {
		t.Fatalf("header = %+v", resp.Header)
	}
	// rc absent means success.
	if resp.RC != 0 || !resp.OK() {
		t.Fatalf("rc = %d", resp.RC)
	}
	if !bytes.Equal(resp.Bytes, pkt) {
		t.Fatalf("bytes not retained")
	}
	if !bytes.Equal(resp.Payload, pkt[header.Size:]) {
		t.Fatalf("payload not split at header boundary")
	}
}

func TestBuildResponseNonZeroRC(t *testing.T) {
	testlog.Start(t)
	pkt := responsePacket(t, header.Header{Op: header.OpWriteResponse}, payload.Document{
		{Key: "rc", Value: payload.Int(8)},
	})
	resp, err := BuildResponse(SchemeSerial, pkt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resp.OK() || resp.RC != 8 {
		t.Fatalf("rc = %d", resp.RC)
	}
}

func TestBuildResponseRejectsCoapScheme(t *testing.T) {
	testlog.Start(t)
	pkt := responsePacket(t, header.Header{Op: header.OpReadResponse}, payload.Document{})
	for _, scheme := range []Scheme{SchemeCoapBLE, SchemeCoapUDP} {
		if _, err := BuildResponse(scheme, pkt); !errors.Is(err, ErrCoapScheme) {
			t.Fatalf("%v: expected ErrCoapScheme, got %v", scheme, err)
		}
	}
}

func TestBuildResponseShortPacket(t *testing.T) {
	testlog.Start(t)
	if _, err := BuildResponse(SchemeBLE, []byte{1, 2, 3}); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
}

func TestBuildCoapResponseErrorClasses(t *testing.T) {
	testlog.Start(t)
	body, err := payload.Encode(payload.Document{{Key: "rc", Value: payload.Int(0)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, class := range []int{4, 5} {
		for detail := 0; detail < 32; detail++ {
			_, err := BuildCoapResponse(SchemeCoapUDP, body, nil, body, class, detail)
			var coapErr *CoapError
			if !errors.As(err, &coapErr) {
				t.Fatalf("class=%d detail=%d: expected CoapError, got %v", class, detail, err)
			}
			if coapErr.Code() != class*100+detail {
				t.Fatalf("code = %d", coapErr.Code())
			}
		}
	}
}

func TestBuildCoapResponseSuccess(t *testing.T) {
	testlog.Start(t)
	body, err := payload.Encode(payload.Document{
		{Key: "off", Value: payload.Int(16)},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hdr := header.Encode(header.OpReadResponse, 0, 8, 2, 0, uint16(len(body)))
	resp, err := BuildCoapResponse(SchemeCoapBLE, body, hdr, body, 2, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resp.CoapCode != 205 {
		t.Fatalf("coap code = %d", resp.CoapCode)
	}
	if resp.Header == nil || resp.Header.Seq != 2 {
		t.Fatalf("header = %+v", resp.Header)
	}
}

func TestExpectedLength(t *testing.T) {
	testlog.Start(t)
	pkt := responsePacket(t, header.Header{Op: header.OpReadResponse}, payload.Document{
		{Key: "data", Value: payload.Bytes(make([]byte, 100))},
	})
	// Header alone is enough to learn the full packet size.
	n, err := ExpectedLength(SchemeBLE, pkt[:header.Size])
	if err != nil {
		t.Fatalf("expected length: %v", err)
	}
	if n < header.Size {
		t.Fatalf("expected length %d < header size", n)
	}
	if n != len(pkt) {
		t.Fatalf("expected length %d, packet is %d", n, len(pkt))
	}
	if _, err := ExpectedLength(SchemeBLE, pkt[:4]); !errors.Is(err, header.ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	if _, err := ExpectedLength(SchemeCoapUDP, pkt); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func mustText(t *testing.T, v payload.Value) string {
	t.Helper()
	s, err := v.Text()
	if err != nil {
		t.Fatalf("text value: %v", err)
	}
	return s
}
