package protocol

import (
	"fmt"

	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
)

// Response is one fully decoded management response. Constructed once per
// received packet and immutable thereafter; a partially parsed Response
// never escapes the builders below.
type Response struct {
	// Scheme of the transport that produced this response.
	Scheme Scheme
	// Bytes is the whole packet, header included on standard schemes.
	Bytes []byte
	// Header is the parsed management header. Nil on CoAP schemes when the
	// envelope carried no header bytes.
	Header *header.Header
	// Payload is the raw CBOR document bytes.
	Payload []byte
	// Doc is the decoded payload document.
	Doc payload.Document
	// RC is the peer's application return code. Absent in the payload means
	// success and decodes as 0.
	RC int64
	// CoapCode is class*100+detail for CoAP schemes, 0 otherwise.
	CoapCode int
}

// OK reports whether the peer executed the command successfully.
func (r *Response) OK() bool {
	return r.RC == 0
}

// BuildResponse decodes a standard-scheme packet: the first 8 bytes are the
// header, the remainder is the document payload.
func BuildResponse(scheme Scheme, b []byte) (*Response, error) {
	if scheme.IsCoap() {
		return nil, ErrCoapScheme
	}
	if len(b) < header.Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	h, err := header.Decode(b[:header.Size])
	if err != nil {
		return nil, err
	}
	body := b[header.Size:]
	doc, err := payload.Decode(body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Scheme:  scheme,
		Bytes:   b,
		Header:  &h,
		Payload: body,
		Doc:     doc,
		RC:      returnCode(doc),
	}, nil
}

// BuildCoapResponse decodes a CoAP-scheme response. A class 4 or 5 status is
// a protocol error: the builder fails with *CoapError and the payload is not
// interpreted. headerBytes may be empty when the envelope carried none.
func BuildCoapResponse(scheme Scheme, b, headerBytes, body []byte, codeClass, codeDetail int) (*Response, error) {
	if codeClass == 4 || codeClass == 5 {
		return nil, &CoapError{Bytes: b, Class: codeClass, Detail: codeDetail}
	}
	doc, err := payload.Decode(body)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Scheme:   scheme,
		Bytes:    b,
		Payload:  body,
		Doc:      doc,
		RC:       returnCode(doc),
		CoapCode: codeClass*100 + codeDetail,
	}
	if len(headerBytes) > 0 {
		h, err := header.Decode(headerBytes)
		if err != nil {
			return nil, err
		}
		resp.Header = &h
	}
	return resp, nil
}

// ExpectedLength reads only the header's declared length field and returns
// the total packet size, header included. A streaming transport uses it to
// know how many more bytes to buffer before attempting a full decode. Not
// supported on CoAP schemes.
func ExpectedLength(scheme Scheme, b []byte) (int, error) {
	if scheme.IsCoap() {
		return 0, ErrUnsupportedScheme
	}
	h, err := header.Decode(b)
	if err != nil {
		return 0, err
	}
	return int(h.Len) + header.Size, nil
}

func returnCode(doc payload.Document) int64 {
	v, ok := doc.Get("rc")
	if !ok {
		return 0
	}
	rc, err := v.Int()
	if err != nil {
		return 0
	}
	return rc
}
