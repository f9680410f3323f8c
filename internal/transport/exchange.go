package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/devlink/internal/observability"
	"github.com/danmuck/devlink/internal/protocol"
)

// CoapReply is one CoAP exchange result. The envelope carries the status
// code and any header bytes outside the document payload.
type CoapReply struct {
	Bytes      []byte
	Header     []byte
	Payload    []byte
	CodeClass  int
	CodeDetail int
}

// CoapExchanger is implemented by CoAP transports. The plain Send contract
// cannot surface the envelope status code, so CoAP links expose the full
// reply shape instead.
type CoapExchanger interface {
	SendCoap(ctx context.Context, req []byte) (CoapReply, error)
}

// Exchange performs one request/response round trip and returns the fully
// built response for the transport's scheme.
func Exchange(ctx context.Context, t Transport, req []byte) (*protocol.Response, error) {
	start := time.Now()
	resp, err := exchange(ctx, t, req)
	observability.RecordExchange(t.Scheme().String(), err, time.Since(start))
	return resp, err
}

func exchange(ctx context.Context, t Transport, req []byte) (*protocol.Response, error) {
	if t.Scheme().IsCoap() {
		ce, ok := t.(CoapExchanger)
		if !ok {
			return nil, fmt.Errorf("transport: %s transport does not implement coap exchange", t.Scheme())
		}
		rep, err := ce.SendCoap(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.BuildCoapResponse(t.Scheme(), rep.Bytes, rep.Header, rep.Payload, rep.CodeClass, rep.CodeDetail)
	}
	raw, err := t.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return protocol.BuildResponse(t.Scheme(), raw)
}
