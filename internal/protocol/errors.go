package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrCoapScheme        = errors.New("protocol: standard framing not valid for coap scheme")
	ErrUnsupportedScheme = errors.New("protocol: length field not present on coap scheme")
	ErrShortPacket       = errors.New("protocol: packet shorter than header")
	ErrPayloadTooLarge   = errors.New("protocol: payload exceeds header length field")
)

// CoapError is a peer-reported CoAP class 4/5 status. The exchange failed;
// the payload must not be interpreted.
type CoapError struct {
	Bytes  []byte
	Class  int
	Detail int
}

func (e *CoapError) Error() string {
	return fmt.Sprintf("protocol: coap error %d.%02d", e.Class, e.Detail)
}

// Code returns the combined numeric CoAP code, class*100 + detail.
func (e *CoapError) Code() int {
	return e.Class*100 + e.Detail
}

// ReturnCodeError is a non-zero rc in an otherwise well-formed response:
// the peer executed the command and rejected it. Never retried.
type ReturnCodeError struct {
	RC int64
}

func (e *ReturnCodeError) Error() string {
	return fmt.Sprintf("protocol: return code %d", e.RC)
}
