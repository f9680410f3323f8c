package protocol

import (
	"fmt"

	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
)

// EncodeRequest assembles one standard-scheme request packet: 8-byte header
// with the length field filled from the encoded document, then the document
// bytes.
func EncodeRequest(op, flags uint8, group uint16, seq, id uint8, doc payload.Document) ([]byte, error) {
	body, err := payload.Encode(doc)
	if err != nil {
		return nil, err
	}
	if len(body) > int(^uint16(0)) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}
	packet := header.Encode(op, flags, group, seq, id, uint16(len(body)))
	return append(packet, body...), nil
}
