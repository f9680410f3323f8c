package header

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Size is the fixed wire header length in bytes.
const Size = 8

// Op values from the management header contract. The op occupies the low
// three bits of the first header byte; the remaining bits are reserved.
const (
	OpReadRequest   uint8 = 0
	OpReadResponse  uint8 = 1
	OpWriteRequest  uint8 = 2
	OpWriteResponse uint8 = 3
)

const opMask uint8 = 0x07

var (
	ErrShortHeader = errors.New("header: short header")
	ErrReservedOp  = errors.New("header: reserved op value")
)

// Header is the fixed 8-byte management packet header. Immutable once
// decoded from bytes.
type Header struct {
	Op    uint8
	Flags uint8
	Len   uint16
	Group uint16
	Seq   uint8
	ID    uint8
}

// Encode produces the 8-byte wire form. Byte offsets are a fixed contract
// with fielded device firmware; do not reorder.
func Encode(op, flags uint8, group uint16, seq, id uint8, payloadLen uint16) []byte {
	buf := make([]byte, Size)
	buf[0] = op & opMask
	buf[1] = flags
	binary.BigEndian.PutUint16(buf[2:4], payloadLen)
	binary.BigEndian.PutUint16(buf[4:6], group)
	buf[6] = seq
	buf[7] = id
	return buf
}

// Bytes re-encodes h to its wire form.
func (h Header) Bytes() []byte {
	return Encode(h.Op, h.Flags, h.Group, h.Seq, h.ID, h.Len)
}

func (h Header) String() string {
	return fmt.Sprintf("Header{op=%d flags=%d len=%d group=%d seq=%d id=%d}",
		h.Op, h.Flags, h.Len, h.Group, h.Seq, h.ID)
}

// Decode parses the first 8 bytes of b into a Header.
func Decode(b []byte) (Header, error) {
	if len(b) < Size {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	op := b[0] & opMask
	if op > OpWriteResponse {
		return Header{}, fmt.Errorf("%w: %d", ErrReservedOp, op)
	}
	return Header{
		Op:    op,
		Flags: b[1],
		Len:   binary.BigEndian.Uint16(b[2:4]),
		Group: binary.BigEndian.Uint16(b[4:6]),
		Seq:   b[6],
		ID:    b[7],
	}, nil
}
