// Package payload encodes and decodes the structured CBOR document carried
// after the management header. Documents are ordered key/value maps; values
// are a closed set of kinds so callers never handle raw interface graphs.
// Unknown keys decode fine and are retained, devices add fields over time.
package payload

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrTruncated    = errors.New("payload: truncated document")
	ErrTypeMismatch = errors.New("payload: value type mismatch")
	ErrNotMap       = errors.New("payload: document is not a map")
	ErrKeyNotString = errors.New("payload: map key is not a string")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("payload: cbor enc mode: %v", err))
	}
	encMode = em
}

// Kind discriminates the closed value set.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindText
	KindBool
	KindDocument
	KindSequence
)

// Value is one tagged document value.
type Value struct {
	kind Kind
	num  int64
	bin  []byte
	text string
	flag bool
	doc  Document
	seq  []Value
}

func Int(v int64) Value        { return Value{kind: KindInt, num: v} }
func Bytes(v []byte) Value     { return Value{kind: KindBytes, bin: v} }
func Text(v string) Value      { return Value{kind: KindText, text: v} }
func Bool(v bool) Value        { return Value{kind: KindBool, flag: v} }
func Doc(v Document) Value     { return Value{kind: KindDocument, doc: v} }
func Sequence(v []Value) Value { return Value{kind: KindSequence, seq: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() (int64, error) {
	if v.kind != KindInt {
		return 0, ErrTypeMismatch
	}
	return v.num, nil
}

func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, ErrTypeMismatch
	}
	return v.bin, nil
}

func (v Value) Text() (string, error) {
	if v.kind != KindText {
		return "", ErrTypeMismatch
	}
	return v.text, nil
}

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, ErrTypeMismatch
	}
	return v.flag, nil
}

func (v Value) Document() (Document, error) {
	if v.kind != KindDocument {
		return nil, ErrTypeMismatch
	}
	return v.doc, nil
}

func (v Value) Sequence() ([]Value, error) {
	if v.kind != KindSequence {
		return nil, ErrTypeMismatch
	}
	return v.seq, nil
}

// Entry is one key/value pair of a Document.
type Entry struct {
	Key   string
	Value Value
}

// Document is an ordered key/value map. Entry order is preserved through
// encode and decode so packets round-trip byte-identically where the peer
// cares about ordering.
type Document []Entry

// Get returns the first value stored under key.
func (d Document) Get(key string) (Value, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value under key, appending when absent.
func (d Document) Set(key string, v Value) Document {
	for i, e := range d {
		if e.Key == key {
			d[i].Value = v
			return d
		}
	}
	return append(d, Entry{Key: key, Value: v})
}

// Encode serializes d as a CBOR map. The map head is written by hand because
// the cbor library offers no insertion-ordered map type; every key and value
// item is encoded by the library.
func Encode(d Document) ([]byte, error) {
	out := appendMapHead(nil, len(d))
	for _, e := range d {
		kb, err := encMode.Marshal(e.Key)
		if err != nil {
			return nil, fmt.Errorf("payload: encode key %q: %w", e.Key, err)
		}
		out = append(out, kb...)
		vb, err := encodeValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("payload: encode value for %q: %w", e.Key, err)
		}
		out = append(out, vb...)
	}
	return out, nil
}

func encodeValue(v Value) ([]byte, error) {
	switch v.kind {
	case KindInt:
		return encMode.Marshal(v.num)
	case KindBytes:
		if v.bin == nil {
			return encMode.Marshal([]byte{})
		}
		return encMode.Marshal(v.bin)
	case KindText:
		return encMode.Marshal(v.text)
	case KindBool:
		return encMode.Marshal(v.flag)
	case KindDocument:
		return Encode(v.doc)
	case KindSequence:
		items := make([]cbor.RawMessage, 0, len(v.seq))
		for _, item := range v.seq {
			b, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			items = append(items, cbor.RawMessage(b))
		}
		return encMode.Marshal(items)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrTypeMismatch, v.kind)
	}
}

// Decode parses a CBOR map into a Document. The whole input must be consumed.
func Decode(b []byte) (Document, error) {
	doc, rest, err := decodeDocument(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("payload: %d trailing bytes after document", len(rest))
	}
	return doc, nil
}

// decodeDocument reads one map item from b. The map head (definite count or
// indefinite-length) is parsed by hand; device-side encoders emit both forms.
// All keys and values are decoded by the cbor library.
func decodeDocument(b []byte) (Document, []byte, error) {
	count, indefinite, rest, err := readMapHead(b)
	if err != nil {
		return nil, nil, err
	}
	doc := make(Document, 0, count)
	for i := 0; indefinite || i < count; i++ {
		if indefinite {
			if len(rest) == 0 {
				return nil, nil, ErrTruncated
			}
			if rest[0] == 0xff {
				rest = rest[1:]
				break
			}
		}
		var key string
		var raw cbor.RawMessage
		rest, err = unmarshalFirst(rest, &raw)
		if err != nil {
			return nil, nil, fmt.Errorf("payload: decode key: %w", err)
		}
		if err := cbor.Unmarshal(raw, &key); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrKeyNotString, err)
		}
		var val Value
		val, rest, err = decodeValue(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("payload: decode value for %q: %w", key, err)
		}
		doc = append(doc, Entry{Key: key, Value: val})
	}
	return doc, rest, nil
}

func decodeValue(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, ErrTruncated
	}
	switch b[0] >> 5 {
	case 0, 1: // unsigned, negative
		var n int64
		rest, err := unmarshalFirst(b, &n)
		if err != nil {
			return Value{}, nil, err
		}
		return Int(n), rest, nil
	case 2: // byte string
		var bs []byte
		rest, err := unmarshalFirst(b, &bs)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(bs), rest, nil
	case 3: // text string
		var s string
		rest, err := unmarshalFirst(b, &s)
		if err != nil {
			return Value{}, nil, err
		}
		return Text(s), rest, nil
	case 4: // array
		var items []cbor.RawMessage
		rest, err := unmarshalFirst(b, &items)
		if err != nil {
			return Value{}, nil, err
		}
		seq := make([]Value, 0, len(items))
		for _, item := range items {
			v, _, err := decodeValue(item)
			if err != nil {
				return Value{}, nil, err
			}
			seq = append(seq, v)
		}
		return Sequence(seq), rest, nil
	case 5: // map
		doc, rest, err := decodeDocument(b)
		if err != nil {
			return Value{}, nil, err
		}
		return Doc(doc), rest, nil
	case 7: // simple: only booleans are in the value contract
		var flag bool
		rest, err := unmarshalFirst(b, &flag)
		if err != nil {
			return Value{}, nil, fmt.Errorf("%w: simple value", ErrTypeMismatch)
		}
		return Bool(flag), rest, nil
	default:
		return Value{}, nil, fmt.Errorf("%w: major type %d", ErrTypeMismatch, b[0]>>5)
	}
}

func unmarshalFirst(b []byte, v any) ([]byte, error) {
	rest, err := cbor.UnmarshalFirst(b, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return rest, nil
}

func appendMapHead(out []byte, count int) []byte {
	const majorMap = 5 << 5
	switch {
	case count < 24:
		return append(out, byte(majorMap|count))
	case count <= 0xff:
		return append(out, majorMap|24, byte(count))
	default:
		return append(out, majorMap|25, byte(count>>8), byte(count))
	}
}

func readMapHead(b []byte) (count int, indefinite bool, rest []byte, err error) {
	if len(b) == 0 {
		return 0, false, nil, ErrTruncated
	}
	if b[0]>>5 != 5 {
		return 0, false, nil, fmt.Errorf("%w: major type %d", ErrNotMap, b[0]>>5)
	}
	ai := int(b[0] & 0x1f)
	switch {
	case ai < 24:
		return ai, false, b[1:], nil
	case ai == 24:
		if len(b) < 2 {
			return 0, false, nil, ErrTruncated
		}
		return int(b[1]), false, b[2:], nil
	case ai == 25:
		if len(b) < 3 {
			return 0, false, nil, ErrTruncated
		}
		return int(b[1])<<8 | int(b[2]), false, b[3:], nil
	case ai == 31:
		return 0, true, b[1:], nil
	default:
		// 4- and 8-byte counts would exceed any packet this protocol frames.
		return 0, false, nil, fmt.Errorf("%w: unsupported map head %#x", ErrNotMap, b[0])
	}
}
