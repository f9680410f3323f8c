package protocol

// Scheme identifies the transport framing a packet travels over.
type Scheme int

const (
	SchemeSerial Scheme = iota
	SchemeBLE
	SchemeCoapBLE
	SchemeCoapUDP
)

// IsCoap reports whether the scheme uses CoAP framing. CoAP carries its own
// length delimiting and status codes at the transport level.
func (s Scheme) IsCoap() bool {
	return s == SchemeCoapBLE || s == SchemeCoapUDP
}

func (s Scheme) String() string {
	switch s {
	case SchemeSerial:
		return "serial"
	case SchemeBLE:
		return "ble"
	case SchemeCoapBLE:
		return "coap+ble"
	case SchemeCoapUDP:
		return "coap+udp"
	default:
		return "unknown"
	}
}
