// Package protocol frames management requests and responses for the
// device-management wire contract: an 8-byte header followed by a CBOR
// document payload on standard schemes, or a CoAP envelope wrapping the
// same document on CoAP schemes.
package protocol
