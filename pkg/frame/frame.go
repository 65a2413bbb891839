// Package frame encodes and decodes the 8-byte-header LoRa payload that
// travels over the air between the dongle and a node.
package frame

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the fixed size, in bytes, of the node-id + reserved header
// that precedes every payload.
const HeaderLen = 8

// ErrShortFrame is returned by Decode when raw is shorter than HeaderLen.
var ErrShortFrame = errors.New("frame: raw data shorter than header")

// LoRaFrame is the logical, decoded form of an on-air payload.
type LoRaFrame struct {
	NodeID  uint32
	Payload []byte
}

// Encode produces [node_id:u32 BE][4 reserved bytes][payload ...].
func Encode(nodeID uint32, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], nodeID)
	copy(buf[HeaderLen:], payload)
	return buf
}

// Decode parses raw into a LoRaFrame. Bytes 4..8 (reserved) are ignored.
func Decode(raw []byte) (LoRaFrame, error) {
	if len(raw) < HeaderLen {
		return LoRaFrame{}, ErrShortFrame
	}
	return LoRaFrame{
		NodeID:  binary.BigEndian.Uint32(raw[0:4]),
		Payload: raw[HeaderLen:],
	}, nil
}
