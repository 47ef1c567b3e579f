package frameserv

import (
	"encoding/binary"
)

// Wire frame layout (bit-exact, stream mode, little-endian):
//
//	opcode   int16  (2 bytes)
//	body_len int32  (4 bytes, must be >= 0)
//	body     []byte (body_len bytes)
//
// headerLen is the fixed size of the (opcode, body_len) prefix. There is no
// magic number, version field, or checksum: compatibility between peers is
// purely positional.
const headerLen = 6

// sentinelOpcode marks a ConnectionState between frames, before a header has
// been fully parsed.
const sentinelOpcode = -1

// parseHeader decodes a 6-byte wire header into its opcode and body length.
func parseHeader(h *[headerLen]byte) (opcode int16, bodyLen int32) {
	opcode = int16(binary.LittleEndian.Uint16(h[0:2]))
	bodyLen = int32(binary.LittleEndian.Uint32(h[2:6]))
	return opcode, bodyLen
}

// encodeHeader writes opcode and bodyLen into the wire header format. It is
// kept for symmetry with parseHeader even though this module never sends
// outbound frames (the send path is explicitly out of scope).
func encodeHeader(opcode int16, bodyLen int32) [headerLen]byte {
	var h [headerLen]byte
	binary.LittleEndian.PutUint16(h[0:2], uint16(opcode))
	binary.LittleEndian.PutUint32(h[2:6], uint32(bodyLen))
	return h
}
