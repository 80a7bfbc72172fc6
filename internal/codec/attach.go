package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Binary attachment envelope constants.
var (
	attachMagicV1 = []byte{0x09, 0x1A}
	attachMagicV2 = []byte{0x09, 0x19}
	attachVersion = []byte{0x49, 0x1F}
	cipherMarker  = []byte{'c', 'i'}
)

// attachHeaderLen is the fixed size of the attachment envelope header.
const attachHeaderLen = 16

// AttachHeader is the parsed 16-byte header of a binary attachment body:
// 2-byte magic, 2-byte version, 4-byte little-endian metadata, 2-byte
// cipher marker, 6 bytes of padding, then the payload.
type AttachHeader struct {
	Magic     [2]byte
	Version   [2]byte
	Meta      uint32
	Encrypted bool
	Payload   []byte
}

// ParseAttachHeader validates and splits a decoded attachment body.
// Unknown magic or version yields ErrUndecodable so that corrupt frames
// drop out of the pipeline instead of reaching handlers.
func ParseAttachHeader(data []byte) (*AttachHeader, error) {
	if len(data) < attachHeaderLen {
		return nil, fmt.Errorf("%w: attach body %d bytes", ErrUndecodable, len(data))
	}
	h := &AttachHeader{}
	copy(h.Magic[:], data[0:2])
	copy(h.Version[:], data[2:4])
	if !bytes.Equal(h.Magic[:], attachMagicV1) && !bytes.Equal(h.Magic[:], attachMagicV2) {
		return nil, fmt.Errorf("%w: unknown attach magic %x", ErrUndecodable, h.Magic)
	}
	if !bytes.Equal(h.Version[:], attachVersion) {
		return nil, fmt.Errorf("%w: unknown attach version %x", ErrUndecodable, h.Version)
	}
	h.Meta = binary.LittleEndian.Uint32(data[4:8])
	h.Encrypted = bytes.Equal(data[8:10], cipherMarker)
	h.Payload = data[attachHeaderLen:]
	return h, nil
}

// BuildAttachBody assembles an attachment body around a payload, for
// outbound frames and round-trip tests.
func BuildAttachBody(payload []byte, meta uint32, encrypted bool) []byte {
	out := make([]byte, attachHeaderLen+len(payload))
	copy(out[0:2], attachMagicV1)
	copy(out[2:4], attachVersion)
	binary.LittleEndian.PutUint32(out[4:8], meta)
	if encrypted {
		copy(out[8:10], cipherMarker)
	}
	copy(out[attachHeaderLen:], payload)
	return out
}
