// Package codec implements the DLPC900's RLE/ERLE bitmap compression
// formats used when uploading pattern images over USB.
package codec

import (
	"encoding/binary"

	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// Mode selects the compression applied to an uploaded bitmap.
type Mode byte

const (
	ModeUncompressed Mode = 0
	ModeRLE          Mode = 1
	ModeERLE         Mode = 2
)

// String renders the mode's name, as used in audit records and logs.
func (m Mode) String() string {
	switch m {
	case ModeUncompressed:
		return "uncompressed"
	case ModeRLE:
		return "rle"
	case ModeERLE:
		return "erle"
	default:
		return "unknown"
	}
}

// HeaderSize is the fixed length, in bytes, of the bitmap header that
// precedes the (optionally compressed) pixel body in a pattern upload.
const HeaderSize = 48

var signature = [4]byte{0x53, 0x70, 0x6C, 0x64} // "Spld"

// Header is the 48-byte bitmap header prepended to every uploaded pattern
// image, compressed or not.
type Header struct {
	Width      uint16
	Height     uint16
	BodyLength uint32
	BGColor    [4]byte
	Mode       Mode
}

// Encode serializes the header to its wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], signature[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Width)
	binary.LittleEndian.PutUint16(buf[6:8], h.Height)
	binary.LittleEndian.PutUint32(buf[8:12], h.BodyLength)
	for i := 0; i < 8; i++ {
		buf[12+i] = 0xFF
	}
	copy(buf[20:24], h.BGColor[:])
	buf[24] = 0x00 // reserved
	buf[25] = byte(h.Mode)
	buf[26] = 0x01
	// bytes 27-47 stay zero (reserved)
	return buf
}

// DecodeHeader parses a 48-byte bitmap header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, &protocol.CodecError{Reason: "header shorter than 48 bytes"}
	}
	if [4]byte(buf[0:4]) != signature {
		return Header{}, &protocol.CodecError{Reason: "bad bitmap header signature"}
	}

	var h Header
	h.Width = binary.LittleEndian.Uint16(buf[4:6])
	h.Height = binary.LittleEndian.Uint16(buf[6:8])
	h.BodyLength = binary.LittleEndian.Uint32(buf[8:12])
	copy(h.BGColor[:], buf[20:24])
	h.Mode = Mode(buf[25])
	return h, nil
}
