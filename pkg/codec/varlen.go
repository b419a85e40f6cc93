package codec

import "github.com/openmicromirror/dlpc900ctl/pkg/protocol"

// maxVarLen is the largest run length representable by the two-byte
// variable-length encoding (15 bits).
const maxVarLen = 1<<15 - 1

// encodeVarLen encodes a run length as one byte if it fits in 7 bits, or
// two bytes otherwise: lsb = (n & 0x7F) | 0x80, msb = n >> 7.
func encodeVarLen(n int) ([]byte, error) {
	if n < 0 || n > maxVarLen {
		return nil, &protocol.CodecError{Reason: "run length out of range for variable-length encoding"}
	}
	if n < 128 {
		return []byte{byte(n)}, nil
	}
	lsb := byte(n&0x7F) | 0x80
	msb := byte(n >> 7)
	return []byte{lsb, msb}, nil
}

// decodeVarLen reads a variable-length run length starting at buf[0],
// returning the decoded value and the number of bytes consumed (1 or 2).
func decodeVarLen(buf []byte) (int, int, error) {
	if len(buf) == 0 {
		return 0, 0, &protocol.CodecError{Reason: "truncated run length"}
	}
	if buf[0] < 0x80 {
		return int(buf[0]), 1, nil
	}
	if len(buf) < 2 {
		return 0, 0, &protocol.CodecError{Reason: "truncated two-byte run length"}
	}
	lsb, msb := buf[0], buf[1]
	return int(msb)<<7 | int(lsb&0x7F), 2, nil
}
