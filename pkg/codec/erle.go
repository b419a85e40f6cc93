package codec

import (
	"github.com/openmicromirror/dlpc900ctl/pkg/pattern"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// EncodeERLE compresses a combined 24-bit image using enhanced run-length
// encoding. Colour triples are written to the wire in B,G,R order, matching
// the byte order observed from real DLPC900 controllers (the order the
// planes are stored in internally, R/G/B, is a host-side convention only).
//
// Per row: if the row is identical to the previous row, emit
// 0x00 0x01 <len> (copy <len> pixels from the same column in the previous
// row). Otherwise emit a sequence of runs, each <len> <B> <G> <R>, where
// <len> uses the one-or-two-byte variable-length encoding. The image ends
// with the reserved terminator 0x00 0x01 0x00.
func EncodeERLE(img *pattern.Image) ([]byte, error) {
	out := make([]byte, 0, img.Width*img.Height/4)

	for row := 0; row < img.Height; row++ {
		if row > 0 && rowsEqual(img, row, row-1) {
			lenBytes, err := encodeVarLen(img.Width)
			if err != nil {
				return nil, err
			}
			out = append(out, 0x00, 0x01)
			out = append(out, lenBytes...)
			continue
		}

		col := 0
		for col < img.Width {
			r, g, b := img.At(row, col)
			runLen := 1
			for col+runLen < img.Width {
				r2, g2, b2 := img.At(row, col+runLen)
				if r2 != r || g2 != g || b2 != b {
					break
				}
				runLen++
			}

			lenBytes, err := encodeVarLen(runLen)
			if err != nil {
				return nil, err
			}
			out = append(out, lenBytes...)
			out = append(out, b, g, r)
			col += runLen
		}
	}

	out = append(out, 0x00, 0x01, 0x00)
	return out, nil
}

// DecodeERLE reconstructs a combined image of the given geometry from its
// ERLE-compressed body.
func DecodeERLE(width, height int, body []byte) (*pattern.Image, error) {
	img := pattern.NewImage(width, height)

	pos := 0
	row := 0
	col := 0

	setPixel := func(r, g, b byte) {
		idx := row*width + col
		img.Plane[0][idx] = r
		img.Plane[1][idx] = g
		img.Plane[2][idx] = b
	}

	for {
		if pos >= len(body) {
			return nil, &protocol.CodecError{Reason: "ERLE body ended without terminator"}
		}

		if body[pos] == 0x00 {
			if pos+1 >= len(body) {
				return nil, &protocol.CodecError{Reason: "truncated ERLE control sequence"}
			}

			switch body[pos+1] {
			case 0x00:
				if col != 0 {
					row++
					col = 0
				}
				pos += 2
				continue
			case 0x01:
				n, consumed, err := decodeVarLen(body[pos+2:])
				if err != nil {
					return nil, err
				}
				if n == 0 {
					return img, nil
				}
				if row == 0 {
					return nil, &protocol.CodecError{Reason: "copy-previous-row with no previous row"}
				}
				for k := 0; k < n; k++ {
					srcIdx := (row-1)*width + col + k
					img.Plane[0][row*width+col+k] = img.Plane[0][srcIdx]
					img.Plane[1][row*width+col+k] = img.Plane[1][srcIdx]
					img.Plane[2][row*width+col+k] = img.Plane[2][srcIdx]
				}
				col += n
				pos += 2 + consumed
				if col == width {
					row++
					col = 0
				}
				continue
			default:
				return nil, &protocol.CodecError{Reason: "unsupported ERLE control byte sequence"}
			}
		}

		n, consumed, err := decodeVarLen(body[pos:])
		if err != nil {
			return nil, err
		}
		pos += consumed
		if pos+3 > len(body) {
			return nil, &protocol.CodecError{Reason: "truncated ERLE pixel run"}
		}
		b, g, r := body[pos], body[pos+1], body[pos+2]
		pos += 3
		for k := 0; k < n; k++ {
			setPixel(r, g, b)
			col++
			if col == width {
				row++
				col = 0
			}
		}
	}
}

func rowsEqual(img *pattern.Image, a, b int) bool {
	for plane := 0; plane < 3; plane++ {
		aStart := a * img.Width
		bStart := b * img.Width
		for i := 0; i < img.Width; i++ {
			if img.Plane[plane][aStart+i] != img.Plane[plane][bStart+i] {
				return false
			}
		}
	}
	return true
}
