package codec

import (
	"github.com/openmicromirror/dlpc900ctl/pkg/pattern"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
)

// EncodeRLE compresses a combined image using plain run-length encoding:
// every run length is a single byte (max 255), so runs longer than 255
// pixels are split. Colour triples are written B,G,R, matching EncodeERLE.
//
// Per row: ctrl byte n>0 means "repeat the following B,G,R triple n
// times". A row identical to the previous one is still encoded via the
// same 0x00 0x01 <len> copy-previous-row form ERLE uses, with <len> here
// always a single byte; EncodeRLE returns a CodecError when such a
// repeated row is wider than 255 pixels, which is the case on both
// supported panels.
// The image ends with the terminator 0x00 0x01 0x00.
func EncodeRLE(img *pattern.Image) ([]byte, error) {
	out := make([]byte, 0, img.Width*img.Height/4)

	for row := 0; row < img.Height; row++ {
		if row > 0 && rowsEqual(img, row, row-1) {
			if img.Width > 255 {
				return nil, &protocol.CodecError{Reason: "RLE copy-previous-row length exceeds one byte; use ERLE"}
			}
			out = append(out, 0x00, 0x01, byte(img.Width))
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

			remaining := runLen
			for remaining > 0 {
				chunk := remaining
				if chunk > 255 {
					chunk = 255
				}
				out = append(out, byte(chunk), b, g, r)
				remaining -= chunk
			}
			col += runLen
		}
	}

	out = append(out, 0x00, 0x01, 0x00)
	return out, nil
}

// DecodeRLE reconstructs a combined image from its plain RLE-compressed
// body.
func DecodeRLE(width, height int, body []byte) (*pattern.Image, error) {
	img := pattern.NewImage(width, height)

	pos := 0
	row := 0
	col := 0

	for pos < len(body) {
		ctrl := body[pos]

		if ctrl == 0x00 {
			if pos+1 >= len(body) {
				return nil, &protocol.CodecError{Reason: "truncated RLE control sequence"}
			}
			switch {
			case body[pos+1] == 0x00:
				row++
				col = 0
				pos += 2
				continue
			case body[pos+1] == 0x01:
				if pos+2 < len(body) {
					n := int(body[pos+2])
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
					pos += 3
					continue
				}
				return img, nil
			default:
				n := int(body[pos+1])
				pos += 2
				if pos+3*n > len(body) {
					return nil, &protocol.CodecError{Reason: "truncated RLE literal run"}
				}
				for k := 0; k < n; k++ {
					b, g, r := body[pos], body[pos+1], body[pos+2]
					idx := row*width + col
					img.Plane[0][idx] = r
					img.Plane[1][idx] = g
					img.Plane[2][idx] = b
					pos += 3
					col++
				}
				continue
			}
		}

		n := int(ctrl)
		pos++
		if pos+3 > len(body) {
			return nil, &protocol.CodecError{Reason: "truncated RLE run"}
		}
		b, g, r := body[pos], body[pos+1], body[pos+2]
		pos += 3
		for k := 0; k < n; k++ {
			idx := row*width + col
			img.Plane[0][idx] = r
			img.Plane[1][idx] = g
			img.Plane[2][idx] = b
			col++
			if col == width {
				row++
				col = 0
			}
		}
	}

	return img, nil
}
