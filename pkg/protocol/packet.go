package protocol

import "encoding/binary"

// Packet is one logical DLPC900 command or reply: a 4-byte header (flag,
// sequence, little-endian payload length), a 2-byte little-endian opcode,
// and the command payload. Before transmission it is fragmented into one
// or more 64-byte USB-HID reports by the framer.
type Packet struct {
	Read      bool // flag bit 7: read transaction (reply carries data)
	ReplyWant bool // flag bit 6: host requests an acknowledgement
	Err       bool // flag bit 5: reply only, controller reports an error
	Sequence  byte
	Opcode    Opcode
	Payload   []byte
}

// FlagByte assembles the packet's flag byte from its Read/ReplyWant/Err
// bits. Destination bits (0-2) are always zero.
func (p Packet) FlagByte() byte {
	var f byte
	if p.Read {
		f |= FlagReadWrite
	}
	if p.ReplyWant {
		f |= FlagReplyRequested
	}
	if p.Err {
		f |= FlagError
	}
	return f
}

// Encode serializes the packet to its wire form: flag byte, sequence
// byte, 2-byte LE payload length (opcode + data), 2-byte LE opcode, then
// the payload bytes.
func (p Packet) Encode() []byte {
	lenPayload := len(p.Payload) + 2 // +2 for the opcode itself
	buf := make([]byte, HeaderSize+2+len(p.Payload))
	buf[0] = p.FlagByte()
	buf[1] = p.Sequence
	binary.LittleEndian.PutUint16(buf[2:4], uint16(lenPayload))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(p.Opcode))
	copy(buf[6:], p.Payload)
	return buf
}

// DecodePacket parses a reassembled packet buffer (header + opcode +
// payload, with any USB-HID frame padding already stripped) into a
// Packet.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize+2 {
		return Packet{}, &ProtocolError{Reason: "packet shorter than header+opcode"}
	}

	flag := buf[0]
	lenPayload := binary.LittleEndian.Uint16(buf[2:4])
	opcode := Opcode(binary.LittleEndian.Uint16(buf[4:6]))

	dataLen := int(lenPayload) - 2
	if dataLen < 0 {
		return Packet{}, &ProtocolError{Reason: "declared payload length shorter than opcode field"}
	}
	if HeaderSize+2+dataLen > len(buf) {
		return Packet{}, &ProtocolError{Reason: "declared payload length exceeds buffer"}
	}

	payload := make([]byte, dataLen)
	copy(payload, buf[HeaderSize+2:HeaderSize+2+dataLen])

	return Packet{
		Read:      flag&FlagReadWrite != 0,
		ReplyWant: flag&FlagReplyRequested != 0,
		Err:       flag&FlagError != 0,
		Sequence:  buf[1],
		Opcode:    opcode,
		Payload:   payload,
	}, nil
}
