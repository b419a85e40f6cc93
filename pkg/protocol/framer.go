package protocol

import (
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/transport"
)

// DefaultReplyTimeout is how long the framer waits for a reply before
// giving up, matching the original control library's default.
const DefaultReplyTimeout = 5 * time.Second

// postWriteSettle is a short pause after every write, before the first
// read attempt, to give the controller time to process the command.
const postWriteSettle = 100 * time.Millisecond

// postModeChangeSettle is the longer pause the controller needs after a
// display-mode change before it will accept further commands.
const postModeChangeSettle = 500 * time.Millisecond

// firstFrameHeader is the number of header+opcode bytes carried in the
// first USB-HID report of a fragmented command (flag, seq, 2 len bytes,
// 2 opcode bytes).
const firstFrameHeader = HeaderSize + 2

// Framer fragments Packets into fixed-size USB-HID reports, writes them to
// a Transport, and reassembles replies, correlating them by sequence byte.
// A single retry is attempted on read timeout, matching the settle-then-
// retry behavior the original control library relies on for a
// USB-HID stack that occasionally swallows the first report. A report
// whose write fails is likewise written once more after postWriteSettle.
type Framer struct {
	t       transport.Transport
	log     *logger.Logger
	seq     byte
	timeout time.Duration
}

// NewFramer wraps a Transport with packet fragmentation/reassembly.
func NewFramer(t transport.Transport, log *logger.Logger) *Framer {
	return &Framer{
		t:       t,
		log:     log.WithComponent("protocol.framer"),
		timeout: DefaultReplyTimeout,
	}
}

// SetTimeout overrides the default reply timeout.
func (f *Framer) SetTimeout(d time.Duration) {
	f.timeout = d
}

// nextSequence returns the next sequence byte, wrapping at 256.
func (f *Framer) nextSequence() byte {
	s := f.seq
	f.seq++
	return s
}

// Send writes a packet to the device, fragmenting it across as many
// 64-byte reports as necessary, zero-padding the final report.
func (f *Framer) Send(p Packet) error {
	buf := p.Encode()

	first := true
	pos := 0
	for pos < len(buf) || first {
		var frame [transport.FrameSize]byte
		var n int
		if first {
			n = copy(frame[:], buf[pos:])
			first = false
		} else {
			n = copy(frame[:], buf[pos:])
		}
		pos += n

		f.log.Debug("send frame", logger.Hex("frame", frame[:]))
		if err := f.t.SendFrame(frame); err != nil {
			f.log.Warn("retrying frame after send failure", logger.Error(err))
			time.Sleep(postWriteSettle)
			if err := f.t.SendFrame(frame); err != nil {
				return &TransportError{Op: "send frame", Err: err}
			}
		}

		if pos >= len(buf) {
			break
		}
	}

	return nil
}

// SendAndAwaitReply sends a packet requesting a reply and waits for the
// matching response, retrying once on a read timeout.
func (f *Framer) SendAndAwaitReply(p Packet) (Packet, error) {
	p.Sequence = f.nextSequence()
	p.ReplyWant = true

	if err := f.Send(p); err != nil {
		return Packet{}, err
	}
	time.Sleep(postWriteSettle)

	reply, err := f.readReply(p.Sequence)
	if err == nil {
		return reply, nil
	}
	if _, isTimeout := err.(*ReplyTimeout); !isTimeout {
		// The controller answered but reported its own error, or the
		// framing was malformed; retrying would not help.
		return Packet{}, err
	}

	f.log.Warn("retrying after reply timeout", logger.Uint("sequence", uint(p.Sequence)))
	if err := f.Send(p); err != nil {
		return Packet{}, err
	}
	time.Sleep(postWriteSettle)

	reply, err = f.readReply(p.Sequence)
	if err != nil {
		if _, isTimeout := err.(*ReplyTimeout); isTimeout {
			return Packet{}, &ReplyTimeout{Opcode: uint16(p.Opcode), Timeout: f.timeout.String()}
		}
		return Packet{}, err
	}
	return reply, nil
}

// readReply reads and reassembles a single reply, verifying it answers
// the given sequence byte.
func (f *Framer) readReply(sequence byte) (Packet, error) {
	deadline := time.Now().Add(f.timeout)

	first, err := f.t.ReadFrame(time.Until(deadline))
	if err != nil {
		return Packet{}, &ReplyTimeout{Timeout: f.timeout.String()}
	}
	f.log.Debug("recv frame", logger.Hex("frame", first))
	if len(first) < firstFrameHeader {
		return Packet{}, &ProtocolError{Reason: "reply frame shorter than header+opcode"}
	}

	declaredLen := int(first[2]) | int(first[3])<<8
	total := declaredLen - 2 // opcode already counted in header
	body := make([]byte, 0, total)
	body = append(body, first[firstFrameHeader:]...)

	for len(body) < total {
		if time.Now().After(deadline) {
			return Packet{}, &ReplyTimeout{Timeout: f.timeout.String()}
		}
		next, err := f.t.ReadFrame(time.Until(deadline))
		if err != nil {
			return Packet{}, &ReplyTimeout{Timeout: f.timeout.String()}
		}
		body = append(body, next...)
	}
	if len(body) > total {
		body = body[:total]
	}

	reconstructed := make([]byte, firstFrameHeader+len(body))
	copy(reconstructed, first[:firstFrameHeader])
	copy(reconstructed[firstFrameHeader:], body)

	reply, err := DecodePacket(reconstructed)
	if err != nil {
		return Packet{}, err
	}
	if reply.Sequence != sequence {
		return Packet{}, &ProtocolError{Reason: "reply sequence does not match request"}
	}
	if reply.Err {
		code := 0
		if len(reply.Payload) > 0 {
			code = int(reply.Payload[0])
		}
		return Packet{}, &ControllerError{Code: code, Description: ErrorDescription(code)}
	}

	return reply, nil
}

// SleepModeSettle pauses for the settle time a display-mode change needs
// to take effect before the next command is issued.
func SleepModeSettle() {
	time.Sleep(postModeChangeSettle)
}
