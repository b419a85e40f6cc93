package protocol

import (
	"testing"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/transport"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func frameFromPacket(t *testing.T, p Packet) []byte {
	t.Helper()
	buf := p.Encode()
	frame := make([]byte, transport.FrameSize)
	copy(frame, buf)
	return frame
}

func TestFramerSendAndAwaitReplySuccess(t *testing.T) {
	mock := transport.NewMockTransport()
	f := NewFramer(mock, testLogger())
	f.SetTimeout(50 * time.Millisecond)

	reply := Packet{Sequence: 0, Opcode: OpGetMainStatus, Payload: []byte{0x02}}
	mock.QueueReply(frameFromPacket(t, reply))

	got, err := f.SendAndAwaitReply(Packet{Opcode: OpGetMainStatus, Read: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Payload) != 1 || got.Payload[0] != 0x02 {
		t.Fatalf("unexpected reply payload: %v", got.Payload)
	}
	if mock.SentCount() != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", mock.SentCount())
	}
}

func TestFramerRetriesOnceOnTimeout(t *testing.T) {
	mock := transport.NewMockTransport()
	f := NewFramer(mock, testLogger())
	f.SetTimeout(20 * time.Millisecond)

	reply := Packet{Sequence: 0, Opcode: OpGetMainStatus, Payload: []byte{0x01}}
	mock.QueueReply(frameFromPacket(t, reply))

	// The mock serves a queued reply to the very first read (it has no
	// notion of "attempt number"), so the retry path is exercised instead
	// with a transport that never replies: the request must be sent twice
	// and the second timeout surfaced.
	empty := transport.NewMockTransport()
	f2 := NewFramer(empty, testLogger())
	f2.SetTimeout(10 * time.Millisecond)

	_, err := f2.SendAndAwaitReply(Packet{Opcode: OpGetMainStatus, Read: true})
	if err == nil {
		t.Fatalf("expected ReplyTimeout when no reply is ever queued")
	}
	if _, ok := err.(*ReplyTimeout); !ok {
		t.Fatalf("expected *ReplyTimeout, got %T: %v", err, err)
	}
	if empty.SentCount() != 2 {
		t.Fatalf("expected the request sent twice (original + one retry), got %d", empty.SentCount())
	}
}

func TestFramerRejectsMismatchedSequence(t *testing.T) {
	mock := transport.NewMockTransport()
	f := NewFramer(mock, testLogger())
	f.SetTimeout(20 * time.Millisecond)

	reply := Packet{Sequence: 99, Opcode: OpGetMainStatus, Payload: []byte{0x00}}
	mock.QueueReply(frameFromPacket(t, reply))
	// a mismatched sequence is a ProtocolError, which is not retried, so
	// this second reply is never read
	mock.QueueReply(frameFromPacket(t, reply))

	_, err := f.SendAndAwaitReply(Packet{Opcode: OpGetMainStatus, Read: true})
	if err == nil {
		t.Fatalf("expected error for mismatched reply sequence")
	}
}

func TestFramerSurfacesControllerError(t *testing.T) {
	mock := transport.NewMockTransport()
	f := NewFramer(mock, testLogger())
	f.SetTimeout(20 * time.Millisecond)

	reply := Packet{Sequence: 0, Opcode: OpReadErrorCode, Err: true, Payload: []byte{6}}
	mock.QueueReply(frameFromPacket(t, reply))

	_, err := f.SendAndAwaitReply(Packet{Opcode: OpReadErrorCode, Read: true})
	if err == nil {
		t.Fatalf("expected controller error")
	}
	ctrlErr, ok := err.(*ControllerError)
	if !ok {
		t.Fatalf("expected *ControllerError, got %T: %v", err, err)
	}
	if ctrlErr.Code != 6 {
		t.Fatalf("expected code 6, got %d", ctrlErr.Code)
	}
}
