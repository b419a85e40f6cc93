package lut

import (
	"testing"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
	"github.com/openmicromirror/dlpc900ctl/pkg/transport"
)

func newTestController(t *testing.T) (*Controller, *transport.MockTransport) {
	t.Helper()
	mock := transport.NewMockTransport()
	f := protocol.NewFramer(mock, logger.New(logger.Config{Level: "error"}))
	f.SetTimeout(50 * time.Millisecond)
	return New(f), mock
}

func frameFromPacket(t *testing.T, p protocol.Packet) []byte {
	t.Helper()
	buf := p.Encode()
	frame := make([]byte, transport.FrameSize)
	copy(frame, buf)
	return frame
}

func TestStopUsesFixedSequenceAndNoReply(t *testing.T) {
	c, mock := newTestController(t)

	if err := c.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.SentCount() != 1 {
		t.Fatalf("expected one frame sent, got %d", mock.SentCount())
	}
	sent := mock.Sent[0]
	if sent[1] != startStopSeqStop {
		t.Fatalf("expected sequence byte 0x%02x, got 0x%02x", startStopSeqStop, sent[1])
	}
	if c.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %s", c.State())
	}
}

func TestStartUsesFixedSequenceAndTransitionsToRunning(t *testing.T) {
	c, mock := newTestController(t)

	if err := c.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent[0]
	if sent[1] != startStopSeqStart {
		t.Fatalf("expected sequence byte 0x%02x, got 0x%02x", startStopSeqStart, sent[1])
	}
	if c.State() != StateRunning {
		t.Fatalf("expected StateRunning, got %s", c.State())
	}
}

func TestPauseUsesFixedSequenceByte(t *testing.T) {
	c, mock := newTestController(t)

	if err := c.Pause(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent[0]
	if sent[1] != startStopSeqPause {
		t.Fatalf("expected sequence byte 0x%02x, got 0x%02x", startStopSeqPause, sent[1])
	}
}

func TestConfigureRejectsOutOfRangePatternCount(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.Configure(512, 0); err == nil {
		t.Fatalf("expected validation error for numPatterns > 511")
	}
}

func TestConfigureEncodesPatternCountAndRepeatCount(t *testing.T) {
	c, mock := newTestController(t)
	mock.QueueReply(frameFromPacket(t, protocol.Packet{Sequence: 0, Opcode: protocol.OpPatConfig}))

	if err := c.Configure(24, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateConfigured {
		t.Fatalf("expected StateConfigured, got %s", c.State())
	}

	sent := mock.Sent[0]
	payload := sent[6:12]
	numPatterns := int(payload[0]) | int(payload[1])<<8
	if numPatterns != 24 {
		t.Fatalf("expected numPatterns 24, got %d", numPatterns)
	}
	numRepeat := uint32(payload[2]) | uint32(payload[3])<<8 | uint32(payload[4])<<16 | uint32(payload[5])<<24
	if numRepeat != 3 {
		t.Fatalf("expected numRepeat 3, got %d", numRepeat)
	}
}

func TestMiscByteEncodesClearLEDAndWaitBits(t *testing.T) {
	cases := []struct {
		name string
		d    Definition
		want byte
	}{
		{"defaults", Definition{}, 0x10},
		{"clear set", Definition{ClearAfterTrigger: true}, 0x11},
		{"wait set", Definition{WaitForTrigger: true}, 0x90},
		{"both set", Definition{ClearAfterTrigger: true, WaitForTrigger: true}, 0x91},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := miscByte(c.d); got != c.want {
				t.Fatalf("miscByte(%+v) = 0x%02x, want 0x%02x", c.d, got, c.want)
			}
		})
	}
}

func TestDefineEncodesTwelveBytePayload(t *testing.T) {
	c, mock := newTestController(t)
	mock.QueueReply(frameFromPacket(t, protocol.Packet{Sequence: 0, Opcode: protocol.OpMboxData}))

	err := c.Define(Definition{
		SequencePositionIndex: 5,
		ExposureMicros:        1000,
		DarkTimeMicros:        50,
		WaitForTrigger:        true,
		DisableTrigger2:       true,
		StoredImageIndex:      2,
		StoredImageBitIndex:   3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent[0]
	payload := sent[6:18]
	if len(payload) != 12 {
		t.Fatalf("expected 12-byte payload")
	}
	seqIdx := int(payload[0]) | int(payload[1])<<8
	if seqIdx != 5 {
		t.Fatalf("expected sequence position 5, got %d", seqIdx)
	}
	exposure := uint32(payload[2]) | uint32(payload[3])<<8 | uint32(payload[4])<<16
	if exposure != 1000 {
		t.Fatalf("expected exposure 1000, got %d", exposure)
	}
	if payload[5] != 0x90 { // LED-enable fixed bits | wait bit, no clear
		t.Fatalf("expected misc byte 0x90, got 0x%02x", payload[5])
	}
	dark := int(payload[6]) | int(payload[7])<<8
	if dark != 50 {
		t.Fatalf("expected dark time 50, got %d", dark)
	}
	if payload[9] != 0x00 {
		t.Fatalf("expected disable_trig_2 byte 0x00, got 0x%02x", payload[9])
	}
	if payload[10] != 2 {
		t.Fatalf("expected stored image index 2, got %d", payload[10])
	}
	if payload[11] != 24 { // 8 * 3
		t.Fatalf("expected stored image bit byte 24, got %d", payload[11])
	}
}

func TestLoadInitSelectsMasterOrSecondaryOpcode(t *testing.T) {
	c, mock := newTestController(t)
	mock.QueueReplies(
		frameFromPacket(t, protocol.Packet{Sequence: 0, Opcode: protocol.OpPatMemLoadInitMaster}),
		frameFromPacket(t, protocol.Packet{Sequence: 1, Opcode: protocol.OpPatMemLoadInitSecondary}),
	)

	if err := c.LoadInit(0, 1000, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.LoadInit(1, 2000, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.Sent) != 2 {
		t.Fatalf("expected 2 frames sent, got %d", len(mock.Sent))
	}
}

func TestLoadDataChunksAcrossMaxCommandPayload(t *testing.T) {
	c, mock := newTestController(t)

	header := make([]byte, 48)
	body := make([]byte, protocol.MaxCommandPayload+10)
	for i := range body {
		body[i] = byte(i)
	}

	if err := c.LoadData(header, body, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 48+514 bytes split into two commands: a 504-byte chunk (6+2+504 = 512
	// bytes, 8 reports) and a 58-byte chunk (6+2+58 = 66 bytes, 2 reports).
	if len(mock.Sent) != 10 {
		t.Fatalf("expected data to span 10 report frames across 2 commands, got %d", len(mock.Sent))
	}
	if c.State() != StateLoaded {
		t.Fatalf("expected StateLoaded, got %s", c.State())
	}
}
