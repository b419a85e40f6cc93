package upload

import (
	"testing"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/codec"
	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
	"github.com/openmicromirror/dlpc900ctl/pkg/lut"
	"github.com/openmicromirror/dlpc900ctl/pkg/panel"
	"github.com/openmicromirror/dlpc900ctl/pkg/protocol"
	"github.com/openmicromirror/dlpc900ctl/pkg/transport"
)

func encodeReplyFrame(p protocol.Packet) []byte {
	buf := p.Encode()
	frame := make([]byte, transport.FrameSize)
	copy(frame, buf)
	return frame
}

// autoReplyMock answers every SendAndAwaitReply with a generic success
// reply matching whatever opcode was just sent, so orchestrator tests can
// focus on the command sequence rather than scripting every reply by
// hand. DISP_MODE writes are answered, then the read-back is answered
// with the requested mode so SetPatternMode always succeeds.
type autoReplyMock struct {
	*transport.MockTransport
	lastWriteMode byte
}

func newAutoReplyMock() *autoReplyMock {
	return &autoReplyMock{MockTransport: transport.NewMockTransport()}
}

func (m *autoReplyMock) SendFrame(frame [transport.FrameSize]byte) error {
	if err := m.MockTransport.SendFrame(frame); err != nil {
		return err
	}
	opcode := protocol.Opcode(uint16(frame[4]) | uint16(frame[5])<<8)
	flag := frame[0]
	seq := frame[1]

	if flag&protocol.FlagReplyRequested == 0 {
		return nil // no reply expected (e.g. PAT_START_STOP)
	}

	var payload []byte
	if opcode == protocol.OpDispMode {
		if flag&protocol.FlagReadWrite == 0 {
			m.lastWriteMode = frame[6]
			payload = nil
		} else {
			payload = []byte{m.lastWriteMode}
		}
	}

	reply := protocol.Packet{Sequence: seq, Opcode: opcode, Payload: payload}
	m.QueueReply(encodeReplyFrame(reply))
	return nil
}

func newTestOrchestrator(t *testing.T, profile panel.Profile) (*Orchestrator, *autoReplyMock) {
	t.Helper()
	mock := newAutoReplyMock()
	log := logger.New(logger.Config{Level: "error"})
	f := protocol.NewFramer(mock, log)
	f.SetTimeout(50 * time.Millisecond)
	lutCtl := lut.New(f)
	return New(profile, f, lutCtl, log), mock
}

func solidPattern(width, height int, value byte) []byte {
	p := make([]byte, width*height)
	for i := range p {
		p[i] = value
	}
	return p
}

// countOpcode counts the sent frames whose opcode field equals op.
func countOpcode(m *autoReplyMock, op protocol.Opcode) int {
	n := 0
	for _, frame := range m.Sent {
		if protocol.Opcode(uint16(frame[4])|uint16(frame[5])<<8) == op {
			n++
		}
	}
	return n
}

func TestUploadOnTheFlyRejectsShortExposure(t *testing.T) {
	o, _ := newTestOrchestrator(t, panel.DLP6500Profile())
	req := Request{
		Patterns:        [][]byte{solidPattern(4, 4, 1)},
		ExposuresMicros: []uint32{50},
		DarkMicros:      []uint32{0},
		BitDepth:        1,
		Compression:     codec.ModeERLE,
	}
	_, err := o.UploadOnTheFly(req)
	if err == nil {
		t.Fatalf("expected ValidationError for exposure below minimum")
	}
	if _, ok := err.(*protocol.ValidationError); !ok {
		t.Fatalf("expected *protocol.ValidationError, got %T: %v", err, err)
	}
}

func TestUploadOnTheFlySingleControllerSinglePattern(t *testing.T) {
	profile := panel.Profile{Name: "test", Width: 4, Height: 4, DualController: false}
	o, _ := newTestOrchestrator(t, profile)

	req := Request{
		Patterns:        [][]byte{solidPattern(4, 4, 1)},
		ExposuresMicros: []uint32{200},
		DarkMicros:      []uint32{0},
		BitDepth:        1,
		Compression:     codec.ModeERLE,
	}

	result, err := o.UploadOnTheFly(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CombinedImageCount != 1 {
		t.Fatalf("expected 1 combined image, got %d", result.CombinedImageCount)
	}
	if result.PatternCount != 1 {
		t.Fatalf("expected pattern count 1, got %d", result.PatternCount)
	}
	if result.Armed {
		t.Fatalf("expected not armed for untriggered upload")
	}
}

func TestUploadOnTheFlyDualControllerSplitsHalves(t *testing.T) {
	profile := panel.Profile{Name: "test-dual", Width: 8, Height: 4, DualController: true}
	o, mock := newTestOrchestrator(t, profile)

	req := Request{
		Patterns:        [][]byte{solidPattern(8, 4, 1)},
		ExposuresMicros: []uint32{200},
		DarkMicros:      []uint32{0},
		BitDepth:        1,
		Compression:     codec.ModeERLE,
	}

	result, err := o.UploadOnTheFly(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CombinedImageCount != 1 {
		t.Fatalf("expected 1 combined image, got %d", result.CombinedImageCount)
	}
	if got := countOpcode(mock, protocol.OpPatMemLoadInitMaster); got != 1 {
		t.Fatalf("expected 1 master-half load init, got %d", got)
	}
	if got := countOpcode(mock, protocol.OpPatMemLoadInitSecondary); got != 1 {
		t.Fatalf("expected 1 secondary-half load init, got %d", got)
	}
}

func TestUploadOnTheFlyTriggeredArmsAfterStart(t *testing.T) {
	profile := panel.Profile{Name: "test", Width: 4, Height: 4, DualController: false}
	o, _ := newTestOrchestrator(t, profile)

	req := Request{
		Patterns:        [][]byte{solidPattern(4, 4, 1)},
		ExposuresMicros: []uint32{200},
		DarkMicros:      []uint32{0},
		BitDepth:        1,
		Triggered:       true,
		Compression:     codec.ModeERLE,
	}

	result, err := o.UploadOnTheFly(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Armed {
		t.Fatalf("expected armed result for triggered upload")
	}
}

func TestUploadOnTheFlyTwentyFivePatternsProducesTwoImages(t *testing.T) {
	profile := panel.Profile{Name: "test", Width: 2, Height: 2, DualController: false}
	o, _ := newTestOrchestrator(t, profile)

	patterns := make([][]byte, 25)
	for i := range patterns {
		patterns[i] = solidPattern(2, 2, 1)
	}

	req := Request{
		Patterns:        patterns,
		ExposuresMicros: []uint32{200},
		DarkMicros:      []uint32{0},
		BitDepth:        1,
		Compression:     codec.ModeERLE,
	}

	result, err := o.UploadOnTheFly(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CombinedImageCount != 2 {
		t.Fatalf("expected 2 combined images for 25 patterns, got %d", result.CombinedImageCount)
	}
}

func TestUploadPreStoredConfiguresWithoutBitmapUpload(t *testing.T) {
	profile := panel.DLP6500Profile()
	o, mock := newTestOrchestrator(t, profile)

	req := PreStoredRequest{
		ImageIndices:    []int{0, 0},
		BitIndices:      []int{0, 1},
		ExposuresMicros: []uint32{1000},
		DarkMicros:      []uint32{0},
	}

	result, err := o.UploadPreStored(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PatternCount != 2 {
		t.Fatalf("expected pattern count 2, got %d", result.PatternCount)
	}
	for _, op := range []protocol.Opcode{protocol.OpPatMemLoadInitMaster, protocol.OpPatMemLoadDataMaster,
		protocol.OpPatMemLoadInitSecondary, protocol.OpPatMemLoadDataSecondary} {
		if got := countOpcode(mock, op); got != 0 {
			t.Fatalf("expected no pattern-memory load frames (opcode 0x%04x), got %d", uint16(op), got)
		}
	}
}
