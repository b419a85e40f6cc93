package transport

import (
	"fmt"
	"sync"
	"time"
)

// MockTransport is an in-memory Transport test double. Frames written by
// the code under test are recorded in Sent; replies are served from a
// scripted FIFO queue populated by QueueReply/QueueReplies.
type MockTransport struct {
	mu      sync.Mutex
	Sent    [][FrameSize]byte
	replies [][]byte
	closed  bool
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// SendFrame records the frame without transmitting it anywhere.
func (m *MockTransport) SendFrame(frame [FrameSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("transport: mock is closed")
	}
	m.Sent = append(m.Sent, frame)
	return nil
}

// ReadFrame pops the next scripted reply, or returns a timeout error if
// the queue is empty.
func (m *MockTransport) ReadFrame(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("transport: mock is closed")
	}
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("transport: mock read timed out after %s: no scripted reply queued", timeout)
	}

	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

// QueueReply appends one scripted reply frame to be returned by a future
// ReadFrame call.
func (m *MockTransport) QueueReply(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	m.replies = append(m.replies, buf)
}

// QueueReplies appends several scripted reply frames in order.
func (m *MockTransport) QueueReplies(frames ...[]byte) {
	for _, f := range frames {
		m.QueueReply(f)
	}
}

// SentCount returns the number of frames recorded so far.
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// Close marks the mock as closed; further Send/Read calls fail.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
