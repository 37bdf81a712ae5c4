package camera

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock produces empty frames. It is used when no capture hardware is present
// and by tests.
type Mock struct {
	width, height int

	mu     sync.Mutex
	closed bool
	reads  int
	fail   error
}

func NewMock(width, height int) *Mock {
	return &Mock{width: width, height: height}
}

// FailWith makes subsequent reads return err until cleared with nil.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Mock) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Frame{}, errors.New("camera closed")
	}
	if m.fail != nil {
		return Frame{}, m.fail
	}
	m.reads++
	return Frame{Width: m.width, Height: m.height, CapturedAt: time.Now()}, nil
}

// Reads returns the number of successful reads.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
