package ingest

import (
	"context"
	"sync"
	"time"
)

// MockTarget is a test implementation of Target.
type MockTarget struct {
	mu          sync.Mutex
	started     bool
	completed   bool
	shutdowns   int
	lines       []string
	stamps      []int64
	addDelay    time.Duration
	startErr    error
	addErr      error
	addErrAt    int
	completeErr error
}

// NewMockTarget creates a mock target for testing.
func NewMockTarget() *MockTarget {
	return &MockTarget{addErrAt: -1}
}

func (m *MockTarget) StartUpload(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *MockTarget) AddLine(_ context.Context, at int64, line string) error {
	if m.addDelay > 0 {
		time.Sleep(m.addDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil && len(m.lines) == m.addErrAt {
		return m.addErr
	}
	m.lines = append(m.lines, line)
	m.stamps = append(m.stamps, at)
	return nil
}

func (m *MockTarget) CompleteUpload(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completed = true
	return nil
}

func (m *MockTarget) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
}

func (m *MockTarget) SetAddDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDelay = d
}

// FailAddLineAt makes the n-th AddLine (0-based) return err.
func (m *MockTarget) FailAddLineAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErrAt = n
	m.addErr = err
}

func (m *MockTarget) SetStartErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockTarget) SetCompleteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeErr = err
}

func (m *MockTarget) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func (m *MockTarget) Stamps() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.stamps...)
}

func (m *MockTarget) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *MockTarget) Completed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

func (m *MockTarget) Shutdowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}

var _ Target = (*MockTarget)(nil)
