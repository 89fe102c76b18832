package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/photoscan/ai"
	"github.com/poiesic/photoscan/core"
)

// MockModel is the model name reported by mock descriptions.
const MockModel = "mock-vision"

// MockDescriber is a test double for ai.Describer.
// It is safe for concurrent use.
type MockDescriber struct {
	mu           sync.RWMutex
	describeFunc func(ctx context.Context, req ai.DescribeRequest) (*core.Description, error)
	delay        time.Duration

	callCount atomic.Int64
	requests  []ai.DescribeRequest
}

// NewMockDescriber creates a mock describer whose default captions are
// derived from the file name.
func NewMockDescriber() *MockDescriber {
	return &MockDescriber{}
}

// WithDescribeFunc overrides Describe.
func (m *MockDescriber) WithDescribeFunc(fn func(ctx context.Context, req ai.DescribeRequest) (*core.Description, error)) *MockDescriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describeFunc = fn
	return m
}

// WithDelay makes every call block for d (or until ctx is done).
func (m *MockDescriber) WithDelay(d time.Duration) *MockDescriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Describe returns "Quiet light over <name>." unless overridden.
func (m *MockDescriber) Describe(ctx context.Context, req ai.DescribeRequest) (*core.Description, error) {
	m.callCount.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.describeFunc
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}

	return &core.Description{
		Text:        fmt.Sprintf("Quiet light over %s.", filepath.Base(req.Path)),
		Model:       MockModel,
		GeneratedAt: time.Now(),
	}, nil
}

// CallCount returns the number of Describe calls.
func (m *MockDescriber) CallCount() int {
	return int(m.callCount.Load())
}

// Requests returns a copy of every request received.
func (m *MockDescriber) Requests() []ai.DescribeRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ai.DescribeRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded calls and injected behavior.
func (m *MockDescriber) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.describeFunc = nil
	m.delay = 0
	m.requests = nil
	m.mu.Unlock()
}

// MockAnswerer is a test double for ai.Answerer.
type MockAnswerer struct {
	mu         sync.RWMutex
	answerFunc func(ctx context.Context, question string, options []string) (string, error)
	callCount  atomic.Int64
}

// NewMockAnswerer creates a mock answerer that returns the first option.
func NewMockAnswerer() *MockAnswerer {
	return &MockAnswerer{}
}

// WithAnswerFunc overrides Answer.
func (m *MockAnswerer) WithAnswerFunc(fn func(ctx context.Context, question string, options []string) (string, error)) *MockAnswerer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answerFunc = fn
	return m
}

// Answer returns the first option, or "" when there are none.
func (m *MockAnswerer) Answer(ctx context.Context, question string, options []string) (string, error) {
	m.callCount.Add(1)

	m.mu.RLock()
	fn := m.answerFunc
	m.mu.RUnlock()
	if fn != nil {
		return fn(ctx, question, options)
	}
	if len(options) == 0 {
		return "", nil
	}
	return options[0], nil
}

// CallCount returns the number of Answer calls.
func (m *MockAnswerer) CallCount() int {
	return int(m.callCount.Load())
}
