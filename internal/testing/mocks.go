package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/providers"
)

// MockProvider is a side-effect provider for tests. It records every
// payload it receives and can be told to fail.
type MockProvider struct {
	mu    sync.Mutex
	calls []map[string]interface{}

	// Fail makes Send return an error instead of a receipt
	Fail bool
}

// NewMockProvider creates a succeeding mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Send records the payload and returns a canned receipt
func (p *MockProvider) Send(ctx context.Context, payload map[string]interface{}) (*providers.Receipt, error) {
	p.mu.Lock()
	p.calls = append(p.calls, payload)
	p.mu.Unlock()

	if p.Fail {
		return nil, errors.New("provider unavailable")
	}

	return &providers.Receipt{
		Success:           true,
		ProviderMessageID: "mock-message-id",
	}, nil
}

// Calls returns a copy of the payloads Send received
func (p *MockProvider) Calls() []map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	calls := make([]map[string]interface{}, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// CallCount returns how many times Send was invoked
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// NewMockRegistry returns a provider registry with a mock provider
// registered for every channel, plus the mocks keyed by channel for
// assertions.
func NewMockRegistry() (*providers.Registry, map[governance.Channel]*MockProvider) {
	registry := providers.NewRegistry()
	mocks := make(map[governance.Channel]*MockProvider, len(governance.Channels))

	for _, channel := range governance.Channels {
		mock := NewMockProvider()
		registry.Register(channel, mock)
		mocks[channel] = mock
	}

	return registry, mocks
}
