package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/aspira-app/aspira/api/internal/governance"
)

// Receipt is what a side-effect provider hands back for a delivered action
type Receipt struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Provider delivers one kind of side effect (an email, an SMS, a voice
// call, a created task). Implementations live behind network APIs; the
// engine only sees this contract.
type Provider interface {
	Send(ctx context.Context, payload map[string]interface{}) (*Receipt, error)
}

// Registry maps channels to their providers
type Registry struct {
	mu        sync.RWMutex
	providers map[governance.Channel]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[governance.Channel]Provider),
	}
}

// Register installs a provider for a channel, replacing any previous one
func (r *Registry) Register(channel governance.Channel, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[channel] = provider
}

// Get returns the provider for a channel
func (r *Registry) Get(channel governance.Channel) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return provider, nil
}
