package engine

import (
	"context"
	"fmt"

	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/providers"
)

// Executor invokes the concrete side-effecting operation for an action.
// It dispatches by the action's channel; the providers behind the
// registry are external services (email/SMS/voice gateways, task APIs).
type Executor struct {
	registry *providers.Registry
}

// NewExecutor creates an executor over a provider registry
func NewExecutor(registry *providers.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs the side effect for an action type and returns the result
// payload to attach to the action record. The payload is validated by the
// provider, not here; the executor only routes it.
func (e *Executor) Execute(ctx context.Context, actionType string, payload map[string]interface{}) (map[string]interface{}, error) {
	channel := governance.ChannelFor(actionType)

	provider, err := e.registry.Get(channel)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	receipt, err := provider.Send(ctx, payload)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	result := map[string]interface{}{
		"success": receipt.Success,
	}
	if receipt.ProviderMessageID != "" {
		result["provider_message_id"] = receipt.ProviderMessageID
	}
	return result, nil
}
