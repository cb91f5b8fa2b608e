package providers

import (
	"context"

	"github.com/google/uuid"
)

// LocalProvider handles channels that never leave the application, such
// as reminders, local task records, and read-only queries. It simply
// acknowledges the action; the caller persists the outcome.
type LocalProvider struct{}

// Send acknowledges the action with a locally generated receipt
func (LocalProvider) Send(ctx context.Context, payload map[string]interface{}) (*Receipt, error) {
	return &Receipt{
		Success:           true,
		ProviderMessageID: "local-" + uuid.New().String(),
	}, nil
}
