package payment

import (
	"context"

	"github.com/google/uuid"
)

// SimulatedGateway mints local intent ids instead of calling a provider.
// It backs development and test deployments; the webhook endpoint still
// exercises the full settlement path.
type SimulatedGateway struct{}

// NewSimulatedGateway returns a SimulatedGateway.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (gateway *SimulatedGateway) CreateIntent(ctx context.Context, orderID string, email string, amountCents int64) (string, error) {
	return "pi_" + uuid.NewString(), nil
}
