package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Charge is the gateway's record of a captured payment.
type Charge struct {
	Reference   string
	AmountCents int64
	Currency    string
}

// Charger is the narrow seam to the external payment gateway: create a
// charge given an amount. The gateway's own internals (cards, 3DS, payouts)
// are not owned by this application.
type Charger interface {
	CreateCharge(ctx context.Context, amountCents int64, currency, description string) (Charge, error)
}

// ErrChargeDeclined is returned when the gateway refuses the charge.
var ErrChargeDeclined = errors.New("payment: charge declined")

// MockCharger approves every charge and fabricates a reference. It stands in
// for the real gateway in development and tests.
type MockCharger struct{}

// NewMockCharger constructs a MockCharger.
func NewMockCharger() *MockCharger {
	return &MockCharger{}
}

// CreateCharge validates the amount and returns a synthetic charge reference.
func (m *MockCharger) CreateCharge(ctx context.Context, amountCents int64, currency, description string) (Charge, error) {
	if amountCents <= 0 {
		return Charge{}, fmt.Errorf("payment: invalid amount %d", amountCents)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Charge{}, fmt.Errorf("payment: invalid currency %q", currency)
	}

	return Charge{
		Reference:   "mock_" + uuid.NewString(),
		AmountCents: amountCents,
		Currency:    currency,
	}, nil
}
