package ap2

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is the kind-discriminated mandate payload. Each kind has exactly
// one concrete shape; shapes are fixed at creation and never coerced after.
type Payload interface {
	Kind() Kind
	Validate() error
}

// IntentPayload expresses a financial intent, e.g. a recurring savings goal.
type IntentPayload struct {
	IntentType  string  `json:"intent_type"`
	Amount      float64 `json:"amount"`
	Frequency   string  `json:"frequency"`
	Description string  `json:"description,omitempty"`
}

func (IntentPayload) Kind() Kind { return KindIntent }

func (p IntentPayload) Validate() error {
	if p.IntentType == "" {
		return errors.New("intent_type is required")
	}
	if p.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if p.Frequency == "" {
		return errors.New("frequency is required")
	}
	return nil
}

type CartItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// CartPayload is a pre-approved set of line items, e.g. a subscription.
type CartPayload struct {
	Items            []CartItem `json:"items"`
	TotalAmount      float64    `json:"total_amount"`
	SubscriptionType string     `json:"subscription_type,omitempty"`
}

func (CartPayload) Kind() Kind { return KindCart }

func (p CartPayload) Validate() error {
	if len(p.Items) == 0 {
		return errors.New("items are required")
	}
	for i, it := range p.Items {
		if it.Name == "" {
			return fmt.Errorf("items[%d].name is required", i)
		}
		if it.Price <= 0 {
			return fmt.Errorf("items[%d].price must be positive", i)
		}
	}
	if p.TotalAmount <= 0 {
		return errors.New("total_amount must be positive")
	}
	return nil
}

// ItemTotal sums the line item prices. The backend recomputes total_amount
// from items at creation so the stored total can never drift from the lines.
func (p CartPayload) ItemTotal() float64 {
	var total float64
	for _, it := range p.Items {
		total += it.Price
	}
	return total
}

const (
	UrgencyNormal    = "normal"
	UrgencyEmergency = "emergency"
)

// PaymentPayload requests an immediate payment execution.
type PaymentPayload struct {
	Amount  float64 `json:"amount"`
	Purpose string  `json:"purpose"`
	Urgency string  `json:"urgency"`
}

func (PaymentPayload) Kind() Kind { return KindPayment }

func (p PaymentPayload) Validate() error {
	if p.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if p.Purpose == "" {
		return errors.New("purpose is required")
	}
	if p.Urgency != UrgencyNormal && p.Urgency != UrgencyEmergency {
		return fmt.Errorf("urgency must be %q or %q", UrgencyNormal, UrgencyEmergency)
	}
	return nil
}

// UnmarshalPayload decodes raw JSON into the concrete payload for kind.
func UnmarshalPayload(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindIntent:
		var p IntentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindCart:
		var p CartPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindPayment:
		var p PaymentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown mandate kind %q", kind)
	}
}

// PayloadAmount returns the monetary amount a payload commits: the intent
// amount, the cart total, or the payment amount.
func PayloadAmount(p Payload) float64 {
	switch v := p.(type) {
	case IntentPayload:
		return v.Amount
	case CartPayload:
		return v.TotalAmount
	case PaymentPayload:
		return v.Amount
	default:
		return 0
	}
}
