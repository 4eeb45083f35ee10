// Package ap2 is the Go client for the AP2 mandate service. It wraps the
// HTTP API, mirrors the service's validation rules so bad input fails before
// the network, and ships a Controller that keeps a local mandate list
// reconciled with the backend.
package ap2

import (
	"errors"
	"time"
)

// Mandate kinds.
const (
	KindIntent  = "intent"
	KindCart    = "cart"
	KindPayment = "payment"
)

// Mandate statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusExecuted  = "executed"
	StatusCancelled = "cancelled"
)

// Payment urgency values.
const (
	UrgencyNormal    = "normal"
	UrgencyEmergency = "emergency"
)

type Mandate struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	UserID          string         `json:"user_id"`
	Payload         map[string]any `json:"payload"`
	Status          string         `json:"status"`
	TrustScore      float64        `json:"trust_score"`
	RiskScore       float64        `json:"risk_score"`
	AutoApproved    bool           `json:"auto_approved"`
	IsValid         bool           `json:"is_valid"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
	ExecutedAt      *time.Time     `json:"executed_at,omitempty"`
	LinkedMessageID string         `json:"linked_message_id,omitempty"`
	Proof           map[string]any `json:"proof,omitempty"`
}

// Expired reports whether the mandate's validity window has passed. A record
// without an expires_at never expires.
func (m Mandate) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// Amount returns the monetary figure the mandate is about, whichever field
// its kind stores it in.
func (m Mandate) Amount() float64 {
	if m.Payload == nil {
		return 0
	}
	if v, ok := m.Payload["amount"].(float64); ok {
		return v
	}
	if v, ok := m.Payload["total_amount"].(float64); ok {
		return v
	}
	return 0
}

type IntentRequest struct {
	IntentType      string  `json:"intent_type"`
	Amount          float64 `json:"amount"`
	Frequency       string  `json:"frequency"`
	Description     string  `json:"description"`
	LinkedMessageID string  `json:"linked_message_id,omitempty"`
}

func (r IntentRequest) Validate() error {
	if r.IntentType == "" {
		return errors.New("intent_type is required")
	}
	if r.Amount < 0 {
		return errors.New("amount must not be negative")
	}
	return nil
}

type CartItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type CartRequest struct {
	Items            []CartItem `json:"items"`
	SubscriptionType string     `json:"subscription_type"`
	LinkedMessageID  string     `json:"linked_message_id,omitempty"`
}

func (r CartRequest) Validate() error {
	if len(r.Items) == 0 {
		return errors.New("cart needs at least one item")
	}
	for _, it := range r.Items {
		if it.Name == "" {
			return errors.New("cart item name is required")
		}
		if it.Price < 0 {
			return errors.New("cart item price must not be negative")
		}
	}
	return nil
}

type PaymentRequest struct {
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	Urgency         string  `json:"urgency,omitempty"`
	LinkedMessageID string  `json:"linked_message_id,omitempty"`
}

func (r PaymentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if r.Purpose == "" {
		return errors.New("purpose is required")
	}
	switch r.Urgency {
	case "", UrgencyNormal, UrgencyEmergency:
		return nil
	}
	return errors.New("urgency must be normal or emergency")
}

// TransitionResult is the service's answer to approve, execute, and cancel.
type TransitionResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	Mandate         *Mandate       `json:"mandate"`
	ExecutionResult map[string]any `json:"execution_result,omitempty"`
}

type Stats struct {
	TotalMandates   int            `json:"total_mandates"`
	ByKind          map[string]int `json:"by_kind"`
	ByStatus        map[string]int `json:"by_status"`
	TotalExecuted   int            `json:"total_executed"`
	PendingApproval int            `json:"pending_approval"`
}

// Summary is the dashboard card: how many mandates are live and what they
// are worth.
type Summary struct {
	ActiveCount      int     `json:"active_count"`
	PendingCount     int     `json:"pending_count"`
	EstimatedSavings float64 `json:"estimated_savings"`
}
