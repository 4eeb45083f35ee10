// Package ap2 holds the mandate domain model: a mandate is a signed, typed
// record of a user-authorized financial operation moving through a
// trust-gated approval lifecycle.
package ap2

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindIntent  Kind = "intent"
	KindCart    Kind = "cart"
	KindPayment Kind = "payment"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIntent, KindCart, KindPayment:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown mandate kind %q", s)
	}
	return k, nil
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusExecuted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown mandate status %q", s)
	}
	return st, nil
}

// Proof is the cryptographic proof block attached by the backend at creation.
// Clients never recompute it; is_valid on the mandate reports its verification.
type Proof struct {
	Signature     string `json:"signature"`
	PublicKeyHash string `json:"public_key_hash"`
	Timestamp     string `json:"timestamp"`
	Nonce         string `json:"nonce"`
	Algorithm     string `json:"algorithm"`
}

// Mandate is the typed representation of a user-authorized financial
// instruction. Identity, kind and payload are fixed at creation; status only
// advances along the transition table; trust_score and is_valid are
// authoritative backend facts copied verbatim on every read.
type Mandate struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	UserID          string     `json:"user_id"`
	Payload         Payload    `json:"-"`
	Status          Status     `json:"status"`
	TrustScore      float64    `json:"trust_score"`
	RiskScore       float64    `json:"risk_score"`
	AutoApproved    bool       `json:"auto_approved"`
	IsValid         bool       `json:"is_valid"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
	LinkedMessageID string     `json:"linked_message_id,omitempty"`
	Proof           *Proof     `json:"proof,omitempty"`
}

// Expired reports whether the mandate's validity window has passed. An
// expired pending or approved mandate is stale: still cancellable, but no
// longer approvable or executable.
func (m Mandate) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

type mandateJSON struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	UserID          string          `json:"user_id"`
	Payload         json.RawMessage `json:"payload"`
	Status          Status          `json:"status"`
	TrustScore      float64         `json:"trust_score"`
	RiskScore       float64         `json:"risk_score"`
	AutoApproved    bool            `json:"auto_approved"`
	IsValid         bool            `json:"is_valid"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
	LinkedMessageID string          `json:"linked_message_id,omitempty"`
	Proof           *Proof          `json:"proof,omitempty"`
}

func (m Mandate) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if m.Payload != nil {
		b, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(mandateJSON{
		ID:              m.ID,
		Kind:            m.Kind,
		UserID:          m.UserID,
		Payload:         raw,
		Status:          m.Status,
		TrustScore:      m.TrustScore,
		RiskScore:       m.RiskScore,
		AutoApproved:    m.AutoApproved,
		IsValid:         m.IsValid,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		ExecutedAt:      m.ExecutedAt,
		LinkedMessageID: m.LinkedMessageID,
		Proof:           m.Proof,
	})
}

func (m *Mandate) UnmarshalJSON(data []byte) error {
	var in mandateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("unknown mandate kind %q", in.Kind)
	}
	var payload Payload
	if len(in.Payload) > 0 {
		p, err := UnmarshalPayload(in.Kind, in.Payload)
		if err != nil {
			return err
		}
		payload = p
	}
	*m = Mandate{
		ID:              in.ID,
		Kind:            in.Kind,
		UserID:          in.UserID,
		Payload:         payload,
		Status:          in.Status,
		TrustScore:      in.TrustScore,
		RiskScore:       in.RiskScore,
		AutoApproved:    in.AutoApproved,
		IsValid:         in.IsValid,
		CreatedAt:       in.CreatedAt,
		ExpiresAt:       in.ExpiresAt,
		ExecutedAt:      in.ExecutedAt,
		LinkedMessageID: in.LinkedMessageID,
		Proof:           in.Proof,
	}
	return nil
}

var errPayloadKindMismatch = errors.New("payload does not match mandate kind")

// CheckPayload enforces the construction-boundary invariant: the payload
// shape must match the mandate kind and validate for that kind.
func (m Mandate) CheckPayload() error {
	if m.Payload == nil {
		return errors.New("payload is required")
	}
	if m.Payload.Kind() != m.Kind {
		return errPayloadKindMismatch
	}
	return m.Payload.Validate()
}
