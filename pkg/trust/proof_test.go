package trust

import (
	"testing"
	"time"

	"github.com/leo2971998/trustagent/pkg/ap2"
)

func newTestMandate() ap2.Mandate {
	created := time.Date(2025, 9, 20, 12, 0, 0, 0, time.UTC)
	return ap2.Mandate{
		ID:        "mdt_1",
		Kind:      ap2.KindPayment,
		UserID:    "usr_1",
		Payload:   ap2.PaymentPayload{Amount: 200, Purpose: "emergency", Urgency: ap2.UrgencyEmergency},
		Status:    ap2.StatusPending,
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
	}
}

func TestProof_SignVerify(t *testing.T) {
	s, err := NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	m := newTestMandate()
	proof, err := s.Sign(m)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Proof = &proof
	if !s.Verify(m) {
		t.Fatal("expected proof to verify")
	}
	// Status changes after creation must not invalidate the proof.
	m.Status = ap2.StatusApproved
	if !s.Verify(m) {
		t.Fatal("status change should not break the proof")
	}
}

func TestProof_DetectsPayloadTamper(t *testing.T) {
	s, _ := NewSigner("test-secret")
	m := newTestMandate()
	proof, err := s.Sign(m)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Proof = &proof
	m.Payload = ap2.PaymentPayload{Amount: 2000, Purpose: "emergency", Urgency: ap2.UrgencyEmergency}
	if s.Verify(m) {
		t.Fatal("tampered payload must not verify")
	}
}

func TestProof_BoundToUser(t *testing.T) {
	s, _ := NewSigner("test-secret")
	m := newTestMandate()
	proof, err := s.Sign(m)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Proof = &proof
	m.UserID = "usr_2"
	if s.Verify(m) {
		t.Fatal("proof must be bound to the issuing user")
	}
}

func TestProof_MissingOrForeignAlgorithm(t *testing.T) {
	s, _ := NewSigner("test-secret")
	m := newTestMandate()
	if s.Verify(m) {
		t.Fatal("missing proof must not verify")
	}
	proof, _ := s.Sign(m)
	proof.Algorithm = "ed25519"
	m.Proof = &proof
	if s.Verify(m) {
		t.Fatal("foreign algorithm must not verify")
	}
}

func TestProof_SurvivesTimestampPrecisionLoss(t *testing.T) {
	s, _ := NewSigner("test-secret")
	m := newTestMandate()
	// Nanosecond-precision clock at creation time.
	m.CreatedAt = time.Date(2025, 9, 20, 12, 0, 0, 123456789, time.UTC)
	proof, err := s.Sign(m)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	m.Proof = &proof
	if !s.Verify(m) {
		t.Fatal("expected proof to verify")
	}
	// timestamptz keeps microseconds only; the read-back record must still
	// verify.
	m.CreatedAt = m.CreatedAt.Truncate(time.Microsecond)
	if !s.Verify(m) {
		t.Fatal("proof must survive the store's microsecond precision")
	}
	// A genuinely different creation time is still tampering.
	m.CreatedAt = m.CreatedAt.Add(time.Second)
	if s.Verify(m) {
		t.Fatal("shifted created_at must not verify")
	}
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	if _, err := NewSigner(""); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}
