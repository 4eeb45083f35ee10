package ap2

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPayloadValidate_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		wantErr string
	}{
		{"intent ok", IntentPayload{IntentType: "savings_goal", Amount: 500, Frequency: "monthly"}, ""},
		{"intent missing type", IntentPayload{Amount: 500, Frequency: "monthly"}, "intent_type"},
		{"intent zero amount", IntentPayload{IntentType: "savings_goal", Frequency: "monthly"}, "amount"},
		{"cart ok", CartPayload{Items: []CartItem{{Name: "Streaming", Price: 25}}, TotalAmount: 25}, ""},
		{"cart empty items", CartPayload{TotalAmount: 25}, "items"},
		{"cart unnamed item", CartPayload{Items: []CartItem{{Price: 25}}, TotalAmount: 25}, "name"},
		{"payment ok", PaymentPayload{Amount: 200, Purpose: "emergency", Urgency: UrgencyEmergency}, ""},
		{"payment missing purpose", PaymentPayload{Amount: 200, Urgency: UrgencyNormal}, "purpose"},
		{"payment bad urgency", PaymentPayload{Amount: 200, Purpose: "rent", Urgency: "soon"}, "urgency"},
	}
	for _, c := range cases {
		err := c.payload.Validate()
		if c.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", c.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.wantErr) {
			t.Fatalf("%s: error %v, want mention of %q", c.name, err, c.wantErr)
		}
	}
}

func TestMandateJSON_PayloadFollowsKind(t *testing.T) {
	m := Mandate{
		ID:         "mdt_1",
		Kind:       KindPayment,
		UserID:     "usr_1",
		Payload:    PaymentPayload{Amount: 200, Purpose: "emergency", Urgency: UrgencyEmergency},
		Status:     StatusPending,
		TrustScore: 85,
		CreatedAt:  time.Date(2025, 9, 20, 12, 0, 0, 0, time.UTC),
		ExpiresAt:  time.Date(2025, 9, 21, 12, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Mandate
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p, ok := back.Payload.(PaymentPayload)
	if !ok {
		t.Fatalf("payload decoded as %T, want PaymentPayload", back.Payload)
	}
	if p.Amount != 200 || p.Urgency != UrgencyEmergency {
		t.Fatalf("payload fields lost: %+v", p)
	}
}

func TestMandateJSON_RejectsUnknownKind(t *testing.T) {
	var m Mandate
	err := json.Unmarshal([]byte(`{"id":"mdt_1","kind":"loan","payload":{"amount":5}}`), &m)
	if err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}

func TestCheckPayload_KindMismatch(t *testing.T) {
	m := Mandate{
		Kind:    KindCart,
		Payload: PaymentPayload{Amount: 10, Purpose: "rent", Urgency: UrgencyNormal},
	}
	if err := m.CheckPayload(); err == nil {
		t.Fatal("expected kind mismatch to fail")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	m := Mandate{ExpiresAt: now.Add(-time.Minute)}
	if !m.Expired(now) {
		t.Fatal("expected expired")
	}
	m.ExpiresAt = now.Add(time.Minute)
	if m.Expired(now) {
		t.Fatal("expected not expired")
	}
}

func TestCartItemTotal(t *testing.T) {
	p := CartPayload{Items: []CartItem{{Name: "a", Price: 10.5}, {Name: "b", Price: 4.5}}}
	if got := p.ItemTotal(); got != 15 {
		t.Fatalf("ItemTotal = %v, want 15", got)
	}
}
