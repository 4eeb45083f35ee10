// Package trust implements the backend trust policy: risk scoring,
// auto-approval decisions, and the mandate proof. Clients only ever consume
// its outputs (trust_score, auto_approved, is_valid); none of this runs
// client-side.
package trust

import (
	"github.com/leo2971998/trustagent/pkg/ap2"
)

const (
	// BaseTrustScore is the user trust score assigned to every caller.
	// A per-user history model would replace this constant.
	BaseTrustScore = 85.0

	// AutoApprovalThreshold is reported with the metrics for display.
	AutoApprovalThreshold = 80.0

	autoApproveCartLimit    = 50.0
	autoApprovePaymentLimit = 100.0
)

// Metrics are the trust outputs attached to a mandate at creation.
type Metrics struct {
	UserTrustScore        float64 `json:"user_trust_score"`
	TransactionRiskScore  float64 `json:"transaction_risk_score"`
	AutoApprovalThreshold float64 `json:"auto_approval_threshold"`
	RequiresManualReview  bool    `json:"requires_manual_review"`
}

// safeIntents are intent types that never move money directly and are always
// eligible for auto-approval.
var safeIntents = map[string]bool{
	"savings_goal":      true,
	"budget_alert":      true,
	"spending_analysis": true,
}

// Evaluate scores a payload. Risk grows with the committed amount; emergency
// payments are discounted because they are time-critical and size-capped by
// the auto-approval gate anyway. RequiresManualReview mirrors the kind gate:
// true exactly when the mandate will sit pending for a human.
func Evaluate(p ap2.Payload) Metrics {
	var risk float64
	switch v := p.(type) {
	case ap2.IntentPayload:
		risk = 10.0
	case ap2.CartPayload:
		risk = v.TotalAmount / 20
		if risk > 50 {
			risk = 50
		}
	case ap2.PaymentPayload:
		risk = v.Amount / 10
		if risk > 80 {
			risk = 80
		}
		if v.Urgency == ap2.UrgencyEmergency {
			risk *= 0.7
		}
	default:
		risk = 30.0
	}
	return Metrics{
		UserTrustScore:        BaseTrustScore,
		TransactionRiskScore:  risk,
		AutoApprovalThreshold: AutoApprovalThreshold,
		RequiresManualReview:  !kindGate(p),
	}
}

// kindGate holds the per-kind auto-approval rules: safe intent types, carts
// up to $50, emergency payments up to $100.
func kindGate(p ap2.Payload) bool {
	switch v := p.(type) {
	case ap2.IntentPayload:
		return safeIntents[v.IntentType]
	case ap2.CartPayload:
		return v.TotalAmount <= autoApproveCartLimit
	case ap2.PaymentPayload:
		return v.Amount <= autoApprovePaymentLimit && v.Urgency == ap2.UrgencyEmergency
	}
	return false
}

// CanAutoApprove decides the creation branch, once, server-side. It requires
// a verified proof and the kind gate; everything else waits for a human.
func CanAutoApprove(p ap2.Payload, m Metrics, proofValid bool) bool {
	return proofValid && !m.RequiresManualReview
}
