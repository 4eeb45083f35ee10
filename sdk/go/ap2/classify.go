package ap2

import (
	"regexp"
	"strconv"
	"strings"
)

// Classification turns free text into a ready-to-send create request.
// Exactly one of Intent, Cart, Payment is set, matching Kind.
type Classification struct {
	Kind    string
	Intent  *IntentRequest
	Cart    *CartRequest
	Payment *PaymentRequest
}

// amountPattern matches the first currency-like number: optional dollar
// sign, comma-grouped digits, optional cents.
var amountPattern = regexp.MustCompile(`\$?\d+(?:,\d{3})*(?:\.\d{2})?`)

// Each rule matches on the lowercased text and builds from the original, so
// descriptions keep the user's casing.
type rule struct {
	match func(lower string) bool
	build func(lower, original string) *Classification
}

// Rules run in priority order; the first match wins. Matching is
// case-insensitive substring testing, nothing smarter.
var rules = []rule{
	{
		match: func(t string) bool {
			return strings.Contains(t, "save") &&
				(strings.Contains(t, "goal") || strings.Contains(t, "money") || hasAmount(t))
		},
		build: func(t, original string) *Classification {
			return &Classification{
				Kind: KindIntent,
				Intent: &IntentRequest{
					IntentType:  "savings_goal",
					Amount:      extractAmount(t, 500),
					Frequency:   "monthly",
					Description: original,
				},
			}
		},
	},
	{
		match: func(t string) bool {
			return strings.Contains(t, "pay") || strings.Contains(t, "transfer") || strings.Contains(t, "emergency")
		},
		build: func(t, _ string) *Classification {
			urgency := UrgencyNormal
			purpose := "payment"
			if strings.Contains(t, "emergency") {
				urgency = UrgencyEmergency
				purpose = "emergency"
			}
			return &Classification{
				Kind: KindPayment,
				Payment: &PaymentRequest{
					Amount:  extractAmount(t, 100),
					Purpose: purpose,
					Urgency: urgency,
				},
			}
		},
	},
	{
		match: func(t string) bool {
			return strings.Contains(t, "subscription") || strings.Contains(t, "recurring")
		},
		build: func(t, _ string) *Classification {
			return &Classification{
				Kind: KindCart,
				Cart: &CartRequest{
					Items:            []CartItem{{Name: "Subscription", Price: extractAmount(t, 25)}},
					SubscriptionType: "monthly",
				},
			}
		},
	},
}

// Classify maps free text onto a mandate kind and payload, or nil when no
// rule matches. It is pure: same text, same answer.
func Classify(text string) *Classification {
	t := strings.ToLower(text)
	for _, r := range rules {
		if r.match(t) {
			return r.build(t, text)
		}
	}
	return nil
}

func hasAmount(text string) bool {
	return amountPattern.MatchString(text)
}

// extractAmount pulls the first currency-like number out of text, dropping
// the dollar sign and thousands separators. def applies when the text has no
// number at all.
func extractAmount(text string, def float64) float64 {
	m := amountPattern.FindString(text)
	if m == "" {
		return def
	}
	m = strings.TrimPrefix(m, "$")
	m = strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return def
	}
	return v
}
