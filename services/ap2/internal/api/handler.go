// Package api implements the HTTP surface of the AP2 mandate service:
// creation by kind, listing, the approve/execute/cancel transitions, stats,
// the dashboard summary, and the expiry sweep.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leo2971998/trustagent/pkg/ap2"
	"github.com/leo2971998/trustagent/pkg/authn"
	"github.com/leo2971998/trustagent/pkg/httpx"
	"github.com/leo2971998/trustagent/pkg/trust"
	"github.com/leo2971998/trustagent/services/ap2/internal/idempotency"
	"github.com/leo2971998/trustagent/services/ap2/internal/store"
)

const mandateTTL = 24 * time.Hour

type Handler struct {
	store    store.Store
	sessions authn.SessionStore
	signer   *trust.Signer
	idem     idempotency.Store
	now      func() time.Time
}

func NewHandler(st store.Store, sessions authn.SessionStore, signer *trust.Signer, idem idempotency.Store) *Handler {
	return &Handler{store: st, sessions: sessions, signer: signer, idem: idem, now: time.Now}
}

// WithClock overrides the handler clock. Tests use it to drive expiry.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/mandates/intent", h.createIntent)
		r.Post("/mandates/cart", h.createCart)
		r.Post("/mandates/payment", h.createPayment)
		r.Get("/mandates", h.listMandates)
		r.Get("/mandates/{mandate_id}", h.getMandate)
		r.Post("/mandates/{mandate_id}/approve", h.approveMandate)
		r.Post("/mandates/{mandate_id}/execute", h.executeMandate)
		r.Post("/mandates/{mandate_id}/cancel", h.cancelMandate)
		r.Get("/stats", h.stats)
		r.Get("/summary", h.summary)
		r.Post("/cleanup", h.cleanup)
	})
	return r
}

type ctxKey int

const userIDKey ctxKey = iota

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := authn.Authenticate(r.Context(), h.sessions, r.Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, authn.ErrUnauthorized) {
				httpx.WriteError(w, 401, httpx.CodeAuthError, "authentication required", nil)
				return
			}
			httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, sess.UserID)))
	})
}

func callerID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, 200, map[string]any{
		"status":   "ok",
		"protocol": "AP2",
		"version":  "1.0.0",
		"features": []string{"intent_mandates", "cart_mandates", "payment_mandates", "autonomous_execution"},
	})
}

type createIntentRequest struct {
	IntentType      string  `json:"intent_type"`
	Amount          float64 `json:"amount"`
	Frequency       string  `json:"frequency"`
	Description     string  `json:"description"`
	LinkedMessageID string  `json:"linked_message_id"`
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
		return
	}
	payload := ap2.IntentPayload{
		IntentType:  req.IntentType,
		Amount:      req.Amount,
		Frequency:   req.Frequency,
		Description: req.Description,
	}
	h.createMandate(w, r, payload, req.LinkedMessageID, "create_intent")
}

type createCartRequest struct {
	Items            []ap2.CartItem `json:"items"`
	SubscriptionType string         `json:"subscription_type"`
	LinkedMessageID  string         `json:"linked_message_id"`
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
		return
	}
	payload := ap2.CartPayload{
		Items:            req.Items,
		SubscriptionType: req.SubscriptionType,
	}
	// The stored total always derives from the line items.
	payload.TotalAmount = payload.ItemTotal()
	h.createMandate(w, r, payload, req.LinkedMessageID, "create_cart")
}

type createPaymentRequest struct {
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	Urgency         string  `json:"urgency"`
	LinkedMessageID string  `json:"linked_message_id"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, httpx.CodeBadJSON, err.Error(), nil)
		return
	}
	if req.Urgency == "" {
		req.Urgency = ap2.UrgencyNormal
	}
	payload := ap2.PaymentPayload{
		Amount:  req.Amount,
		Purpose: req.Purpose,
		Urgency: req.Urgency,
	}
	h.createMandate(w, r, payload, req.LinkedMessageID, "create_payment")
}

func (h *Handler) createMandate(w http.ResponseWriter, r *http.Request, payload ap2.Payload, linkedMessageID, endpoint string) {
	uid := callerID(r)
	// Microsecond precision matches what timestamptz columns retain, so the
	// record a Postgres read hands back is identical to the one served here.
	now := h.now().UTC().Truncate(time.Microsecond)
	m := ap2.Mandate{
		ID:              "mdt_" + uuid.NewString(),
		Kind:            payload.Kind(),
		UserID:          uid,
		Payload:         payload,
		CreatedAt:       now,
		ExpiresAt:       now.Add(mandateTTL),
		LinkedMessageID: linkedMessageID,
	}
	if err := m.CheckPayload(); err != nil {
		httpx.WriteError(w, 400, httpx.CodeValidationError, err.Error(), nil)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	status, replayBody, found, err := idempotency.Replay(r.Context(), h.idem, uid, idemKey, endpoint)
	if err != nil {
		// Proceeding without the replay check could double-create on a
		// client retry, so a broken idempotency store fails the request.
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	if found {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(replayBody)
		return
	}

	proof, err := h.signer.Sign(m)
	if err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	m.Proof = &proof
	m.IsValid = true

	metrics := trust.Evaluate(payload)
	m.TrustScore = metrics.UserTrustScore
	m.RiskScore = metrics.TransactionRiskScore
	m.AutoApproved = trust.CanAutoApprove(payload, metrics, true)
	m.Status = ap2.InitialStatus(m.AutoApproved)

	if err := h.store.CreateMandate(r.Context(), m); err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}

	decision := "pending review"
	if m.AutoApproved {
		decision = "auto-approved"
	}
	resp := map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"mandate":    m,
		"message":    fmt.Sprintf("%s mandate created and %s", m.Kind, decision),
	}
	body, _ := json.Marshal(resp)
	_ = idempotency.Save(r.Context(), h.idem, uid, idemKey, endpoint, 201, body)
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(201)
	_, _ = w.Write(body)
}

func (h *Handler) listMandates(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	var status *ap2.Status
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := ap2.ParseStatus(q)
		if err != nil {
			httpx.WriteError(w, 400, httpx.CodeValidationError, err.Error(), nil)
			return
		}
		status = &st
	}
	mandates, err := h.store.ListMandates(r.Context(), uid, status)
	if err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	for i := range mandates {
		mandates[i].IsValid = h.signer.Verify(mandates[i])
	}
	if mandates == nil {
		mandates = []ap2.Mandate{}
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"mandates":   mandates,
		"count":      len(mandates),
	})
}

// loadOwned fetches a mandate, recomputes its validity, and enforces that the
// caller owns it. It writes the error response itself on failure.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (ap2.Mandate, bool) {
	id := chi.URLParam(r, "mandate_id")
	m, err := h.store.GetMandate(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, 404, httpx.CodeNotFound, "mandate not found", nil)
			return ap2.Mandate{}, false
		}
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return ap2.Mandate{}, false
	}
	if m.UserID != callerID(r) {
		httpx.WriteError(w, 403, httpx.CodeForbidden, "access denied", nil)
		return ap2.Mandate{}, false
	}
	m.IsValid = h.signer.Verify(m)
	return m, true
}

func (h *Handler) getMandate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"mandate":    m,
	})
}

func (h *Handler) approveMandate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	to, legal := ap2.CanTransition(m.Status, ap2.EventApprove)
	if !legal {
		httpx.WriteError(w, 409, httpx.CodeStateError, fmt.Sprintf("cannot approve mandate in status %s", m.Status), nil)
		return
	}
	if m.Expired(h.now()) {
		httpx.WriteError(w, 409, httpx.CodeStateError, "mandate has expired", nil)
		return
	}
	m.Status = to
	if err := h.store.UpdateMandate(r.Context(), m); err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"mandate":    m,
		"message":    "mandate approved",
	})
}

func (h *Handler) executeMandate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if !m.IsValid {
		httpx.WriteError(w, 422, httpx.CodeIntegrityError, "mandate proof failed verification", nil)
		return
	}
	to, legal := ap2.CanTransition(m.Status, ap2.EventExecute)
	if !legal {
		httpx.WriteError(w, 409, httpx.CodeStateError, fmt.Sprintf("cannot execute mandate in status %s", m.Status), nil)
		return
	}
	if m.Expired(h.now()) {
		httpx.WriteError(w, 409, httpx.CodeStateError, "mandate has expired", nil)
		return
	}
	executedAt := h.now().UTC()
	m.Status = to
	m.ExecutedAt = &executedAt
	if err := h.store.UpdateMandate(r.Context(), m); err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":       httpx.NewRequestID(),
		"success":          true,
		"mandate":          m,
		"execution_result": executionResult(m, executedAt),
		"message":          "mandate executed",
	})
}

func (h *Handler) cancelMandate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	to, legal := ap2.CanTransition(m.Status, ap2.EventCancel)
	if !legal {
		httpx.WriteError(w, 409, httpx.CodeStateError, fmt.Sprintf("cannot cancel mandate in status %s", m.Status), nil)
		return
	}
	m.Status = to
	if err := h.store.UpdateMandate(r.Context(), m); err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"mandate":    m,
		"message":    "mandate cancelled",
	})
}

// executionResult simulates the downstream action per kind, mirroring what a
// payment rail integration would report.
func executionResult(m ap2.Mandate, executedAt time.Time) map[string]any {
	txID := "tx_" + uuid.NewString()[:8]
	switch p := m.Payload.(type) {
	case ap2.IntentPayload:
		switch p.IntentType {
		case "savings_goal":
			return map[string]any{
				"action":         "savings_automation_created",
				"details":        fmt.Sprintf("Automated $%.2f %s savings goal activated", p.Amount, p.Frequency),
				"next_execution": executedAt.Add(30 * 24 * time.Hour).Format(time.RFC3339),
			}
		case "budget_alert":
			return map[string]any{
				"action":  "budget_alert_created",
				"details": fmt.Sprintf("Budget alert set at $%.2f", p.Amount),
				"active":  true,
			}
		default:
			return map[string]any{"action": "intent_processed"}
		}
	case ap2.CartPayload:
		return map[string]any{
			"action":         "subscription_payment_processed",
			"total_amount":   p.TotalAmount,
			"items_count":    len(p.Items),
			"transaction_id": txID,
		}
	case ap2.PaymentPayload:
		return map[string]any{
			"action":         "payment_executed",
			"amount":         p.Amount,
			"purpose":        p.Purpose,
			"transaction_id": txID,
			"timestamp":      executedAt.Format(time.RFC3339),
		}
	}
	return map[string]any{"action": "processed"}
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	mandates, err := h.store.ListMandates(r.Context(), callerID(r), nil)
	if err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	byKind := map[string]int{}
	byStatus := map[string]int{}
	executed, pending := 0, 0
	for _, m := range mandates {
		byKind[string(m.Kind)]++
		byStatus[string(m.Status)]++
		switch m.Status {
		case ap2.StatusExecuted:
			executed++
		case ap2.StatusPending:
			pending++
		}
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"stats": map[string]any{
			"total_mandates":   len(mandates),
			"by_kind":          byKind,
			"by_status":        byStatus,
			"total_executed":   executed,
			"pending_approval": pending,
		},
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	mandates, err := h.store.ListMandates(r.Context(), callerID(r), nil)
	if err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	active, pending := 0, 0
	var estimated float64
	for _, m := range mandates {
		switch m.Status {
		case ap2.StatusPending:
			active++
			pending++
			estimated += ap2.PayloadAmount(m.Payload)
		case ap2.StatusApproved:
			active++
			estimated += ap2.PayloadAmount(m.Payload)
		}
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"summary": map[string]any{
			"active_count":      active,
			"pending_count":     pending,
			"estimated_savings": estimated,
		},
	})
}

// cleanup cancels the caller's stale mandates: pending or approved records
// whose validity window has passed.
func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	mandates, err := h.store.ListMandates(r.Context(), callerID(r), nil)
	if err != nil {
		httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
		return
	}
	now := h.now()
	cancelled := 0
	for _, m := range mandates {
		if m.Status.Terminal() || !m.Expired(now) {
			continue
		}
		m.Status = ap2.StatusCancelled
		if err := h.store.UpdateMandate(r.Context(), m); err != nil {
			httpx.WriteError(w, 500, httpx.CodeStoreError, err.Error(), nil)
			return
		}
		cancelled++
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"cancelled":  cancelled,
		"message":    fmt.Sprintf("cancelled %d expired mandates", cancelled),
	})
}
