package ap2

import (
	"context"
	"sync"
	"time"
)

// Transport is what the Controller needs from the service. *Client satisfies
// it; tests substitute fakes.
type Transport interface {
	ListMandates(ctx context.Context, status string) ([]Mandate, error)
	GetMandate(ctx context.Context, id string) (*Mandate, error)
	CreateIntent(ctx context.Context, req IntentRequest, idempotencyKey string) (*Mandate, error)
	CreateCart(ctx context.Context, req CartRequest, idempotencyKey string) (*Mandate, error)
	CreatePayment(ctx context.Context, req PaymentRequest, idempotencyKey string) (*Mandate, error)
	ApproveMandate(ctx context.Context, id string) (*TransitionResult, error)
	ExecuteMandate(ctx context.Context, id string) (*TransitionResult, error)
	CancelMandate(ctx context.Context, id string) (*TransitionResult, error)
}

// transitions is the lifecycle table: which event is legal from which status,
// and where it lands.
var transitions = map[string]map[string]string{
	StatusPending:  {"approve": StatusApproved, "cancel": StatusCancelled},
	StatusApproved: {"execute": StatusExecuted, "cancel": StatusCancelled},
}

// CanTransition reports whether event is legal from status and the resulting
// status when it is.
func CanTransition(status, event string) (string, bool) {
	to, ok := transitions[status][event]
	return to, ok
}

// Controller mirrors the caller's mandate list and funnels every mutation
// through the service, reconciling afterwards. The server copy is always
// authoritative: the controller never flips a status it has not seen the
// service confirm.
type Controller struct {
	transport Transport

	mu       sync.Mutex
	mandates []Mandate
	inflight map[string]bool
	now      func() time.Time
}

func NewController(transport Transport) *Controller {
	return &Controller{
		transport: transport,
		inflight:  map[string]bool{},
		now:       time.Now,
	}
}

// Mandates returns a snapshot of the local list, most recent first.
func (c *Controller) Mandates() []Mandate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Mandate, len(c.mandates))
	copy(out, c.mandates)
	return out
}

// Refresh replaces the local list with the server's.
func (c *Controller) Refresh(ctx context.Context) error {
	mandates, err := c.transport.ListMandates(ctx, "")
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mandates = mandates
	c.mu.Unlock()
	return nil
}

func (c *Controller) CreateIntent(ctx context.Context, req IntentRequest) (*Mandate, error) {
	return c.created(c.transport.CreateIntent(ctx, req, ""))
}

func (c *Controller) CreateCart(ctx context.Context, req CartRequest) (*Mandate, error) {
	return c.created(c.transport.CreateCart(ctx, req, ""))
}

func (c *Controller) CreatePayment(ctx context.Context, req PaymentRequest) (*Mandate, error) {
	return c.created(c.transport.CreatePayment(ctx, req, ""))
}

// created inserts the server-assigned record at the head of the local list.
// The local copy is exactly what the service returned, auto-approval
// included; the controller adds nothing of its own.
func (c *Controller) created(m *Mandate, err error) (*Mandate, error) {
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.mandates = append([]Mandate{*m}, c.mandates...)
	c.mu.Unlock()
	return m, nil
}

func (c *Controller) Approve(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "approve", c.transport.ApproveMandate)
}

func (c *Controller) Execute(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "execute", c.transport.ExecuteMandate)
}

func (c *Controller) Cancel(ctx context.Context, id string) (*TransitionResult, error) {
	return c.transition(ctx, id, "cancel", c.transport.CancelMandate)
}

func (c *Controller) transition(ctx context.Context, id, event string, call func(context.Context, string) (*TransitionResult, error)) (*TransitionResult, error) {
	c.mu.Lock()
	if c.inflight[id] {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	local, found := c.findLocked(id)
	if found {
		if err := c.guardLocked(local, event); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.inflight[id] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	res, err := call(ctx, id)
	if err != nil {
		if IsKind(err, ErrNotFound) {
			// The mandate is gone server-side; our copy is stale.
			_ = c.Refresh(ctx)
		}
		return nil, err
	}
	// The response carries the new record, but reload the whole list so the
	// local state also picks up changes we did not initiate.
	if err := c.Refresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// guardLocked applies the local preflight checks. They only ever reject
// requests the server would reject too; passing them proves nothing.
func (c *Controller) guardLocked(m Mandate, event string) error {
	if event == "execute" && !m.IsValid {
		return &Error{Kind: ErrIntegrity, Message: "mandate proof failed verification"}
	}
	if _, ok := CanTransition(m.Status, event); !ok {
		return &Error{Kind: ErrState, Message: "cannot " + event + " mandate in status " + m.Status}
	}
	if event != "cancel" && m.Expired(c.now()) {
		return &Error{Kind: ErrState, Message: "mandate has expired"}
	}
	return nil
}

func (c *Controller) findLocked(id string) (Mandate, bool) {
	for _, m := range c.mandates {
		if m.ID == id {
			return m, true
		}
	}
	return Mandate{}, false
}

// LegalActions lists the events the local copy of a mandate would accept.
func (c *Controller) LegalActions(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.findLocked(id)
	if !ok {
		return nil
	}
	var out []string
	for _, ev := range []string{"approve", "execute", "cancel"} {
		if _, legal := CanTransition(m.Status, ev); !legal {
			continue
		}
		if ev != "cancel" && m.Expired(c.now()) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
