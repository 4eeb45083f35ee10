package ap2

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport with optional hooks for blocking
// calls mid-flight.
type fakeTransport struct {
	mu       sync.Mutex
	mandates map[string]*Mandate
	order    []string
	calls    map[string]int
	nextID   int

	// beforeTransition, when set, runs before a transition mutates state.
	beforeTransition func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		mandates: map[string]*Mandate{},
		calls:    map[string]int{},
	}
}

func (f *fakeTransport) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTransport) seed(m Mandate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := m
	f.mandates[m.ID] = &cp
	f.order = append([]string{m.ID}, f.order...)
}

func (f *fakeTransport) newMandate(kind string, payload map[string]any, autoApproved bool) *Mandate {
	f.nextID++
	status := StatusPending
	if autoApproved {
		status = StatusApproved
	}
	now := time.Now().UTC()
	return &Mandate{
		ID:           "mdt_" + string(rune('a'+f.nextID-1)),
		Kind:         kind,
		UserID:       "usr_1",
		Payload:      payload,
		Status:       status,
		AutoApproved: autoApproved,
		IsValid:      true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}
}

func (f *fakeTransport) ListMandates(_ context.Context, status string) ([]Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	var out []Mandate
	for _, id := range f.order {
		m := f.mandates[id]
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeTransport) GetMandate(_ context.Context, id string) (*Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	m, ok := f.mandates[id]
	if !ok {
		return nil, &Error{Kind: ErrNotFound, Message: "mandate not found", StatusCode: 404}
	}
	cp := *m
	return &cp, nil
}

func (f *fakeTransport) CreateIntent(_ context.Context, req IntentRequest, _ string) (*Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	m := f.newMandate(KindIntent, map[string]any{"intent_type": req.IntentType, "amount": req.Amount}, true)
	f.mandates[m.ID] = m
	f.order = append([]string{m.ID}, f.order...)
	cp := *m
	return &cp, nil
}

func (f *fakeTransport) CreateCart(_ context.Context, req CartRequest, _ string) (*Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	m := f.newMandate(KindCart, map[string]any{"total_amount": 0.0}, false)
	f.mandates[m.ID] = m
	f.order = append([]string{m.ID}, f.order...)
	cp := *m
	return &cp, nil
}

func (f *fakeTransport) CreatePayment(_ context.Context, req PaymentRequest, _ string) (*Mandate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	m := f.newMandate(KindPayment, map[string]any{"amount": req.Amount, "purpose": req.Purpose}, false)
	f.mandates[m.ID] = m
	f.order = append([]string{m.ID}, f.order...)
	cp := *m
	return &cp, nil
}

func (f *fakeTransport) doTransition(id, event string) (*TransitionResult, error) {
	if f.beforeTransition != nil {
		f.beforeTransition()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[event]++
	m, ok := f.mandates[id]
	if !ok {
		return nil, &Error{Kind: ErrNotFound, Message: "mandate not found", StatusCode: 404}
	}
	to, legal := CanTransition(m.Status, event)
	if !legal {
		return nil, &Error{Kind: ErrState, Message: "illegal transition", StatusCode: 409}
	}
	m.Status = to
	cp := *m
	return &TransitionResult{Success: true, Mandate: &cp}, nil
}

func (f *fakeTransport) ApproveMandate(_ context.Context, id string) (*TransitionResult, error) {
	return f.doTransition(id, "approve")
}

func (f *fakeTransport) ExecuteMandate(_ context.Context, id string) (*TransitionResult, error) {
	return f.doTransition(id, "execute")
}

func (f *fakeTransport) CancelMandate(_ context.Context, id string) (*TransitionResult, error) {
	return f.doTransition(id, "cancel")
}

func TestControllerCreateInsertsServerRecordAtHead(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)

	first, err := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := c.CreateIntent(context.Background(), IntentRequest{IntentType: "savings_goal", Amount: 500})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got := c.Mandates()
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestControllerAutoApprovalComesFromServer(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)

	m, err := c.CreateIntent(context.Background(), IntentRequest{IntentType: "savings_goal", Amount: 500})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !m.AutoApproved || m.Status != StatusApproved {
		t.Fatalf("auto_approved=%v status=%q", m.AutoApproved, m.Status)
	}
	p, err := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.AutoApproved || p.Status != StatusPending {
		t.Fatalf("auto_approved=%v status=%q", p.AutoApproved, p.Status)
	}
}

func TestControllerRejectsIllegalTransitionWithoutNetworkCall(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	m, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})

	_, err := c.Execute(context.Background(), m.ID)
	if !IsKind(err, ErrState) {
		t.Fatalf("err = %v", err)
	}
	if n := ft.callCount("execute"); n != 0 {
		t.Fatalf("execute hit the transport %d times", n)
	}
}

func TestControllerIntegrityGuardBeforeTransport(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	broken := *ft.newMandate(KindPayment, map[string]any{"amount": 40.0}, false)
	broken.Status = StatusApproved
	broken.IsValid = false
	ft.seed(broken)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	_, err := c.Execute(context.Background(), broken.ID)
	if !IsKind(err, ErrIntegrity) {
		t.Fatalf("err = %v", err)
	}
	if n := ft.callCount("execute"); n != 0 {
		t.Fatalf("execute hit the transport %d times", n)
	}
}

func TestControllerExpiredMandateBlocked(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	stale := *ft.newMandate(KindPayment, map[string]any{"amount": 40.0}, false)
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	ft.seed(stale)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := c.Approve(context.Background(), stale.ID); !IsKind(err, ErrState) {
		t.Fatalf("approve expired: err = %v", err)
	}
	if n := ft.callCount("approve"); n != 0 {
		t.Fatalf("approve hit the transport %d times", n)
	}
	// Cancel still goes through.
	if _, err := c.Cancel(context.Background(), stale.ID); err != nil {
		t.Fatalf("cancel expired: %v", err)
	}
}

func TestControllerMandateWithoutExpiryIsActionable(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	open := *ft.newMandate(KindPayment, map[string]any{"amount": 40.0}, false)
	open.ExpiresAt = time.Time{}
	ft.seed(open)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := c.Approve(context.Background(), open.ID); err != nil {
		t.Fatalf("approve without expiry window: %v", err)
	}
}

func TestControllerReconcilesAfterTransition(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	m, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})

	if _, err := c.Approve(context.Background(), m.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	want, err := ft.ListMandates(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := c.Mandates()
	if len(got) != len(want) {
		t.Fatalf("len %d != %d", len(got), len(want))
	}
	for i := range got {
		if got[i].ID != want[i].ID || got[i].Status != want[i].Status {
			t.Fatalf("drift at %d: %+v vs %+v", i, got[i], want[i])
		}
	}
	if got[0].Status != StatusApproved {
		t.Fatalf("status = %q", got[0].Status)
	}
}

func TestControllerNotFoundForcesResync(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	m, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})

	// Delete server-side behind the controller's back.
	ft.mu.Lock()
	delete(ft.mandates, m.ID)
	ft.order = nil
	ft.mu.Unlock()

	_, err := c.Approve(context.Background(), m.ID)
	if !IsKind(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if got := c.Mandates(); len(got) != 0 {
		t.Fatalf("local list not resynced: %+v", got)
	}
}

func TestControllerSuppressesConcurrentTransitions(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	m, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})

	entered := make(chan struct{})
	release := make(chan struct{})
	ft.beforeTransition = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Approve(context.Background(), m.ID)
		done <- err
	}()
	<-entered

	// Second attempt while the first is in flight.
	_, err := c.Approve(context.Background(), m.ID)
	if err != ErrInFlight {
		t.Fatalf("second approve err = %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if n := ft.callCount("approve"); n != 1 {
		t.Fatalf("approve hit the transport %d times", n)
	}
}

func TestControllerUnrelatedMandatesStayActionable(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	a, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "a"})
	b, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 50, Purpose: "b"})

	entered := make(chan struct{})
	release := make(chan struct{})
	once := sync.Once{}
	ft.beforeTransition = func() {
		var first bool
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Approve(context.Background(), a.ID)
		done <- err
	}()
	<-entered

	if _, err := c.Approve(context.Background(), b.ID); err != nil {
		t.Fatalf("approve of unrelated mandate blocked: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first approve: %v", err)
	}
}

func TestControllerLegalActions(t *testing.T) {
	ft := newFakeTransport()
	c := NewController(ft)
	m, _ := c.CreatePayment(context.Background(), PaymentRequest{Amount: 40, Purpose: "bill"})

	got := c.LegalActions(m.ID)
	if len(got) != 2 || got[0] != "approve" || got[1] != "cancel" {
		t.Fatalf("pending actions = %v", got)
	}
	if _, err := c.Approve(context.Background(), m.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got = c.LegalActions(m.ID)
	if len(got) != 2 || got[0] != "execute" || got[1] != "cancel" {
		t.Fatalf("approved actions = %v", got)
	}
}
