package ap2

import "testing"

func TestSummarizeCounts(t *testing.T) {
	mandates := []Mandate{
		{ID: "a", Status: StatusPending},
		{ID: "b", Status: StatusApproved},
		{ID: "c", Status: StatusExecuted},
		{ID: "d", Status: StatusCancelled},
		{ID: "e", Status: StatusPending},
	}
	s := Summarize(mandates)
	if s.ActiveCount != 3 {
		t.Fatalf("active_count = %d", s.ActiveCount)
	}
	if s.PendingCount != 2 {
		t.Fatalf("pending_count = %d", s.PendingCount)
	}
	if s.EstimatedSavings != 0 {
		t.Fatalf("estimated_savings derived locally: %v", s.EstimatedSavings)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := Summarize(nil); s.ActiveCount != 0 || s.PendingCount != 0 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestMergeSummaryPrefersBackend(t *testing.T) {
	local := Summary{ActiveCount: 2, PendingCount: 1}
	backend := Summary{ActiveCount: 3, PendingCount: 2, EstimatedSavings: 540}
	if got := MergeSummary(local, &backend); got != backend {
		t.Fatalf("merged = %+v", got)
	}
	if got := MergeSummary(local, nil); got != local {
		t.Fatalf("merged = %+v", got)
	}
}

func TestPendingCountTracksCollectionThroughLifecycle(t *testing.T) {
	count := func(ms []Mandate) int {
		n := 0
		for _, m := range ms {
			if m.Status == StatusPending {
				n++
			}
		}
		return n
	}
	mandates := []Mandate{{ID: "a", Status: StatusPending}, {ID: "b", Status: StatusPending}}
	if s := Summarize(mandates); s.PendingCount != count(mandates) {
		t.Fatalf("pending_count = %d, want %d", s.PendingCount, count(mandates))
	}
	mandates[0].Status = StatusApproved
	if s := Summarize(mandates); s.PendingCount != count(mandates) {
		t.Fatalf("pending_count = %d, want %d", s.PendingCount, count(mandates))
	}
	mandates[0].Status = StatusExecuted
	mandates[1].Status = StatusCancelled
	if s := Summarize(mandates); s.PendingCount != 0 {
		t.Fatalf("pending_count = %d", s.PendingCount)
	}
}
