package ap2

// Summarize derives the dashboard counts from a mandate collection. Active
// means pending or approved. EstimatedSavings is left at zero: what counts
// as savings is backend policy, so only a server-provided summary carries
// that figure.
func Summarize(mandates []Mandate) Summary {
	var s Summary
	for _, m := range mandates {
		switch m.Status {
		case StatusPending:
			s.ActiveCount++
			s.PendingCount++
		case StatusApproved:
			s.ActiveCount++
		}
	}
	return s
}

// MergeSummary picks between a locally derived summary and one the backend
// supplied. The backend copy wins whenever present.
func MergeSummary(local Summary, backend *Summary) Summary {
	if backend != nil {
		return *backend
	}
	return local
}
