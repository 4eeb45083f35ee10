package ap2

// Event is a caller-initiated lifecycle transition.
type Event string

const (
	EventApprove Event = "approve"
	EventExecute Event = "execute"
	EventCancel  Event = "cancel"
)

// transitions is the full lifecycle table. Creation is not listed: the
// backend trust policy decides the initial status (approved when
// auto-approved, pending otherwise) once, at creation.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventApprove: StatusApproved,
		EventCancel:  StatusCancelled,
	},
	StatusApproved: {
		EventExecute: StatusExecuted,
		EventCancel:  StatusCancelled,
	},
}

// CanTransition reports whether event is legal from the given status and the
// status it leads to. Terminal statuses admit no events.
func CanTransition(from Status, ev Event) (Status, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// LegalEvents lists the events admissible from a status, in a stable order.
func LegalEvents(from Status) []Event {
	var out []Event
	for _, ev := range []Event{EventApprove, EventExecute, EventCancel} {
		if _, ok := CanTransition(from, ev); ok {
			out = append(out, ev)
		}
	}
	return out
}

// InitialStatus is the creation branch: the only place trust scoring affects
// control flow.
func InitialStatus(autoApproved bool) Status {
	if autoApproved {
		return StatusApproved
	}
	return StatusPending
}
