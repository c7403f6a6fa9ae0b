package quotations

import (
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

// Event is a lifecycle trigger applied to a quotation.
type Event string

const (
	EventCreate    Event = "create"
	EventCalculate Event = "calculate"
	EventSend      Event = "send"
	EventAccept    Event = "accept"
	EventReject    Event = "reject"
	EventExpire    Event = "expire"
	EventCancel    Event = "cancel"
)

var transitions = map[QuotationStatus]map[Event]QuotationStatus{
	QuotationStatusDraft: {
		EventCalculate: QuotationStatusCalculated,
		EventCancel:    QuotationStatusCancelled,
	},
	QuotationStatusCalculated: {
		EventCalculate: QuotationStatusCalculated,
		EventSend:      QuotationStatusSent,
		EventCancel:    QuotationStatusCancelled,
	},
	QuotationStatusSent: {
		EventAccept: QuotationStatusAccepted,
		EventReject: QuotationStatusRejected,
		EventExpire: QuotationStatusExpired,
		EventCancel: QuotationStatusCancelled,
	},
	QuotationStatusAccepted:  {},
	QuotationStatusRejected:  {},
	QuotationStatusExpired:   {},
	QuotationStatusCancelled: {},
}

// TransitionError reports an event that is not legal from the current status.
type TransitionError struct {
	From    QuotationStatus
	Event   Event
	Allowed []Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s quotation (allowed: %v)", shared.ErrInvalidStateTransition, e.Event, e.From, e.Allowed)
}

func (e *TransitionError) Unwrap() error { return shared.ErrInvalidStateTransition }

// ProblemExtensions exposes the allowed events to API clients.
func (e *TransitionError) ProblemExtensions() map[string]any {
	allowed := make([]string, 0, len(e.Allowed))
	for _, ev := range e.Allowed {
		allowed = append(allowed, string(ev))
	}
	return map[string]any{
		"current_status": string(e.From),
		"event":          string(e.Event),
		"allowed_events": allowed,
	}
}

// Next returns the status reached by applying event to from.
func Next(from QuotationStatus, event Event) (QuotationStatus, error) {
	if event == EventCreate {
		if from == "" {
			return QuotationStatusDraft, nil
		}
		return "", &TransitionError{From: from, Event: event, Allowed: AllowedEvents(from)}
	}
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return "", &TransitionError{From: from, Event: event, Allowed: AllowedEvents(from)}
}

// CanTransition reports whether event is legal from the status.
func CanTransition(from QuotationStatus, event Event) bool {
	_, err := Next(from, event)
	return err == nil
}

// AllowedEvents lists the events legal from a status, sorted by name.
func AllowedEvents(from QuotationStatus) []Event {
	allowed := make([]Event, 0, len(transitions[from]))
	for ev := range transitions[from] {
		allowed = append(allowed, ev)
	}
	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	return allowed
}

// IsTerminal reports whether no further events are accepted.
func IsTerminal(s QuotationStatus) bool {
	return len(transitions[s]) == 0
}

// IsOverdue reports whether a SENT quotation has passed valid_until at now.
func IsOverdue(q *Quotation, now time.Time) bool {
	return q != nil && q.Status == QuotationStatusSent && q.ValidUntil != nil && now.After(*q.ValidUntil)
}

// Project returns the read-time view of q: an overdue SENT quotation is
// reported as EXPIRED. The input is not modified.
func Project(q *Quotation, now time.Time) *Quotation {
	if q == nil {
		return nil
	}
	view := *q
	if IsOverdue(q, now) {
		view.Status = QuotationStatusExpired
	}
	return &view
}
