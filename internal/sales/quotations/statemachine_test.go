package quotations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

func TestTransitionTable(t *testing.T) {
	statuses := []QuotationStatus{
		QuotationStatusDraft, QuotationStatusCalculated, QuotationStatusSent,
		QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired, QuotationStatusCancelled,
	}
	events := []Event{EventCalculate, EventSend, EventAccept, EventReject, EventExpire, EventCancel}

	legal := map[QuotationStatus]map[Event]QuotationStatus{
		QuotationStatusDraft:      {EventCalculate: QuotationStatusCalculated, EventCancel: QuotationStatusCancelled},
		QuotationStatusCalculated: {EventCalculate: QuotationStatusCalculated, EventSend: QuotationStatusSent, EventCancel: QuotationStatusCancelled},
		QuotationStatusSent: {
			EventAccept: QuotationStatusAccepted,
			EventReject: QuotationStatusRejected,
			EventExpire: QuotationStatusExpired,
			EventCancel: QuotationStatusCancelled,
		},
	}

	for _, from := range statuses {
		for _, ev := range events {
			to, err := Next(from, ev)
			want, ok := legal[from][ev]
			if ok {
				require.NoError(t, err, "%s --%s-->", from, ev)
				assert.Equal(t, want, to, "%s --%s-->", from, ev)
				continue
			}
			require.ErrorIs(t, err, shared.ErrInvalidStateTransition, "%s --%s--> should be rejected", from, ev)
			var tErr *TransitionError
			require.ErrorAs(t, err, &tErr)
			assert.Equal(t, from, tErr.From)
			assert.Equal(t, ev, tErr.Event)
		}
	}
}

func TestCreateOnlyFromNothing(t *testing.T) {
	to, err := Next("", EventCreate)
	require.NoError(t, err)
	assert.Equal(t, QuotationStatusDraft, to)

	_, err = Next(QuotationStatusDraft, EventCreate)
	assert.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []QuotationStatus{QuotationStatusAccepted, QuotationStatusRejected, QuotationStatusExpired, QuotationStatusCancelled} {
		assert.True(t, IsTerminal(s), s)
		assert.Empty(t, AllowedEvents(s))
		assert.False(t, CanTransition(s, EventCancel))
	}
	assert.False(t, IsTerminal(QuotationStatusSent))
}

func TestAllowedEventsSorted(t *testing.T) {
	assert.Equal(t, []Event{EventAccept, EventCancel, EventExpire, EventReject}, AllowedEvents(QuotationStatusSent))

	_, err := Next(QuotationStatusDraft, EventSend)
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, []Event{EventCalculate, EventCancel}, tErr.Allowed)
	assert.Equal(t, []string{"calculate", "cancel"}, tErr.ProblemExtensions()["allowed_events"])
}

func TestProjectExpiresOverdueSent(t *testing.T) {
	validUntil := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	q := &Quotation{Status: QuotationStatusSent, ValidUntil: &validUntil}

	assert.Equal(t, QuotationStatusSent, Project(q, validUntil).Status)
	assert.Equal(t, QuotationStatusSent, Project(q, validUntil.Add(-time.Hour)).Status)

	view := Project(q, validUntil.Add(time.Second))
	assert.Equal(t, QuotationStatusExpired, view.Status)
	assert.Equal(t, QuotationStatusSent, q.Status, "projection must not mutate the stored record")

	accepted := &Quotation{Status: QuotationStatusAccepted, ValidUntil: &validUntil}
	assert.Equal(t, QuotationStatusAccepted, Project(accepted, validUntil.AddDate(1, 0, 0)).Status)
	assert.Nil(t, Project(nil, validUntil))
}
