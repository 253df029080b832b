package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/session"
)

type slotPrompt struct {
	action  string
	message string
}

// Prompt asked once the keyed field is missing next.
var slotPrompts = map[string]slotPrompt{
	session.FieldDestination:   {ActionCollectDestination, "Great! And where would you like to fly to?"},
	session.FieldDate:          {ActionCollectDate, "When would you like to travel? Please provide the date."},
	session.FieldPassengerName: {ActionCollectPassengerName, "May I have your full name for the booking?"},
	session.FieldContact:       {ActionCollectContact, "And your contact number?"},
}

// KeywordPolicy is the keyword router with booking slot filling.
type KeywordPolicy struct{}

func NewKeywordPolicy() *KeywordPolicy {
	return &KeywordPolicy{}
}

func (p *KeywordPolicy) Name() string { return "keyword" }

func (p *KeywordPolicy) Process(ctx context.Context, callID, utterance string, sess *session.Session) (Result, error) {
	if route, ok := MatchRoute(utterance); ok {
		return route.Result(KeywordConfidence), nil
	}

	if sess != nil && sess.CurrentIntent == IntentBookFlight && sess.Booking != nil {
		return fillSlot(strings.TrimSpace(utterance), sess.Booking), nil
	}

	return unknownResult(MessageUnknown), nil
}

func fillSlot(utterance string, current *session.BookingData) Result {
	booking := current.Clone()
	field, missing := booking.NextMissing()
	if !missing {
		return unknownResult(MessageRephrase)
	}
	booking.Set(field, utterance)

	res := Result{
		Intent:     IntentBookFlight,
		Confidence: SlotConfidence,
		Parameters: session.Values{field: session.String(utterance)},
	}

	next, missing := booking.NextMissing()
	if !missing {
		res.Action = ActionConfirmBooking
		res.Message = ConfirmationMessage(booking)
		return res
	}

	prompt := slotPrompts[next]
	res.Action = prompt.action
	res.Message = prompt.message
	return res
}

// ConfirmationMessage summarises a filled booking and asks to proceed.
func ConfirmationMessage(b *session.BookingData) string {
	origin, _ := b.Get(session.FieldOrigin)
	destination, _ := b.Get(session.FieldDestination)
	date, _ := b.Get(session.FieldDate)
	name, _ := b.Get(session.FieldPassengerName)
	return fmt.Sprintf("Perfect! Let me confirm: Flying from %s to %s on %s for %s. Should I proceed with the booking?",
		origin, destination, date, name)
}
