package policy

import (
	"context"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/session"
)

// Intents produced by the routing table and the fallbacks.
const (
	IntentBookFlight          = "book_flight"
	IntentCheckStatus         = "check_status"
	IntentCancelBooking       = "cancel_booking"
	IntentDomesticFlight      = "domestic_flight"
	IntentInternationalFlight = "international_flight"
	IntentSpeakToAgent        = "speak_to_agent"
	IntentUnknown             = "unknown"
	IntentError               = "error"
)

// Next-action tags understood by the voice renderers.
const (
	ActionNone                 = ""
	ActionCollectBookingType   = "collect_booking_type"
	ActionCollectFlightID      = "collect_flight_id"
	ActionCollectBookingID     = "collect_booking_id"
	ActionCollectOrigin        = "collect_origin"
	ActionCollectDestination   = "collect_destination"
	ActionCollectDate          = "collect_date"
	ActionCollectPassengerName = "collect_passenger_name"
	ActionCollectContact       = "collect_contact"
	ActionConfirmBooking       = "confirm_booking"
	ActionTransferAgent        = "transfer_agent"
)

const (
	KeywordConfidence = 0.85
	SlotConfidence    = 0.75
)

const (
	MessageRephrase = "I didn't quite understand. Could you rephrase that?"
	MessageUnknown  = "I didn't quite understand. You can say 'book a flight', 'check flight status', or 'cancel booking'."
	MessageError    = "I'm having trouble processing that. Could you try again?"
)

// Result is the reply for one turn. An empty Action means no follow-up action.
type Result struct {
	Message    string         `json:"message"`
	Intent     string         `json:"intent"`
	Action     string         `json:"action,omitempty"`
	Confidence float64        `json:"confidence"`
	Parameters session.Values `json:"parameters,omitempty"`
}

// Policy maps a session snapshot and a new utterance to a reply.
// Implementations must not mutate sess.
type Policy interface {
	Process(ctx context.Context, callID, utterance string, sess *session.Session) (Result, error)
	Name() string
}

// Route is one row of the top-level routing table.
type Route struct {
	Intent   string
	Action   string
	Keywords []string
	Message  string
}

// Routes is checked in order; the first route with a matching keyword wins.
var Routes = []Route{
	{
		Intent:   IntentBookFlight,
		Action:   ActionCollectBookingType,
		Keywords: []string{"book", "booking", "reserve", "ticket"},
		Message:  "I can help you book a flight. Are you looking for a domestic or international flight?",
	},
	{
		Intent:   IntentCheckStatus,
		Action:   ActionCollectFlightID,
		Keywords: []string{"status", "check", "flight status"},
		Message:  "I can check your flight status. Please provide your flight number.",
	},
	{
		Intent:   IntentCancelBooking,
		Action:   ActionCollectBookingID,
		Keywords: []string{"cancel", "cancellation"},
		Message:  "I can help you cancel your booking. Please provide your booking ID.",
	},
	{
		Intent:   IntentDomesticFlight,
		Action:   ActionCollectOrigin,
		Keywords: []string{"domestic"},
		Message:  "Great! Where would you like to fly from?",
	},
	{
		Intent:   IntentInternationalFlight,
		Action:   ActionCollectOrigin,
		Keywords: []string{"international"},
		Message:  "Perfect! Which city will you be departing from?",
	},
	{
		Intent:   IntentSpeakToAgent,
		Action:   ActionTransferAgent,
		Keywords: []string{"agent", "representative", "human"},
		Message:  "I'll connect you with an agent. Please hold.",
	},
}

// RouteFor returns the routing table row for intent.
func RouteFor(intent string) (Route, bool) {
	for _, r := range Routes {
		if r.Intent == intent {
			return r, true
		}
	}
	return Route{}, false
}

// MatchRoute returns the first route whose keyword occurs in utterance.
func MatchRoute(utterance string) (Route, bool) {
	lower := strings.ToLower(utterance)
	for _, r := range Routes {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return Route{}, false
}

func (r Route) Result(confidence float64) Result {
	return Result{
		Message:    r.Message,
		Intent:     r.Intent,
		Action:     r.Action,
		Confidence: confidence,
		Parameters: session.Values{},
	}
}

// ErrorResult is the apology reply used when a backend fails.
func ErrorResult() Result {
	return Result{
		Message:    MessageError,
		Intent:     IntentError,
		Confidence: 0,
		Parameters: session.Values{},
	}
}

func unknownResult(message string) Result {
	return Result{
		Message:    message,
		Intent:     IntentUnknown,
		Confidence: 0,
		Parameters: session.Values{},
	}
}
