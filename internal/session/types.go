package session

import (
	"time"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusTransferred Status = "transferred"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTransferred:
		return true
	default:
		return false
	}
}

// ParseStatus accepts the lower-case status names.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusActive, StatusCompleted, StatusFailed, StatusTransferred:
		return Status(raw), true
	default:
		return "", false
	}
}

type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

type InputKind string

const (
	InputNone   InputKind = ""
	InputSpeech InputKind = "speech"
	InputDTMF   InputKind = "dtmf"
	InputText   InputKind = "text"
)

// Interaction is one recorded turn. Never edited after append.
type Interaction struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   Speaker   `json:"speaker"`
	Message   string    `json:"message"`
	InputKind InputKind `json:"input_kind,omitempty"`
}

// Slot field names, in the order the booking flow collects them.
const (
	FieldOrigin        = "origin"
	FieldDestination   = "destination"
	FieldDate          = "date"
	FieldPassengerName = "passenger_name"
	FieldContact       = "contact"
)

var SlotOrder = []string{FieldOrigin, FieldDestination, FieldDate, FieldPassengerName, FieldContact}

// BookingData holds the slot-filling record. A nil field is unset.
type BookingData struct {
	Origin        *string `json:"origin,omitempty"`
	Destination   *string `json:"destination,omitempty"`
	Date          *string `json:"date,omitempty"`
	PassengerName *string `json:"passenger_name,omitempty"`
	Contact       *string `json:"contact,omitempty"`
	Extra         Values  `json:"extra,omitempty"`
}

func (b *BookingData) slot(field string) **string {
	switch field {
	case FieldOrigin:
		return &b.Origin
	case FieldDestination:
		return &b.Destination
	case FieldDate:
		return &b.Date
	case FieldPassengerName:
		return &b.PassengerName
	case FieldContact:
		return &b.Contact
	default:
		return nil
	}
}

// Get returns a slot value, or an Extra string for non-slot keys.
func (b *BookingData) Get(field string) (string, bool) {
	if b == nil {
		return "", false
	}
	if p := b.slot(field); p != nil {
		if *p == nil {
			return "", false
		}
		return **p, true
	}
	return b.Extra.StringValue(field)
}

// Set fills a slot, or stores an Extra string for non-slot keys.
func (b *BookingData) Set(field, value string) {
	if p := b.slot(field); p != nil {
		v := value
		*p = &v
		return
	}
	if b.Extra == nil {
		b.Extra = Values{}
	}
	b.Extra[field] = String(value)
}

// Merge copies every set field of partial into b.
func (b *BookingData) Merge(partial BookingData) {
	for _, field := range SlotOrder {
		if v, ok := partial.Get(field); ok {
			b.Set(field, v)
		}
	}
	if len(partial.Extra) > 0 {
		if b.Extra == nil {
			b.Extra = Values{}
		}
		b.Extra.Merge(partial.Extra)
	}
}

// NextMissing reports the first unset slot in collection order.
func (b *BookingData) NextMissing() (string, bool) {
	for _, field := range SlotOrder {
		if _, ok := b.Get(field); !ok {
			return field, true
		}
	}
	return "", false
}

func (b *BookingData) Complete() bool {
	_, missing := b.NextMissing()
	return b != nil && !missing
}

func (b *BookingData) Clone() *BookingData {
	if b == nil {
		return nil
	}
	out := &BookingData{Extra: b.Extra.Clone()}
	for _, field := range SlotOrder {
		if v, ok := b.Get(field); ok {
			out.Set(field, v)
		}
	}
	return out
}

// BookingFromValues builds a partial record from loose key/value data.
func BookingFromValues(vals Values) BookingData {
	var out BookingData
	for k, v := range vals {
		if s, ok := v.AsString(); ok {
			out.Set(k, s)
			continue
		}
		if out.Extra == nil {
			out.Extra = Values{}
		}
		out.Extra[k] = v
	}
	return out
}

// Session is one call's conversational state. Values handed out by Store are snapshots.
type Session struct {
	CallID        string        `json:"call_id"`
	CallerRef     string        `json:"caller_ref"`
	CustomerID    string        `json:"customer_id,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	Status        Status        `json:"status"`
	Interactions  []Interaction `json:"interactions"`
	Context       Values        `json:"context"`
	CurrentIntent string        `json:"current_intent,omitempty"`
	Booking       *BookingData  `json:"booking_data,omitempty"`
}

// LastActivity is the newest interaction timestamp, or StartTime.
func (s *Session) LastActivity() time.Time {
	if n := len(s.Interactions); n > 0 {
		return s.Interactions[n-1].Timestamp
	}
	return s.StartTime
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	out.Interactions = append([]Interaction(nil), s.Interactions...)
	out.Context = s.Context.Clone()
	out.Booking = s.Booking.Clone()
	return &out
}

type Summary struct {
	CallID           string    `json:"call_id"`
	CallerRef        string    `json:"caller_ref"`
	StartTime        time.Time `json:"start_time"`
	Status           Status    `json:"status"`
	InteractionCount int       `json:"interaction_count"`
	CurrentIntent    string    `json:"current_intent,omitempty"`
}

func (s *Session) Summary() Summary {
	return Summary{
		CallID:           s.CallID,
		CallerRef:        s.CallerRef,
		StartTime:        s.StartTime,
		Status:           s.Status,
		InteractionCount: len(s.Interactions),
		CurrentIntent:    s.CurrentIntent,
	}
}
