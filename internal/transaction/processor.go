package transaction

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/session"
)

// Result is the outcome of one transaction. Failures are reported here, never as errors.
type Result struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Reference string            `json:"reference,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type Kind string

const (
	KindBooking      Kind = "flight_booking"
	KindStatus       Kind = "status_check"
	KindCancellation Kind = "cancellation"
)

// CancellationMode selects how booking ids are checked before cancelling.
type CancellationMode string

const (
	// CancelAccept accepts any non-empty booking id.
	CancelAccept CancellationMode = "accept"
	// CancelLedger requires a reference issued by this process and not yet cancelled.
	CancelLedger CancellationMode = "ledger"
)

func ParseCancellationMode(raw string) (CancellationMode, error) {
	switch CancellationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CancelAccept:
		return CancelAccept, nil
	case CancelLedger:
		return CancelLedger, nil
	default:
		return "", ivrErrors.InvalidInput(fmt.Sprintf("unknown cancellation mode: %s", raw))
	}
}

const (
	referencePrefix = "BK"
	referenceLayout = "20060102150405"

	minPlaceLen   = 3
	maxPlaceLen   = 50
	maxPassengers = 9
)

type Option func(*Processors)

func WithClock(now func() time.Time) Option {
	return func(p *Processors) {
		if now != nil {
			p.now = now
		}
	}
}

func WithRegistry(r *FlightRegistry) Option {
	return func(p *Processors) {
		if r != nil {
			p.registry = r
		}
	}
}

func WithLedger(l *Ledger) Option {
	return func(p *Processors) {
		if l != nil {
			p.ledger = l
		}
	}
}

func WithCancellationMode(mode CancellationMode) Option {
	return func(p *Processors) {
		if mode != "" {
			p.mode = mode
		}
	}
}

// Processors finalizes booking, status and cancellation requests. It never
// touches the session store; callers record results and end sessions.
type Processors struct {
	now      func() time.Time
	registry *FlightRegistry
	ledger   *Ledger
	mode     CancellationMode
}

func New(opts ...Option) *Processors {
	p := &Processors{
		now:      time.Now,
		registry: NewFlightRegistry(DefaultFlights()),
		ledger:   NewLedger(),
		mode:     CancelAccept,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processors) Ledger() *Ledger { return p.ledger }

func (p *Processors) Registry() *FlightRegistry { return p.registry }

// Booking validates a filled booking record and issues a reference.
func (p *Processors) Booking(callID string, data session.BookingData) Result {
	if problems := validateBooking(data); len(problems) > 0 {
		slog.Warn("Booking rejected", "call_id", callID, "problems", problems)
		return Result{
			Success: false,
			Message: "Booking could not be completed: " + strings.Join(problems, "; "),
		}
	}

	now := p.now()
	fields := bookingFields(data)
	ref := p.ledger.reserve(referencePrefix+now.Format(referenceLayout), callID, fields, now)
	fields["booking_id"] = ref

	origin, _ := data.Get(session.FieldOrigin)
	destination, _ := data.Get(session.FieldDestination)

	slog.Info("Booking confirmed", "call_id", callID, "booking_id", ref)
	return Result{
		Success:   true,
		Message:   fmt.Sprintf("Booking confirmed from %s to %s", origin, destination),
		Reference: ref,
		Fields:    fields,
	}
}

// Status looks a flight up in the registry.
func (p *Processors) Status(callID, flightID string) Result {
	id := NormalizeFlightID(flightID)
	if id == "" {
		return Result{Success: false, Message: "Please provide a flight number"}
	}

	flight, ok := p.registry.Lookup(id)
	if !ok {
		slog.Info("Flight not found", "call_id", callID, "flight_id", id)
		return Result{Success: false, Message: "Flight not found"}
	}

	return Result{
		Success:   true,
		Message:   fmt.Sprintf("Flight %s from %s to %s is %s", id, flight.Origin, flight.Destination, flight.Status),
		Reference: id,
		Fields: map[string]string{
			"flight_id":   id,
			"status":      flight.Status,
			"origin":      flight.Origin,
			"destination": flight.Destination,
		},
	}
}

// Cancel cancels a booking according to the configured mode.
func (p *Processors) Cancel(callID, bookingID string) Result {
	ref := strings.ToUpper(strings.TrimSpace(bookingID))
	if ref == "" {
		return Result{Success: false, Message: "Please provide your booking ID"}
	}

	if p.mode == CancelLedger {
		found, changed := p.ledger.cancel(ref, p.now())
		switch {
		case !found:
			slog.Info("Cancellation for unknown booking", "call_id", callID, "booking_id", ref)
			return Result{Success: false, Message: "Booking not found", Reference: ref}
		case !changed:
			return Result{Success: false, Message: "Booking already cancelled", Reference: ref}
		}
	}

	slog.Info("Booking cancelled", "call_id", callID, "booking_id", ref, "mode", p.mode)
	return Result{
		Success:   true,
		Message:   "Booking cancelled successfully",
		Reference: ref,
		Fields:    map[string]string{"booking_id": ref},
	}
}

// Run dispatches a transaction request received as loose key/value data.
func (p *Processors) Run(callID string, kind Kind, data session.Values) (Result, error) {
	switch kind {
	case KindBooking:
		return p.Booking(callID, session.BookingFromValues(normalizeBookingKeys(data))), nil
	case KindStatus:
		id, _ := data.StringValue("flight_id")
		return p.Status(callID, id), nil
	case KindCancellation:
		id, _ := data.StringValue("booking_id")
		return p.Cancel(callID, id), nil
	default:
		return Result{}, ivrErrors.InvalidInput(fmt.Sprintf("unknown transaction type: %s", kind))
	}
}

var bookingKeyAliases = map[string]string{
	"travel_date":       session.FieldDate,
	"passenger_contact": session.FieldContact,
}

func normalizeBookingKeys(data session.Values) session.Values {
	out := make(session.Values, len(data))
	for k, v := range data {
		if alias, ok := bookingKeyAliases[k]; ok {
			k = alias
		}
		out[k] = v
	}
	return out
}

func validateBooking(data session.BookingData) []string {
	var problems []string
	for _, field := range session.SlotOrder {
		v, ok := data.Get(field)
		if !ok || strings.TrimSpace(v) == "" {
			problems = append(problems, "missing "+field)
		}
	}
	for _, field := range []string{session.FieldOrigin, session.FieldDestination} {
		v, ok := data.Get(field)
		if !ok {
			continue
		}
		if n := len([]rune(strings.TrimSpace(v))); n > 0 && (n < minPlaceLen || n > maxPlaceLen) {
			problems = append(problems, fmt.Sprintf("%s must be %d to %d characters", field, minPlaceLen, maxPlaceLen))
		}
	}
	if v, ok := data.Extra["num_passengers"]; ok {
		n, isNum := v.AsNumber()
		if !isNum {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
			n, isNum = parsed, err == nil
		}
		if !isNum || n < 1 || n > maxPassengers || n != float64(int(n)) {
			problems = append(problems, fmt.Sprintf("num_passengers must be a whole number from 1 to %d", maxPassengers))
		}
	}
	if kind, ok := data.Get("booking_type"); ok {
		switch strings.ToLower(kind) {
		case "domestic", "international":
		default:
			problems = append(problems, "booking_type must be domestic or international")
		}
	}
	return problems
}

func bookingFields(data session.BookingData) map[string]string {
	fields := make(map[string]string, len(session.SlotOrder)+len(data.Extra)+1)
	for _, field := range session.SlotOrder {
		if v, ok := data.Get(field); ok {
			fields[field] = v
		}
	}
	for k, v := range data.Extra {
		fields[k] = v.Text()
	}
	return fields
}
