package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/harunnryd/ivrbridge/internal/concurrency"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/notify"
	"github.com/harunnryd/ivrbridge/internal/policy"
	"github.com/harunnryd/ivrbridge/internal/session"
	"github.com/harunnryd/ivrbridge/internal/transaction"
)

// Context keys the driver keeps on the session.
const (
	ContextPendingAction   = "pending_action"
	ContextLastConfidence  = "last_confidence"
	ContextLastTransaction = "last_transaction"
)

// BookingTypeField is the free-form booking field holding domestic or international.
const BookingTypeField = "booking_type"

const (
	MessageGoodbye        = "Thank you for using Air India customer support."
	MessageAnythingElse   = "Is there anything else I can help you with?"
	MessageConfirmPrompt  = "Please say yes to confirm the booking, or no to cancel it."
	MessageBookingDropped = "No problem, I have not made the booking. Is there anything else I can help you with?"
	MessageFlightRetry    = "I couldn't find that flight. Please say the flight number again."
	MessageBookingRetry   = "Please say your booking ID again."
	MessageTransferring   = "Please hold while I transfer you to an agent."
)

// Notifier receives agent-transfer notices.
type Notifier interface {
	Notify(ctx context.Context, t notify.Transfer) error
}

// Input is one normalized caller turn.
type Input struct {
	CallID    string
	Utterance string
	Kind      session.InputKind
}

// Reply is what the adapter renders back to the voice gateway.
type Reply struct {
	CallID      string
	Message     string
	Intent      string
	Action      string
	Confidence  float64
	Ended       bool
	Status      session.Status
	Transaction *transaction.Result
}

type Option func(*Driver)

func WithNotifier(n Notifier) Option {
	return func(d *Driver) {
		if n != nil {
			d.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// Driver runs conversation turns against the session store. Turns for the
// same call are serialized; the store's own per-call lock is only held inside
// each store operation.
type Driver struct {
	store    *session.Store
	policy   policy.Policy
	tx       *transaction.Processors
	notifier Notifier
	turns    *concurrency.KeyedMutex
	now      func() time.Time
}

func New(store *session.Store, pol policy.Policy, tx *transaction.Processors, opts ...Option) *Driver {
	d := &Driver{
		store:    store,
		policy:   pol,
		tx:       tx,
		notifier: notify.NewNullNotifier(""),
		turns:    concurrency.NewKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Store() *session.Store { return d.store }

func (d *Driver) PolicyName() string { return d.policy.Name() }

// Start opens (or re-attaches to) the session for an incoming call.
func (d *Driver) Start(ctx context.Context, callID, callerRef string) (*session.Session, error) {
	if strings.TrimSpace(callID) == "" {
		return nil, ivrErrors.InvalidInput("call id is required")
	}
	return d.store.Create(callID, callerRef), nil
}

// Turn records the caller's utterance, asks the policy for a reply and
// applies it to the session.
func (d *Driver) Turn(ctx context.Context, in Input) (Reply, error) {
	d.turns.Lock(in.CallID)
	defer d.turns.Unlock(in.CallID)

	ctx = logger.WithCallID(ctx, in.CallID)
	log := logger.From(ctx)

	sess, ok := d.store.Get(in.CallID)
	if !ok {
		return Reply{}, ivrErrors.SessionNotFound(in.CallID)
	}

	utterance := strings.TrimSpace(in.Utterance)
	if !d.store.AddInteraction(in.CallID, session.SpeakerUser, utterance, in.Kind) {
		return Reply{}, ivrErrors.SessionNotFound(in.CallID)
	}

	pending, _ := sess.Context.StringValue(ContextPendingAction)

	var (
		reply   Reply
		handled bool
	)
	if pending == policy.ActionConfirmBooking {
		reply, handled = d.confirmTurn(sess, utterance)
	}
	if !handled {
		res, err := d.policy.Process(ctx, in.CallID, utterance, sess)
		if err != nil {
			log.Error("Policy failed", "policy", d.policy.Name(), "error", err)
			res = policy.ErrorResult()
		}
		reply = d.applyResult(sess, pending, utterance, res)
	}

	log.Info("Turn handled", "intent", reply.Intent, "action", reply.Action, "confidence", reply.Confidence)

	if !d.store.AddInteraction(in.CallID, session.SpeakerSystem, reply.Message, "") {
		if reply.Ended {
			return reply, nil
		}
		return Reply{}, ivrErrors.SessionNotFound(in.CallID)
	}

	if !reply.Ended {
		d.store.UpdateContext(in.CallID, session.Values{
			ContextPendingAction:  session.String(reply.Action),
			ContextLastConfidence: session.Number(reply.Confidence),
		})
		return reply, nil
	}

	if reply.Status == session.StatusTransferred {
		d.notifyTransfer(ctx, sess, utterance, reply.Intent)
	}
	d.store.End(in.CallID, reply.Status)
	return reply, nil
}

// applyResult writes the policy's intent and slot values into the session and
// resolves follow-up transactions for the pending action.
func (d *Driver) applyResult(sess *session.Session, pending, utterance string, res policy.Result) Reply {
	callID := sess.CallID
	reply := replyFrom(callID, res)

	if res.Intent == policy.IntentUnknown {
		switch pending {
		case policy.ActionCollectFlightID:
			return d.statusTurn(callID, utterance)
		case policy.ActionCollectBookingID:
			return d.cancelTurn(callID, utterance)
		case policy.ActionConfirmBooking:
			reply.Message = MessageConfirmPrompt
			reply.Action = policy.ActionConfirmBooking
			reply.Intent = policy.IntentBookFlight
			return reply
		}
	}

	switch res.Intent {
	case policy.IntentBookFlight:
		if sess.CurrentIntent != policy.IntentBookFlight || sess.Booking == nil {
			d.store.ClearBooking(callID)
			d.store.SetIntent(callID, policy.IntentBookFlight)
		}
		d.store.StoreBookingData(callID, session.BookingFromValues(res.Parameters))

	case policy.IntentDomesticFlight, policy.IntentInternationalFlight:
		if sess.CurrentIntent != policy.IntentBookFlight {
			d.store.ClearBooking(callID)
			d.store.SetIntent(callID, policy.IntentBookFlight)
		}
		kind := strings.TrimSuffix(res.Intent, "_flight")
		partial := session.BookingFromValues(res.Parameters)
		partial.Set(BookingTypeField, kind)
		d.store.StoreBookingData(callID, partial)

	case policy.IntentCheckStatus, policy.IntentCancelBooking, policy.IntentSpeakToAgent:
		d.store.SetIntent(callID, res.Intent)
	}

	if res.Action == policy.ActionTransferAgent {
		reply.Ended = true
		reply.Status = session.StatusTransferred
		if strings.TrimSpace(reply.Message) == "" {
			reply.Message = MessageTransferring
		}
	}
	return reply
}

func (d *Driver) confirmTurn(sess *session.Session, utterance string) (Reply, bool) {
	switch Confirmation(utterance) {
	case Yes:
		if sess.Booking == nil {
			return Reply{}, false
		}
		result := d.tx.Booking(sess.CallID, *sess.Booking)
		d.recordTransaction(sess.CallID, transaction.KindBooking, result)
		reply := Reply{
			CallID:      sess.CallID,
			Intent:      policy.IntentBookFlight,
			Confidence:  1,
			Transaction: &result,
		}
		if result.Success {
			reply.Message = result.Message + ". Your booking reference is " + spell(result.Reference) + "."
			reply.Ended = true
			reply.Status = session.StatusCompleted
			return reply, true
		}
		reply.Message = "Sorry, there was an issue: " + result.Message + ". Would you like to try again or speak to an agent?"
		return reply, true

	case No:
		d.store.ClearBooking(sess.CallID)
		d.store.SetIntent(sess.CallID, "")
		return Reply{
			CallID:     sess.CallID,
			Message:    MessageBookingDropped,
			Intent:     policy.IntentBookFlight,
			Confidence: 1,
		}, true
	}
	return Reply{}, false
}

func (d *Driver) statusTurn(callID, utterance string) Reply {
	result := d.tx.Status(callID, utterance)
	d.recordTransaction(callID, transaction.KindStatus, result)

	reply := Reply{
		CallID:      callID,
		Intent:      policy.IntentCheckStatus,
		Confidence:  policy.SlotConfidence,
		Transaction: &result,
	}
	if !result.Success {
		reply.Message = MessageFlightRetry
		reply.Action = policy.ActionCollectFlightID
		return reply
	}
	reply.Message = result.Message + ". " + MessageAnythingElse
	return reply
}

func (d *Driver) cancelTurn(callID, utterance string) Reply {
	result := d.tx.Cancel(callID, utterance)
	d.recordTransaction(callID, transaction.KindCancellation, result)

	reply := Reply{
		CallID:      callID,
		Intent:      policy.IntentCancelBooking,
		Confidence:  policy.SlotConfidence,
		Transaction: &result,
	}
	if !result.Success {
		reply.Message = result.Message + ". " + MessageBookingRetry
		reply.Action = policy.ActionCollectBookingID
		return reply
	}
	reply.Message = result.Message + ". " + MessageAnythingElse
	return reply
}

// Complete finalizes the call: a pending booking is processed, then the
// session ends as completed.
func (d *Driver) Complete(ctx context.Context, callID string) (Reply, error) {
	d.turns.Lock(callID)
	defer d.turns.Unlock(callID)

	sess, ok := d.store.Get(callID)
	if !ok {
		return Reply{}, ivrErrors.SessionNotFound(callID)
	}

	reply := Reply{
		CallID:  callID,
		Message: MessageGoodbye,
		Intent:  sess.CurrentIntent,
		Ended:   true,
		Status:  session.StatusCompleted,
	}
	if sess.CurrentIntent == policy.IntentBookFlight && sess.Booking != nil {
		result := d.tx.Booking(callID, *sess.Booking)
		d.recordTransaction(callID, transaction.KindBooking, result)
		reply.Message = result.Message
		reply.Transaction = &result
	}

	d.store.AddInteraction(callID, session.SpeakerSystem, reply.Message, "")
	d.store.End(callID, reply.Status)
	return reply, nil
}

// Transact runs a transaction requested directly by the voice gateway.
func (d *Driver) Transact(ctx context.Context, callID string, kind transaction.Kind, data session.Values) (transaction.Result, error) {
	d.turns.Lock(callID)
	defer d.turns.Unlock(callID)

	result, err := d.tx.Run(callID, kind, data)
	if err != nil {
		return transaction.Result{}, err
	}
	d.recordTransaction(callID, kind, result)
	return result, nil
}

// Hangup applies a telephony call-status callback. Statuses other than
// completed, failed, busy, no-answer and canceled are ignored.
func (d *Driver) Hangup(ctx context.Context, callID, callStatus string) bool {
	status, ok := TelephonyStatus(callStatus)
	if !ok {
		return false
	}

	d.turns.Lock(callID)
	defer d.turns.Unlock(callID)
	return d.store.End(callID, status)
}

// TelephonyStatus maps a Twilio CallStatus onto a terminal session status.
func TelephonyStatus(callStatus string) (session.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(callStatus)) {
	case "completed":
		return session.StatusCompleted, true
	case "failed", "no-answer", "busy", "canceled":
		return session.StatusFailed, true
	default:
		return "", false
	}
}

func (d *Driver) recordTransaction(callID string, kind transaction.Kind, result transaction.Result) {
	entry := session.Values{
		"type":    session.String(string(kind)),
		"success": session.Bool(result.Success),
		"message": session.String(result.Message),
	}
	if result.Reference != "" {
		entry["reference"] = session.String(result.Reference)
	}
	d.store.UpdateContext(callID, session.Values{ContextLastTransaction: session.Map(entry)})
}

func (d *Driver) notifyTransfer(ctx context.Context, sess *session.Session, utterance, intent string) {
	err := d.notifier.Notify(ctx, notify.Transfer{
		CallID:        sess.CallID,
		CallerRef:     sess.CallerRef,
		Intent:        intent,
		LastUtterance: utterance,
		Reason:        "caller asked for an agent",
		At:            d.now(),
	})
	if err != nil {
		logger.From(ctx).Warn("Agent transfer notice not delivered", "error", err)
	}
}

func replyFrom(callID string, res policy.Result) Reply {
	return Reply{
		CallID:     callID,
		Message:    res.Message,
		Intent:     res.Intent,
		Action:     res.Action,
		Confidence: res.Confidence,
	}
}

// spell separates characters so a text-to-speech engine reads a reference one symbol at a time.
func spell(ref string) string {
	return strings.Join(strings.Split(ref, ""), " ")
}
