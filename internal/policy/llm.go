package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/model/contract"
	"github.com/harunnryd/ivrbridge/internal/session"
)

// Completer is the slice of the model router the LLM policy needs.
type Completer interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

const llmMaxTokens = 300

// Intent routing wants near-deterministic replies.
var llmTemperature float32 = 0.1

const llmSystemPrompt = `You are an Air India customer support assistant on a phone line. Help callers book flights, check flight status, cancel bookings or reach an agent. Keep replies short and clear for voice.

Reply with one JSON object: {"message": string, "intent": string, "action": string, "confidence": number, "parameters": object}.
Use these intents and actions:
%s
While a booking is in progress (intent book_flight) collect, one per turn and in this order: origin, destination, date, passenger_name, contact. Put the value you captured this turn in parameters under its field name. When every field is known, summarise the booking and use action confirm_booking.
If you cannot tell what the caller wants use intent "unknown" and an empty action.`

type LLMPolicy struct {
	router       Completer
	model        string
	historyTurns int
	timeout      time.Duration
	mapper       *ivrErrors.DefaultErrorMapper
}

func NewLLMPolicy(router Completer, model string, historyTurns int, timeout time.Duration) *LLMPolicy {
	return &LLMPolicy{
		router:       router,
		model:        model,
		historyTurns: historyTurns,
		timeout:      timeout,
		mapper:       ivrErrors.NewDefaultErrorMapper(),
	}
}

func (p *LLMPolicy) Name() string { return "llm" }

// Process asks the model for the next reply. Provider failures and malformed
// output degrade to ErrorResult.
func (p *LLMPolicy) Process(ctx context.Context, callID, utterance string, sess *session.Session) (Result, error) {
	log := logger.From(ctx)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := contract.CompletionRequest{
		Model:     p.model,
		System:    p.systemPrompt(sess),
		Messages:  p.messages(utterance, sess),
		JSON:      true,
		MaxTokens: llmMaxTokens,
		Temperature: &llmTemperature,
	}

	resp, err := p.router.Route(ctx, p.model, req)
	if err != nil {
		mapped := p.mapper.MapError(err)
		log.Error("NLU request failed", "model", p.model, "category", p.mapper.Category(mapped), "retryable", ivrErrors.IsRetryable(mapped), "error", err)
		return ErrorResult(), nil
	}

	res, err := ParseModelReply(resp.Content)
	if err != nil {
		log.Warn("NLU returned unusable reply", "model", p.model, "error", err)
		return ErrorResult(), nil
	}
	return res, nil
}

func (p *LLMPolicy) systemPrompt(sess *session.Session) string {
	var table strings.Builder
	for _, r := range Routes {
		fmt.Fprintf(&table, "- %s -> %s (caller mentions: %s)\n", r.Intent, r.Action, strings.Join(r.Keywords, ", "))
	}
	prompt := fmt.Sprintf(llmSystemPrompt, table.String())

	if sess == nil {
		return prompt
	}
	if sess.CurrentIntent != "" {
		prompt += "\nCurrent intent: " + sess.CurrentIntent
	}
	if sess.Booking != nil {
		var known []string
		for _, field := range session.SlotOrder {
			if v, ok := sess.Booking.Get(field); ok {
				known = append(known, field+"="+v)
			}
		}
		if len(known) > 0 {
			prompt += "\nBooking so far: " + strings.Join(known, ", ")
		}
	}
	return prompt
}

func (p *LLMPolicy) messages(utterance string, sess *session.Session) []contract.Message {
	var msgs []contract.Message
	if sess != nil {
		history := sess.Interactions
		if p.historyTurns > 0 && len(history) > p.historyTurns {
			history = history[len(history)-p.historyTurns:]
		}
		for _, it := range history {
			role := "user"
			if it.Speaker == session.SpeakerSystem {
				role = "assistant"
			}
			msgs = append(msgs, contract.Message{Role: role, Content: it.Message})
		}
	}
	return append(msgs, contract.Message{Role: "user", Content: utterance})
}

type modelReply struct {
	Message    string         `json:"message"`
	Intent     string         `json:"intent"`
	Action     *string        `json:"action"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters"`
}

// ParseModelReply decodes the JSON object a model returns for one turn.
func ParseModelReply(content string) (Result, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var reply modelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return Result{}, ivrErrors.InvalidModelOutput(fmt.Sprintf("decode reply: %v", err))
	}
	if strings.TrimSpace(reply.Message) == "" {
		return Result{}, ivrErrors.InvalidModelOutput("reply has no message")
	}

	params := session.Values{}
	if len(reply.Parameters) > 0 {
		parsed, err := session.ValuesFromMap(reply.Parameters)
		if err != nil {
			return Result{}, ivrErrors.InvalidModelOutput(fmt.Sprintf("parameters: %v", err))
		}
		params = parsed
	}

	res := Result{
		Message:    reply.Message,
		Intent:     reply.Intent,
		Confidence: clamp(reply.Confidence),
		Parameters: params,
	}
	if res.Intent == "" {
		res.Intent = IntentUnknown
	}
	if reply.Action != nil {
		res.Action = *reply.Action
	}
	return res, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
