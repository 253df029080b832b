package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/conversation"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/session"
	"github.com/harunnryd/ivrbridge/internal/transaction"
	"github.com/harunnryd/ivrbridge/internal/voice"
)

const ContextAIEvent = "ai_event"

type incomingCallRequest struct {
	CallSid string `json:"CallSid"`
	CallID  string `json:"call_id"`
	From    string `json:"From"`
	Caller  string `json:"caller"`
}

type userInputRequest struct {
	CallID    string `json:"call_id"`
	UserInput string `json:"user_input"`
	InputType string `json:"input_type"`
}

type transactionRequest struct {
	CallID string                 `json:"call_id"`
	Type   string                 `json:"transaction_type"`
	Data   map[string]interface{} `json:"data"`
}

type aiWebhookRequest struct {
	CallID string          `json:"call_id"`
	Event  json.RawMessage `json:"event"`
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ivrErrors.InvalidInput("invalid request body")
	}
	return nil
}

func (s *Server) vxmlFailure(w http.ResponseWriter, r *http.Request, err error) {
	msg := ""
	if errors.Is(err, ivrErrors.ErrSessionNotFound) {
		msg = voice.PromptSessionExpired
	} else {
		logger.From(r.Context()).Error("VoiceXML webhook failed", "path", r.URL.Path, "error", err)
	}
	writeMarkup(w, voice.ContentTypeVXML, http.StatusOK, s.vxml.Error(msg))
}

func (s *Server) writeVXML(w http.ResponseWriter, body []byte, err error) {
	if err != nil {
		body = s.vxml.Error("")
	}
	writeMarkup(w, voice.ContentTypeVXML, http.StatusOK, body)
}

func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	var req incomingCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	callID := firstNonEmpty(req.CallSid, req.CallID)
	caller := firstNonEmpty(req.From, req.Caller)

	ctx := logger.WithCallID(r.Context(), callID)
	if _, err := s.driver.Start(ctx, callID, caller); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.From(ctx).Info("Incoming call", "caller", caller)

	body, err := s.vxml.Welcome(callID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMarkup(w, voice.ContentTypeVXML, http.StatusOK, body)
}

func (s *Server) handleUserInput(w http.ResponseWriter, r *http.Request) {
	var req userInputRequest
	if err := decodeJSON(r, &req); err != nil {
		s.vxmlFailure(w, r, err)
		return
	}

	kind := session.InputKind(strings.ToLower(req.InputType))
	if kind == "" {
		kind = session.InputSpeech
	}

	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("User input", "input_type", kind)

	reply, err := s.driver.Turn(ctx, conversation.Input{
		CallID:    req.CallID,
		Utterance: req.UserInput,
		Kind:      kind,
	})
	if err != nil {
		s.vxmlFailure(w, r, err)
		return
	}

	var body []byte
	switch {
	case reply.Ended && reply.Status == session.StatusTransferred:
		body, err = s.vxml.Transfer(req.CallID, reply.Message)
	case reply.Ended:
		body, err = s.vxml.Goodbye(req.CallID, reply.Message)
	default:
		body, err = s.vxml.Reply(req.CallID, reply.Message, reply.Action)
	}
	s.writeVXML(w, body, err)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("Transaction requested", "type", req.Type)

	data, err := session.ValuesFromMap(req.Data)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid transaction data")
		return
	}

	result, err := s.driver.Transact(ctx, req.CallID, transaction.Kind(req.Type), data)
	if err != nil {
		if errors.Is(err, ivrErrors.ErrInvalidInput) {
			writeDetail(w, http.StatusBadRequest, "Unknown transaction type")
			return
		}
		logger.From(ctx).Error("Transaction failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := s.vxml.Confirmation(req.CallID, result.Message, result.Success)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeMarkup(w, voice.ContentTypeVXML, http.StatusOK, body)
}

func (s *Server) handleAIWebhook(w http.ResponseWriter, r *http.Request) {
	var req aiWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.CallID) == "" {
		writeDetail(w, http.StatusBadRequest, "call_id is required")
		return
	}

	event := session.String("")
	if len(req.Event) > 0 {
		if err := json.Unmarshal(req.Event, &event); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid event")
			return
		}
		if event.IsZero() {
			event = session.String("")
		}
	}

	ctx := logger.WithCallID(r.Context(), req.CallID)
	if !s.driver.Store().UpdateContext(req.CallID, session.Values{ContextAIEvent: event}) {
		logger.From(ctx).Warn("AI event for inactive call dropped")
	} else {
		logger.From(ctx).Info("AI event received", "event", event.Text())
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received", "call_id": req.CallID})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
