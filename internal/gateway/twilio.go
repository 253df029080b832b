package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/conversation"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/session"
	"github.com/harunnryd/ivrbridge/internal/voice"
)

// twilioRequest is the normalized form of a Twilio voice webhook.
type twilioRequest struct {
	CallID     string
	Caller     string
	Utterance  string
	InputKind  session.InputKind
	CallStatus string
}

func parseTwilio(r *http.Request) (twilioRequest, error) {
	if err := r.ParseForm(); err != nil {
		return twilioRequest{}, ivrErrors.InvalidInput("malformed form body")
	}
	req := twilioRequest{
		CallID:     strings.TrimSpace(r.PostFormValue("CallSid")),
		Caller:     r.PostFormValue("From"),
		CallStatus: r.PostFormValue("CallStatus"),
	}
	if speech := r.PostFormValue("SpeechResult"); speech != "" {
		req.Utterance, req.InputKind = speech, session.InputSpeech
	} else {
		req.Utterance, req.InputKind = r.PostFormValue("Digits"), session.InputDTMF
	}
	if req.CallID == "" {
		return req, ivrErrors.InvalidInput("missing CallSid")
	}
	return req, nil
}

func (s *Server) writeTwiML(w http.ResponseWriter, body []byte, err error) {
	if err != nil {
		body = s.twiml.Error("")
	}
	writeMarkup(w, voice.ContentTypeTwiML, http.StatusOK, body)
}

func (s *Server) twimlFailure(w http.ResponseWriter, r *http.Request, err error) {
	msg := ""
	if errors.Is(err, ivrErrors.ErrSessionNotFound) {
		msg = voice.PromptSessionExpired
	} else {
		logger.From(r.Context()).Error("Twilio webhook failed", "path", r.URL.Path, "error", err)
	}
	writeMarkup(w, voice.ContentTypeTwiML, http.StatusOK, s.twiml.Error(msg))
}

func (s *Server) handleTwilioVoice(w http.ResponseWriter, r *http.Request) {
	req, err := parseTwilio(r)
	if err != nil {
		s.twimlFailure(w, r, err)
		return
	}
	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("Twilio incoming call", "caller", req.Caller)

	if _, err := s.driver.Start(ctx, req.CallID, req.Caller); err != nil {
		s.twimlFailure(w, r, err)
		return
	}
	body, err := s.twiml.Welcome(req.CallID)
	s.writeTwiML(w, body, err)
}

func (s *Server) handleTwilioGather(w http.ResponseWriter, r *http.Request) {
	req, err := parseTwilio(r)
	if err != nil {
		s.twimlFailure(w, r, err)
		return
	}
	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("Twilio input", "input_type", req.InputKind)

	reply, err := s.driver.Turn(ctx, conversation.Input{
		CallID:    req.CallID,
		Utterance: req.Utterance,
		Kind:      req.InputKind,
	})
	if err != nil {
		s.twimlFailure(w, r, err)
		return
	}

	var body []byte
	switch {
	case reply.Ended && reply.Status == session.StatusTransferred:
		body, err = s.twiml.Transfer(req.CallID, reply.Message)
	case reply.Ended:
		body, err = s.twiml.Confirmation(req.CallID, reply.Message, reply.Transaction == nil || reply.Transaction.Success)
	default:
		body, err = s.twiml.Reply(req.CallID, reply.Message, reply.Action)
	}
	s.writeTwiML(w, body, err)
}

func (s *Server) handleTwilioAction(w http.ResponseWriter, r *http.Request) {
	req, err := parseTwilio(r)
	if err != nil {
		s.twimlFailure(w, r, err)
		return
	}
	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("Twilio action")

	reply, err := s.driver.Complete(ctx, req.CallID)
	if err != nil {
		s.twimlFailure(w, r, err)
		return
	}
	success := reply.Transaction == nil || reply.Transaction.Success
	body, err := s.twiml.Confirmation(req.CallID, reply.Message, success)
	s.writeTwiML(w, body, err)
}

func (s *Server) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	req, err := parseTwilio(r)
	if err != nil {
		logger.From(r.Context()).Warn("Twilio status callback rejected", "error", err)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ERROR"))
		return
	}
	ctx := logger.WithCallID(r.Context(), req.CallID)
	logger.From(ctx).Info("Twilio status callback", "call_status", req.CallStatus)

	s.driver.Hangup(ctx, req.CallID, req.CallStatus)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
