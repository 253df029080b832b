package gateway

import (
	"net/http"
	"time"

	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/session"
)

type healthResponse struct {
	Status              string                     `json:"status"`
	Timestamp           time.Time                  `json:"timestamp"`
	ActiveSessions      int                        `json:"active_sessions"`
	Policy              string                     `json:"policy"`
	SignatureValidation bool                       `json:"signature_validation"`
	Components          map[string]ComponentHealth `json:"components,omitempty"`
}

// ActiveSessions is the body of GET /sessions/active.
type ActiveSessions struct {
	Count    int               `json:"count"`
	Sessions []session.Summary `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:              "healthy",
		Timestamp:           s.now(),
		ActiveSessions:      s.driver.Store().ActiveCount(),
		Policy:              s.driver.PolicyName(),
		SignatureValidation: s.validate,
	}
	if s.health != nil {
		resp.Components = s.health()
		for _, c := range resp.Components {
			if !c.Healthy {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")
	sess, ok := s.driver.Store().Get(callID)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("callID")
	ctx := logger.WithCallID(r.Context(), callID)
	if !s.driver.Store().End(callID, session.StatusCompleted) {
		logger.From(ctx).Info("End requested for inactive session")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "session ended", "call_id": callID})
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	summaries := s.driver.Store().ListSummaries()
	writeJSON(w, http.StatusOK, ActiveSessions{Count: len(summaries), Sessions: summaries})
}
