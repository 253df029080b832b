package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"strings"

	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/voice"

	"github.com/oklog/ulid/v2"
)

const (
	HeaderTraceID          = "X-Trace-Id"
	HeaderTwilioSignature  = "X-Twilio-Signature"
	HeaderIdempotencyToken = "I-Twilio-Idempotency-Token"
	HeaderReplayed         = "X-Idempotent-Replay"
)

func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderTraceID)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(HeaderTraceID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

// recoverPanics answers a crashed handler with error markup so the voice
// gateway always has something to play.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.From(r.Context()).Error("Webhook handler panicked",
				"path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))

			if strings.HasPrefix(r.URL.Path, "/twilio/") {
				writeMarkup(w, voice.ContentTypeTwiML, http.StatusOK, s.twiml.Error(""))
				return
			}
			writeMarkup(w, voice.ContentTypeVXML, http.StatusInternalServerError, s.vxml.Error(""))
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.validate {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form body", http.StatusBadRequest)
			return
		}

		want := Signature(s.authToken, s.baseURL+r.URL.RequestURI(), r.PostForm)
		got := r.Header.Get(HeaderTwilioSignature)
		if s.authToken == "" || !hmac.Equal([]byte(want), []byte(got)) {
			err := ivrErrors.PermissionDenied("twilio signature mismatch")
			logger.From(r.Context()).Warn("Rejected Twilio webhook", "path", r.URL.Path, "error", err)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Signature computes the X-Twilio-Signature value: base64(HMAC-SHA1(token,
// url + each POST parameter name and value, sorted by name)).
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type capture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// replayRetries answers a repeated delivery with the reply already sent for
// its idempotency token instead of running the turn twice.
func (s *Server) replayRetries(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderIdempotencyToken)
		if s.idem == nil || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Path + "|" + token
		s.idemKeys.With(key, func() {
			if entry, ok := s.idem.Lookup(key); ok {
				logger.From(r.Context()).Info("Replaying reply for retried webhook", "path", r.URL.Path, "token", token)
				w.Header().Set(HeaderReplayed, "true")
				writeMarkup(w, entry.ContentType, entry.Status, entry.Body)
				return
			}

			rec := &capture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if rec.status < http.StatusInternalServerError {
				s.idem.Remember(key, rec.status, w.Header().Get("Content-Type"), rec.body.Bytes(), s.idemTTL)
			}
		})
	})
}
