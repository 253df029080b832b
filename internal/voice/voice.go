package voice

import (
	"encoding/xml"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/config"
)

// Prompts shared by both markup dialects.
const (
	PromptWelcome        = "Welcome to Air India Customer Support. How can I help you today?"
	PromptWelcomeHint    = "You can say things like: book a flight, check flight status, or speak to an agent."
	PromptNoInputHangup  = "I didn't hear anything. Please call back when you're ready."
	PromptNoResponse     = "I didn't receive your response. Let me transfer you to an agent."
	PromptThanks         = "Thank you for calling Air India. Have a great day!"
	PromptRetryOrAgent   = "Would you like to try again or speak to an agent? Say try again or agent."
	PromptErrorSuffix    = "Please try again later or press 0 to speak with an agent."
	PromptGoodbye        = "Thank you for calling. Goodbye."
	PromptHold           = "Please hold while I transfer you."
	DefaultErrorMessage  = "Sorry, we're experiencing technical difficulties"
	PromptSessionExpired = "Sorry, your session has expired"
)

// Renderer turns conversation replies into voice-gateway markup.
type Renderer interface {
	ContentType() string
	Welcome(callID string) ([]byte, error)
	Reply(callID, message, action string) ([]byte, error)
	Confirmation(callID, message string, success bool) ([]byte, error)
	Transfer(callID, message string) ([]byte, error)
	Goodbye(callID, message string) ([]byte, error)
	// Error never fails; it is the reply of last resort.
	Error(message string) []byte
}

// Settings are the gateway-facing knobs shared by the renderers.
type Settings struct {
	BaseURL     string
	Voice       string
	Language    string
	AgentNumber string
}

func SettingsFrom(cfg config.GatewayConfig) Settings {
	s := Settings{
		BaseURL:     cfg.BaseURL,
		Voice:       cfg.Voice,
		Language:    cfg.Language,
		AgentNumber: cfg.AgentNumber,
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.BaseURL == "" {
		s.BaseURL = config.DefaultGatewayBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.Voice == "" {
		s.Voice = config.DefaultGatewayVoice
	}
	if s.Language == "" {
		s.Language = config.DefaultGatewayLanguage
	}
	if s.AgentNumber == "" {
		s.AgentNumber = config.DefaultGatewayAgentNumber
	}
	return s
}

func errorText(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultErrorMessage
	}
	return strings.TrimSuffix(message, ".") + ". " + PromptErrorSuffix
}

func marshalDocument(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	return append(out, '\n'), nil
}
