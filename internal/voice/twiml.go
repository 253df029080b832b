package voice

import (
	"encoding/xml"
	"log/slog"
)

const ContentTypeTwiML = "text/xml"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	NumDigits     int      `xml:"numDigits,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Verbs         []any
}

type twimlDial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// TwiML renders Twilio voice responses.
type TwiML struct {
	settings Settings
}

func NewTwiML(s Settings) *TwiML {
	return &TwiML{settings: s.withDefaults()}
}

func (t *TwiML) ContentType() string { return ContentTypeTwiML }

// GatherURL is where Twilio posts caller input.
func (t *TwiML) GatherURL() string { return t.settings.BaseURL + "/twilio/gather" }

func (t *TwiML) say(text string) twimlSay {
	return twimlSay{Voice: t.settings.Voice, Language: t.settings.Language, Text: text}
}

func (t *TwiML) Welcome(callID string) ([]byte, error) {
	return marshalDocument(twimlResponse{Verbs: []any{
		t.say(PromptWelcome),
		twimlGather{
			Input:         "speech",
			Action:        t.GatherURL(),
			Method:        "POST",
			SpeechTimeout: "auto",
			Language:      t.settings.Language,
			Verbs:         []any{t.say(PromptWelcomeHint)},
		},
		t.say(PromptNoInputHangup),
		twimlHangup{},
	}})
}

// Reply speaks message and listens for speech or a single keypress. Silence
// falls through to the agent line.
func (t *TwiML) Reply(callID, message, action string) ([]byte, error) {
	slog.Debug("Rendering TwiML reply", "call_id", callID, "action", action)
	return marshalDocument(twimlResponse{Verbs: []any{
		t.say(message),
		twimlGather{
			Input:         "speech dtmf",
			Action:        t.GatherURL(),
			Method:        "POST",
			SpeechTimeout: "auto",
			Language:      t.settings.Language,
			NumDigits:     1,
		},
		t.say(PromptNoResponse),
		twimlDial{Number: t.settings.AgentNumber},
	}})
}

func (t *TwiML) Confirmation(callID, message string, success bool) ([]byte, error) {
	closing := PromptThanks
	if !success {
		closing = PromptRetryOrAgent
	}
	return marshalDocument(twimlResponse{Verbs: []any{
		t.say(message),
		t.say(closing),
		twimlHangup{},
	}})
}

// Goodbye speaks message, thanks the caller and hangs up.
func (t *TwiML) Goodbye(callID, message string) ([]byte, error) {
	return t.Confirmation(callID, message, true)
}

func (t *TwiML) Transfer(callID, message string) ([]byte, error) {
	return marshalDocument(twimlResponse{Verbs: []any{
		t.say(message),
		twimlDial{Number: t.settings.AgentNumber},
	}})
}

func (t *TwiML) Error(message string) []byte {
	doc, err := marshalDocument(twimlResponse{Verbs: []any{
		t.say(errorText(message)),
		twimlGather{Input: "dtmf", NumDigits: 1, Timeout: 5},
		t.say(PromptGoodbye),
		twimlHangup{},
	}})
	if err != nil {
		slog.Error("Failed to render TwiML error", "error", err)
		return []byte(fallbackTwiML)
	}
	return doc
}

const fallbackTwiML = xml.Header + `<Response><Say>Sorry, we're experiencing technical difficulties. Goodbye.</Say><Hangup></Hangup></Response>` + "\n"
