package voice

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/harunnryd/ivrbridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{BaseURL: "https://ivr.example.com/", AgentNumber: "+18005550000"}
}

// wellFormed decodes every token and returns the root element name.
func wellFormed(t *testing.T, doc []byte) string {
	t.Helper()
	require.True(t, bytes.HasPrefix(doc, []byte(xml.Header)), "missing XML header")

	dec := xml.NewDecoder(bytes.NewReader(doc))
	root := ""
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if start, ok := tok.(xml.StartElement); ok && root == "" {
			root = start.Name.Local
		}
	}
	return root
}

type parsedTwiML struct {
	Says []struct {
		Voice    string `xml:"voice,attr"`
		Language string `xml:"language,attr"`
		Text     string `xml:",chardata"`
	} `xml:"Say"`
	Gather *struct {
		Input     string `xml:"input,attr"`
		Action    string `xml:"action,attr"`
		NumDigits int    `xml:"numDigits,attr"`
		Says      []struct {
			Text string `xml:",chardata"`
		} `xml:"Say"`
	} `xml:"Gather"`
	Dial   string    `xml:"Dial"`
	Hangup *struct{} `xml:"Hangup"`
}

func parseTwiML(t *testing.T, doc []byte) parsedTwiML {
	t.Helper()
	require.Equal(t, "Response", wellFormed(t, doc))
	var p parsedTwiML
	require.NoError(t, xml.Unmarshal(doc, &p))
	return p
}

func TestTwiML_Welcome(t *testing.T) {
	doc, err := NewTwiML(testSettings()).Welcome("CA1")
	require.NoError(t, err)

	p := parseTwiML(t, doc)
	require.Len(t, p.Says, 2)
	assert.Equal(t, PromptWelcome, p.Says[0].Text)
	assert.Equal(t, "Polly.Aditi", p.Says[0].Voice)
	assert.Equal(t, "en-IN", p.Says[0].Language)
	require.NotNil(t, p.Gather)
	assert.Equal(t, "speech", p.Gather.Input)
	assert.Equal(t, "https://ivr.example.com/twilio/gather", p.Gather.Action)
	require.Len(t, p.Gather.Says, 1)
	assert.Equal(t, PromptWelcomeHint, p.Gather.Says[0].Text)
	assert.NotNil(t, p.Hangup)
}

func TestTwiML_ReplyEscapesAndFallsBackToAgent(t *testing.T) {
	doc, err := NewTwiML(testSettings()).Reply("CA1", `Flights <to> "Goa" & back`, "collect_origin")
	require.NoError(t, err)

	p := parseTwiML(t, doc)
	assert.Equal(t, `Flights <to> "Goa" & back`, p.Says[0].Text)
	require.NotNil(t, p.Gather)
	assert.Equal(t, "speech dtmf", p.Gather.Input)
	assert.Equal(t, 1, p.Gather.NumDigits)
	assert.Equal(t, PromptNoResponse, p.Says[1].Text)
	assert.Equal(t, "+18005550000", p.Dial)
	assert.Nil(t, p.Hangup)
}

func TestTwiML_Confirmation(t *testing.T) {
	r := NewTwiML(testSettings())

	doc, err := r.Confirmation("CA1", "Booking confirmed from Mumbai to Delhi", true)
	require.NoError(t, err)
	p := parseTwiML(t, doc)
	require.Len(t, p.Says, 2)
	assert.Equal(t, PromptThanks, p.Says[1].Text)
	assert.NotNil(t, p.Hangup)

	doc, err = r.Confirmation("CA1", "Booking failed", false)
	require.NoError(t, err)
	p = parseTwiML(t, doc)
	assert.Equal(t, PromptRetryOrAgent, p.Says[1].Text)
}

func TestTwiML_TransferAndError(t *testing.T) {
	r := NewTwiML(testSettings())

	doc, err := r.Transfer("CA1", "Connecting you now")
	require.NoError(t, err)
	p := parseTwiML(t, doc)
	assert.Equal(t, "+18005550000", p.Dial)

	p = parseTwiML(t, r.Error(""))
	assert.Equal(t, DefaultErrorMessage+". "+PromptErrorSuffix, p.Says[0].Text)
	require.NotNil(t, p.Gather)
	assert.Equal(t, "dtmf", p.Gather.Input)
	assert.Equal(t, PromptGoodbye, p.Says[1].Text)

	p = parseTwiML(t, r.Error(PromptSessionExpired))
	assert.Equal(t, "Sorry, your session has expired. "+PromptErrorSuffix, p.Says[0].Text)
}

func TestVoiceXML_WelcomeQuotesCallID(t *testing.T) {
	doc, err := NewVoiceXML(testSettings()).Welcome(`CA'1`)
	require.NoError(t, err)
	require.Equal(t, "vxml", wellFormed(t, doc))

	text := string(doc)
	assert.Contains(t, text, `next="https://ivr.example.com/ivr/user-input"`)
	assert.Contains(t, text, `expr="&#39;CA\&#39;1&#39;"`)
	assert.Contains(t, text, "<![CDATA["+grammarWelcome+"]]>")
	assert.Contains(t, text, PromptWelcome)
}

func TestVoiceXML_ReplyHasTransferForm(t *testing.T) {
	doc, err := NewVoiceXML(testSettings()).Reply("CA1", "Where would you like to fly from?", "collect_origin")
	require.NoError(t, err)
	require.Equal(t, "vxml", wellFormed(t, doc))

	text := string(doc)
	assert.Contains(t, text, `<form id="response">`)
	assert.Contains(t, text, `<form id="transfer_agent">`)
	assert.Contains(t, text, `<transfer dest="tel:+18005550000"></transfer>`)
	assert.Contains(t, text, `<goto next="#transfer_agent"></goto>`)
	assert.Contains(t, text, `&#39;collect_origin&#39;`)
	assert.Equal(t, 2, strings.Count(text, "<noinput"))
}

func TestVoiceXML_Confirmation(t *testing.T) {
	r := NewVoiceXML(testSettings())

	doc, err := r.Confirmation("CA1", "Booking cancelled successfully", true)
	require.NoError(t, err)
	wellFormed(t, doc)
	assert.Contains(t, string(doc), "Booking cancelled successfully. Is there anything else I can help you with?")

	doc, err = r.Confirmation("CA1", "Flight not found", false)
	require.NoError(t, err)
	wellFormed(t, doc)
	assert.Contains(t, string(doc), "Sorry, there was an issue: Flight not found. Would you like to try again?")
	assert.Contains(t, string(doc), "<else></else>")
}

func TestVoiceXML_ErrorGoodbyeTransfer(t *testing.T) {
	r := NewVoiceXML(testSettings())

	doc := r.Error("")
	wellFormed(t, doc)
	assert.Contains(t, string(doc), DefaultErrorMessage+". "+PromptErrorSuffix)
	assert.Contains(t, string(doc), "<disconnect></disconnect>")

	doc, err := r.Goodbye("CA1", "Booking confirmed")
	require.NoError(t, err)
	wellFormed(t, doc)
	assert.Contains(t, string(doc), "<prompt>Booking confirmed</prompt>")

	doc, err = r.Transfer("CA1", "One moment")
	require.NoError(t, err)
	wellFormed(t, doc)
	assert.Contains(t, string(doc), "<prompt>One moment</prompt>")
}

func TestSettingsFrom_Defaults(t *testing.T) {
	s := SettingsFrom(config.GatewayConfig{})
	assert.Equal(t, config.DefaultGatewayBaseURL, s.BaseURL)
	assert.Equal(t, config.DefaultGatewayVoice, s.Voice)
	assert.Equal(t, config.DefaultGatewayAgentNumber, s.AgentNumber)
}

func TestFallbackDocumentsAreWellFormed(t *testing.T) {
	assert.Equal(t, "Response", wellFormed(t, []byte(fallbackTwiML)))
	assert.Equal(t, "vxml", wellFormed(t, []byte(fallbackVXML)))
}
