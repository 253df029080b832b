package voice

import (
	"encoding/xml"
	"log/slog"
	"strings"
)

const ContentTypeVXML = "application/xml"

const (
	grammarWelcome = "#JSGF V1.0; grammar request; public <request> = book flight | check status | cancel booking | speak to agent;"
	grammarWords   = "#JSGF V1.0; grammar response; public <response> = <word>+;"
	grammarDigits  = "#JSGF V1.0; grammar digits; public <digit> = 0 | 1 | 2 | 3 | 4 | 5 | 6 | 7 | 8 | 9;"
	grammarYesNo   = "#JSGF V1.0; grammar yesno; public <yesno> = yes | no | sure | nope;"
)

type vxmlDoc struct {
	XMLName xml.Name   `xml:"vxml"`
	Version string     `xml:"version,attr"`
	Xmlns   string     `xml:"xmlns,attr"`
	Forms   []vxmlForm `xml:"form"`
}

type vxmlForm struct {
	ID     string      `xml:"id,attr"`
	Block  *vxmlBlock  `xml:"block,omitempty"`
	Fields []vxmlField `xml:"field"`
}

type vxmlBlock struct {
	Prompts    []string      `xml:"prompt"`
	Transfer   *vxmlTransfer `xml:"transfer,omitempty"`
	Disconnect *struct{}     `xml:"disconnect,omitempty"`
}

type vxmlTransfer struct {
	Dest string `xml:"dest,attr"`
}

type vxmlField struct {
	Name     string        `xml:"name,attr"`
	Grammars []vxmlGrammar `xml:"grammar"`
	Filled   *vxmlFilled   `xml:"filled,omitempty"`
	NoInput  []vxmlEvent   `xml:"noinput"`
	NoMatch  []vxmlEvent   `xml:"nomatch"`
}

type vxmlGrammar struct {
	Type string `xml:"type,attr"`
	Mode string `xml:"mode,attr"`
	Body string `xml:",cdata"`
}

type vxmlFilled struct {
	Submit *vxmlSubmit `xml:"submit,omitempty"`
	If     *vxmlIf     `xml:"if,omitempty"`
}

type vxmlIf struct {
	Cond       string      `xml:"cond,attr"`
	Submit     *vxmlSubmit `xml:"submit,omitempty"`
	Else       *struct{}   `xml:"else,omitempty"`
	Prompt     string      `xml:"prompt,omitempty"`
	Disconnect *struct{}   `xml:"disconnect,omitempty"`
}

type vxmlSubmit struct {
	Next    string      `xml:"next,attr"`
	Method  string      `xml:"method,attr"`
	Enctype string      `xml:"enctype,attr"`
	Params  []vxmlParam `xml:"param"`
}

type vxmlParam struct {
	Name string `xml:"name,attr"`
	Expr string `xml:"expr,attr"`
}

type vxmlEvent struct {
	Count    int       `xml:"count,attr,omitempty"`
	Prompt   string    `xml:"prompt,omitempty"`
	Reprompt *struct{} `xml:"reprompt,omitempty"`
	Goto     *vxmlGoto `xml:"goto,omitempty"`
}

type vxmlGoto struct {
	Next string `xml:"next,attr"`
}

// VoiceXML renders VoiceXML 2.1 documents for legacy IVR platforms.
type VoiceXML struct {
	settings Settings
}

func NewVoiceXML(s Settings) *VoiceXML {
	return &VoiceXML{settings: s.withDefaults()}
}

func (v *VoiceXML) ContentType() string { return ContentTypeVXML }

// SubmitURL is where the IVR posts caller input.
func (v *VoiceXML) SubmitURL() string { return v.settings.BaseURL + "/ivr/user-input" }

func (v *VoiceXML) submit(params ...vxmlParam) *vxmlSubmit {
	return &vxmlSubmit{
		Next:    v.SubmitURL(),
		Method:  "post",
		Enctype: "application/json",
		Params:  params,
	}
}

func (v *VoiceXML) transferForm() vxmlForm {
	return vxmlForm{
		ID: "transfer_agent",
		Block: &vxmlBlock{
			Prompts:  []string{PromptHold},
			Transfer: &vxmlTransfer{Dest: "tel:" + v.settings.AgentNumber},
		},
	}
}

func document(forms ...vxmlForm) vxmlDoc {
	return vxmlDoc{Version: "2.1", Xmlns: "http://www.w3.org/2001/vxml", Forms: forms}
}

func (v *VoiceXML) Welcome(callID string) ([]byte, error) {
	return marshalDocument(document(vxmlForm{
		ID:    "welcome",
		Block: &vxmlBlock{Prompts: []string{PromptWelcome}},
		Fields: []vxmlField{{
			Name:     "user_input",
			Grammars: []vxmlGrammar{{Type: "application/srgs+xml", Mode: "voice", Body: grammarWelcome}},
			Filled: &vxmlFilled{Submit: v.submit(
				vxmlParam{Name: "call_id", Expr: literal(callID)},
				vxmlParam{Name: "user_input", Expr: "user_input"},
				vxmlParam{Name: "input_type", Expr: literal("speech")},
			)},
			NoInput: []vxmlEvent{{Count: 1, Prompt: "I didn't hear you. Please say how I can help you.", Reprompt: &struct{}{}}},
			NoMatch: []vxmlEvent{{Count: 1, Prompt: "I didn't understand that. You can say book flight, check status, or cancel booking.", Reprompt: &struct{}{}}},
		}},
	}))
}

// Reply speaks message and collects the next utterance or keypress. Two
// silent turns hand the caller to an agent.
func (v *VoiceXML) Reply(callID, message, action string) ([]byte, error) {
	return marshalDocument(document(
		vxmlForm{
			ID:    "response",
			Block: &vxmlBlock{Prompts: []string{message}},
			Fields: []vxmlField{{
				Name: "user_response",
				Grammars: []vxmlGrammar{
					{Type: "application/srgs+xml", Mode: "voice", Body: grammarWords},
					{Type: "application/srgs+xml", Mode: "dtmf", Body: grammarDigits},
				},
				Filled: &vxmlFilled{Submit: v.submit(
					vxmlParam{Name: "call_id", Expr: literal(callID)},
					vxmlParam{Name: "user_input", Expr: "user_response"},
					vxmlParam{Name: "next_action", Expr: literal(action)},
				)},
				NoInput: []vxmlEvent{
					{Count: 1, Prompt: "I didn't hear you. Please repeat.", Reprompt: &struct{}{}},
					{Count: 2, Prompt: "I still didn't hear you. Let me transfer you to an agent.", Goto: &vxmlGoto{Next: "#transfer_agent"}},
				},
			}},
		},
		v.transferForm(),
	))
}

// Confirmation reports a transaction result and offers to continue.
func (v *VoiceXML) Confirmation(callID, message string, success bool) ([]byte, error) {
	message = strings.TrimSuffix(strings.TrimSpace(message), ".")
	if message == "" {
		message = "Transaction completed"
	}
	prompt := message + ". Is there anything else I can help you with?"
	if !success {
		prompt = "Sorry, there was an issue: " + message + ". Would you like to try again?"
	}

	return marshalDocument(document(vxmlForm{
		ID:    "confirmation",
		Block: &vxmlBlock{Prompts: []string{prompt}},
		Fields: []vxmlField{{
			Name:     "continue_response",
			Grammars: []vxmlGrammar{{Type: "application/srgs+xml", Mode: "voice", Body: grammarYesNo}},
			Filled: &vxmlFilled{If: &vxmlIf{
				Cond: "continue_response == 'yes' || continue_response == 'sure'",
				Submit: v.submit(
					vxmlParam{Name: "call_id", Expr: literal(callID)},
					vxmlParam{Name: "user_input", Expr: literal("yes")},
				),
				Else:       &struct{}{},
				Prompt:     "Thank you for calling Air India. Goodbye!",
				Disconnect: &struct{}{},
			}},
		}},
	}))
}

func (v *VoiceXML) Transfer(callID, message string) ([]byte, error) {
	form := v.transferForm()
	form.Block.Prompts = []string{message}
	return marshalDocument(document(form))
}

// Goodbye speaks message and ends the call.
func (v *VoiceXML) Goodbye(callID, message string) ([]byte, error) {
	return marshalDocument(document(vxmlForm{
		ID: "goodbye",
		Block: &vxmlBlock{
			Prompts:    []string{message, "Thank you for calling Air India. Goodbye!"},
			Disconnect: &struct{}{},
		},
	}))
}

func (v *VoiceXML) Error(message string) []byte {
	doc, err := marshalDocument(document(vxmlForm{
		ID: "error",
		Block: &vxmlBlock{
			Prompts:    []string{errorText(message)},
			Disconnect: &struct{}{},
		},
	}))
	if err != nil {
		slog.Error("Failed to render VoiceXML error", "error", err)
		return []byte(fallbackVXML)
	}
	return doc
}

const fallbackVXML = xml.Header + `<vxml version="2.1" xmlns="http://www.w3.org/2001/vxml"><form id="error"><block><prompt>Sorry, we're experiencing technical difficulties.</prompt><disconnect></disconnect></block></form></vxml>` + "\n"

// literal quotes s as an ECMAScript string for expr attributes.
func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}
