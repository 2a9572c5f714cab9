// Package ussd implements the AfyaLink, Pathways Aid and Career Buddy USSD menus. Every request
// carries the caller's full keypad history, so each screen is re-derived from the
// StepPath alone plus whatever the session store holds.
package ussd

import (
	"net/url"
	"strings"
)

// Gateway form fields.
const (
	FieldSessionID   = "sessionId"
	FieldServiceCode = "serviceCode"
	FieldPhoneNumber = "phoneNumber"
	FieldText        = "text"
)

// StepPath is the caller's keypad history for the current dial, one token per screen answered.
type StepPath []string

// ParseStepPath splits the cumulative gateway text on "*". Empty text is the
// zero-length path of a fresh dial.
func ParseStepPath(text string) StepPath {
	if text == "" {
		return StepPath{}
	}
	return StepPath(strings.Split(text, "*"))
}

// Len returns the number of tokens.
func (p StepPath) Len() int { return len(p) }

// At returns token i, or "" when the path is shorter.
func (p StepPath) At(i int) string {
	if i < 0 || i >= len(p) {
		return ""
	}
	return p[i]
}

// Last returns the most recent token.
func (p StepPath) Last() string { return p.At(len(p) - 1) }

// Request is one decoded gateway callback.
type Request struct {
	SessionID   string
	ServiceCode string
	Phone       string
	Path        StepPath
}

// Decode builds a Request from the gateway's form values. Absent fields decode
// as empty strings; nothing is validated here.
func Decode(form url.Values) Request {
	return Request{
		SessionID:   form.Get(FieldSessionID),
		ServiceCode: form.Get(FieldServiceCode),
		Phone:       strings.TrimSpace(form.Get(FieldPhoneNumber)),
		Path:        ParseStepPath(form.Get(FieldText)),
	}
}
