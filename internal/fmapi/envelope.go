package fmapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Message is a single entry of the envelope's messages array.
type Message struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the wrapper every Data API endpoint responds with.
type Envelope struct {
	Response json.RawMessage `json:"response"`
	Messages []Message       `json:"messages"`
}

// ErrNoEnvelope is returned when a body is not a Data API envelope.
var ErrNoEnvelope = errors.New("fmapi: body is not a data api envelope")

// Decode parses body into an Envelope. Bodies without a messages array are
// rejected with ErrNoEnvelope so callers can fall back to the HTTP status.
func Decode(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrNoEnvelope
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, ErrNoEnvelope
	}
	if len(env.Messages) == 0 {
		return nil, ErrNoEnvelope
	}
	return &env, nil
}

// Code returns the numeric code of the first message, or -1 when it is missing
// or not numeric.
func (e *Envelope) Code() int {
	if e == nil || len(e.Messages) == 0 {
		return -1
	}
	code, err := strconv.Atoi(strings.TrimSpace(e.Messages[0].Code))
	if err != nil {
		return -1
	}
	return code
}

// OK reports whether the first message carries code "0".
func (e *Envelope) OK() bool {
	return e != nil && len(e.Messages) > 0 && strings.TrimSpace(e.Messages[0].Code) == "0"
}

// Text returns the server supplied text of the first message.
func (e *Envelope) Text() string {
	if e == nil || len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[0].Message
}

// DecodeResponse unmarshals the response member into out. A null or missing
// response leaves out untouched.
func (e *Envelope) DecodeResponse(out any) error {
	if e == nil || len(e.Response) == 0 || bytes.Equal(bytes.TrimSpace(e.Response), []byte("null")) {
		return nil
	}
	return json.Unmarshal(e.Response, out)
}

// Script phases reported in a response body.
const (
	PhasePreRequest = "prerequest"
	PhasePreSort    = "presort"
	PhaseScript     = ""
)

// ScriptOutcome holds the result of one script phase.
type ScriptOutcome struct {
	Phase  string
	Error  string
	Result string
	Ran    bool
}

// Failed reports whether the phase ran and returned a non-zero error.
func (o ScriptOutcome) Failed() bool {
	return o.Ran && strings.TrimSpace(o.Error) != "" && strings.TrimSpace(o.Error) != "0"
}

// ScriptOutcomes extracts scriptError/scriptResult pairs for every phase, in
// execution order (prerequest, presort, script).
func ScriptOutcomes(response json.RawMessage) []ScriptOutcome {
	if len(response) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(response, &raw); err != nil {
		return nil
	}
	phases := []string{PhasePreRequest, PhasePreSort, PhaseScript}
	out := make([]ScriptOutcome, 0, len(phases))
	for _, phase := range phases {
		suffix := ""
		if phase != "" {
			suffix = "." + phase
		}
		errRaw, ran := raw["scriptError"+suffix]
		if !ran {
			continue
		}
		out = append(out, ScriptOutcome{
			Phase:  phase,
			Error:  scalarString(errRaw),
			Result: scalarString(raw["scriptResult"+suffix]),
			Ran:    true,
		})
	}
	return out
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
