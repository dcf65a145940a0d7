package fmdata

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

// Script phases as reported in ScriptResult.Phase.
const (
	PhasePreRequest = fmapi.PhasePreRequest
	PhasePreSort    = fmapi.PhasePreSort
	PhaseScript     = fmapi.PhaseScript
)

// ScriptResult is the outcome of one script phase.
type ScriptResult struct {
	Phase  string
	Error  string
	Result string
}

// Failed reports a non-zero script error.
func (s ScriptResult) Failed() bool {
	return s.Error != "" && s.Error != "0"
}

// Scripts holds the script directives attached to a request.
type Scripts struct {
	Script          string
	ScriptParam     string
	PreRequest      string
	PreRequestParam string
	PreSort         string
	PreSortParam    string
}

// ScriptOption attaches a script directive to a request.
type ScriptOption func(*Scripts)

// WithScript runs name after the request.
func WithScript(name, param string) ScriptOption {
	return func(s *Scripts) {
		s.Script, s.ScriptParam = name, param
	}
}

// WithPreRequestScript runs name before the request is processed.
func WithPreRequestScript(name, param string) ScriptOption {
	return func(s *Scripts) {
		s.PreRequest, s.PreRequestParam = name, param
	}
}

// WithPreSortScript runs name before the found set is sorted.
func WithPreSortScript(name, param string) ScriptOption {
	return func(s *Scripts) {
		s.PreSort, s.PreSortParam = name, param
	}
}

func newScripts(opts []ScriptOption) Scripts {
	var s Scripts
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

func (s Scripts) empty() bool {
	return s.Script == "" && s.PreRequest == "" && s.PreSort == ""
}

func (s Scripts) each(fn func(key, value string)) {
	if s.Script != "" {
		fn("script", s.Script)
		if s.ScriptParam != "" {
			fn("script.param", s.ScriptParam)
		}
	}
	if s.PreRequest != "" {
		fn("script.prerequest", s.PreRequest)
		if s.PreRequestParam != "" {
			fn("script.prerequest.param", s.PreRequestParam)
		}
	}
	if s.PreSort != "" {
		fn("script.presort", s.PreSort)
		if s.PreSortParam != "" {
			fn("script.presort.param", s.PreSortParam)
		}
	}
}

func (s Scripts) applyBody(body map[string]any) {
	s.each(func(k, v string) { body[k] = v })
}

func (s Scripts) applyQuery(q url.Values) url.Values {
	if s.empty() {
		return q
	}
	if q == nil {
		q = url.Values{}
	}
	s.each(q.Set)
	return q
}

// RunScript runs the named script in the context of the layout and returns
// its result. A failing script yields both the result and a *ScriptError.
func (l *Layout) RunScript(ctx context.Context, name, param string) (*ScriptResult, error) {
	if name == "" {
		return nil, invalidArgument("script name is required")
	}
	var q url.Values
	if param != "" {
		q = url.Values{"script.param": {param}}
	}
	resp, err := l.client.session.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   "layouts/" + url.PathEscape(l.name) + "/script/" + url.PathEscape(name),
		Query:  q,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		ScriptError  string `json:"scriptError"`
		ScriptResult string `json:"scriptResult"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	res := &ScriptResult{Phase: PhaseScript, Error: payload.ScriptError, Result: payload.ScriptResult}
	if res.Failed() {
		return res, &ScriptError{Phase: PhaseScript, Code: res.Error, Result: res.Result, RecordID: -1}
	}
	return res, nil
}
