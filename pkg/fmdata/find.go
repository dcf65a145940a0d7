package fmdata

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

// Criteria is one find request: field name to find expression. time.Time
// values are formatted with the field's declared format.
type Criteria map[string]any

type findRequest struct {
	criteria Criteria
	omit     bool
}

// Find fetches the records matching any of its requests.
type Find struct {
	query
	requests []findRequest
}

// AddRequests appends find requests. Records matching any request are
// returned.
func (f *Find) AddRequests(criteria ...Criteria) *Find {
	for _, c := range criteria {
		f.requests = append(f.requests, findRequest{criteria: c})
	}
	return f
}

// Omit appends requests whose matches are removed from the found set.
func (f *Find) Omit(criteria ...Criteria) *Find {
	for _, c := range criteria {
		f.requests = append(f.requests, findRequest{criteria: c, omit: true})
	}
	return f
}

// Body returns the JSON body the request will carry.
func (f *Find) Body() (map[string]any, error) {
	if len(f.requests) == 0 {
		return nil, invalidArgument("find on layout %q has no requests", f.layout.name)
	}
	meta := f.layout.cachedMetadata()
	host := f.layout.client.HostConfig()

	queries := make([]map[string]any, 0, len(f.requests))
	for _, req := range f.requests {
		q := make(map[string]any, len(req.criteria)+1)
		for name, v := range req.criteria {
			if t, ok := v.(time.Time); ok {
				kind := meta.FieldKind(name)
				if !kind.Temporal() {
					kind = KindTimestamp
				}
				v = host.Format(kind, t)
			}
			q[name] = v
		}
		if req.omit {
			q["omit"] = "true"
		}
		queries = append(queries, q)
	}

	body := map[string]any{"query": queries}
	if len(f.sort) > 0 {
		body["sort"] = f.sort
	}
	if len(f.portals) > 0 {
		body["portal"] = f.portals
	}
	if f.limit > 0 {
		body["limit"] = strconv.Itoa(f.limit)
	}
	if f.hasOff {
		body["offset"] = strconv.Itoa(f.offset + 1)
	}
	for _, name := range f.portalOrder {
		if n, ok := f.portalLimits[name]; ok {
			body["limit."+name] = strconv.Itoa(n)
		}
		if n, ok := f.portalOffsets[name]; ok {
			body["offset."+name] = strconv.Itoa(n + 1)
		}
	}
	f.scripts.applyBody(body)
	return body, nil
}

// Execute runs the find. When nothing matches it returns ErrNoRecordsMatch.
// A failing script yields the FoundSet together with a *ScriptError.
func (f *Find) Execute(ctx context.Context) (fs *FoundSet, err error) {
	ctx, span := tracer.Start(ctx, "fmdata.Find.Execute")
	defer func() { endWithError(span, err) }()

	if len(f.requests) == 0 {
		return nil, invalidArgument("find on layout %q has no requests", f.layout.name)
	}
	if err := f.prepare(ctx); err != nil {
		return nil, err
	}
	body, err := f.Body()
	if err != nil {
		return nil, err
	}
	resp, err := f.layout.client.session.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "layouts/" + url.PathEscape(f.layout.name) + "/_find",
		Body:   body,
	})
	if err != nil {
		if RemoteCode(err) == fmapi.CodeNoRecordsMatch {
			return nil, ErrNoRecordsMatch
		}
		return nil, err
	}
	var payload foundPayload
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	fs = f.result(payload.Data, payload.DataInfo, resp.ScriptResults())
	return fs, resp.scriptFailure(-1)
}
