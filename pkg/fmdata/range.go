package fmdata

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
	"github.com/Ratio1/fmdata_sdk_go/internal/httpx"
)

// Range fetches a page of records of a layout without criteria.
type Range struct {
	query
}

// Params returns the query string the request will carry.
func (r *Range) Params() (url.Values, error) {
	v := url.Values{}
	if r.limit > 0 {
		v.Set("_limit", strconv.Itoa(r.limit))
	}
	if r.hasOff {
		v.Set("_offset", strconv.Itoa(r.offset+1))
	}
	if len(r.sort) > 0 {
		data, err := httpx.MarshalJSON(r.sort)
		if err != nil {
			return nil, err
		}
		v.Set("_sort", string(data))
	}
	if len(r.portals) > 0 {
		data, err := httpx.MarshalJSON(r.portals)
		if err != nil {
			return nil, err
		}
		v.Set("portal", string(data))
	}
	for _, name := range r.portalOrder {
		key := portalParam(name)
		if n, ok := r.portalLimits[name]; ok {
			v.Set("_limit."+key, strconv.Itoa(n))
		}
		if n, ok := r.portalOffsets[name]; ok {
			v.Set("_offset."+key, strconv.Itoa(n+1))
		}
	}
	return r.scripts.applyQuery(v), nil
}

// Execute fetches the page. An empty layout yields an empty FoundSet. A
// failing script yields the FoundSet together with a *ScriptError.
func (r *Range) Execute(ctx context.Context) (fs *FoundSet, err error) {
	ctx, span := tracer.Start(ctx, "fmdata.Range.Execute")
	defer func() { endWithError(span, err) }()

	if err := r.prepare(ctx); err != nil {
		return nil, err
	}
	params, err := r.Params()
	if err != nil {
		return nil, err
	}
	resp, err := r.layout.client.session.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   r.layout.recordsPath(),
		Query:  params,
	})
	if err != nil {
		if RemoteCode(err) == fmapi.CodeNoRecordsMatch {
			return &FoundSet{Records: []*Record{}}, nil
		}
		return nil, err
	}
	var payload foundPayload
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	fs = r.result(payload.Data, payload.DataInfo, resp.ScriptResults())
	return fs, resp.scriptFailure(-1)
}
