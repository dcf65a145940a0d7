package fmdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Layout is a handle on a named layout of the client's database.
type Layout struct {
	client *Client
	name   string
}

// Name returns the layout name.
func (l *Layout) Name() string { return l.name }

func (l *Layout) recordsPath() string {
	return "layouts/" + url.PathEscape(l.name) + "/records"
}

func (l *Layout) recordPath(id int) string {
	return l.recordsPath() + "/" + strconv.Itoa(id)
}

// Create returns a new, unsaved record with one empty field per layout field
// and one empty portal per layout portal. The layout schema is fetched on
// first use.
func (l *Layout) Create(ctx context.Context) (*Record, error) {
	if _, err := l.Metadata(ctx); err != nil {
		return nil, err
	}
	return newRecord(l, nil), nil
}

// Get fetches the record with the given id.
func (l *Layout) Get(ctx context.Context, id int, opts ...ScriptOption) (*Record, error) {
	if id < 0 {
		return nil, invalidArgument("record id must not be negative, got %d", id)
	}
	if _, err := l.Metadata(ctx); err != nil {
		return nil, err
	}
	r := newRecord(l, nil)
	row, _, err := l.fetch(ctx, id, newScripts(opts))
	if err != nil {
		return nil, err
	}
	r.hydrate(*row)
	return r, nil
}

func (l *Layout) fetch(ctx context.Context, id int, scripts Scripts) (*wireRow, *Response, error) {
	resp, err := l.client.session.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   l.recordPath(id),
		Query:  scripts.applyQuery(nil),
	})
	if err != nil {
		return nil, nil, err
	}
	var payload struct {
		Data []wireRow `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, nil, err
	}
	if len(payload.Data) == 0 {
		return nil, nil, fmt.Errorf("fmdata: record %d missing from response", id)
	}
	if err := resp.scriptFailure(id); err != nil {
		return nil, nil, err
	}
	return &payload.Data[0], resp, nil
}

// Range returns a builder fetching records without criteria.
func (l *Layout) Range() *Range {
	return &Range{query: query{layout: l}}
}

// Find returns a builder fetching records matching criteria.
func (l *Layout) Find() *Find {
	return &Find{query: query{layout: l}}
}
