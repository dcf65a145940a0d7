package fmdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (r *Record) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fmdata.Record."+op, trace.WithAttributes(
		attribute.String("fmdata.layout", r.layoutName()),
		attribute.Int("fmdata.record_id", r.recordID),
		attribute.String("fmdata.state", r.state.String()),
	))
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Commit persists the record. A new record is created with every writable
// layout field; a persisted record sends only its edited fields and portal
// rows together with its modification stamp. Portal rows commit through their
// root record.
//
// A failing script phase yields a *ScriptError although the server may
// already have applied the change.
func (r *Record) Commit(ctx context.Context, opts ...ScriptOption) error {
	if r.portal != nil {
		return r.Root().Commit(ctx, opts...)
	}
	scripts := newScripts(opts)

	switch r.state {
	case StateNew:
		return r.create(ctx, scripts)
	case StatePersisted:
		if !r.Edited() && scripts.empty() {
			return nil
		}
		return r.update(ctx, scripts)
	default:
		return invalidState("commit", r.state)
	}
}

func (r *Record) create(ctx context.Context, scripts Scripts) (err error) {
	ctx, span := r.startSpan(ctx, "Commit")
	defer func() { endWithError(span, err) }()

	wire := r.ToWire(WireOptions{Fields: r.writable})
	body := map[string]any{"fieldData": wire.FieldData}
	if wire.PortalData != nil {
		body["portalData"] = wire.PortalData
	}
	scripts.applyBody(body)

	resp, err := r.layout.client.session.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   r.layout.recordsPath(),
		Body:   body,
	})
	if err != nil {
		return err
	}
	var payload struct {
		RecordID flexInt `json:"recordId"`
		ModID    flexInt `json:"modId"`
	}
	if err := resp.Decode(&payload); err != nil {
		return err
	}
	if serr := resp.scriptFailure(int(payload.RecordID)); serr != nil {
		return serr
	}

	r.recordID = int(payload.RecordID)
	r.modID = int(payload.ModID)
	r.state = StatePersisted
	return r.saved(ctx, wire.PortalData != nil)
}

func (r *Record) update(ctx context.Context, scripts Scripts) (err error) {
	ctx, span := r.startSpan(ctx, "Commit")
	defer func() { endWithError(span, err) }()

	newRows := false
	for _, p := range r.portals {
		if p.hasNewEditedRows() {
			newRows = true
			break
		}
	}

	wire := r.ToWire(WireOptions{})
	body := map[string]any{
		"fieldData": wire.FieldData,
		"modId":     strconv.Itoa(r.modID),
	}
	if wire.PortalData != nil {
		body["portalData"] = wire.PortalData
	}
	scripts.applyBody(body)

	resp, err := r.layout.client.session.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   r.layout.recordPath(r.recordID),
		Body:   body,
	})
	if err != nil {
		return err
	}
	var payload struct {
		ModID flexInt `json:"modId"`
	}
	if err := resp.Decode(&payload); err != nil {
		return err
	}
	r.modID = int(payload.ModID)
	if serr := resp.scriptFailure(r.recordID); serr != nil {
		return serr
	}
	return r.saved(ctx, newRows)
}

// saved clears edit state after a successful write. New portal rows only get
// their server ids from a fresh read of the record.
func (r *Record) saved(ctx context.Context, refetch bool) error {
	for _, p := range r.portals {
		p.markSaved()
	}
	r.MarkSaved()
	if !refetch {
		return nil
	}
	if err := r.Get(ctx); err != nil {
		return fmt.Errorf("%w: record %d: %w", ErrRefreshFailed, r.recordID, err)
	}
	return nil
}

// writable selects the fields a create request may carry.
func (r *Record) writable(f *Field) bool {
	meta := r.layout.cachedMetadata()
	if meta == nil {
		return true
	}
	if f.Kind() == KindContainer {
		return false
	}
	for _, fm := range meta.Fields {
		if fm.Name == f.name {
			return fm.Type == "" || fm.Type == "normal"
		}
	}
	return true
}

// Get re-reads the record from the server, discarding local edits. Portal
// rows refresh their root record.
func (r *Record) Get(ctx context.Context, opts ...ScriptOption) (err error) {
	if r.portal != nil {
		return r.Root().Get(ctx, opts...)
	}
	if r.state != StatePersisted {
		return invalidState("get", r.state)
	}
	ctx, span := r.startSpan(ctx, "Get")
	defer func() { endWithError(span, err) }()

	row, _, err := r.layout.fetch(ctx, r.recordID, newScripts(opts))
	if err != nil {
		return err
	}
	r.hydrate(*row)
	return nil
}

// Duplicate asks the server to copy the record and returns the copy, holding
// every field and portal value of r under the new server ids. r itself is not
// changed. Subscribers of r receive EventDuplicated.
func (r *Record) Duplicate(ctx context.Context, opts ...ScriptOption) (dup *Record, err error) {
	if r.portal != nil {
		return nil, invalidState("duplicate a portal row of", r.state)
	}
	if r.state != StatePersisted {
		return nil, invalidState("duplicate", r.state)
	}
	ctx, span := r.startSpan(ctx, "Duplicate")
	defer func() { endWithError(span, err) }()

	body := map[string]any{}
	newScripts(opts).applyBody(body)
	resp, err := r.layout.client.session.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   r.layout.recordPath(r.recordID),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		RecordID flexInt `json:"recordId"`
		ModID    flexInt `json:"modId"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}

	dup = r.clone()
	dup.recordID = int(payload.RecordID)
	dup.modID = int(payload.ModID)
	dup.state = StatePersisted
	r.emit(Event{Kind: EventDuplicated, Record: r, Duplicate: dup})
	if serr := resp.scriptFailure(dup.recordID); serr != nil {
		return dup, serr
	}
	return dup, nil
}

// Delete removes the record on the server. Portal rows are removed through
// their portal.
func (r *Record) Delete(ctx context.Context, opts ...ScriptOption) (err error) {
	if r.portal != nil {
		return r.portal.Delete(ctx, r, opts...)
	}
	if r.state != StatePersisted {
		return invalidState("delete", r.state)
	}
	ctx, span := r.startSpan(ctx, "Delete")
	defer func() { endWithError(span, err) }()

	resp, err := r.layout.client.session.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   r.layout.recordPath(r.recordID),
		Query:  newScripts(opts).applyQuery(nil),
	})
	if err != nil {
		return err
	}
	r.state = StateDeleted
	r.emit(Event{Kind: EventDeleted, Record: r})
	return resp.scriptFailure(r.recordID)
}
