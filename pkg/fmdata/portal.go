package fmdata

import (
	"context"
	"net/http"
	"slices"
	"strconv"
)

// Portal is a named set of child records shown on a root record.
type Portal struct {
	owner   *Record
	name    string
	records []*Record

	// sent holds the new rows carried by the last successful write, in
	// order, until the refetch that follows it assigns their ids.
	sent []*Record
}

// Name returns the portal name (object name or related table occurrence).
func (p *Portal) Name() string { return p.name }

// Owner returns the root record owning the portal.
func (p *Portal) Owner() *Record { return p.owner }

// Records returns the rows in order.
func (p *Portal) Records() []*Record {
	return append([]*Record(nil), p.records...)
}

// Len returns the number of rows.
func (p *Portal) Len() int { return len(p.records) }

// Create appends a new empty row seeded from the portal schema. The row is
// sent with the owner's next commit once one of its fields is set.
func (p *Portal) Create() *Record {
	row := newRecord(p.owner.layout, p)
	p.records = append(p.records, row)
	return row
}

func (p *Portal) edited() bool {
	for _, row := range p.records {
		if row.Edited() {
			return true
		}
	}
	return false
}

func (p *Portal) hasNewEditedRows() bool {
	for _, row := range p.records {
		if row.state == StateNew && row.Edited() {
			return true
		}
	}
	return false
}

func (p *Portal) markSaved() {
	for _, row := range p.records {
		if row.state == StateNew && row.Edited() && !slices.Contains(p.sent, row) {
			p.sent = append(p.sent, row)
		}
	}
	for _, row := range p.records {
		if row.Edited() {
			row.clearEdits()
			row.emit(Event{Kind: EventSaved, Record: row})
		}
	}
}

// reconcile replaces the rows with objs, reusing the row handles that
// correspond to them.
func (p *Portal) reconcile(objs []map[string]any) {
	saved := make(map[int]*Record, len(p.records))
	for _, row := range p.records {
		if row.state == StatePersisted {
			saved[row.recordID] = row
		}
	}

	rows := make([]*Record, len(objs))
	var unmatched []int
	for i, obj := range objs {
		if row, ok := saved[atoiAny(obj["recordId"])]; ok {
			rows[i] = row
			delete(saved, row.recordID)
			continue
		}
		unmatched = append(unmatched, i)
	}
	sent := p.sent
	if len(sent) > len(unmatched) {
		sent = sent[len(sent)-len(unmatched):]
	}
	for i, row := range sent {
		rows[unmatched[len(unmatched)-len(sent)+i]] = row
	}
	p.sent = nil

	for i, obj := range objs {
		if rows[i] == nil {
			rows[i] = &Record{layout: p.owner.layout, portal: p, recordID: -1, fields: map[string]*Field{}}
		}
		rows[i].hydrateRow(obj)
	}
	p.records = rows
}

func (p *Portal) remove(row *Record) bool {
	for i, r := range p.sent {
		if r == row {
			p.sent = append(p.sent[:i], p.sent[i+1:]...)
			break
		}
	}
	for i, r := range p.records {
		if r == row {
			p.records = append(p.records[:i], p.records[i+1:]...)
			return true
		}
	}
	return false
}

// Delete removes row from the portal and deletes the related record on the
// server. Rows that were never saved are dropped locally.
func (p *Portal) Delete(ctx context.Context, row *Record, opts ...ScriptOption) error {
	if row == nil || row.portal != p {
		return invalidArgument("record is not a row of portal %q", p.name)
	}
	switch row.state {
	case StateDeleted:
		return invalidState("delete", row.state)
	case StateNew:
		p.remove(row)
		row.state = StateDeleted
		row.emit(Event{Kind: EventDeleted, Record: row})
		return nil
	}
	owner := p.owner
	if owner.state != StatePersisted {
		return invalidState("delete a portal row of", owner.state)
	}

	ctx, span := tracer.Start(ctx, "fmdata.Portal.Delete")
	defer span.End()

	body := map[string]any{
		"fieldData": map[string]any{"deleteRelated": p.name + "." + strconv.Itoa(row.recordID)},
	}
	newScripts(opts).applyBody(body)
	resp, err := owner.layout.client.session.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   owner.layout.recordPath(owner.recordID),
		Body:   body,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	var payload struct {
		ModID flexInt `json:"modId"`
	}
	if err := resp.Decode(&payload); err != nil {
		return err
	}
	owner.modID = int(payload.ModID)
	p.remove(row)
	row.state = StateDeleted
	row.emit(Event{Kind: EventDeleted, Record: row})
	return resp.scriptFailure(owner.recordID)
}
