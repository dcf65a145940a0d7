package fmdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// State is the lifecycle state of a Record.
type State int

const (
	// StateNew records have never been persisted (record id -1).
	StateNew State = iota
	StatePersisted
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePersisted:
		return "persisted"
	case StateDeleted:
		return "deleted"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Record is a local, mutable view of one server record. A root record
// belongs to a layout and owns its portals; a child record belongs to a
// portal and delegates persistence to its root.
//
// Records are not safe for concurrent mutation.
type Record struct {
	layout *Layout
	portal *Portal

	recordID int
	modID    int
	state    State

	names  []string
	fields map[string]*Field

	portalNames []string
	portals     map[string]*Portal

	listeners    []listener
	nextListener int
}

func newRecord(layout *Layout, portal *Portal) *Record {
	r := &Record{
		layout:   layout,
		portal:   portal,
		recordID: -1,
		state:    StateNew,
		fields:   map[string]*Field{},
	}
	meta := layout.cachedMetadata()
	if portal != nil {
		if meta != nil {
			for _, name := range meta.PortalFieldNames(portal.name) {
				r.addField(name, "")
			}
		}
		return r
	}
	r.portals = map[string]*Portal{}
	if meta != nil {
		for _, name := range meta.FieldNames() {
			r.addField(name, "")
		}
		for _, name := range meta.PortalNames() {
			r.addPortal(name)
		}
	}
	return r
}

func (r *Record) addField(name string, value any) *Field {
	if f, ok := r.fields[name]; ok {
		f.value = value
		f.edited = false
		return f
	}
	f := &Field{record: r, name: name, value: value}
	r.names = append(r.names, name)
	r.fields[name] = f
	return f
}

func (r *Record) addPortal(name string) *Portal {
	if p, ok := r.portals[name]; ok {
		return p
	}
	p := &Portal{owner: r, name: name}
	r.portalNames = append(r.portalNames, name)
	r.portals[name] = p
	return p
}

// RecordID returns the server record id, or -1 for a new record.
func (r *Record) RecordID() int { return r.recordID }

// ModID returns the last known modification stamp.
func (r *Record) ModID() int { return r.modID }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// Layout returns the layout the record belongs to.
func (r *Record) Layout() *Layout { return r.layout }

// Portal returns the owning portal of a child record, nil for root records.
func (r *Record) Portal() *Portal { return r.portal }

// IsChild reports whether the record is a portal row.
func (r *Record) IsChild() bool { return r.portal != nil }

// Root returns the root record that persists r.
func (r *Record) Root() *Record {
	if r.portal == nil {
		return r
	}
	return r.portal.owner
}

// Field returns the named field or nil.
func (r *Record) Field(name string) *Field {
	return r.fields[name]
}

// Fields returns the fields in schema order followed by extra wire fields.
func (r *Record) Fields() []*Field {
	out := make([]*Field, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.fields[name])
	}
	return out
}

// Set validates and stores v in the named field.
func (r *Record) Set(name string, v any) error {
	f, ok := r.fields[name]
	if !ok {
		return invalidArgument("layout %q has no field %q", r.layoutName(), name)
	}
	return f.Set(v)
}

// Value returns the raw value of the named field, nil when absent.
func (r *Record) Value(name string) any {
	if f, ok := r.fields[name]; ok {
		return f.value
	}
	return nil
}

// PortalByName returns the named portal of a root record, or nil.
func (r *Record) PortalByName(name string) *Portal {
	return r.portals[name]
}

// Portals returns the portals of a root record in order.
func (r *Record) Portals() []*Portal {
	out := make([]*Portal, 0, len(r.portalNames))
	for _, name := range r.portalNames {
		out = append(out, r.portals[name])
	}
	return out
}

// Edited reports whether any field, or any portal row of a root record, was
// edited.
func (r *Record) Edited() bool {
	for _, f := range r.fields {
		if f.edited {
			return true
		}
	}
	for _, p := range r.portals {
		if p.edited() {
			return true
		}
	}
	return false
}

// MarkSaved clears the edited flag of every field and emits EventSaved.
// Portal rows are cleared on their own save path.
func (r *Record) MarkSaved() {
	r.clearEdits()
	r.emit(Event{Kind: EventSaved, Record: r})
}

func (r *Record) clearEdits() {
	for _, f := range r.fields {
		f.edited = false
	}
}

func (r *Record) layoutName() string {
	if r.layout == nil {
		return ""
	}
	return r.layout.name
}

func (r *Record) host() HostConfig {
	if r.layout == nil || r.layout.client == nil {
		return DefaultHostConfig()
	}
	return r.layout.client.HostConfig()
}

func (r *Record) fieldKind(name string) Kind {
	meta := r.layout.cachedMetadata()
	if r.portal != nil {
		return meta.PortalFieldKind(r.portal.name, name)
	}
	return meta.FieldKind(name)
}

// FieldFilter selects the fields serialized by ToWire.
type FieldFilter func(*Field) bool

// RowFilter selects the portal rows serialized by ToWire.
type RowFilter func(*Record) bool

// PortalFilter selects the portals serialized by ToWire.
type PortalFilter func(*Portal) bool

// AllFields selects every field.
func AllFields(*Field) bool { return true }

// EditedFields selects edited fields.
func EditedFields(f *Field) bool { return f.edited }

// AllRows selects every portal row.
func AllRows(*Record) bool { return true }

// EditedRows selects portal rows with at least one edited field.
func EditedRows(r *Record) bool { return r.Edited() }

// AllPortals selects every portal.
func AllPortals(*Portal) bool { return true }

// EditedPortals selects portals holding at least one edited row.
func EditedPortals(p *Portal) bool { return p.edited() }

// WireOptions filter what ToWire serializes. Nil filters select edited
// entries only.
type WireOptions struct {
	Fields    FieldFilter
	Portals   PortalFilter
	Rows      RowFilter
	RowFields FieldFilter
}

// Snapshot serializes every field, portal and row.
var Snapshot = WireOptions{Fields: AllFields, Portals: AllPortals, Rows: AllRows, RowFields: AllFields}

func (o WireOptions) withDefaults() WireOptions {
	if o.Fields == nil {
		o.Fields = EditedFields
	}
	if o.Portals == nil {
		o.Portals = EditedPortals
	}
	if o.Rows == nil {
		o.Rows = EditedRows
	}
	if o.RowFields == nil {
		o.RowFields = EditedFields
	}
	return o
}

// WireRecord is the serialized form of a record.
type WireRecord struct {
	RecordID   string                      `json:"recordId,omitempty"`
	ModID      string                      `json:"modId,omitempty"`
	FieldData  map[string]any              `json:"fieldData"`
	PortalData map[string][]map[string]any `json:"portalData,omitempty"`
}

// ToWire serializes the record. Temporal values are formatted with the
// client's host configuration.
func (r *Record) ToWire(opts WireOptions) WireRecord {
	opts = opts.withDefaults()
	host := r.host()

	out := WireRecord{FieldData: map[string]any{}}
	if r.recordID >= 0 {
		out.RecordID = strconv.Itoa(r.recordID)
	}
	if r.state != StateNew && r.modID >= 0 {
		out.ModID = strconv.Itoa(r.modID)
	}
	for _, name := range r.names {
		f := r.fields[name]
		if opts.Fields(f) {
			out.FieldData[name] = f.wire(host)
		}
	}
	for _, name := range r.portalNames {
		p := r.portals[name]
		if !opts.Portals(p) {
			continue
		}
		var rows []map[string]any
		for _, row := range p.records {
			if !opts.Rows(row) {
				continue
			}
			rows = append(rows, row.rowObject(host, opts.RowFields))
		}
		if len(rows) == 0 {
			continue
		}
		if out.PortalData == nil {
			out.PortalData = map[string][]map[string]any{}
		}
		out.PortalData[name] = rows
	}
	return out
}

// rowObject renders a portal row as the flat object the wire expects.
func (r *Record) rowObject(host HostConfig, filter FieldFilter) map[string]any {
	obj := map[string]any{}
	if r.recordID >= 0 {
		obj["recordId"] = strconv.Itoa(r.recordID)
		if r.state == StatePersisted {
			obj["modId"] = strconv.Itoa(r.modID)
		}
	}
	for _, name := range r.names {
		f := r.fields[name]
		if filter(f) {
			obj[name] = f.wire(host)
		}
	}
	return obj
}

// flexInt decodes ids sent either as JSON strings or numbers.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("fmdata: invalid id %s", data)
	}
	*n = flexInt(v)
	return nil
}

type wireRow struct {
	RecordID   flexInt                     `json:"recordId"`
	ModID      flexInt                     `json:"modId"`
	FieldData  map[string]any              `json:"fieldData"`
	PortalData map[string][]map[string]any `json:"portalData"`
}

// hydrate loads a server row into the record. Temporal values are parsed with
// the host configuration and no field is marked edited. Existing Field and
// portal row handles are updated in place: saved rows are matched by record
// id, and rows sent by the last commit take the ids of the trailing rows the
// server did not match. Other unsaved rows are dropped.
func (r *Record) hydrate(row wireRow) {
	r.recordID = int(row.RecordID)
	r.modID = int(row.ModID)
	r.state = StatePersisted
	r.fillFields(row.FieldData)

	if r.portal != nil {
		return
	}
	if r.portals == nil {
		r.portals = map[string]*Portal{}
	}
	if meta := r.layout.cachedMetadata(); meta != nil {
		for _, name := range meta.PortalNames() {
			r.addPortal(name)
		}
	}
	for _, name := range r.portalNames {
		r.portals[name].reconcile(row.PortalData[name])
	}
	for _, name := range sortedKeys(row.PortalData) {
		if _, ok := r.portals[name]; !ok {
			r.addPortal(name).reconcile(row.PortalData[name])
		}
	}
}

// hydrateRow loads a flat portal row object.
func (r *Record) hydrateRow(obj map[string]any) {
	data := make(map[string]any, len(obj))
	var ids wireRow
	for k, v := range obj {
		switch k {
		case "recordId":
			ids.RecordID = flexInt(atoiAny(v))
		case "modId":
			ids.ModID = flexInt(atoiAny(v))
		default:
			data[k] = v
		}
	}
	ids.FieldData = data
	r.hydrate(ids)
}

func (r *Record) fillFields(data map[string]any) {
	var schema []string
	if meta := r.layout.cachedMetadata(); meta != nil {
		if r.portal != nil {
			schema = meta.PortalFieldNames(r.portal.name)
		} else {
			schema = meta.FieldNames()
		}
	}

	order := make([]string, 0, len(data)+len(schema))
	seen := make(map[string]bool, len(data)+len(schema))
	for _, name := range schema {
		order = append(order, name)
		seen[name] = true
	}
	for _, name := range sortedKeys(data) {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}

	old := r.fields
	r.names = r.names[:0]
	r.fields = make(map[string]*Field, len(order))
	host := r.host()
	for _, name := range order {
		raw, ok := data[name]
		if !ok {
			raw = ""
		}
		f, ok := old[name]
		if !ok {
			f = &Field{record: r, name: name}
		}
		f.edited = false
		f.SetValue(hydrateValue(host, f.Kind(), raw))
		r.names = append(r.names, name)
		r.fields[name] = f
	}
}

func hydrateValue(host HostConfig, kind Kind, raw any) any {
	if raw == nil {
		return ""
	}
	if !kind.Temporal() {
		return raw
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return raw
	}
	t, err := host.Parse(kind, s)
	if err != nil {
		return s
	}
	return t
}

func atoiAny(v any) int {
	switch t := v.(type) {
	case string:
		n, _ := strconv.Atoi(t)
		return n
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// clone copies field and portal values into a new record. Fields of the copy
// are unedited.
func (r *Record) clone() *Record {
	c := &Record{
		layout:   r.layout,
		portal:   r.portal,
		recordID: r.recordID,
		modID:    r.modID,
		state:    r.state,
		fields:   make(map[string]*Field, len(r.fields)),
	}
	for _, name := range r.names {
		c.addField(name, r.fields[name].value)
	}
	if r.portals != nil {
		c.portals = make(map[string]*Portal, len(r.portals))
		for _, name := range r.portalNames {
			src := r.portals[name]
			dst := c.addPortal(name)
			for _, row := range src.records {
				rc := row.clone()
				rc.portal = dst
				dst.records = append(dst.records, rc)
			}
		}
	}
	return c
}

// Decode copies the field values into dst, a pointer to a struct with json
// tags naming the fields. Empty number and temporal values decode as null,
// portals decode under their portal names.
func (r *Record) Decode(dst any) error {
	data, err := json.Marshal(r.plain())
	if err != nil {
		return fmt.Errorf("fmdata: encode record: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("fmdata: decode record: %w", err)
	}
	return nil
}

func (r *Record) plain() map[string]any {
	out := make(map[string]any, len(r.fields)+len(r.portals))
	for _, name := range r.names {
		f := r.fields[name]
		v := f.value
		if s, ok := v.(string); ok && s == "" {
			if k := f.Kind(); k == KindNumber || k.Temporal() {
				v = nil
			}
		}
		if t, ok := v.(time.Time); ok && t.IsZero() {
			v = nil
		}
		out[name] = v
	}
	for _, name := range r.portalNames {
		rows := make([]map[string]any, 0, len(r.portals[name].records))
		for _, row := range r.portals[name].records {
			rows = append(rows, row.plain())
		}
		out[name] = rows
	}
	return out
}

// EventKind identifies a record lifecycle notification.
type EventKind int

const (
	EventSaved EventKind = iota + 1
	EventDeleted
	EventDuplicated
)

func (k EventKind) String() string {
	switch k {
	case EventSaved:
		return "saved"
	case EventDeleted:
		return "deleted"
	case EventDuplicated:
		return "duplicated"
	}
	return "unknown"
}

// Event is delivered to record subscribers. Duplicate is set for
// EventDuplicated.
type Event struct {
	Kind      EventKind
	Record    *Record
	Duplicate *Record
}

type listener struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for lifecycle events of r. The returned function
// removes the subscription.
func (r *Record) Subscribe(fn func(Event)) func() {
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

func (r *Record) emit(ev Event) {
	for _, l := range append([]listener(nil), r.listeners...) {
		l.fn(ev)
	}
}
