package mock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Ratio1/fmdata_sdk_go/internal/devseed"
)

type fieldDef struct {
	Name   string
	Type   string
	Result string
	Global bool
}

type layout struct {
	name    string
	table   string
	fields  []fieldDef
	portals []portalDef
	records []*row
}

type portalDef struct {
	name   string
	fields []fieldDef
}

type row struct {
	id      int
	modID   int
	fields  map[string]any
	portals map[string][]*row
}

type container struct {
	data        []byte
	contentType string
	filename    string
}

func convertFields(in []devseed.Field) []fieldDef {
	out := make([]fieldDef, 0, len(in))
	for _, f := range in {
		def := fieldDef{Name: f.Name, Type: f.Type, Result: f.Result, Global: f.Global}
		if def.Type == "" {
			def.Type = "normal"
		}
		if def.Result == "" {
			def.Result = "text"
		}
		out = append(out, def)
	}
	return out
}

// AddLayout declares a layout with its schema and records. Records get
// sequential ids starting after the highest id in use.
func (s *Server) AddLayout(def devseed.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layouts[def.Name]; ok {
		return fmt.Errorf("mock: layout %q already exists", def.Name)
	}
	l := &layout{name: def.Name, table: def.Table, fields: convertFields(def.Fields)}
	if l.table == "" {
		l.table = def.Name
	}
	for _, p := range def.Portals {
		l.portals = append(l.portals, portalDef{name: p.Name, fields: convertFields(p.Fields)})
	}
	for _, rec := range def.Records {
		r := s.newRow(l, rec.Fields)
		for portal, rows := range rec.Portals {
			for _, values := range rows {
				r.portals[portal] = append(r.portals[portal], s.newChild(values))
			}
		}
		l.records = append(l.records, r)
	}
	s.layouts[def.Name] = l
	s.order = append(s.order, def.Name)
	return nil
}

// Seed applies a devseed document: accounts, layouts and script names.
// Seeded scripts succeed and echo their parameter.
func (s *Server) Seed(seed *devseed.Seed) error {
	if seed == nil {
		return nil
	}
	for _, a := range seed.Accounts {
		s.AddAccount(a.Username, a.Password)
	}
	for _, l := range seed.Layouts {
		if err := s.AddLayout(l); err != nil {
			return err
		}
	}
	for _, name := range seed.Scripts {
		s.RegisterScript(name, func(param string) (string, int) { return param, 0 })
	}
	return nil
}

// newRow builds a record with every layout field, caller holds s.mu.
func (s *Server) newRow(l *layout, values map[string]any) *row {
	s.nextID++
	r := &row{id: s.nextID, fields: map[string]any{}, portals: map[string][]*row{}}
	for _, f := range l.fields {
		r.fields[f.Name] = ""
	}
	for k, v := range values {
		r.fields[k] = v
	}
	for _, p := range l.portals {
		r.portals[p.name] = nil
	}
	return r
}

// newChild builds a portal row. Related rows live in their own table and are
// numbered independently of layout records.
func (s *Server) newChild(values map[string]any) *row {
	s.nextRowID++
	c := &row{id: s.nextRowID, fields: map[string]any{}}
	for k, v := range values {
		if k == "recordId" || k == "modId" {
			continue
		}
		c.fields[k] = v
	}
	return c
}

func (l *layout) field(name string) (fieldDef, bool) {
	for _, f := range l.fields {
		if f.Name == name {
			return f, true
		}
	}
	return fieldDef{}, false
}

func (l *layout) portal(name string) (portalDef, bool) {
	for _, p := range l.portals {
		if p.name == name {
			return p, true
		}
	}
	return portalDef{}, false
}

func (l *layout) find(id int) (int, *row) {
	for i, r := range l.records {
		if r.id == id {
			return i, r
		}
	}
	return -1, nil
}

func (r *row) clone(s *Server) *row {
	s.nextID++
	c := &row{id: s.nextID, fields: map[string]any{}, portals: map[string][]*row{}}
	for k, v := range r.fields {
		c.fields[k] = v
	}
	for name, rows := range r.portals {
		copied := make([]*row, 0, len(rows))
		for _, child := range rows {
			cc := &row{id: child.id, modID: child.modID, fields: map[string]any{}}
			for k, v := range child.fields {
				cc.fields[k] = v
			}
			copied = append(copied, cc)
		}
		c.portals[name] = copied
	}
	return c
}

// window bounds a slice with a 1-based offset and a limit.
type window struct {
	offset int
	limit  int
}

func (w window) apply(n int) (int, int) {
	start := w.offset - 1
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if w.limit > 0 && start+w.limit < end {
		end = start + w.limit
	}
	return start, end
}

// render produces the wire row. baseURL prefixes container object ids.
func (l *layout) render(r *row, baseURL string, portals []string, windows map[string]window) map[string]any {
	fieldData := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		if f, ok := l.field(k); ok && strings.EqualFold(f.Result, "container") {
			v = containerURL(baseURL, v)
		}
		fieldData[k] = v
	}
	portalData := map[string]any{}
	var info []map[string]any
	for _, p := range l.portals {
		if len(portals) > 0 && !contains(portals, p.name) {
			continue
		}
		rows := r.portals[p.name]
		w, ok := windows[p.name]
		if !ok {
			w = window{offset: 1, limit: 50}
		}
		start, end := w.apply(len(rows))
		out := make([]map[string]any, 0, end-start)
		for _, child := range rows[start:end] {
			obj := map[string]any{
				"recordId": strconv.Itoa(child.id),
				"modId":    strconv.Itoa(child.modID),
			}
			for k, v := range child.fields {
				obj[k] = v
			}
			out = append(out, obj)
		}
		portalData[p.name] = out
		info = append(info, map[string]any{
			"portalObjectName": p.name,
			"table":            p.name,
			"foundCount":       len(rows),
			"returnedCount":    len(out),
		})
	}
	return map[string]any{
		"fieldData":      fieldData,
		"portalData":     portalData,
		"recordId":       strconv.Itoa(r.id),
		"modId":          strconv.Itoa(r.modID),
		"portalDataInfo": info,
	}
}

func containerURL(baseURL string, v any) any {
	id, ok := v.(string)
	if !ok || id == "" || strings.Contains(id, "://") {
		return v
	}
	return baseURL + "/Streaming/" + id
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type sortRule struct {
	FieldName string `json:"fieldName"`
	SortOrder string `json:"sortOrder"`
}

func sortRows(rows []*row, rules []sortRule) {
	if len(rules) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, rule := range rules {
			c := compare(rows[i].fields[rule.FieldName], rows[j].fields[rule.FieldName])
			if c == 0 {
				continue
			}
			if strings.EqualFold(rule.SortOrder, "descend") {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// matches evaluates one find request against r. Supported operators:
// "==v" exact, "=" empty, "*" not empty, ">v", ">=v", "<v", "<=v", "a...b"
// and a plain value matching case-insensitively as a substring.
func matches(r *row, criteria map[string]any) bool {
	for name, raw := range criteria {
		if name == "omit" {
			continue
		}
		expr := strings.TrimSpace(fmt.Sprint(raw))
		value := r.fields[name]
		text := strings.ToLower(fmt.Sprint(value))
		if value == nil {
			text = ""
		}
		if !matchExpr(expr, value, text) {
			return false
		}
	}
	return true
}

func matchExpr(expr string, value any, text string) bool {
	switch {
	case expr == "":
		return true
	case expr == "=":
		return text == ""
	case expr == "*":
		return text != ""
	case strings.HasPrefix(expr, "=="):
		return text == strings.ToLower(strings.TrimPrefix(expr, "=="))
	case strings.HasPrefix(expr, ">="):
		return compare(value, strings.TrimPrefix(expr, ">=")) >= 0
	case strings.HasPrefix(expr, "<="):
		return compare(value, strings.TrimPrefix(expr, "<=")) <= 0
	case strings.HasPrefix(expr, ">"):
		return compare(value, strings.TrimPrefix(expr, ">")) > 0
	case strings.HasPrefix(expr, "<"):
		return compare(value, strings.TrimPrefix(expr, "<")) < 0
	case strings.Contains(expr, "..."):
		lo, hi, _ := strings.Cut(expr, "...")
		return compare(value, lo) >= 0 && compare(value, hi) <= 0
	}
	return strings.Contains(text, strings.ToLower(expr))
}

func isOmit(criteria map[string]any) bool {
	v, ok := criteria["omit"]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}
