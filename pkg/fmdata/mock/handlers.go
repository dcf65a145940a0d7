package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

func decodeBody(c echo.Context) (map[string]any, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func baseURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}

func param(c echo.Context, name string) string {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return c.Param(name)
	}
	return v
}

func recordID(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	return id, err == nil && id > 0
}

// layoutLocked resolves the layout named in the path, caller holds s.mu.
func (s *Server) layoutLocked(c echo.Context) *layout {
	return s.layouts[param(c, "layout")]
}

type scriptCall struct {
	phase string
	name  string
	param string
}

// scriptCalls reads script directives from a body map or query values.
func scriptCalls(get func(string) string) []scriptCall {
	var calls []scriptCall
	for _, phase := range []string{fmapi.PhasePreRequest, fmapi.PhasePreSort, fmapi.PhaseScript} {
		key := "script"
		if phase != "" {
			key += "." + phase
		}
		if name := get(key); name != "" {
			calls = append(calls, scriptCall{phase: phase, name: name, param: get(key + ".param")})
		}
	}
	return calls
}

func bodyGetter(body map[string]any) func(string) string {
	return func(k string) string {
		v, ok := body[k]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
}

// runScripts executes calls and merges their outcome keys into response.
func (s *Server) runScripts(calls []scriptCall, response map[string]any) {
	for _, call := range calls {
		s.mu.Lock()
		fn, ok := s.scripts[call.name]
		s.mu.Unlock()
		result, code := "", 104
		if ok {
			result, code = fn(call.param)
		}
		suffix := ""
		if call.phase != "" {
			suffix = "." + call.phase
		}
		response["scriptError"+suffix] = strconv.Itoa(code)
		if result != "" {
			response["scriptResult"+suffix] = result
		}
	}
}

func (s *Server) handleLayouts(c echo.Context) error {
	s.mu.Lock()
	out := make([]echo.Map, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, echo.Map{"name": name, "table": s.layouts[name].table})
	}
	s.mu.Unlock()
	return reply(c, echo.Map{"layouts": out})
}

func (s *Server) handleScripts(c echo.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.scripts))
	for name := range s.scripts {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	out := make([]echo.Map, 0, len(names))
	for _, name := range names {
		out = append(out, echo.Map{"name": name, "isFolder": false})
	}
	return reply(c, echo.Map{"scripts": out})
}

func (s *Server) handleGlobals(c echo.Context) error {
	body, err := decodeBody(c)
	if err != nil {
		return fail(c, 960)
	}
	fields, ok := body["globalFields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return fail(c, 1708)
	}
	s.mu.Lock()
	for k, v := range fields {
		s.globals[k] = v
	}
	s.mu.Unlock()
	return reply(c, nil)
}

func fieldMeta(f fieldDef) echo.Map {
	return echo.Map{
		"name":          f.Name,
		"type":          f.Type,
		"displayType":   "editText",
		"result":        f.Result,
		"global":        f.Global,
		"autoEnter":     false,
		"fourDigitYear": false,
		"maxRepeat":     1,
		"maxCharacters": 0,
		"notEmpty":      false,
		"numeric":       false,
		"timeOfDay":     false,
		"repetitionEnd": 1,
	}
}

func (s *Server) handleMetadata(c echo.Context) error {
	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	fields := make([]echo.Map, 0, len(l.fields))
	for _, f := range l.fields {
		fields = append(fields, fieldMeta(f))
	}
	portals := echo.Map{}
	for _, p := range l.portals {
		pf := make([]echo.Map, 0, len(p.fields))
		for _, f := range p.fields {
			pf = append(pf, fieldMeta(f))
		}
		portals[p.name] = pf
	}
	s.mu.Unlock()
	return reply(c, echo.Map{"fieldMetaData": fields, "portalMetaData": portals, "valueLists": []any{}})
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, name)
}

func atoi(v any, def int) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

func (s *Server) dataInfo(l *layout, found, returned int) echo.Map {
	return echo.Map{
		"database":         s.database,
		"layout":           l.name,
		"table":            l.table,
		"totalRecordCount": len(l.records),
		"foundCount":       found,
		"returnedCount":    returned,
	}
}

func (s *Server) handleRange(c echo.Context) error {
	q := c.QueryParams()
	var rules []sortRule
	if raw := q.Get("_sort"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rules); err != nil {
			return fail(c, 960)
		}
	}
	var portals []string
	if raw := q.Get("portal"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &portals); err != nil {
			return fail(c, 960)
		}
	}
	w := window{offset: atoi(q.Get("_offset"), 1), limit: atoi(q.Get("_limit"), 100)}
	if w.offset < 1 || w.limit < 1 {
		return fail(c, 960)
	}

	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	windows := map[string]window{}
	for _, p := range l.portals {
		key := sanitize(p.name)
		pw := window{offset: atoi(q.Get("_offset."+key), 1), limit: atoi(q.Get("_limit."+key), 50)}
		windows[p.name] = pw
	}
	if len(l.records) == 0 {
		s.mu.Unlock()
		return fail(c, fmapi.CodeNoRecordsMatch)
	}
	rows := append([]*row(nil), l.records...)
	sortRows(rows, rules)
	start, end := w.apply(len(rows))
	data := make([]map[string]any, 0, end-start)
	for _, r := range rows[start:end] {
		data = append(data, l.render(r, baseURL(c), portals, windows))
	}
	response := map[string]any{"data": data, "dataInfo": s.dataInfo(l, len(rows), len(data))}
	s.mu.Unlock()

	s.runScripts(scriptCalls(q.Get), response)
	return reply(c, response)
}

func (s *Server) handleFind(c echo.Context) error {
	body, err := decodeBody(c)
	if err != nil {
		return fail(c, 960)
	}
	rawQuery, _ := body["query"].([]any)
	if len(rawQuery) == 0 {
		return fail(c, 960)
	}
	var include, omit []map[string]any
	for _, item := range rawQuery {
		req, ok := item.(map[string]any)
		if !ok {
			return fail(c, 960)
		}
		if isOmit(req) {
			omit = append(omit, req)
		} else {
			include = append(include, req)
		}
	}
	var rules []sortRule
	if raw, ok := body["sort"]; ok {
		data, _ := json.Marshal(raw)
		if err := json.Unmarshal(data, &rules); err != nil {
			return fail(c, 960)
		}
	}
	var portals []string
	if raw, ok := body["portal"].([]any); ok {
		for _, p := range raw {
			portals = append(portals, fmt.Sprint(p))
		}
	}
	w := window{offset: atoi(body["offset"], 1), limit: atoi(body["limit"], 100)}

	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	for _, req := range append(append([]map[string]any(nil), include...), omit...) {
		for name := range req {
			if _, ok := l.field(name); !ok && name != "omit" {
				s.mu.Unlock()
				return fail(c, fmapi.CodeFieldMissing)
			}
		}
	}
	var rows []*row
	for _, r := range l.records {
		in := len(include) == 0
		for _, req := range include {
			if matches(r, req) {
				in = true
				break
			}
		}
		for _, req := range omit {
			if matches(r, req) {
				in = false
				break
			}
		}
		if in {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		s.mu.Unlock()
		return fail(c, fmapi.CodeNoRecordsMatch)
	}
	windows := map[string]window{}
	for _, p := range l.portals {
		windows[p.name] = window{offset: atoi(body["offset."+p.name], 1), limit: atoi(body["limit."+p.name], 50)}
	}
	sortRows(rows, rules)
	start, end := w.apply(len(rows))
	data := make([]map[string]any, 0, end-start)
	for _, r := range rows[start:end] {
		data = append(data, l.render(r, baseURL(c), portals, windows))
	}
	response := map[string]any{"data": data, "dataInfo": s.dataInfo(l, len(rows), len(data))}
	s.mu.Unlock()

	s.runScripts(scriptCalls(bodyGetter(body)), response)
	return reply(c, response)
}

func (s *Server) handleGet(c echo.Context) error {
	id, ok := recordID(c)
	if !ok {
		return fail(c, fmapi.CodeRecordMissing)
	}
	var portals []string
	if raw := c.QueryParam("portal"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &portals); err != nil {
			return fail(c, 960)
		}
	}
	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	_, r := l.find(id)
	if r == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeRecordMissing)
	}
	data := []map[string]any{l.render(r, baseURL(c), portals, nil)}
	response := map[string]any{"data": data, "dataInfo": s.dataInfo(l, 1, 1)}
	s.mu.Unlock()

	s.runScripts(scriptCalls(c.QueryParam), response)
	return reply(c, response)
}

// applyFields validates and stores fieldData, caller holds s.mu.
func applyFields(l *layout, r *row, fieldData map[string]any) int {
	for name, v := range fieldData {
		f, ok := l.field(name)
		if !ok {
			return fmapi.CodeFieldMissing
		}
		if f.Type == "calculation" || f.Type == "summary" {
			return 201
		}
		if strings.EqualFold(f.Result, "container") {
			return 201
		}
		r.fields[name] = v
	}
	return 0
}

// applyPortals updates existing rows and appends new ones, caller holds s.mu.
func (s *Server) applyPortals(l *layout, r *row, portalData map[string]any) int {
	for name, raw := range portalData {
		if _, ok := l.portal(name); !ok {
			return fmapi.CodeFieldMissing
		}
		rows, _ := raw.([]any)
		for _, item := range rows {
			obj, ok := item.(map[string]any)
			if !ok {
				return 960
			}
			id := atoi(obj["recordId"], 0)
			if id == 0 {
				r.portals[name] = append(r.portals[name], s.newChild(obj))
				continue
			}
			var child *row
			for _, cr := range r.portals[name] {
				if cr.id == id {
					child = cr
					break
				}
			}
			if child == nil {
				return fmapi.CodeRecordMissing
			}
			if mod, ok := obj["modId"]; ok && atoi(mod, child.modID) != child.modID {
				return fmapi.CodeModIDMismatch
			}
			for k, v := range obj {
				if k != "recordId" && k != "modId" {
					child.fields[k] = v
				}
			}
			child.modID++
		}
	}
	return 0
}

func (s *Server) handleCreate(c echo.Context) error {
	body, err := decodeBody(c)
	if err != nil {
		return fail(c, 960)
	}
	fieldData, _ := body["fieldData"].(map[string]any)
	portalData, _ := body["portalData"].(map[string]any)

	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	r := s.newRow(l, nil)
	if code := applyFields(l, r, fieldData); code != 0 {
		s.mu.Unlock()
		return fail(c, code)
	}
	if code := s.applyPortals(l, r, portalData); code != 0 {
		s.mu.Unlock()
		return fail(c, code)
	}
	l.records = append(l.records, r)
	response := map[string]any{"recordId": strconv.Itoa(r.id), "modId": strconv.Itoa(r.modID)}
	s.mu.Unlock()

	s.runScripts(scriptCalls(bodyGetter(body)), response)
	return reply(c, response)
}

func (s *Server) handleEdit(c echo.Context) error {
	id, ok := recordID(c)
	if !ok {
		return fail(c, fmapi.CodeRecordMissing)
	}
	body, err := decodeBody(c)
	if err != nil {
		return fail(c, 960)
	}
	fieldData, _ := body["fieldData"].(map[string]any)
	portalData, _ := body["portalData"].(map[string]any)

	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	_, r := l.find(id)
	if r == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeRecordMissing)
	}
	if mod, ok := body["modId"]; ok && atoi(mod, r.modID) != r.modID {
		s.mu.Unlock()
		return fail(c, fmapi.CodeModIDMismatch)
	}
	if rel, ok := fieldData["deleteRelated"]; ok {
		if code := deleteRelated(r, rel); code != 0 {
			s.mu.Unlock()
			return fail(c, code)
		}
		delete(fieldData, "deleteRelated")
	}
	if code := applyFields(l, r, fieldData); code != 0 {
		s.mu.Unlock()
		return fail(c, code)
	}
	if code := s.applyPortals(l, r, portalData); code != 0 {
		s.mu.Unlock()
		return fail(c, code)
	}
	r.modID++
	response := map[string]any{"modId": strconv.Itoa(r.modID)}
	s.mu.Unlock()

	s.runScripts(scriptCalls(bodyGetter(body)), response)
	return reply(c, response)
}

func deleteRelated(r *row, ref any) int {
	var targets []string
	switch t := ref.(type) {
	case string:
		targets = []string{t}
	case []any:
		for _, v := range t {
			targets = append(targets, fmt.Sprint(v))
		}
	}
	for _, target := range targets {
		dot := strings.LastIndex(target, ".")
		if dot < 0 {
			return 1708
		}
		portal, id := target[:dot], atoi(target[dot+1:], 0)
		rows, ok := r.portals[portal]
		if !ok {
			return fmapi.CodeFieldMissing
		}
		found := false
		for i, child := range rows {
			if child.id == id {
				r.portals[portal] = append(rows[:i], rows[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return fmapi.CodeRecordMissing
		}
	}
	return 0
}

func (s *Server) handleDuplicate(c echo.Context) error {
	id, ok := recordID(c)
	if !ok {
		return fail(c, fmapi.CodeRecordMissing)
	}
	body, err := decodeBody(c)
	if err != nil {
		return fail(c, 960)
	}
	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	_, r := l.find(id)
	if r == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeRecordMissing)
	}
	dup := r.clone(s)
	l.records = append(l.records, dup)
	response := map[string]any{"recordId": strconv.Itoa(dup.id), "modId": strconv.Itoa(dup.modID)}
	s.mu.Unlock()

	s.runScripts(scriptCalls(bodyGetter(body)), response)
	return reply(c, response)
}

func (s *Server) handleDelete(c echo.Context) error {
	id, ok := recordID(c)
	if !ok {
		return fail(c, fmapi.CodeRecordMissing)
	}
	s.mu.Lock()
	l := s.layoutLocked(c)
	if l == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeLayoutMissing)
	}
	i, r := l.find(id)
	if r == nil {
		s.mu.Unlock()
		return fail(c, fmapi.CodeRecordMissing)
	}
	l.records = append(l.records[:i], l.records[i+1:]...)
	s.mu.Unlock()

	response := map[string]any{}
	s.runScripts(scriptCalls(c.QueryParam), response)
	return reply(c, response)
}

func (s *Server) handleUpload(c echo.Context) error {
	id, ok := recordID(c)
	if !ok {
		return fail(c, fmapi.CodeRecordMissing)
	}
	file, err := c.FormFile("upload")
	if err != nil {
		return fail(c, 1708)
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, 1708)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return fail(c, 1708)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.layoutLocked(c)
	if l == nil {
		return fail(c, fmapi.CodeLayoutMissing)
	}
	_, r := l.find(id)
	if r == nil {
		return fail(c, fmapi.CodeRecordMissing)
	}
	name := param(c, "field")
	f, ok := l.field(name)
	if !ok {
		return fail(c, fmapi.CodeFieldMissing)
	}
	if !strings.EqualFold(f.Result, "container") {
		return fail(c, 1708)
	}
	object := uuid.NewString()
	s.containers[object] = container{
		data:        data,
		contentType: file.Header.Get("Content-Type"),
		filename:    file.Filename,
	}
	r.fields[name] = object
	r.modID++
	return reply(c, echo.Map{"modId": strconv.Itoa(r.modID)})
}

// handleStream serves container content. The first request without the
// streaming cookie is redirected back with the cookie set.
func (s *Server) handleStream(c echo.Context) error {
	object := c.Param("object")
	s.mu.Lock()
	obj, ok := s.containers[object]
	s.mu.Unlock()
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}

	cookie, err := c.Cookie(StreamingCookie)
	s.mu.Lock()
	valid := err == nil && s.cookies[cookie.Value]
	if !valid {
		value := uuid.NewString()
		s.cookies[value] = true
		s.mu.Unlock()
		c.SetCookie(&http.Cookie{Name: StreamingCookie, Value: value, Path: "/", HttpOnly: true})
		return c.Redirect(http.StatusFound, c.Request().URL.RequestURI())
	}
	s.mu.Unlock()

	contentType := obj.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if obj.filename != "" {
		c.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", obj.filename))
	}
	return c.Blob(http.StatusOK, contentType, obj.data)
}

func (s *Server) handleRunScript(c echo.Context) error {
	s.mu.Lock()
	l := s.layoutLocked(c)
	s.mu.Unlock()
	if l == nil {
		return fail(c, fmapi.CodeLayoutMissing)
	}
	response := map[string]any{}
	s.runScripts([]scriptCall{{name: param(c, "script"), param: c.QueryParam("script.param")}}, response)
	return reply(c, response)
}
