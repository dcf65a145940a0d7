package fmdata

import (
	"context"
	"strings"
	"unicode"
)

// SortOrder is the direction of a sort rule.
type SortOrder string

const (
	Ascend  SortOrder = "ascend"
	Descend SortOrder = "descend"
)

// SortRule sorts a found set by one field. SortOrder may also name a value
// list.
type SortRule struct {
	FieldName string    `json:"fieldName"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
}

// DataInfo describes the found set returned by Range and Find.
type DataInfo struct {
	Database         string `json:"database"`
	Layout           string `json:"layout"`
	Table            string `json:"table"`
	TotalRecordCount int    `json:"totalRecordCount"`
	FoundCount       int    `json:"foundCount"`
	ReturnedCount    int    `json:"returnedCount"`
}

// FoundSet is the result of Range and Find.
type FoundSet struct {
	Records  []*Record
	DataInfo DataInfo
	Scripts  []ScriptResult
}

// Len returns the number of returned records.
func (fs *FoundSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Records)
}

// query holds the settings shared by Range and Find. Offsets are 0-based.
type query struct {
	layout *Layout

	limit   int
	offset  int
	hasOff  bool
	sort    []SortRule
	portals []string

	portalLimits  map[string]int
	portalOffsets map[string]int
	portalOrder   []string

	scripts Scripts
}

// SetLimit caps the number of returned records. n must be at least 1.
func (q *query) SetLimit(n int) error {
	if n < 1 {
		return invalidArgument("limit must be at least 1, got %d", n)
	}
	q.limit = n
	return nil
}

// SetOffset skips the first n records. n must not be negative.
func (q *query) SetOffset(n int) error {
	if n < 0 {
		return invalidArgument("offset must not be negative, got %d", n)
	}
	q.offset = n
	q.hasOff = true
	return nil
}

// AddSort appends a sort rule.
func (q *query) AddSort(field string, order SortOrder) {
	q.sort = append(q.sort, SortRule{FieldName: field, SortOrder: order})
}

// SetPortals restricts the portals returned with each record.
func (q *query) SetPortals(names ...string) {
	q.portals = append([]string(nil), names...)
}

// SetPortalLimit caps the rows returned for portal. n must be at least 1.
func (q *query) SetPortalLimit(portal string, n int) error {
	if n < 1 {
		return invalidArgument("portal %q limit must be at least 1, got %d", portal, n)
	}
	if q.portalLimits == nil {
		q.portalLimits = map[string]int{}
	}
	q.notePortal(portal)
	q.portalLimits[portal] = n
	return nil
}

// SetPortalOffset skips the first n rows of portal. n must not be negative.
func (q *query) SetPortalOffset(portal string, n int) error {
	if n < 0 {
		return invalidArgument("portal %q offset must not be negative, got %d", portal, n)
	}
	if q.portalOffsets == nil {
		q.portalOffsets = map[string]int{}
	}
	q.notePortal(portal)
	q.portalOffsets[portal] = n
	return nil
}

func (q *query) notePortal(name string) {
	for _, p := range q.portalOrder {
		if p == name {
			return
		}
	}
	q.portalOrder = append(q.portalOrder, name)
}

// SetScripts attaches script directives to the request.
func (q *query) SetScripts(opts ...ScriptOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(&q.scripts)
		}
	}
}

// portalParam strips a portal name to the characters allowed in a query key.
func portalParam(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, name)
}

// result hydrates rows into a FoundSet.
func (q *query) result(rows []wireRow, info DataInfo, scripts []ScriptResult) *FoundSet {
	fs := &FoundSet{DataInfo: info, Scripts: scripts, Records: make([]*Record, 0, len(rows))}
	for _, row := range rows {
		r := newRecord(q.layout, nil)
		r.hydrate(row)
		fs.Records = append(fs.Records, r)
	}
	return fs
}

type foundPayload struct {
	Data     []wireRow `json:"data"`
	DataInfo DataInfo  `json:"dataInfo"`
}

func (q *query) prepare(ctx context.Context) error {
	_, err := q.layout.Metadata(ctx)
	return err
}
