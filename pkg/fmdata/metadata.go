package fmdata

import (
	"context"
	"net/http"
	"net/url"
	"sort"
)

// FieldMeta describes one field as reported by the layout metadata endpoint.
type FieldMeta struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	DisplayType   string `json:"displayType"`
	Result        string `json:"result"`
	Global        bool   `json:"global"`
	AutoEnter     bool   `json:"autoEnter"`
	FourDigitYear bool   `json:"fourDigitYear"`
	MaxRepeat     int    `json:"maxRepeat"`
	MaxCharacters int    `json:"maxCharacters"`
	NotEmpty      bool   `json:"notEmpty"`
	Numeric       bool   `json:"numeric"`
	TimeOfDay     bool   `json:"timeOfDay"`
	RepetitionEnd int    `json:"repetitionEnd"`
	ValueList     string `json:"valueList,omitempty"`
}

// Kind returns the value kind declared by the field's result type.
func (f FieldMeta) Kind() Kind {
	return KindFromResult(f.Result)
}

// ValueListItem is one entry of a value list.
type ValueListItem struct {
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue"`
}

// ValueList is a named list of allowed values attached to the layout.
type ValueList struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Values []ValueListItem `json:"values"`
}

// LayoutMetadata is the cached schema of a layout.
type LayoutMetadata struct {
	Fields     []FieldMeta
	Portals    map[string][]FieldMeta
	ValueLists []ValueList

	fieldKinds  map[string]Kind
	portalKinds map[string]map[string]Kind
}

// PortalNames returns the portal names in sorted order.
func (m *LayoutMetadata) PortalNames() []string {
	names := make([]string, 0, len(m.Portals))
	for name := range m.Portals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldNames returns the layout field names in declaration order.
func (m *LayoutMetadata) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		names = append(names, f.Name)
	}
	return names
}

// PortalFieldNames returns the field names of portal in declaration order.
func (m *LayoutMetadata) PortalFieldNames(portal string) []string {
	fields := m.Portals[portal]
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

// FieldKind resolves name on the layout; unknown fields are text.
func (m *LayoutMetadata) FieldKind(name string) Kind {
	if m == nil {
		return KindText
	}
	if k, ok := m.fieldKinds[name]; ok {
		return k
	}
	return KindText
}

// PortalFieldKind resolves name inside portal; unknown fields are text.
func (m *LayoutMetadata) PortalFieldKind(portal, name string) Kind {
	if m == nil {
		return KindText
	}
	if k, ok := m.portalKinds[portal][name]; ok {
		return k
	}
	return KindText
}

func (m *LayoutMetadata) index() {
	m.fieldKinds = make(map[string]Kind, len(m.Fields))
	for _, f := range m.Fields {
		m.fieldKinds[f.Name] = f.Kind()
	}
	m.portalKinds = make(map[string]map[string]Kind, len(m.Portals))
	for portal, fields := range m.Portals {
		kinds := make(map[string]Kind, len(fields))
		for _, f := range fields {
			kinds[f.Name] = f.Kind()
		}
		m.portalKinds[portal] = kinds
	}
}

type metadataResponse struct {
	FieldMetaData  []FieldMeta            `json:"fieldMetaData"`
	PortalMetaData map[string][]FieldMeta `json:"portalMetaData"`
	ValueLists     []ValueList            `json:"valueLists"`
}

// Metadata returns the layout schema, fetching it once per client and
// serving later calls from the schema cache.
func (l *Layout) Metadata(ctx context.Context) (*LayoutMetadata, error) {
	if meta := l.cachedMetadata(); meta != nil {
		return meta, nil
	}
	resp, err := l.client.session.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   "layouts/" + url.PathEscape(l.name),
	})
	if err != nil {
		return nil, err
	}
	var payload metadataResponse
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	meta := &LayoutMetadata{
		Fields:     payload.FieldMetaData,
		Portals:    payload.PortalMetaData,
		ValueLists: payload.ValueLists,
	}
	if meta.Portals == nil {
		meta.Portals = map[string][]FieldMeta{}
	}
	meta.index()
	l.client.schemas.SetDefault(l.name, meta)
	return meta, nil
}

// cachedMetadata returns the schema if already cached, without network I/O.
func (l *Layout) cachedMetadata() *LayoutMetadata {
	if l == nil || l.client == nil {
		return nil
	}
	v, ok := l.client.schemas.Get(l.name)
	if !ok {
		return nil
	}
	return v.(*LayoutMetadata)
}

// ForgetMetadata drops the cached schema so the next call refetches it.
func (l *Layout) ForgetMetadata() {
	l.client.schemas.Delete(l.name)
}
