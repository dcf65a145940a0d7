// Package codegen renders Go struct definitions from layout metadata. The
// generated types decode with Record.Decode.
package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"text/template"
	"unicode"

	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
)

// Header is the first line of every generated file.
const Header = "// Code generated by fmdata-codegen. DO NOT EDIT."

// Layout pairs a layout name with its schema.
type Layout struct {
	Name     string
	Metadata *fmdata.LayoutMetadata
}

type field struct {
	GoName string
	GoType string
	Tag    string
}

type structDef struct {
	Name   string
	Source string
	Fields []field
}

var fileTemplate = template.Must(template.New("file").Parse(`{{.Header}}

package {{.Package}}
{{if .NeedsTime}}
import "time"
{{end}}
{{range .Structs}}
// {{.Name}} mirrors {{.Source}}.
type {{.Name}} struct {
{{- range .Fields}}
	{{.GoName}} {{.GoType}} ` + "`" + `json:"{{.Tag}}"` + "`" + `
{{- end}}
}
{{end}}`))

// Generate renders a gofmt'ed Go file declaring one struct per layout and
// one per portal. Layouts are emitted in name order.
func Generate(pkg string, layouts []Layout) ([]byte, error) {
	if !isIdent(pkg) {
		return nil, fmt.Errorf("codegen: invalid package name %q", pkg)
	}
	layouts = append([]Layout(nil), layouts...)
	sort.Slice(layouts, func(i, j int) bool { return layouts[i].Name < layouts[j].Name })

	var (
		structs   []structDef
		needsTime bool
		taken     = map[string]bool{}
	)
	for _, l := range layouts {
		if l.Metadata == nil {
			return nil, fmt.Errorf("codegen: layout %q has no metadata", l.Name)
		}
		name := unique(Identifier(l.Name), taken)
		root := structDef{Name: name, Source: fmt.Sprintf("layout %q", l.Name)}
		used := map[string]bool{}
		fields, usesTime := fieldsOf(l.Metadata.Fields, used)
		root.Fields = fields
		needsTime = needsTime || usesTime

		var rows []structDef
		for _, portal := range l.Metadata.PortalNames() {
			row := structDef{
				Name:   unique(name+Identifier(portal), taken),
				Source: fmt.Sprintf("portal %q on layout %q", portal, l.Name),
			}
			row.Fields, usesTime = fieldsOf(l.Metadata.Portals[portal], map[string]bool{})
			needsTime = needsTime || usesTime
			root.Fields = append(root.Fields, field{
				GoName: unique(Identifier(portal), used),
				GoType: "[]" + row.Name,
				Tag:    portal,
			})
			rows = append(rows, row)
		}
		structs = append(structs, root)
		structs = append(structs, rows...)
	}

	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, map[string]any{
		"Header":    Header,
		"Package":   pkg,
		"NeedsTime": needsTime,
		"Structs":   structs,
	})
	if err != nil {
		return nil, fmt.Errorf("codegen: render: %w", err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("codegen: gofmt: %w", err)
	}
	return out, nil
}

func fieldsOf(metas []fmdata.FieldMeta, taken map[string]bool) ([]field, bool) {
	var (
		out      []field
		usesTime bool
	)
	for _, m := range metas {
		typ := GoType(m.Kind())
		if typ == "*time.Time" {
			usesTime = true
		}
		out = append(out, field{
			GoName: unique(Identifier(m.Name), taken),
			GoType: typ,
			Tag:    m.Name,
		})
	}
	return out, usesTime
}

// GoType maps a field kind to the Go type used in generated structs.
func GoType(k fmdata.Kind) string {
	switch {
	case k == fmdata.KindNumber:
		return "*float64"
	case k.Temporal():
		return "*time.Time"
	default:
		return "string"
	}
}

// Identifier turns a FileMaker name into an exported Go identifier.
// "Phones::Number" becomes PhonesNumber and "2nd line" becomes F2ndLine.
func Identifier(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	id := b.String()
	if id == "" {
		return "Field"
	}
	if first := []rune(id)[0]; unicode.IsDigit(first) {
		id = "F" + id
	}
	return id
}

func unique(name string, taken map[string]bool) string {
	candidate := name
	for i := 2; taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	taken[candidate] = true
	return candidate
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
