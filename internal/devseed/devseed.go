// Package devseed loads YAML seed files describing a mock database: its
// accounts, layouts with their fields and portals, records and scripts.
package devseed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Seed describes one hosted database.
type Seed struct {
	Database string    `yaml:"database"`
	Accounts []Account `yaml:"accounts"`
	Layouts  []Layout  `yaml:"layouts"`
	Scripts  []string  `yaml:"scripts"`
}

// Account is a username / password pair accepted at login.
type Account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Field declares one field. Result is one of text, number, date, time,
// timeStamp or container; Type is normal, calculation or summary.
type Field struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Result string `yaml:"result"`
	Global bool   `yaml:"global"`
}

// Portal declares a portal and the fields of its rows (Table::Field).
type Portal struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Record is a seeded row. Portal rows are keyed by portal name.
type Record struct {
	Fields  map[string]any              `yaml:"fields"`
	Portals map[string][]map[string]any `yaml:"portals"`
}

// Layout declares a layout, its schema and its records.
type Layout struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	Fields  []Field  `yaml:"fields"`
	Portals []Portal `yaml:"portals"`
	Records []Record `yaml:"records"`
}

// Load reads and validates the seed file at path.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("devseed: %s: %w", path, err)
	}
	return seed, nil
}

// Parse decodes and validates a YAML seed document. Scalar values are
// normalized to their JSON forms (numbers become float64).
func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := seed.normalize(); err != nil {
		return nil, err
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks names are present and unique and that records only use
// declared fields.
func (s *Seed) Validate() error {
	if strings.TrimSpace(s.Database) == "" {
		return fmt.Errorf("seed is missing database")
	}
	layouts := make(map[string]bool, len(s.Layouts))
	for _, l := range s.Layouts {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("layout without name")
		}
		if layouts[l.Name] {
			return fmt.Errorf("duplicate layout %q", l.Name)
		}
		layouts[l.Name] = true

		fields, err := fieldSet(l.Fields)
		if err != nil {
			return fmt.Errorf("layout %q: %w", l.Name, err)
		}
		portals := make(map[string]map[string]bool, len(l.Portals))
		for _, p := range l.Portals {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("layout %q: portal without name", l.Name)
			}
			pf, err := fieldSet(p.Fields)
			if err != nil {
				return fmt.Errorf("layout %q portal %q: %w", l.Name, p.Name, err)
			}
			portals[p.Name] = pf
		}
		for i, rec := range l.Records {
			for name := range rec.Fields {
				if !fields[name] {
					return fmt.Errorf("layout %q record %d: unknown field %q", l.Name, i, name)
				}
			}
			for portal, rows := range rec.Portals {
				pf, ok := portals[portal]
				if !ok {
					return fmt.Errorf("layout %q record %d: unknown portal %q", l.Name, i, portal)
				}
				for _, row := range rows {
					for name := range row {
						if !pf[name] {
							return fmt.Errorf("layout %q record %d: portal %q has no field %q", l.Name, i, portal, name)
						}
					}
				}
			}
		}
	}
	return nil
}

func fieldSet(fields []Field) (map[string]bool, error) {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("field without name")
		}
		if set[f.Name] {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		set[f.Name] = true
	}
	return set, nil
}

// normalize round-trips record values through JSON so they hold the same
// types a JSON decoder would produce.
func (s *Seed) normalize() error {
	for i := range s.Layouts {
		for j := range s.Layouts[i].Records {
			rec := &s.Layouts[i].Records[j]
			if err := jsonRoundTrip(&rec.Fields); err != nil {
				return fmt.Errorf("layout %q record %d: %w", s.Layouts[i].Name, j, err)
			}
			if err := jsonRoundTrip(&rec.Portals); err != nil {
				return fmt.Errorf("layout %q record %d: %w", s.Layouts[i].Name, j, err)
			}
		}
	}
	return nil
}

func jsonRoundTrip[T any](v *T) error {
	data, err := json.Marshal(*v)
	if err != nil {
		return err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*v = out
	return nil
}
