package fmdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field is one named value cell of a Record. Values are held as string
// (text and container), float64 or "" (number) and time.Time or ""
// (date, time, timestamp).
type Field struct {
	record *Record
	name   string
	value  any
	edited bool
}

// Name returns the wire name of the field (Table::Field for portal rows).
func (f *Field) Name() string {
	return f.name
}

// Kind resolves the field kind from the layout's cached schema. Unknown
// fields and layouts without cached metadata resolve to KindText.
func (f *Field) Kind() Kind {
	if f.record == nil {
		return KindText
	}
	return f.record.fieldKind(f.name)
}

// Edited reports whether the field was changed through Set since it was last
// hydrated or saved.
func (f *Field) Edited() bool {
	return f.edited
}

// Value returns the raw value.
func (f *Field) Value() any {
	return f.value
}

// SetValue stores v without validation and leaves the edited flag alone.
func (f *Field) SetValue(v any) {
	f.value = v
}

// Set validates v against the field kind, stores it and marks the field
// edited.
func (f *Field) Set(v any) error {
	kind := f.Kind()
	normalized, err := coerce(kind, v)
	if err != nil {
		return fmt.Errorf("fmdata: set %q: %w", f.name, err)
	}
	f.value = normalized
	f.edited = true
	return nil
}

func coerce(kind Kind, v any) (any, error) {
	if v == nil {
		if kind == KindContainer {
			return nil, ErrInvalidFieldKind
		}
		return "", nil
	}
	switch kind {
	case KindContainer:
		return nil, ErrInvalidFieldKind
	case KindDate, KindTime, KindTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case *time.Time:
			if t == nil {
				return "", nil
			}
			return *t, nil
		case string:
			if t == "" {
				return "", nil
			}
		}
		return nil, fmt.Errorf("%w: %s field needs a time.Time, got %T", ErrTypeMismatch, kind, v)
	case KindNumber:
		if n, ok := toFloat(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: number field got %T", ErrTypeMismatch, v)
	default:
		switch t := v.(type) {
		case string:
			return t, nil
		case time.Time:
			return t, nil
		}
		if n, ok := toFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		}
		return nil, fmt.Errorf("%w: text field got %T", ErrTypeMismatch, v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Text returns the value as a string.
func (f *Field) Text() (string, error) {
	s, ok := f.value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q holds %T, not text", ErrTypeMismatch, f.name, f.value)
	}
	return s, nil
}

// Number returns the value as a float64.
func (f *Field) Number() (float64, error) {
	n, ok := f.value.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %q holds %T, not a number", ErrTypeMismatch, f.name, f.value)
	}
	return n, nil
}

// Time returns the value as a time.Time.
func (f *Field) Time() (time.Time, error) {
	t, ok := f.value.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q holds %T, not a time", ErrTypeMismatch, f.name, f.value)
	}
	return t, nil
}

// IsEmpty reports whether the field holds no value.
func (f *Field) IsEmpty() bool {
	switch v := f.value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	}
	return false
}

// wire renders the value for fieldData.
func (f *Field) wire(host HostConfig) any {
	switch v := f.value.(type) {
	case nil:
		return ""
	case time.Time:
		kind := f.Kind()
		if !kind.Temporal() {
			kind = KindTimestamp
		}
		return host.Format(kind, v)
	}
	return f.value
}
