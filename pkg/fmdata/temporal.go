package fmdata

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the resolved value kind of a field.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindDate
	KindTime
	KindTimestamp
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindTimestamp:
		return "timeStamp"
	case KindContainer:
		return "container"
	default:
		return "text"
	}
}

// Temporal reports whether values of the kind are time.Time.
func (k Kind) Temporal() bool {
	return k == KindDate || k == KindTime || k == KindTimestamp
}

// KindFromResult maps a metadata "result" string to a Kind. Unknown results
// fall back to text.
func KindFromResult(result string) Kind {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "number":
		return KindNumber
	case "date":
		return KindDate
	case "time":
		return KindTime
	case "timestamp":
		return KindTimestamp
	case "container":
		return KindContainer
	default:
		return KindText
	}
}

// Default host formats, used until the server's product info is loaded.
const (
	DefaultDateFormat      = "MM/dd/yyyy"
	DefaultTimeFormat      = "HH:mm:ss"
	DefaultTimestampFormat = "MM/dd/yyyy HH:mm:ss"
)

// HostConfig carries the temporal formats declared by the host and the
// location its wall-clock values are expressed in. It is passed explicitly to
// every hydrate and serialize step.
type HostConfig struct {
	DateFormat      string
	TimeFormat      string
	TimestampFormat string
	Location        *time.Location
}

// DefaultHostConfig returns the stock US formats in UTC.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		DateFormat:      DefaultDateFormat,
		TimeFormat:      DefaultTimeFormat,
		TimestampFormat: DefaultTimestampFormat,
		Location:        time.UTC,
	}
}

func (h HostConfig) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h HostConfig) declared(k Kind) string {
	switch k {
	case KindDate:
		return orDefault(h.DateFormat, DefaultDateFormat)
	case KindTime:
		return orDefault(h.TimeFormat, DefaultTimeFormat)
	case KindTimestamp:
		return orDefault(h.TimestampFormat, DefaultTimestampFormat)
	}
	return ""
}

// Format renders t for the wire using the declared format of kind k.
func (h HostConfig) Format(k Kind, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(h.location()).Format(GoLayout(h.declared(k)))
}

var fallbackLayouts = []string{
	"01/02/2006 15:04:05",
	"01/02/2006",
	"15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse reads a wire value of kind k. The declared format is tried first,
// then a fixed list of common layouts.
func (h HostConfig) Parse(k Kind, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := h.location()
	if t, err := time.ParseInLocation(GoLayout(h.declared(k)), s, loc); err == nil {
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fmdata: cannot parse %s value %q", k, s)
}

// GoLayout converts a FileMaker style pattern (MM/dd/yyyy HH:mm:ss) into a Go
// reference layout.
func GoLayout(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		ch := runes[i]
		j := i
		for j < len(runes) && runes[j] == ch {
			j++
		}
		n := j - i
		switch ch {
		case 'y':
			if n == 2 {
				b.WriteString("06")
			} else {
				b.WriteString("2006")
			}
		case 'M':
			switch {
			case n == 1:
				b.WriteString("1")
			case n == 2:
				b.WriteString("01")
			case n == 3:
				b.WriteString("Jan")
			default:
				b.WriteString("January")
			}
		case 'd':
			if n == 1 {
				b.WriteString("2")
			} else {
				b.WriteString("02")
			}
		case 'H':
			b.WriteString("15")
		case 'h':
			if n == 1 {
				b.WriteString("3")
			} else {
				b.WriteString("03")
			}
		case 'm':
			if n == 1 {
				b.WriteString("4")
			} else {
				b.WriteString("04")
			}
		case 's':
			if n == 1 {
				b.WriteString("5")
			} else {
				b.WriteString("05")
			}
		case 'a':
			b.WriteString("PM")
		case 'E':
			if n >= 4 {
				b.WriteString("Monday")
			} else {
				b.WriteString("Mon")
			}
		default:
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
