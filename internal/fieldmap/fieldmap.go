package fieldmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/formeye/internal/models"
)

// Value is one resolved field value. Raw keeps whatever the submission
// carried; Type drives display formatting.
type Value struct {
	Raw  interface{}
	Type models.FieldType
}

// Map is a per-evaluation lookup of field id -> value with a name-alias
// index, built once from a submission and queried by formulas and
// templates. It is immutable after Build.
type Map struct {
	byID   map[string]Value
	byName map[string]string // display name -> field id
}

// Build flattens a submission (and its optional sub-record) into a Map.
// Sub-record fields are added last, so on an id or name collision the
// nested record wins.
func Build(sub *models.Submission) *Map {
	m := &Map{
		byID:   make(map[string]Value),
		byName: make(map[string]string),
	}
	if sub == nil {
		return m
	}
	m.add(sub.Fields)
	m.add(sub.SubFields)
	return m
}

func (m *Map) add(fields models.FieldList) {
	for _, f := range fields {
		if f.ID == "" && f.Name == "" {
			continue
		}
		id := f.ID
		if id == "" {
			id = f.Name
		}
		m.byID[id] = Value{Raw: f.Value, Type: f.Type}
		if f.Name != "" {
			m.byName[f.Name] = id
		}
	}
}

// Lookup resolves a field reference by id first, then by display name.
func (m *Map) Lookup(ref string) (Value, bool) {
	if v, ok := m.byID[ref]; ok {
		return v, true
	}
	if id, ok := m.byName[ref]; ok {
		return m.byID[id], true
	}
	return Value{}, false
}

// IsBlank reports whether the value is absent or empty.
func (v Value) IsBlank() bool {
	switch raw := v.Raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(raw) == ""
	case []interface{}:
		return len(raw) == 0
	case []string:
		return len(raw) == 0
	default:
		return false
	}
}

// Number returns the value as a float64 when it parses as one.
func (v Value) Number() (float64, bool) {
	switch raw := v.Raw.(type) {
	case float64:
		return raw, true
	case float32:
		return float64(raw), true
	case int:
		return float64(raw), true
	case int64:
		return float64(raw), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// String returns the raw value as a comparison string (no display
// formatting, case preserved).
func (v Value) String() string {
	switch raw := v.Raw.(type) {
	case nil:
		return ""
	case string:
		return raw
	case bool:
		if raw {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(raw)
	case []interface{}:
		parts := make([]string, 0, len(raw))
		for _, item := range raw {
			parts = append(parts, Value{Raw: item}.String())
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(raw, ", ")
	default:
		return fmt.Sprintf("%v", raw)
	}
}

// Display formats the value the way the record's display layer would
// show it: numbers without trailing zeros, dates human-readable,
// multi-value fields joined with commas.
func (v Value) Display() string {
	if v.IsBlank() {
		return ""
	}
	switch v.Type {
	case models.FieldTypeNumber:
		if n, ok := v.Number(); ok {
			return formatNumber(n)
		}
	case models.FieldTypeDate:
		if s, ok := v.Raw.(string); ok {
			if t, ok := parseDate(s); ok {
				if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
					return t.Format("2006-01-02")
				}
				return t.Format("2006-01-02 15:04")
			}
		}
	case models.FieldTypeBool:
		if b, ok := v.Raw.(bool); ok {
			if b {
				return "Yes"
			}
			return "No"
		}
	}
	return v.String()
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
