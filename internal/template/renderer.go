// Package template renders rule message templates by substituting
// {field} tokens with display-formatted submission values.
package template

import (
	"strings"

	"github.com/formeye/internal/fieldmap"
)

// Render replaces every {identifier} token with the field's display
// value. Unknown tokens render as empty string; a '{' without a
// matching '}' is kept literally. Rendering never fails.
func Render(tmpl string, m *fieldmap.Map) string {
	var sb strings.Builder
	sb.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			sb.WriteString(tmpl[i:])
			break
		}
		open += i
		sb.WriteString(tmpl[i:open])

		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			sb.WriteString(tmpl[open:])
			break
		}
		end += open

		name := strings.TrimSpace(tmpl[open+1 : end])
		if name == "" {
			sb.WriteString(tmpl[open : end+1])
			i = end + 1
			continue
		}
		if v, ok := m.Lookup(name); ok {
			sb.WriteString(v.Display())
		}
		i = end + 1
	}
	return sb.String()
}
