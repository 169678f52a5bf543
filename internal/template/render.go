// Package template materializes notification display text from the
// server-sent title/body templates and their context map.
package template

import "strings"

// Render substitutes every {key} placeholder whose key exists in ctx with
// its value. Placeholders with no matching key are left verbatim, so the
// function is total and idempotent on fully-rendered input.
func Render(tmpl string, ctx map[string]string) string {
	if !strings.ContainsRune(tmpl, '{') {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end += open

		key := tmpl[open+1 : end]
		if val, ok := ctx[key]; ok {
			b.WriteString(tmpl[:open])
			b.WriteString(val)
		} else {
			// Unknown key stays verbatim, braces included.
			b.WriteString(tmpl[:end+1])
		}
		tmpl = tmpl[end+1:]
	}
}
