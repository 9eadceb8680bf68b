package schema

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.English)

// hintText renders a schema's properties as one line each, the form the
// analyzer's parameter-inference prompt expects.
func hintText(raw string) string {
	doc := gjson.Parse(raw)
	required := map[string]bool{}
	doc.Get("required").ForEach(func(_, v gjson.Result) bool {
		required[v.String()] = true
		return true
	})

	var b strings.Builder
	doc.Get("properties").ForEach(func(key, prop gjson.Result) bool {
		name := key.String()
		fmt.Fprintf(&b, "- %s (%s", name, prop.Get("type").String())
		if required[name] {
			b.WriteString(", required")
		}
		b.WriteString(")")
		if desc := prop.Get("description").String(); desc != "" {
			b.WriteString(": " + desc)
		} else {
			b.WriteString(": " + propLabel(name))
		}
		if enum := prop.Get("enum"); enum.Exists() {
			var vals []string
			enum.ForEach(func(_, v gjson.Result) bool {
				vals = append(vals, v.String())
				return true
			})
			fmt.Fprintf(&b, " One of: %s.", strings.Join(vals, ", "))
		}
		if def := prop.Get("default"); def.Exists() {
			fmt.Fprintf(&b, " Default: %s.", def.String())
		}
		b.WriteString("\n")
		return true
	})
	return strings.TrimRight(b.String(), "\n")
}

// propLabel turns a camelCase property name into a readable label, e.g.
// "aspectRatio" -> "Aspect Ratio".
func propLabel(name string) string {
	var words strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			words.WriteByte(' ')
		}
		words.WriteRune(r)
	}
	return titler.String(words.String())
}
