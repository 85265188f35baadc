// Package transform provides the goldmark parsers, AST transformers, and node
// renderers behind the wiki's Markdown extensions: callouts, directives,
// Discord threads and citations, and client-side diagram fences.
package transform

import (
	"bytes"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/util"
)

// DiagramClasses maps fence languages hydrated client-side to the class of
// the div that replaces their <pre> wrapper.
var DiagramClasses = map[string]string{
	"mermaid": "mermaid",
}

// FenceWrapper returns a wrapper renderer that turns diagram fences into divs
// the browser can hydrate, and writes plain <pre><code> for every other
// fence the highlighter does not handle itself.
func FenceWrapper(classes map[string]string) highlighting.WrapperRenderer {
	return func(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
		if ctx.Highlighted() {
			return
		}

		lang, _ := ctx.Language()
		normalized := strings.TrimSpace(strings.ToLower(string(lang)))
		if class, ok := classes[normalized]; ok {
			if entering {
				_, _ = w.WriteString(`<div class="`)
				_, _ = w.Write(util.EscapeHTML([]byte(class)))
				_, _ = w.WriteString(`">`)
			} else {
				_, _ = w.WriteString("</div>\n")
			}
			return
		}

		if entering {
			_, _ = w.WriteString("<pre><code")
			if len(bytes.TrimSpace(lang)) > 0 {
				_, _ = w.WriteString(` class="language-`)
				_, _ = w.Write(util.EscapeHTML(lang))
				_, _ = w.WriteString(`"`)
			}
			_, _ = w.WriteString(">")
			return
		}
		_, _ = w.WriteString("</code></pre>\n")
	}
}
