package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hankolab/sealpress/core"
)

// markupEscaper neutralizes the characters with markup meaning.  '&' is
// listed first so already-escaped output is never double-processed oddly.
var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeMarkup escapes caller-supplied text before it is embedded in a
// generated markup fragment, so a message like "<b>&" renders as literal
// visible characters and can never inject elements or entities.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// TextSVG synthesizes a standalone SVG fragment for one text layer.  The
// typeface bytes are embedded base64 in a @font-face rule, so rasterization
// has no external file dependency: the fragment carries everything it needs.
// lines must already be wrapped (see Layout); ascentPx positions the first
// baseline and lineHeightPx separates the rest.
func TextSVG(spec core.LayerSpec, lines []string, ascentPx, lineHeightPx int, tf *Typeface) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`,
		spec.Width, spec.Height)
	fmt.Fprintf(&b, `<style>@font-face{font-family:%q;src:url(data:font/ttf;base64,%s);}</style>`,
		tf.Name, base64.StdEncoding.EncodeToString(tf.Data))
	fmt.Fprintf(&b, `<text x="0" y="%d" font-family=%q font-size="%g" fill=%q>`,
		ascentPx, tf.Name, spec.FontSize, spec.Color)
	for i, line := range lines {
		dy := 0
		if i > 0 {
			dy = lineHeightPx
		}
		fmt.Fprintf(&b, `<tspan x="0" dy="%d">%s</tspan>`, dy, EscapeMarkup(line))
	}
	b.WriteString(`</text></svg>`)
	return b.Bytes()
}
