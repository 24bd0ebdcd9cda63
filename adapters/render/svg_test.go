package render

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hankolab/sealpress/core"
)

func TestEscapeMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a & b", "a &amp; b"},
		{"<b>bold</b>", "&lt;b&gt;bold&lt;/b&gt;"},
		{"&lt;", "&amp;lt;"},
		{"山田 太郎", "山田 太郎"},
		{"", ""},
		{"a<b&c>d", "a&lt;b&amp;c&gt;d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeMarkup(tt.in), "input %q", tt.in)
	}
}

func TestTextSVGStructure(t *testing.T) {
	tf := testTypeface(t)
	spec := core.LayerSpec{Width: 400, Height: 100, FontSize: 24, Color: "#333333"}

	svg := string(TextSVG(spec, []string{"one", "two"}, 22, 29, tf))

	assert.True(t, strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="100">`))
	assert.True(t, strings.HasSuffix(svg, `</text></svg>`))
	assert.Contains(t, svg, `font-size="24"`)
	assert.Contains(t, svg, `fill="#333333"`)
	assert.Contains(t, svg, `y="22"`)

	// First line anchors with dy 0, later lines advance a line height.
	assert.Contains(t, svg, `<tspan x="0" dy="0">one</tspan>`)
	assert.Contains(t, svg, `<tspan x="0" dy="29">two</tspan>`)
}

func TestTextSVGEmbedsTypeface(t *testing.T) {
	tf := testTypeface(t)
	spec := core.LayerSpec{Width: 10, Height: 10, FontSize: 12, Color: "#000000"}

	svg := string(TextSVG(spec, []string{"x"}, 12, 14, tf))

	require.Contains(t, svg, "@font-face")
	assert.Contains(t, svg, base64.StdEncoding.EncodeToString(tf.Data))
	assert.Contains(t, svg, `font-family:"Go"`)
}

func TestTextSVGEscapesLines(t *testing.T) {
	tf := testTypeface(t)
	spec := core.LayerSpec{Width: 400, Height: 100, FontSize: 24, Color: "#000000"}

	svg := string(TextSVG(spec, []string{`<script>&`}, 22, 29, tf))

	assert.NotContains(t, svg, "<script>")
	assert.Contains(t, svg, "&lt;script&gt;&amp;")
}

func TestWrapTextParagraphs(t *testing.T) {
	tf := testTypeface(t)
	lines, _, _, err := Layout(tf, "first\nsecond", 24, 400)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestWrapTextNarrowWidth(t *testing.T) {
	tf := testTypeface(t)
	lines, _, _, err := Layout(tf, "alpha beta gamma delta", 24, 100)
	require.NoError(t, err)
	assert.Greater(t, len(lines), 1, "narrow buffer should force wrapping")
	for _, l := range lines {
		assert.NotEmpty(t, l)
	}
}

func TestWrapTextHardBreaksOversizedWord(t *testing.T) {
	tf := testTypeface(t)
	lines, _, _, err := Layout(tf, strings.Repeat("W", 40), 24, 100)
	require.NoError(t, err)
	assert.Greater(t, len(lines), 1, "a word wider than the buffer must hard-break")
}

func TestLayoutMetricsPositive(t *testing.T) {
	tf := testTypeface(t)
	_, ascent, lineH, err := Layout(tf, "x", 24, 400)
	require.NoError(t, err)
	assert.Greater(t, ascent, 0)
	assert.GreaterOrEqual(t, lineH, ascent)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#333333")
	require.NoError(t, err)
	assert.EqualValues(t, 0x33, c.R)
	assert.EqualValues(t, 0x33, c.G)
	assert.EqualValues(t, 0x33, c.B)
	assert.EqualValues(t, 255, c.A)

	_, err = ParseHexColor("#fff")
	assert.Error(t, err)
	_, err = ParseHexColor("red")
	assert.Error(t, err)
	_, err = ParseHexColor("#zzzzzz")
	assert.Error(t, err)
}
