package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/flopp/go-findfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	apperrors "github.com/hankolab/sealpress/errors"
)

// Typeface is a parsed font plus the raw bytes it was parsed from.  The raw
// bytes are kept around so the SVG strategy can embed them in generated
// markup and rasterize without any file dependency.
type Typeface struct {
	Name string // requested logical name
	Data []byte
	Font *opentype.Font
}

// ResolveTypeface locates a typeface by logical name in the runtime's font
// set, or reads it from an explicit file path when one is given.  A font
// that cannot be located, cannot be parsed, or whose family name does not
// match the request fails with ErrFontUnavailable: silent substitution
// changes visual output unpredictably, so a miss is a deployment defect,
// never something to mask at runtime.
func ResolveTypeface(name, file string) (*Typeface, error) {
	path := file
	if path == "" {
		p, err := findfont.Find(name)
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryFont, "font.resolve",
				fmt.Errorf("%w: %q: %v", apperrors.ErrFontUnavailable, name, err))
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFont, "font.read",
			fmt.Errorf("%w: %q: %v", apperrors.ErrFontUnavailable, path, err))
	}
	return ParseTypeface(name, data)
}

// ParseTypeface parses raw SFNT bytes and, when name is non-empty, verifies
// that the parsed family matches the requested logical name.
func ParseTypeface(name string, data []byte) (*Typeface, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFont, "font.parse",
			fmt.Errorf("%w: %v", apperrors.ErrFontUnavailable, err))
	}
	if name != "" && !familyMatches(f, name) {
		return nil, apperrors.New(apperrors.CategoryFont, "font.parse",
			fmt.Errorf("%w: resolved font is not %q", apperrors.ErrFontUnavailable, name))
	}
	return &Typeface{Name: name, Data: data, Font: f}, nil
}

// familyMatches compares the requested name against the font's family and
// full names, ignoring case, spaces, and hyphens.  Containment either way is
// accepted so "Noto Sans JP" matches "NotoSansJP-Regular".
func familyMatches(f *opentype.Font, want string) bool {
	w := normalizeFontName(want)
	var buf sfnt.Buffer
	for _, id := range []sfnt.NameID{sfnt.NameIDFamily, sfnt.NameIDFull, sfnt.NameIDTypographicFamily} {
		got, err := f.Name(&buf, id)
		if err != nil || got == "" {
			continue
		}
		g := normalizeFontName(got)
		if strings.Contains(g, w) || strings.Contains(w, g) {
			return true
		}
	}
	return false
}

func normalizeFontName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(s))
}
