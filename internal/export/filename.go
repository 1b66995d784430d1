package export

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	FallbackName    = "export.xlsx"
	defaultNameTmpl = "monthly_data_%d.xlsx"
)

func DefaultFilename(now time.Time) string {
	return fmt.Sprintf(defaultNameTmpl, now.Year())
}

// SecureFilename reduces name to ASCII letters, digits, '_', '.' and '-'
// so it is safe as a single path segment. Whitespace becomes '_' and
// accents are dropped after NFKD decomposition. An empty result falls
// back to export.xlsx.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)
	var ascii strings.Builder
	for _, r := range decomposed {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	cleaned := strings.NewReplacer("/", " ", "\\", " ").Replace(ascii.String())
	joined := strings.Join(strings.Fields(cleaned), "_")

	var out strings.Builder
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			out.WriteRune(r)
		}
	}
	safe := strings.Trim(out.String(), "._")
	if safe == "" {
		return FallbackName
	}
	return safe
}
