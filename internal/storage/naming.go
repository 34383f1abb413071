package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// OutputTimeLayout is the timestamp embedded in output names (YYYYmmdd_HHMMSS).
const OutputTimeLayout = "20060102_150405"

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	stripMarks          = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// SanitizeFilename reduces an uploaded file name to a safe ASCII base name.
// Accents are folded, path separators and whitespace become underscores,
// other characters are dropped and leading or trailing dots and underscores
// are trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err == nil {
		name = folded
	}

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Ext returns the lower-cased extension of name without the leading dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Stem returns name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// OutputName builds the artifact name for stem and ext at time now. Attempt
// zero yields "<stem>_<YYYYmmdd_HHMMSS>.<ext>"; later attempts add a numeric
// suffix for same-second collisions.
func OutputName(stem, ext string, now time.Time, attempt int) string {
	if stem == "" {
		stem = "output"
	}
	base := stem + "_" + now.Format(OutputTimeLayout)
	if attempt > 0 {
		base = fmt.Sprintf("%s_%d", base, attempt)
	}
	return base + "." + ext
}
