package convert

import (
	"strings"

	"github.com/samber/lo"

	"github.com/jmylchreest/convertarr/internal/storage"
)

// Whitelist is the set of file extensions accepted for one direction.
type Whitelist struct {
	exts []string
}

// NewWhitelist normalises exts to lower case without leading dots.
func NewWhitelist(exts []string) Whitelist {
	normalised := lo.Map(exts, func(e string, _ int) string {
		return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
	})
	return Whitelist{exts: lo.Uniq(lo.Compact(normalised))}
}

// Allows reports whether filename has an accepted extension.
func (w Whitelist) Allows(filename string) bool {
	return lo.Contains(w.exts, storage.Ext(filename))
}

// Extensions returns the accepted extensions.
func (w Whitelist) Extensions() []string {
	return append([]string(nil), w.exts...)
}

// String renders the list as "mp4, avi, mov, mkv".
func (w Whitelist) String() string {
	return strings.Join(w.exts, ", ")
}
