package config

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/convertarr/pkg/bytesize"
)

// ByteSize is a configuration size that accepts "500MB" style values as well
// as raw byte counts. It decodes from viper via encoding.TextUnmarshaler.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := bytesize.Parse(string(text))
	if err != nil {
		return fmt.Errorf("parsing byte size: %w", err)
	}
	*b = ByteSize(size)
	return nil
}

// UnmarshalJSON accepts either a quoted size string or a bare number of bytes.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Int64 returns the size in bytes.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String returns a human-readable form such as "500MB".
func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}

// Human renders the size with a space before the unit ("500 MB"), the form
// used in user-facing error messages.
func (b ByteSize) Human() string {
	s := b.String()
	for i, r := range s {
		if r < '0' || r > '9' {
			if r == '.' || r == '-' {
				continue
			}
			return s[:i] + " " + s[i:]
		}
	}
	return s
}
