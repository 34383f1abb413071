package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Size
		wantErr bool
	}{
		{"1024", 1024, false},
		{"500MB", 500 * MB, false},
		{"500 mb", 500 * MB, false},
		{"1.5GiB", Size(1.5 * float64(GB)), false},
		{"10k", 10 * KB, false},
		{"2 bytes", 2, false},
		{"", 0, true},
		{"MB", 0, true},
		{"5XB", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0B", Format(0))
	assert.Equal(t, "512B", Format(512))
	assert.Equal(t, "500MB", Format(500*MB))
	assert.Equal(t, "1.5GB", Format(Size(1.5*float64(GB))))
	assert.Equal(t, "-2KB", Format(-2*KB))
	assert.Equal(t, "500MB", (500 * MB).String())
}
