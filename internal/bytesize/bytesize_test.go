package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain number", "1048576", 1048576, false},

		{"bytes", "512B", 512, false},
		{"lowercase bytes", "512b", 512, false},

		{"frame limit decimal", "16MB", 16 * MB, false},
		{"frame limit binary", "16MiB", 16 * MiB, false},
		{"chunk size", "64KiB", 64 * KiB, false},
		{"short binary suffix", "64Ki", 64 * KiB, false},
		{"short decimal suffix", "4M", 4 * MB, false},
		{"gigabytes", "2GB", 2 * GB, false},
		{"gibibytes", "1GiB", 1 * GiB, false},

		{"mixed case", "16mB", 16 * MB, false},
		{"surrounding space", "  16MB  ", 16 * MB, false},
		{"space before unit", "16 MB", 16 * MB, false},

		{"fractional", "1.5MiB", ByteSize(1.5 * 1024 * 1024), false},

		{"empty", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"unknown unit", "16XB", 0, true},
		{"negative", "-1MB", 0, true},
		{"unit only", "MB", 0, true},
		{"garbage", "lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("16MB")))
	assert.Equal(t, 16*MB, b)

	require.Error(t, b.UnmarshalText([]byte("huge")))
}

func TestString(t *testing.T) {
	tests := []struct {
		input ByteSize
		want  string
	}{
		{512, "512B"},
		{64 * KiB, "64.00KiB"},
		{16 * MiB, "16.00MiB"},
		{1 * GiB, "1.00GiB"},
		{ByteSize(1.5 * float64(GiB)), "1.50GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.input.String())
	}
}
