package wire

import (
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []string
		wantErr error
	}{
		{
			name: "Root",
			data: nil,
			want: nil,
		},
		{
			name: "RootZeroDepth",
			data: []byte{0, 0},
			want: []string{},
		},
		{
			name: "SingleComponent",
			data: []byte{0, 1, 0, 0, 3, 'd', 'i', 'r'},
			want: []string{"dir"},
		},
		{
			name: "TwoComponents",
			data: []byte{
				0, 2,
				0, 0, 6, 's', 'u', 'b', 'd', 'i', 'r',
				0, 0, 10, 'r', 'e', 'a', 'd', 'm', 'e', '.', 't', 'x', 't',
			},
			want: []string{"subdir", "readme.txt"},
		},
		{
			name:    "ParentComponent",
			data:    []byte{0, 1, 0, 0, 2, '.', '.'},
			wantErr: ErrPathComponent,
		},
		{
			name:    "SeparatorInComponent",
			data:    []byte{0, 1, 0, 0, 4, 'a', '/', 'b', 'c'},
			wantErr: ErrPathComponent,
		},
		{
			name:    "EmptyComponent",
			data:    []byte{0, 1, 0, 0, 0},
			wantErr: ErrPathComponent,
		},
		{
			name:    "TruncatedRecord",
			data:    []byte{0, 1, 0, 0},
			wantErr: ErrBodyTruncated,
		},
		{
			name:    "TruncatedName",
			data:    []byte{0, 1, 0, 0, 5, 'a', 'b'},
			wantErr: ErrBodyTruncated,
		},
		{
			name:    "CountWithoutRecords",
			data:    []byte{0},
			wantErr: ErrMessageTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.data)

			if err != tt.wantErr {
				t.Fatalf("ParsePath() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePath() = %v, want %v", got, tt.want)
			}
			if len(got) > 0 && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodePath(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		parts := []string{"uploads", "new folder", "file.bin"}
		encoded, err := EncodePath(parts)
		if err != nil {
			t.Fatalf("EncodePath() error = %v", err)
		}

		decoded, err := ParsePath(encoded)
		if err != nil {
			t.Fatalf("ParsePath() error = %v", err)
		}
		if !reflect.DeepEqual(decoded, parts) {
			t.Errorf("round-trip = %v, want %v", decoded, parts)
		}
	})

	t.Run("ComponentTooLong", func(t *testing.T) {
		long := make([]byte, 256)
		for i := range long {
			long[i] = 'a'
		}
		if _, err := EncodePath([]string{string(long)}); err != ErrComponentTooLong {
			t.Errorf("error = %v, want %v", err, ErrComponentTooLong)
		}
	})

	t.Run("RejectsParent", func(t *testing.T) {
		if _, err := EncodePath([]string{".."}); err != ErrPathComponent {
			t.Errorf("error = %v, want %v", err, ErrPathComponent)
		}
	})

	t.Run("EmptyIsRoot", func(t *testing.T) {
		encoded, err := EncodePath(nil)
		if err != nil {
			t.Fatalf("EncodePath() error = %v", err)
		}
		if len(encoded) != 2 || encoded[0] != 0 || encoded[1] != 0 {
			t.Errorf("EncodePath(nil) = % x, want 00 00", encoded)
		}
	})
}
