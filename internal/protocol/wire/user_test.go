package wire

import (
	"bytes"
	"testing"
)

func TestUserInfoEncode(t *testing.T) {
	u := UserInfo{ID: 3, Icon: 145, Flags: UserFlagAdmin, Name: "admin"}
	encoded := u.Encode()

	want := []byte{
		0x00, 0x03, // id
		0x00, 0x91, // icon
		0x00, 0x02, // flags (admin)
		0x00, 0x05, // name length
		'a', 'd', 'm', 'i', 'n',
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encode() = % x, want % x", encoded, want)
	}
}

func TestParseUserInfo(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		u := UserInfo{ID: 65535, Icon: 2063, Flags: UserFlagAway | UserFlagRefusePM, Name: "away user"}
		parsed, err := ParseUserInfo(u.Encode())
		if err != nil {
			t.Fatalf("ParseUserInfo() error = %v", err)
		}
		if parsed != u {
			t.Errorf("round-trip = %+v, want %+v", parsed, u)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		if _, err := ParseUserInfo([]byte{0, 1, 0, 2}); err != ErrMessageTooShort {
			t.Errorf("error = %v, want %v", err, ErrMessageTooShort)
		}
	})

	t.Run("TruncatedName", func(t *testing.T) {
		data := []byte{0, 1, 0, 0, 0, 0, 0, 9, 'x'}
		if _, err := ParseUserInfo(data); err != ErrBodyTruncated {
			t.Errorf("error = %v, want %v", err, ErrBodyTruncated)
		}
	})
}

func TestUserInfoFlags(t *testing.T) {
	u := UserInfo{Flags: UserFlagAway | UserFlagAdmin}
	if !u.Away() || !u.Admin() || u.RefusesPM() {
		t.Errorf("flag accessors wrong for %016b", u.Flags)
	}
}

func TestFileEntry(t *testing.T) {
	t.Run("Encode", func(t *testing.T) {
		e := FileEntry{Type: "TEXT", Creator: "ttxt", Size: 1234, Name: []byte("readme.txt")}
		encoded := e.Encode()

		if len(encoded) != 20+len("readme.txt") {
			t.Fatalf("encoded length = %d", len(encoded))
		}
		if string(encoded[0:4]) != "TEXT" || string(encoded[4:8]) != "ttxt" {
			t.Errorf("codes = %q %q", encoded[0:4], encoded[4:8])
		}
		// Reserved bytes stay zero.
		if !bytes.Equal(encoded[12:16], []byte{0, 0, 0, 0}) {
			t.Errorf("reserved = % x", encoded[12:16])
		}
	})

	t.Run("ShortCodePadded", func(t *testing.T) {
		e := FileEntry{Type: "f", Creator: "", Size: 0, Name: []byte("x")}
		encoded := e.Encode()
		if string(encoded[0:4]) != "f   " {
			t.Errorf("type = %q, want padded", encoded[0:4])
		}
		if string(encoded[4:8]) != "    " {
			t.Errorf("creator = %q, want spaces", encoded[4:8])
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		e := FileEntry{Type: FolderType, Creator: "    ", Size: 7, Name: []byte("stuff")}
		parsed, err := ParseFileEntry(e.Encode())
		if err != nil {
			t.Fatalf("ParseFileEntry() error = %v", err)
		}
		if parsed.Type != FolderType || parsed.Size != 7 || !bytes.Equal(parsed.Name, []byte("stuff")) {
			t.Errorf("round-trip = %+v", parsed)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		if _, err := ParseFileEntry(make([]byte, 19)); err != ErrMessageTooShort {
			t.Errorf("error = %v, want %v", err, ErrMessageTooShort)
		}
	})
}
