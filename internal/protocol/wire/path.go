package wire

import (
	"encoding/binary"
	"strings"
)

// ParsePath decodes a wire file path into its components. The format is a
// 16-bit component count followed by one record per component: two
// reserved bytes, a length byte, and the name. Zero components means the
// file-area root.
//
// Components naming the parent directory or containing a separator or NUL
// are rejected here, before any filesystem code sees them.
func ParsePath(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 2 {
		return nil, ErrMessageTooShort
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	parts := make([]string, 0, count)
	offset := 2

	for i := 0; i < count; i++ {
		if len(data)-offset < 3 {
			return nil, ErrBodyTruncated
		}
		nameLen := int(data[offset+2])
		offset += 3

		if len(data)-offset < nameLen {
			return nil, ErrBodyTruncated
		}
		name := string(data[offset : offset+nameLen])
		offset += nameLen

		if err := checkComponent(name); err != nil {
			return nil, err
		}
		parts = append(parts, name)
	}

	return parts, nil
}

// EncodePath serializes path components to wire format.
func EncodePath(parts []string) ([]byte, error) {
	buf := make([]byte, 2, 2+len(parts)*8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(parts)))

	for _, part := range parts {
		if err := checkComponent(part); err != nil {
			return nil, err
		}
		if len(part) > 255 {
			return nil, ErrComponentTooLong
		}
		buf = append(buf, 0, 0, byte(len(part)))
		buf = append(buf, part...)
	}

	return buf, nil
}

func checkComponent(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrPathComponent
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrPathComponent
	}
	return nil
}
