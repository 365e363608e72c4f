package wire

import "encoding/binary"

// FolderType is the type code reported for directories.
const FolderType = "fldr"

// FileEntry is the payload of a FileNameWithInfo parameter: one row of a
// folder listing. For directories Size carries the item count instead of
// a byte size.
type FileEntry struct {
	Type       string // 4-byte type code
	Creator    string // 4-byte creator code
	Size       uint32
	NameScript uint16
	Name       []byte
}

// Encode serializes the entry: type, creator, size, 4 reserved bytes,
// name script, name length, name.
func (e FileEntry) Encode() []byte {
	buf := make([]byte, 20, 20+len(e.Name))
	copy(buf[0:4], fourCC(e.Type))
	copy(buf[4:8], fourCC(e.Creator))
	binary.BigEndian.PutUint32(buf[8:12], e.Size)
	binary.BigEndian.PutUint16(buf[16:18], e.NameScript)
	binary.BigEndian.PutUint16(buf[18:20], uint16(len(e.Name)))
	return append(buf, e.Name...)
}

// ParseFileEntry extracts a folder listing row.
func ParseFileEntry(data []byte) (FileEntry, error) {
	if len(data) < 20 {
		return FileEntry{}, ErrMessageTooShort
	}
	nameLen := int(binary.BigEndian.Uint16(data[18:20]))
	if len(data)-20 < nameLen {
		return FileEntry{}, ErrBodyTruncated
	}
	return FileEntry{
		Type:       string(data[0:4]),
		Creator:    string(data[4:8]),
		Size:       binary.BigEndian.Uint32(data[8:12]),
		NameScript: binary.BigEndian.Uint16(data[16:18]),
		Name:       append([]byte(nil), data[20:20+nameLen]...),
	}, nil
}

// Field wraps the entry in a FileNameWithInfo parameter.
func (e FileEntry) Field() Field {
	return Field{ID: FieldFileNameWithInfo, Data: e.Encode()}
}

// fourCC pads or truncates a code to exactly four bytes.
func fourCC(s string) []byte {
	code := []byte{' ', ' ', ' ', ' '}
	copy(code, s)
	return code
}
