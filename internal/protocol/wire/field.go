package wire

import "encoding/binary"

// Field is one transaction parameter: a 16-bit id and its payload.
type Field struct {
	ID   uint16
	Data []byte
}

// NewField creates a field with a raw payload.
func NewField(id uint16, data []byte) Field {
	return Field{ID: id, Data: data}
}

// NewStringField creates a field holding the bytes of s.
func NewStringField(id uint16, s string) Field {
	return Field{ID: id, Data: []byte(s)}
}

// NewUint16Field creates a 2-byte big-endian field.
func NewUint16Field(id uint16, v uint16) Field {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, v)
	return Field{ID: id, Data: data}
}

// NewUint32Field creates a 4-byte big-endian field.
func NewUint32Field(id uint16, v uint32) Field {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, v)
	return Field{ID: id, Data: data}
}

// encodedSize is the field's wire size: id + size prefix + payload.
func (f Field) encodedSize() int {
	return 4 + len(f.Data)
}

// Text returns the payload as a string.
func (f Field) Text() string {
	return string(f.Data)
}

// Int decodes a 1, 2 or 4 byte big-endian payload. Clients are loose
// about integer widths, so accept all three. Other lengths yield 0.
func (f Field) Int() int {
	switch len(f.Data) {
	case 1:
		return int(f.Data[0])
	case 2:
		return int(binary.BigEndian.Uint16(f.Data))
	case 4:
		return int(binary.BigEndian.Uint32(f.Data))
	default:
		return 0
	}
}

// Uint16 decodes a 2-byte payload, tolerating other widths via Int.
func (f Field) Uint16() uint16 {
	return uint16(f.Int())
}

// Uint32 decodes a 4-byte payload, tolerating other widths via Int.
func (f Field) Uint32() uint32 {
	return uint32(f.Int())
}
