package wire

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 20-byte transaction header.
type Header struct {
	Flags     uint8
	IsReply   uint8
	Type      uint16
	ID        uint32
	ErrorCode uint32
	TotalSize uint32
	DataSize  uint32
}

// ParseHeader extracts a transaction header. Headers whose total and data
// sizes differ are refused: the server never produces multi-part
// transactions and does not accept them.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}

	h := &Header{
		Flags:     data[0],
		IsReply:   data[1],
		Type:      binary.BigEndian.Uint16(data[2:4]),
		ID:        binary.BigEndian.Uint32(data[4:8]),
		ErrorCode: binary.BigEndian.Uint32(data[8:12]),
		TotalSize: binary.BigEndian.Uint32(data[12:16]),
		DataSize:  binary.BigEndian.Uint32(data[16:20]),
	}

	if h.TotalSize != h.DataSize {
		return nil, ErrSizeMismatch
	}
	if h.TotalSize < 2 {
		return nil, ErrMessageTooShort
	}

	return h, nil
}

// Encode serializes the header to wire format.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Flags
	buf[1] = h.IsReply
	binary.BigEndian.PutUint16(buf[2:4], h.Type)
	binary.BigEndian.PutUint32(buf[4:8], h.ID)
	binary.BigEndian.PutUint32(buf[8:12], h.ErrorCode)
	binary.BigEndian.PutUint32(buf[12:16], h.TotalSize)
	binary.BigEndian.PutUint32(buf[16:20], h.DataSize)
	return buf
}

// Frame is a complete transaction: header fields plus parameters.
type Frame struct {
	Flags     uint8
	IsReply   uint8
	Type      uint16
	ID        uint32
	ErrorCode uint32
	Fields    []Field
}

// New creates a server-initiated transaction (id 0, not a reply).
func New(tranType uint16, fields ...Field) *Frame {
	return &Frame{Type: tranType, Fields: fields}
}

// NewRequest creates a client-side request with an explicit id. Used by
// tests and by the agreement push, which mints fresh ids.
func NewRequest(tranType uint16, id uint32, fields ...Field) *Frame {
	return &Frame{Type: tranType, ID: id, Fields: fields}
}

// NewReply builds a reply to req. Replies carry type 0, echo the request
// id, and set the reply flag.
func NewReply(req *Frame, fields ...Field) *Frame {
	return &Frame{
		IsReply: 1,
		Type:    TranReply,
		ID:      req.ID,
		Fields:  fields,
	}
}

// NewError builds an error reply to req: error code 1 plus an ErrorText
// parameter.
func NewError(req *Frame, message string) *Frame {
	return &Frame{
		IsReply:   1,
		Type:      TranReply,
		ID:        req.ID,
		ErrorCode: 1,
		Fields:    []Field{NewStringField(FieldErrorText, message)},
	}
}

// BodySize returns the wire size of the parameter block, including the
// 2-byte parameter count.
func (f *Frame) BodySize() uint32 {
	size := 2
	for _, field := range f.Fields {
		size += field.encodedSize()
	}
	return uint32(size)
}

// Encode serializes the complete transaction, header and body.
func (f *Frame) Encode() []byte {
	bodySize := f.BodySize()

	h := Header{
		Flags:     f.Flags,
		IsReply:   f.IsReply,
		Type:      f.Type,
		ID:        f.ID,
		ErrorCode: f.ErrorCode,
		TotalSize: bodySize,
		DataSize:  bodySize,
	}

	buf := make([]byte, 0, HeaderSize+int(bodySize))
	buf = append(buf, h.Encode()...)
	buf = f.AppendBody(buf)
	return buf
}

// AppendBody appends the encoded parameter block to buf and returns the
// extended slice.
func (f *Frame) AppendBody(buf []byte) []byte {
	var scratch [4]byte

	binary.BigEndian.PutUint16(scratch[:2], uint16(len(f.Fields)))
	buf = append(buf, scratch[:2]...)

	for _, field := range f.Fields {
		binary.BigEndian.PutUint16(scratch[:2], field.ID)
		binary.BigEndian.PutUint16(scratch[2:4], uint16(len(field.Data)))
		buf = append(buf, scratch[:4]...)
		buf = append(buf, field.Data...)
	}

	return buf
}

// ParseBody extracts the parameter list from a transaction body.
func ParseBody(data []byte) ([]Field, error) {
	if len(data) < 2 {
		return nil, ErrMessageTooShort
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	fields := make([]Field, 0, count)
	offset := 2

	for i := 0; i < count; i++ {
		if len(data)-offset < 4 {
			return nil, ErrBodyTruncated
		}
		id := binary.BigEndian.Uint16(data[offset : offset+2])
		size := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if len(data)-offset < size {
			return nil, ErrBodyTruncated
		}
		payload := make([]byte, size)
		copy(payload, data[offset:offset+size])
		offset += size

		fields = append(fields, Field{ID: id, Data: payload})
	}

	return fields, nil
}

// GetField returns the first parameter with the given id.
func (f *Frame) GetField(id uint16) (Field, bool) {
	for _, field := range f.Fields {
		if field.ID == id {
			return field, true
		}
	}
	return Field{}, false
}

// FieldText returns the string payload of the first parameter with the
// given id, or "" when absent.
func (f *Frame) FieldText(id uint16) string {
	field, ok := f.GetField(id)
	if !ok {
		return ""
	}
	return field.Text()
}

// FieldBytes returns the raw payload of the first parameter with the
// given id, or nil when absent.
func (f *Frame) FieldBytes(id uint16) []byte {
	field, ok := f.GetField(id)
	if !ok {
		return nil
	}
	return field.Data
}

// TranName returns the transaction type name for logging.
func TranName(tranType uint16) string {
	if name, ok := tranNames[tranType]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", tranType)
}
