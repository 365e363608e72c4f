package xfer

import (
	"encoding/binary"
	"time"

	"github.com/halcyonline/halcyon/internal/protocol/wire"
)

// infoForkFixedSize is the info fork payload size before the variable
// name and comment: platform, type, creator, two flag words, reserved,
// two packed dates, name script, name length.
const infoForkFixedSize = 44

// InfoFork is the metadata fork that leads every flat-file container.
type InfoFork struct {
	Platform      string // 4-byte platform code, AMAC for everything we write
	TypeCode      string // 4-byte file type
	Creator       string // 4-byte creator code
	FileFlags     uint32
	PlatformFlags uint32
	CreatedAt     wire.Date
	ModifiedAt    wire.Date
	NameScript    uint16
	Name          []byte
	Comment       []byte
}

// NewInfoFork builds an info fork for a file with the given name, type
// codes and timestamps.
func NewInfoFork(name, typeCode, creator string, created, modified time.Time) *InfoFork {
	return &InfoFork{
		Platform:   PlatformAppleMac,
		TypeCode:   typeCode,
		Creator:    creator,
		CreatedAt:  wire.NewDate(created),
		ModifiedAt: wire.NewDate(modified),
		Name:       []byte(name),
	}
}

// Size returns the encoded payload size.
func (f *InfoFork) Size() int {
	return infoForkFixedSize + len(f.Name) + 2 + len(f.Comment)
}

// Encode serializes the info fork payload.
func (f *InfoFork) Encode() []byte {
	buf := make([]byte, infoForkFixedSize, f.Size())
	copy(buf[0:4], fourCC(f.Platform))
	copy(buf[4:8], fourCC(f.TypeCode))
	copy(buf[8:12], fourCC(f.Creator))
	binary.BigEndian.PutUint32(buf[12:16], f.FileFlags)
	binary.BigEndian.PutUint32(buf[16:20], f.PlatformFlags)
	copy(buf[24:32], f.CreatedAt.Encode())
	copy(buf[32:40], f.ModifiedAt.Encode())
	binary.BigEndian.PutUint16(buf[40:42], f.NameScript)
	binary.BigEndian.PutUint16(buf[42:44], uint16(len(f.Name)))
	buf = append(buf, f.Name...)

	var clen [2]byte
	binary.BigEndian.PutUint16(clen[:], uint16(len(f.Comment)))
	buf = append(buf, clen[:]...)
	buf = append(buf, f.Comment...)
	return buf
}

// ParseInfoFork extracts an info fork payload. Encoders pad or omit the
// trailing comment; a missing comment block decodes as empty.
func ParseInfoFork(data []byte) (*InfoFork, error) {
	if len(data) < infoForkFixedSize {
		return nil, ErrMessageTooShort
	}

	created, err := wire.ParseDate(data[24:32])
	if err != nil {
		return nil, err
	}
	modified, err := wire.ParseDate(data[32:40])
	if err != nil {
		return nil, err
	}

	f := &InfoFork{
		Platform:      string(data[0:4]),
		TypeCode:      string(data[4:8]),
		Creator:       string(data[8:12]),
		FileFlags:     binary.BigEndian.Uint32(data[12:16]),
		PlatformFlags: binary.BigEndian.Uint32(data[16:20]),
		CreatedAt:     created,
		ModifiedAt:    modified,
		NameScript:    binary.BigEndian.Uint16(data[40:42]),
	}

	nameLen := int(binary.BigEndian.Uint16(data[42:44]))
	offset := infoForkFixedSize
	if len(data)-offset < nameLen {
		return nil, ErrMessageTooShort
	}
	f.Name = append([]byte(nil), data[offset:offset+nameLen]...)
	offset += nameLen

	if len(data)-offset >= 2 {
		commentLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if len(data)-offset < commentLen {
			return nil, ErrMessageTooShort
		}
		f.Comment = append([]byte(nil), data[offset:offset+commentLen]...)
	}

	return f, nil
}

// ContainerSize returns the total byte count of a two-fork container
// holding the given info fork and a data fork of dataSize bytes. This is
// the TransferSize reported in DownloadFile replies.
func ContainerSize(info *InfoFork, dataSize int64) int64 {
	return int64(ContainerHeaderSize) +
		int64(ForkHeaderSize) + int64(info.Size()) +
		int64(ForkHeaderSize) + dataSize
}

// fourCC pads or truncates a code to exactly four bytes.
func fourCC(s string) []byte {
	code := []byte{' ', ' ', ' ', ' '}
	copy(code, s)
	return code
}
