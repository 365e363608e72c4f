package wire

import "encoding/binary"

// Handshake error codes carried in the server reply.
const (
	HandshakeOK          uint32 = 0
	HandshakeErrRefused  uint32 = 1
	HandshakeErrProtocol uint32 = 2
)

// Hello is the 12-byte client handshake.
type Hello struct {
	SubProtocol uint32
	Version     uint16
	SubVersion  uint16
}

// ParseHello extracts a client hello and validates the magic. Version
// checking is left to the caller so it can still send a refusal reply.
func ParseHello(data []byte) (*Hello, error) {
	if len(data) < HelloSize {
		return nil, ErrMessageTooShort
	}
	if string(data[0:4]) != ProtocolID {
		return nil, ErrInvalidMagic
	}
	return &Hello{
		SubProtocol: binary.BigEndian.Uint32(data[4:8]),
		Version:     binary.BigEndian.Uint16(data[8:10]),
		SubVersion:  binary.BigEndian.Uint16(data[10:12]),
	}, nil
}

// Encode serializes the hello to wire format.
func (h *Hello) Encode() []byte {
	buf := make([]byte, HelloSize)
	copy(buf[0:4], ProtocolID)
	binary.BigEndian.PutUint32(buf[4:8], h.SubProtocol)
	binary.BigEndian.PutUint16(buf[8:10], h.Version)
	binary.BigEndian.PutUint16(buf[10:12], h.SubVersion)
	return buf
}

// EncodeHelloReply builds the 8-byte server handshake reply.
func EncodeHelloReply(errorCode uint32) []byte {
	buf := make([]byte, HelloReplySize)
	copy(buf[0:4], ProtocolID)
	binary.BigEndian.PutUint32(buf[4:8], errorCode)
	return buf
}

// ParseHelloReply extracts the error code from a server handshake reply.
func ParseHelloReply(data []byte) (uint32, error) {
	if len(data) < HelloReplySize {
		return 0, ErrMessageTooShort
	}
	if string(data[0:4]) != ProtocolID {
		return 0, ErrInvalidMagic
	}
	return binary.BigEndian.Uint32(data[4:8]), nil
}
