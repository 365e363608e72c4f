// Package xfer implements the file transfer subprotocol: the HTXF
// connection handshake and the flat-file container that file payloads
// travel in.
//
// A transfer connection opens with a 16-byte handshake (magic HTXF, the
// reference number issued on the control connection, a size hint, four
// reserved bytes). Downloads then stream a flat-file container to the
// client; uploads stream one from the client:
//
//	FILP magic (4), version (2, always 1), 16 reserved bytes, fork count (2)
//	per fork: type (4), compression (4, always 0), 4 reserved, data size (4)
//
// The first fork is the INFO fork describing the file; the DATA fork
// carries the bytes. Resource forks (MACR) are accepted on upload and
// skipped.
package xfer

import (
	"encoding/binary"
	"errors"
)

const (
	// ProtocolID is the transfer handshake magic.
	ProtocolID = "HTXF"
	// HandshakeSize is the fixed transfer handshake size.
	HandshakeSize = 16

	// ContainerMagic opens every flat-file container.
	ContainerMagic = "FILP"
	// ContainerVersion is the only container version in circulation.
	ContainerVersion = 1
	// ContainerHeaderSize is the flat-file header size.
	ContainerHeaderSize = 24
	// ForkHeaderSize is the per-fork header size.
	ForkHeaderSize = 16
)

// Fork type codes.
const (
	ForkInfo     = "INFO"
	ForkData     = "DATA"
	ForkResource = "MACR"
)

// PlatformAppleMac is the platform code written in info forks.
const PlatformAppleMac = "AMAC"

var (
	// ErrInvalidMagic indicates a handshake or container with the wrong magic.
	ErrInvalidMagic = errors.New("invalid transfer magic")
	// ErrMessageTooShort indicates a buffer shorter than the structure.
	ErrMessageTooShort = errors.New("message too short")
	// ErrUnsupportedContainer indicates a flat-file version other than 1.
	ErrUnsupportedContainer = errors.New("unsupported flat-file version")
	// ErrCompressedFork indicates a fork with a nonzero compression type.
	ErrCompressedFork = errors.New("compressed forks not supported")
	// ErrForkOrder indicates a container that does not lead with an info fork.
	ErrForkOrder = errors.New("container must lead with info fork")
)

// Handshake is the 16-byte transfer connection opener.
type Handshake struct {
	Reference uint32
	DataSize  uint32
}

// ParseHandshake extracts a transfer handshake.
func ParseHandshake(data []byte) (*Handshake, error) {
	if len(data) < HandshakeSize {
		return nil, ErrMessageTooShort
	}
	if string(data[0:4]) != ProtocolID {
		return nil, ErrInvalidMagic
	}
	return &Handshake{
		Reference: binary.BigEndian.Uint32(data[4:8]),
		DataSize:  binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// Encode serializes the handshake.
func (h *Handshake) Encode() []byte {
	buf := make([]byte, HandshakeSize)
	copy(buf[0:4], ProtocolID)
	binary.BigEndian.PutUint32(buf[4:8], h.Reference)
	binary.BigEndian.PutUint32(buf[8:12], h.DataSize)
	return buf
}

// ContainerHeader is the flat-file preamble.
type ContainerHeader struct {
	Version   uint16
	ForkCount uint16
}

// ParseContainerHeader extracts and validates the flat-file preamble.
func ParseContainerHeader(data []byte) (*ContainerHeader, error) {
	if len(data) < ContainerHeaderSize {
		return nil, ErrMessageTooShort
	}
	if string(data[0:4]) != ContainerMagic {
		return nil, ErrInvalidMagic
	}
	h := &ContainerHeader{
		Version:   binary.BigEndian.Uint16(data[4:6]),
		ForkCount: binary.BigEndian.Uint16(data[22:24]),
	}
	if h.Version != ContainerVersion {
		return nil, ErrUnsupportedContainer
	}
	return h, nil
}

// Encode serializes the flat-file preamble.
func (h *ContainerHeader) Encode() []byte {
	buf := make([]byte, ContainerHeaderSize)
	copy(buf[0:4], ContainerMagic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[22:24], h.ForkCount)
	return buf
}

// ForkHeader prefixes each fork's payload.
type ForkHeader struct {
	Type        string
	Compression uint32
	DataSize    uint32
}

// ParseForkHeader extracts a fork header. Compressed forks are refused;
// nothing writes them and the copy loops cannot skip them reliably.
func ParseForkHeader(data []byte) (*ForkHeader, error) {
	if len(data) < ForkHeaderSize {
		return nil, ErrMessageTooShort
	}
	h := &ForkHeader{
		Type:        string(data[0:4]),
		Compression: binary.BigEndian.Uint32(data[4:8]),
		DataSize:    binary.BigEndian.Uint32(data[12:16]),
	}
	if h.Compression != 0 {
		return nil, ErrCompressedFork
	}
	return h, nil
}

// Encode serializes the fork header.
func (h *ForkHeader) Encode() []byte {
	buf := make([]byte, ForkHeaderSize)
	copy(buf[0:4], h.Type)
	binary.BigEndian.PutUint32(buf[4:8], h.Compression)
	binary.BigEndian.PutUint32(buf[12:16], h.DataSize)
	return buf
}
