package wire

import "errors"

var (
	// ErrInvalidMagic indicates a handshake that does not start with TRTP.
	ErrInvalidMagic = errors.New("invalid protocol magic")
	// ErrUnsupportedVersion indicates a handshake with a version other than 1.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	// ErrMessageTooShort indicates a buffer shorter than the structure it
	// is supposed to contain.
	ErrMessageTooShort = errors.New("message too short")
	// ErrSizeMismatch indicates a header whose total and data sizes differ.
	// Multi-part transactions are not supported.
	ErrSizeMismatch = errors.New("transaction total size and data size differ")
	// ErrFrameTooLarge indicates a transaction body over the configured limit.
	ErrFrameTooLarge = errors.New("transaction body too large")
	// ErrBodyTruncated indicates a parameter list running past the body end.
	ErrBodyTruncated = errors.New("parameter list truncated")
	// ErrPathComponent indicates a wire path component that is empty,
	// contains a separator, or names the parent directory.
	ErrPathComponent = errors.New("invalid path component")
	// ErrComponentTooLong indicates a path component over 255 bytes.
	ErrComponentTooLong = errors.New("path component too long")
)
