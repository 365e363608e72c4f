package control

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/halcyonline/halcyon/internal/protocol/wire"
	"github.com/halcyonline/halcyon/pkg/bufpool"
)

// readFrame reads one complete transaction from the connection. A zero
// timeout leaves the connection without a deadline.
func readFrame(conn net.Conn, maxPayload uint32, timeout time.Duration) (*wire.Frame, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	} else {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("clear read deadline: %w", err)
		}
	}

	var head [wire.HeaderSize]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, err
	}

	header, err := wire.ParseHeader(head[:])
	if err != nil {
		return nil, err
	}
	if header.TotalSize > maxPayload {
		return nil, wire.ErrFrameTooLarge
	}

	body := bufpool.GetUint32(header.TotalSize)
	defer bufpool.Put(body)

	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	fields, err := wire.ParseBody(body)
	if err != nil {
		return nil, err
	}

	return &wire.Frame{
		Flags:     header.Flags,
		IsReply:   header.IsReply,
		Type:      header.Type,
		ID:        header.ID,
		ErrorCode: header.ErrorCode,
		Fields:    fields,
	}, nil
}

// writeFrame serializes the frame into one pooled buffer and issues a
// single Write, so concurrent callers can never interleave frame bytes
// as long as they hold the connection exclusively.
func writeFrame(conn net.Conn, frame *wire.Frame, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	bodySize := frame.BodySize()
	buf := bufpool.GetUint32(wire.HeaderSize + bodySize)[:0]
	defer bufpool.Put(buf)

	header := wire.Header{
		Flags:     frame.Flags,
		IsReply:   frame.IsReply,
		Type:      frame.Type,
		ID:        frame.ID,
		ErrorCode: frame.ErrorCode,
		TotalSize: bodySize,
		DataSize:  bodySize,
	}
	buf = append(buf, header.Encode()...)
	buf = frame.AppendBody(buf)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
