package transfer

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/protocol/xfer"
	"github.com/halcyonline/halcyon/internal/registry"
	"github.com/halcyonline/halcyon/internal/telemetry"
	"github.com/halcyonline/halcyon/pkg/bufpool"
)

// copyChunkSize is the unit the copy loops move per deadline refresh.
const copyChunkSize = 64 * 1024

// handleConn runs one transfer connection: handshake, claim, stream.
// An unknown reference closes the connection without a reply; the
// reservation may already be claimed, expired, or invented.
func (a *Adapter) handleConn(ctx context.Context, conn net.Conn) {
	if a.config.IOTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.config.IOTimeout))
	}

	raw := make([]byte, xfer.HandshakeSize)
	if _, err := io.ReadFull(conn, raw); err != nil {
		logger.Debug("transfer handshake read failed", "address", conn.RemoteAddr(), "error", err)
		return
	}

	handshake, err := xfer.ParseHandshake(raw)
	if err != nil {
		logger.Debug("transfer handshake invalid", "address", conn.RemoteAddr(), "error", err)
		return
	}

	claimed, err := a.deps.Transfers.Claim(ctx, handshake.Reference)
	if err != nil {
		logger.Info("transfer reference refused", "address", conn.RemoteAddr(), "ref", handshake.Reference)
		return
	}

	lg := logger.With(
		"transfer_id", claimed.CorrelationID.String(),
		"ref", claimed.Reference,
		"path", claimed.Path,
		"user_name", claimed.UserName,
		"direction", claimed.Kind.String(),
	)
	lg.Info("transfer started")

	ctx, span := telemetry.StartTransferSpan(ctx, claimed.Kind.String(), claimed.Reference,
		telemetry.FilePath(claimed.Path), telemetry.ClientAddr(conn.RemoteAddr().String()))
	defer span.End()

	start := time.Now()
	var moved int64
	switch claimed.Kind {
	case registry.TransferDownload:
		moved, err = a.download(ctx, conn, claimed)
	case registry.TransferUpload:
		// The handshake declares how many bytes follow; the size from
		// the UploadFile transaction backs a handshake that says zero.
		size := int64(handshake.DataSize)
		if size == 0 {
			size = claimed.Size
		}
		moved, err = a.upload(ctx, conn, claimed, size)
	}

	span.SetAttributes(telemetry.TransferBytes(moved))
	telemetry.RecordError(ctx, err)
	a.deps.Metrics.TransferDone(claimed.Kind.String(), err != nil, moved)
	if err != nil {
		lg.Warn("transfer failed", "error", err, "bytes", moved)
		return
	}
	lg.Info("transfer complete", "bytes", moved, "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
}

// download streams a flat-file container: header, info fork, data fork.
func (a *Adapter) download(ctx context.Context, conn net.Conn, t registry.Transfer) (int64, error) {
	parts := splitPath(t.Path)

	info, err := a.deps.Files.Info(parts)
	if err != nil {
		return 0, err
	}
	file, err := a.deps.Files.Open(parts)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	name := string(a.deps.Codec.Encode(info.Name))
	fork := xfer.NewInfoFork(name, info.Type, info.Creator, info.CreatedAt, info.ModifiedAt)

	header := xfer.ContainerHeader{Version: xfer.ContainerVersion, ForkCount: 2}
	preamble := header.Encode()
	preamble = append(preamble, (&xfer.ForkHeader{Type: xfer.ForkInfo, DataSize: uint32(fork.Size())}).Encode()...)
	preamble = append(preamble, fork.Encode()...)
	preamble = append(preamble, (&xfer.ForkHeader{Type: xfer.ForkData, DataSize: uint32(info.Size)}).Encode()...)

	if err := a.writeAll(conn, preamble); err != nil {
		return 0, err
	}

	moved, err := a.copyData(ctx, conn, file, info.Size)
	return int64(len(preamble)) + moved, err
}

// upload lands the client's stream in the file area via a temporary
// file. Exactly size bytes are read from the socket and written as
// received; a short or stalled stream discards the temporary file and
// the target is never touched.
func (a *Adapter) upload(ctx context.Context, conn net.Conn, t registry.Transfer, size int64) (int64, error) {
	parts := splitPath(t.Path)

	up, err := a.deps.Files.CreateUpload(parts)
	if err != nil {
		return 0, err
	}

	moved, err := a.copyData(ctx, up.File, conn, size)
	if err != nil {
		up.Abort()
		return moved, err
	}
	if err := up.Commit(); err != nil {
		return moved, err
	}
	return moved, nil
}

// copyData moves exactly size bytes through a pooled buffer, refreshing
// the connection deadline per chunk so long transfers outlive the
// per-chunk timeout but stalls do not.
func (a *Adapter) copyData(ctx context.Context, dst io.Writer, src io.Reader, size int64) (int64, error) {
	buf := bufpool.Get(copyChunkSize)
	defer bufpool.Put(buf)

	var moved int64
	for moved < size {
		select {
		case <-ctx.Done():
			return moved, ctx.Err()
		default:
		}

		chunk := int64(len(buf))
		if remaining := size - moved; remaining < chunk {
			chunk = remaining
		}
		a.refreshDeadlines(src, dst)

		n, err := io.CopyBuffer(dst, io.LimitReader(src, chunk), buf)
		moved += n
		if err != nil {
			return moved, err
		}
		if n == 0 {
			return moved, io.ErrUnexpectedEOF
		}
	}
	return moved, nil
}

func (a *Adapter) refreshDeadlines(src io.Reader, dst io.Writer) {
	if a.config.IOTimeout <= 0 {
		return
	}
	deadline := time.Now().Add(a.config.IOTimeout)
	if conn, ok := src.(net.Conn); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if conn, ok := dst.(net.Conn); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
}

func (a *Adapter) writeAll(conn net.Conn, data []byte) error {
	if a.config.IOTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.config.IOTimeout))
	}
	_, err := conn.Write(data)
	return err
}

// splitPath turns the slash-joined reservation path back into file-area
// components. Separators cannot occur inside components; the control
// handlers reject them before registering.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
