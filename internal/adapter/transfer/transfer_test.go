package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonline/halcyon/internal/adapter"
	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/protocol/xfer"
	"github.com/halcyonline/halcyon/internal/registry"
)

type transferFixture struct {
	adapter   *Adapter
	transfers *registry.Transfers
	area      *files.Area
	root      string
	addr      string
}

func startTransferServer(t *testing.T) *transferFixture {
	t.Helper()

	root := t.TempDir()
	area, err := files.New(root)
	require.NoError(t, err)

	codec, err := encoding.ForName("macroman")
	require.NoError(t, err)

	transfers := registry.NewTransfers(time.Minute, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go transfers.Run(ctx)

	a := New(Config{Port: 0, IOTimeout: 5 * time.Second}, Deps{
		Transfers: transfers,
		Files:     area,
		Codec:     codec,
		Metrics:   adapter.NullMetrics(),
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Serve(ctx) }()

	select {
	case <-a.ListenerReady():
	case err := <-serveErr:
		t.Fatalf("transfer listener failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer listener never came up")
	}

	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx)
	})

	return &transferFixture{
		adapter:   a,
		transfers: transfers,
		area:      area,
		root:      root,
		addr:      net.JoinHostPort("127.0.0.1", strconv.Itoa(a.Port())),
	}
}

func (f *transferFixture) dial(t *testing.T, reference, dataSize uint32) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", f.addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hs := xfer.Handshake{Reference: reference, DataSize: dataSize}
	_, err = conn.Write(hs.Encode())
	require.NoError(t, err)
	return conn
}

func TestDownloadStreamsContainer(t *testing.T) {
	f := startTransferServer(t)

	content := []byte("hello from the file area\n")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "readme.txt"), content, 0o644))

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind:     registry.TransferDownload,
		Path:     "readme.txt",
		Size:     int64(len(content)),
		UserName: "mike",
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, 0)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	raw, err := io.ReadAll(conn)
	require.NoError(t, err)

	container, err := xfer.ParseContainerHeader(raw[:xfer.ContainerHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint16(2), container.ForkCount)

	offset := xfer.ContainerHeaderSize
	infoHeader, err := xfer.ParseForkHeader(raw[offset : offset+xfer.ForkHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, xfer.ForkInfo, infoHeader.Type)
	offset += xfer.ForkHeaderSize

	info, err := xfer.ParseInfoFork(raw[offset : offset+int(infoHeader.DataSize)])
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", string(info.Name))
	assert.Equal(t, "TEXT", info.TypeCode)
	assert.Equal(t, "ttxt", info.Creator)
	offset += int(infoHeader.DataSize)

	dataHeader, err := xfer.ParseForkHeader(raw[offset : offset+xfer.ForkHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, xfer.ForkData, dataHeader.Type)
	assert.Equal(t, uint32(len(content)), dataHeader.DataSize)
	offset += xfer.ForkHeaderSize

	assert.Equal(t, content, raw[offset:])
	assert.Equal(t, xfer.ContainerSize(info, int64(len(content))), int64(len(raw)))
}

func TestUploadLandsFile(t *testing.T) {
	f := startTransferServer(t)

	content := []byte("uploaded payload")

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferUpload,
		Path: "notes.txt",
		Size: int64(len(content)),
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, uint32(len(content)))
	_, err = conn.Write(content)
	require.NoError(t, err)

	// EOF from the server means the handler finished and committed.
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	landed, err := os.ReadFile(filepath.Join(f.root, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, landed)

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp upload files must not survive commit")
}

func TestUploadStoresStreamVerbatim(t *testing.T) {
	f := startTransferServer(t)

	// A client that sends flat-file framing gets it stored byte for
	// byte; the stream is never parsed on the way in.
	stream := buildContainer(t, "app.bin", []byte("data fork only"), true)

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferUpload,
		Path: "app.bin",
		Size: int64(len(stream)),
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, uint32(len(stream)))
	_, err = conn.Write(stream)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	landed, err := os.ReadFile(filepath.Join(f.root, "app.bin"))
	require.NoError(t, err)
	assert.Equal(t, stream, landed)
}

func TestUploadStopsAtDeclaredSize(t *testing.T) {
	f := startTransferServer(t)

	content := []byte("exactly-this-much, and then trailing junk")
	const declared = 17

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferUpload,
		Path: "clipped.txt",
		Size: declared,
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, declared)
	_, err = conn.Write(content)
	require.NoError(t, err)

	// The server closes with the trailing junk unread, so the client
	// sees either EOF or a reset.
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)

	landed, err := os.ReadFile(filepath.Join(f.root, "clipped.txt"))
	require.NoError(t, err)
	assert.Equal(t, content[:declared], landed)
}

func TestUploadUsesRegisteredSizeWhenHandshakeOmitsIt(t *testing.T) {
	f := startTransferServer(t)

	content := []byte("size came from the control transaction")

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferUpload,
		Path: "declared.txt",
		Size: int64(len(content)),
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, 0)
	_, err = conn.Write(content)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	landed, err := os.ReadFile(filepath.Join(f.root, "declared.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, landed)
}

func TestUnknownReferenceClosesSilently(t *testing.T) {
	f := startTransferServer(t)

	conn := f.dial(t, 0xdeadbeef, 0)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	n, err := conn.Read(make([]byte, 1))
	assert.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestReferenceIsSingleUse(t *testing.T) {
	f := startTransferServer(t)

	content := []byte("once")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "once.txt"), content, 0o644))

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferDownload,
		Path: "once.txt",
		Size: int64(len(content)),
	})
	require.NoError(t, err)

	first := f.dial(t, reserved.Reference, 0)
	_ = first.SetReadDeadline(time.Now().Add(10 * time.Second))
	raw, err := io.ReadAll(first)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	second := f.dial(t, reserved.Reference, 0)
	_ = second.SetReadDeadline(time.Now().Add(10 * time.Second))
	n, err := second.Read(make([]byte, 1))
	assert.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestUploadShortStreamDiscardsTemp(t *testing.T) {
	f := startTransferServer(t)

	ctx := context.Background()
	reserved, err := f.transfers.Register(ctx, registry.Transfer{
		Kind: registry.TransferUpload,
		Path: "truncated.txt",
		Size: 64,
	})
	require.NoError(t, err)

	conn := f.dial(t, reserved.Reference, 64)
	_, err = conn.Write([]byte("only ten b"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	_, statErr := os.Stat(filepath.Join(f.root, "truncated.txt"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "aborted uploads must not leave temp files")
}

// buildContainer assembles a client-side flat-file container, optionally
// with a resource fork between the info and data forks.
func buildContainer(t *testing.T, name string, content []byte, withResource bool) []byte {
	t.Helper()

	now := time.Now()
	info := xfer.NewInfoFork(name, "TEXT", "ttxt", now, now)

	forkCount := uint16(2)
	if withResource {
		forkCount = 3
	}

	header := xfer.ContainerHeader{Version: xfer.ContainerVersion, ForkCount: forkCount}
	out := header.Encode()
	out = append(out, (&xfer.ForkHeader{Type: xfer.ForkInfo, DataSize: uint32(info.Size())}).Encode()...)
	out = append(out, info.Encode()...)

	if withResource {
		resource := []byte{0xca, 0xfe, 0xba, 0xbe}
		out = append(out, (&xfer.ForkHeader{Type: xfer.ForkResource, DataSize: uint32(len(resource))}).Encode()...)
		out = append(out, resource...)
	}

	out = append(out, (&xfer.ForkHeader{Type: xfer.ForkData, DataSize: uint32(len(content))}).Encode()...)
	out = append(out, content...)
	return out
}
