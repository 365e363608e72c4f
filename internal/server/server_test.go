package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonline/halcyon/internal/protocol/wire"
	"github.com/halcyonline/halcyon/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Logging: config.LoggingConfig{Level: "ERROR", Format: "text", Output: "stderr"},
		Server: config.ServerConfig{
			Name:            "Test Box",
			BindAddress:     "127.0.0.1",
			Port:            0,
			TransferPort:    0,
			AllowGuests:     true,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Files:    config.FilesConfig{Root: t.TempDir()},
		Accounts: config.AccountsConfig{Path: t.TempDir()},
		News:     config.NewsConfig{Encoding: "macroman"},
		Limits:   config.LimitsConfig{SubscriberBuffer: 16, QueueDepth: 32},
	}
}

func TestNewRejectsBadEncoding(t *testing.T) {
	cfg := testConfig(t)
	cfg.News.Encoding = "utf16"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewRejectsMissingFilesRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Files.Root = "/nonexistent/halcyon/files"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	assert.NotZero(t, srv.ControlPort())
	assert.NotZero(t, srv.TransferPort())
	assert.NotEqual(t, srv.ControlPort(), srv.TransferPort())

	// The control listener answers the protocol handshake.
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.ControlPort())), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	hello := wire.Hello{SubProtocol: 0x484f544c, Version: wire.HandshakeVersion}
	_, err = conn.Write(hello.Encode())
	require.NoError(t, err)

	raw := make([]byte, wire.HelloReplySize)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, raw)
	require.NoError(t, err)
	code, err := wire.ParseHelloReply(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(wire.HandshakeOK), code)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
