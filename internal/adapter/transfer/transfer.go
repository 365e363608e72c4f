// Package transfer implements the HTXF listener: it claims
// reservations made on the control connection and streams flat-file
// containers in and out of the file area.
package transfer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyonline/halcyon/internal/adapter"
	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/registry"
)

// Config holds the transfer listener settings.
type Config struct {
	// BindAddress is the interface to bind; empty binds all.
	BindAddress string

	// Port is the transfer listener port.
	Port int

	// MaxTransfers bounds concurrent transfer connections. 0 means
	// unlimited.
	MaxTransfers int

	// IOTimeout is the per-chunk deadline, refreshed while bytes keep
	// moving.
	IOTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown before connections are
	// force-closed.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.IOTimeout == 0 {
		c.IOTimeout = time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Deps bundles the transfer adapter's collaborators. Codec must be the
// same text codec the control adapter sizes info forks with, or the
// promised transfer sizes drift from the streamed containers.
type Deps struct {
	Transfers *registry.Transfers
	Files     *files.Area
	Codec     encoding.Codec
	Metrics   *adapter.Metrics
}

// Adapter is the transfer listener. It implements adapter.Adapter.
type Adapter struct {
	config Config
	deps   Deps

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}
	boundPort     atomic.Int32

	shutdown       chan struct{}
	shutdownOnce   sync.Once
	shutdownCtx    context.Context
	cancelActive   context.CancelFunc
	activeConns    sync.WaitGroup
	connCount      atomic.Int32
	activeConnsMap sync.Map

	connSemaphore chan struct{}
}

// New creates a transfer adapter. Call Serve to start it.
func New(config Config, deps Deps) *Adapter {
	config.applyDefaults()

	var semaphore chan struct{}
	if config.MaxTransfers > 0 {
		semaphore = make(chan struct{}, config.MaxTransfers)
	}

	shutdownCtx, cancelActive := context.WithCancel(context.Background())

	return &Adapter{
		config:        config,
		deps:          deps,
		shutdown:      make(chan struct{}),
		shutdownCtx:   shutdownCtx,
		cancelActive:  cancelActive,
		listenerReady: make(chan struct{}),
		connSemaphore: semaphore,
	}
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() string { return "transfer" }

// Port returns the bound port, useful when configured with port 0.
func (a *Adapter) Port() int { return int(a.boundPort.Load()) }

// ListenerReady is closed once the listener accepts connections.
func (a *Adapter) ListenerReady() <-chan struct{} { return a.listenerReady }

// Serve binds the listener and accepts transfer connections until the
// context is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.BindAddress, a.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind transfer listener on %s: %w", addr, err)
	}

	a.listenerMu.Lock()
	a.listener = listener
	a.listenerMu.Unlock()
	a.boundPort.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	close(a.listenerReady)

	logger.Info("transfer listener up", "port", a.Port(), "max_transfers", a.config.MaxTransfers)

	go func() {
		<-ctx.Done()
		a.initiateShutdown()
	}()

	for {
		if a.connSemaphore != nil {
			select {
			case a.connSemaphore <- struct{}{}:
			case <-a.shutdown:
				return a.drain()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if a.connSemaphore != nil {
				<-a.connSemaphore
			}
			select {
			case <-a.shutdown:
				return a.drain()
			default:
				logger.Debug("transfer accept error", "error", err)
				continue
			}
		}

		a.activeConns.Add(1)
		a.connCount.Add(1)
		a.deps.Metrics.ConnectionOpened("transfer")

		connAddr := conn.RemoteAddr().String()
		a.activeConnsMap.Store(connAddr, conn)

		go func() {
			defer func() {
				a.activeConnsMap.Delete(connAddr)
				a.activeConns.Done()
				a.connCount.Add(-1)
				a.deps.Metrics.ConnectionClosed("transfer")
				if a.connSemaphore != nil {
					<-a.connSemaphore
				}
				_ = conn.Close()
			}()
			a.handleConn(a.shutdownCtx, conn)
		}()
	}
}

// Stop initiates graceful shutdown.
func (a *Adapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := a.connCount.Load()
		a.forceClose()
		return fmt.Errorf("transfer shutdown timeout: %d connections force-closed", remaining)
	}
}

func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("transfer shutdown initiated")
		close(a.shutdown)

		a.listenerMu.Lock()
		if a.listener != nil {
			_ = a.listener.Close()
		}
		a.listenerMu.Unlock()

		a.cancelActive()
	})
}

func (a *Adapter) drain() error {
	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("transfer shutdown complete")
		return nil
	case <-time.After(a.config.ShutdownTimeout):
		remaining := a.connCount.Load()
		a.forceClose()
		return fmt.Errorf("transfer shutdown timeout: %d connections force-closed", remaining)
	}
}

func (a *Adapter) forceClose() {
	a.activeConnsMap.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.Close()
			logger.Debug("force-closed transfer connection", "address", key)
		}
		return true
	})
}
