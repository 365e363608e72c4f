// Package control implements the TRTP control listener: handshake,
// login, transaction dispatch, and notification fan-out to sessions.
package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/adapter"
	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/registry"
)

// Deps bundles the collaborators every session works against.
type Deps struct {
	Bus       *notify.Bus
	Users     *registry.Users
	Chats     *registry.Chats
	News      *registry.News
	Transfers *registry.Transfers
	Accounts  *account.Store
	Files     *files.Area
	Codec     encoding.Codec
	Metrics   *adapter.Metrics
}

// Adapter is the control listener. It implements adapter.Adapter.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed, no new connections
//  3. Session contexts cancelled, blocking reads interrupted
//  4. Wait for active sessions up to ShutdownTimeout
//  5. Force-close whatever remains
type Adapter struct {
	config Config
	deps   Deps

	agreement []byte

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}
	boundPort     atomic.Int32

	shutdown       chan struct{}
	shutdownOnce   sync.Once
	shutdownCtx    context.Context
	cancelSessions context.CancelFunc

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	// remote addr -> net.Conn, for interrupting reads and force-close
	activeConnections sync.Map

	connSemaphore chan struct{}

	sessions *sessionIndex
}

// New creates a control adapter. Call Serve to start it.
func New(config Config, deps Deps) *Adapter {
	config.applyDefaults()

	var semaphore chan struct{}
	if config.MaxConnections > 0 {
		semaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelSessions := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		deps:           deps,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelSessions: cancelSessions,
		listenerReady:  make(chan struct{}),
		connSemaphore:  semaphore,
		sessions:       newSessionIndex(),
	}
}

// Protocol implements adapter.Adapter.
func (a *Adapter) Protocol() string { return "control" }

// Port returns the bound port, useful when configured with port 0.
func (a *Adapter) Port() int { return int(a.boundPort.Load()) }

// ListenerReady is closed once the listener accepts connections. Tests
// use it to synchronize with startup.
func (a *Adapter) ListenerReady() <-chan struct{} { return a.listenerReady }

// Serve binds the listener and accepts sessions until the context is
// cancelled or an unrecoverable error occurs.
func (a *Adapter) Serve(ctx context.Context) error {
	if a.config.AgreementPath != "" {
		data, err := os.ReadFile(a.config.AgreementPath)
		if err != nil {
			return fmt.Errorf("read agreement file: %w", err)
		}
		a.agreement = data
	}

	addr := fmt.Sprintf("%s:%d", a.config.BindAddress, a.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind control listener on %s: %w", addr, err)
	}

	a.listenerMu.Lock()
	a.listener = listener
	a.listenerMu.Unlock()
	a.boundPort.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	close(a.listenerReady)

	logger.Info("control listener up", "port", a.Port(), "max_connections", a.config.MaxConnections)

	go func() {
		<-ctx.Done()
		a.initiateShutdown()
	}()

	if a.config.IdleAway > 0 {
		go a.sweepIdle(a.shutdownCtx)
	}

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
				logger.Debug("control accept error", "error", err)
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		a.activeConns.Add(1)
		a.connCount.Add(1)
		a.deps.Metrics.ConnectionOpened("control")

		connAddr := conn.RemoteAddr().String()
		a.activeConnections.Store(connAddr, conn)

		sess := newSession(conn, a)
		go func() {
			defer func() {
				a.activeConnections.Delete(connAddr)
				a.activeConns.Done()
				a.connCount.Add(-1)
				a.deps.Metrics.ConnectionClosed("control")
				if a.connSemaphore != nil {
					<-a.connSemaphore
				}
			}()
			sess.run(a.shutdownCtx)
		}()
	}
}

// Stop initiates graceful shutdown. Safe to call more than once and
// concurrently with Serve.
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
		return fmt.Errorf("control shutdown timeout: %d sessions force-closed", remaining)
	}
}

func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("control shutdown initiated")
		close(a.shutdown)

		a.listenerMu.Lock()
		if a.listener != nil {
			_ = a.listener.Close()
		}
		a.listenerMu.Unlock()

		// A short deadline unblocks sessions stuck in a frame read so
		// they notice the cancelled context promptly.
		deadline := time.Now().Add(100 * time.Millisecond)
		a.activeConnections.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})

		a.cancelSessions()
	})
}

// drain waits for active sessions after the accept loop has stopped.
func (a *Adapter) drain() error {
	active := a.connCount.Load()
	logger.Info("control draining sessions", "active", active, "timeout", a.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("control shutdown complete")
		return nil
	case <-time.After(a.config.ShutdownTimeout):
		remaining := a.connCount.Load()
		a.forceClose()
		return fmt.Errorf("control shutdown timeout: %d sessions force-closed", remaining)
	}
}

func (a *Adapter) forceClose() {
	a.activeConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			_ = conn.Close()
			logger.Debug("force-closed control connection", "address", key)
		}
		return true
	})
}

// sweepIdle periodically flags sessions idle past IdleAway as away and
// clears the flag once they act again.
func (a *Adapter) sweepIdle(ctx context.Context) {
	interval := a.config.IdleAway / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sessions.each(func(s *session) {
				s.applyIdleFlag(ctx, a.config.IdleAway)
			})
		}
	}
}
