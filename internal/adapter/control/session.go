package control

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
	"github.com/halcyonline/halcyon/internal/telemetry"
)

// cleanupTimeout bounds the registry calls made while tearing a session
// down, so a stuck actor cannot leak session goroutines.
const cleanupTimeout = 5 * time.Second

// session is one control connection. It moves through
// new → unauthenticated → established → closed. All handler code runs
// on the session's event loop goroutine; the reader and writer
// goroutines only move frames.
type session struct {
	id     string
	conn   net.Conn
	remote string
	a      *Adapter

	// mu guards user; the idle sweeper updates flags from outside the
	// event loop.
	mu       sync.Mutex
	user     wire.UserInfo
	acct     *account.Account
	login    string
	loggedIn bool

	connectedAt  time.Time
	lastActivity atomic.Int64
	away         atomic.Bool
	autoReply    atomic.Value // string

	outbox chan *wire.Frame
	done   chan struct{}

	// closeOnce signals done; cleanupOnce deregisters the user. They
	// are separate so a login that races a teardown can still undo its
	// registration.
	closeOnce   sync.Once
	cleanupOnce sync.Once

	// pendingName and pendingIcon hold a SetClientUserInfo tuple some
	// clients push before the Login transaction. Only the event loop
	// touches them.
	pendingName string
	pendingIcon uint16

	// serverTranID mints ids for server-initiated requests such as the
	// agreement push.
	serverTranID atomic.Uint32
}

func newSession(conn net.Conn, a *Adapter) *session {
	s := &session{
		id:          xid.New().String(),
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		a:           a,
		connectedAt: time.Now(),
		outbox:      make(chan *wire.Frame, a.config.OutboxDepth),
		done:        make(chan struct{}),
	}
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

func (s *session) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panic", "session_id", s.id, "panic", r)
		}
		s.close()
	}()

	lc := logger.NewLogContext(s.id, s.remote)
	ctx = logger.WithContext(ctx, lc)

	logger.DebugCtx(ctx, "session opened")

	// The writer owns the connection close: it drains queued frames
	// after done is signalled, so replies sent just before a close
	// still reach the client.
	go s.writeLoop()

	if err := s.handshake(); err != nil {
		logger.DebugCtx(ctx, "handshake failed", "error", err)
		return
	}

	ctx, ok := s.loginPhase(ctx, lc)
	if !ok {
		return
	}

	s.established(ctx)
}

// handshake runs the TRTP hello exchange. A refusal reply is still
// written before the connection closes.
func (s *session) handshake() error {
	if s.a.config.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.a.config.ReadTimeout)); err != nil {
			return err
		}
	}

	var raw [wire.HelloSize]byte
	if _, err := io.ReadFull(s.conn, raw[:]); err != nil {
		return err
	}

	hello, err := wire.ParseHello(raw[:])
	if err != nil {
		_, _ = s.conn.Write(wire.EncodeHelloReply(wire.HandshakeErrProtocol))
		return err
	}
	if hello.Version != wire.HandshakeVersion {
		_, _ = s.conn.Write(wire.EncodeHelloReply(wire.HandshakeErrRefused))
		return wire.ErrUnsupportedVersion
	}

	_, err = s.conn.Write(wire.EncodeHelloReply(wire.HandshakeOK))
	return err
}

// loginPhase reads frames until a Login succeeds. A failed Login leaves
// the session unauthenticated and the client may retry; any other
// transaction ends the session.
func (s *session) loginPhase(ctx context.Context, lc *logger.LogContext) (context.Context, bool) {
	for {
		select {
		case <-ctx.Done():
			return ctx, false
		default:
		}

		frame, err := readFrame(s.conn, s.a.config.MaxFramePayload, s.a.config.ReadTimeout)
		if err != nil {
			logger.DebugCtx(ctx, "read before login failed", "error", err)
			return ctx, false
		}

		if frame.Type == wire.TranSetClientUserInfo {
			// Some clients push their nickname and icon ahead of the
			// Login transaction; remember the tuple for it.
			s.pendingName = frame.FieldText(wire.FieldUserName)
			if f, ok := frame.GetField(wire.FieldUserIconID); ok {
				s.pendingIcon = f.Uint16()
			}
			logger.DebugCtx(ctx, "user info stashed before login")
			continue
		}

		if frame.Type != wire.TranLogin {
			logger.WarnCtx(ctx, "transaction before login refused", "tran", wire.TranName(frame.Type))
			s.send(wire.NewError(frame, "You must log in first."))
			return ctx, false
		}

		loginCtx, span := telemetry.StartLoginSpan(ctx,
			telemetry.SessionID(s.id), telemetry.ClientAddr(s.remote))
		err = s.handleLogin(loginCtx, frame)
		if err != nil {
			telemetry.RecordError(loginCtx, err)
			span.End()
			s.a.deps.Metrics.Login(false)
			logger.InfoCtx(ctx, "login denied", "error", err)
			s.send(wire.NewError(frame, "Incorrect login."))
			continue
		}
		span.SetAttributes(telemetry.Login(s.login), telemetry.UserID(s.user.ID))
		span.End()

		s.a.deps.Metrics.Login(true)
		s.a.deps.Metrics.SessionStarted()

		ctx = logger.WithContext(ctx, lc.WithLogin(s.login, s.user.ID))
		logger.InfoCtx(ctx, "login ok", "user_name", s.user.Name)

		s.send(wire.NewReply(frame, wire.NewUint16Field(wire.FieldVersion, wire.ProtocolVersion)))

		if len(s.a.agreement) > 0 {
			s.send(wire.NewRequest(wire.TranShowAgreement, s.nextServerID(),
				wire.NewField(wire.FieldData, s.a.agreement)))
		}

		return ctx, true
	}
}

// handleLogin authenticates the frame's credentials and registers the
// user. Credentials are deobfuscated here and never logged.
func (s *session) handleLogin(ctx context.Context, frame *wire.Frame) error {
	var loginName, password string
	if f, ok := frame.GetField(wire.FieldUserLogin); ok {
		loginName = string(wire.ObfuscateCredentials(f.Data))
	}
	if f, ok := frame.GetField(wire.FieldUserPassword); ok {
		password = string(wire.ObfuscateCredentials(f.Data))
	}

	acct, err := s.a.deps.Accounts.Authenticate(loginName, password)
	if err != nil {
		return err
	}

	// A client that sends no name logs in nameless unless the account
	// pins one. Accounts without the any-name grant always appear under
	// the account's own name.
	name := frame.FieldText(wire.FieldUserName)
	if name == "" {
		name = s.pendingName
	}
	if name == "" || !acct.Permissions.Misc.UseAnyName {
		name = acct.Identity.Name
	}

	var flags uint16
	if acct.Permissions.Misc.Admin {
		flags |= wire.UserFlagAdmin
	}

	user := wire.UserInfo{Flags: flags, Name: name, Icon: s.pendingIcon}
	if f, ok := frame.GetField(wire.FieldUserIconID); ok {
		user.Icon = f.Uint16()
	}

	registered, err := s.a.deps.Users.Add(ctx, user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.user = registered
	s.acct = acct
	s.login = acct.Identity.Login
	s.loggedIn = true
	s.mu.Unlock()

	s.a.sessions.add(s)

	// The writer may have torn the session down while the user was
	// being registered; that teardown saw loggedIn false, so undo the
	// registration here.
	select {
	case <-s.done:
		s.cleanup()
	default:
	}
	return nil
}

// established fair-merges inbound frames and bus notifications,
// handling each event to completion before the next.
func (s *session) established(ctx context.Context) {
	sub := s.a.deps.Bus.Subscribe()
	defer sub.Close()

	inbound := make(chan *wire.Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := readFrame(s.conn, s.a.config.MaxFramePayload, s.a.config.ReadTimeout)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- frame:
			case <-s.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				logger.DebugCtx(ctx, "client disconnected")
			} else {
				logger.DebugCtx(ctx, "session read error", "error", err)
			}
			return

		case frame := <-inbound:
			s.touch(ctx)
			s.dispatch(ctx, frame)

		case n, ok := <-sub.C():
			if !ok {
				return
			}
			if missed := sub.Lagged(); missed > 0 {
				s.a.deps.Metrics.NotificationsLost(missed)
				logger.WarnCtx(ctx, "session lagged, notifications dropped", "missed", missed)
			}
			if !s.deliver(ctx, n) {
				return
			}
		}
	}
}

// send enqueues a frame for the writer. Returns false once the session
// is closing. A full outbox blocks, which is the backpressure that
// eventually stops reading from a slow client.
func (s *session) send(frame *wire.Frame) bool {
	select {
	case s.outbox <- frame:
		return true
	case <-s.done:
		return false
	}
}

// drainWriteTimeout bounds the writes flushed after a session decided
// to close, so a stalled client cannot hold shutdown hostage.
const drainWriteTimeout = 2 * time.Second

func (s *session) writeLoop() {
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case frame := <-s.outbox:
			if err := writeFrame(s.conn, frame, s.a.config.WriteTimeout); err != nil {
				logger.Debug("session write failed", "session_id", s.id, "error", err)
				s.close()
				return
			}
		case <-s.done:
			for {
				select {
				case frame := <-s.outbox:
					if err := writeFrame(s.conn, frame, drainWriteTimeout); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// touch resets the idle clock and clears the away flag if the sweeper
// had set it.
func (s *session) touch(ctx context.Context) {
	s.lastActivity.Store(time.Now().UnixNano())

	if s.away.CompareAndSwap(true, false) {
		s.mu.Lock()
		s.user.Flags &^= wire.UserFlagAway
		user := s.user
		s.mu.Unlock()
		if _, err := s.a.deps.Users.Update(ctx, user); err != nil {
			logger.DebugCtx(ctx, "clear away flag failed", "error", err)
		}
	}
}

// applyIdleFlag is called by the adapter's sweeper goroutine.
func (s *session) applyIdleFlag(ctx context.Context, idleAfter time.Duration) {
	idleFor := time.Since(time.Unix(0, s.lastActivity.Load()))
	if idleFor < idleAfter {
		return
	}
	if !s.away.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	s.user.Flags |= wire.UserFlagAway
	user := s.user
	s.mu.Unlock()

	if _, err := s.a.deps.Users.Update(ctx, user); err != nil {
		logger.Debug("set away flag failed", "session_id", s.id, "error", err)
	}
}

// userSnapshot returns the current user tuple without racing the
// sweeper.
func (s *session) userSnapshot() wire.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *session) nextServerID() uint32 {
	return s.serverTranID.Add(1)
}

// close tears the session down: connection, registries, index. The
// writer and reader notice via done and the closed socket.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.cleanup()
}

// cleanup deregisters a logged-in session exactly once. Safe to call
// again after a login completed under a teardown that ran too early to
// see it.
func (s *session) cleanup() {
	s.mu.Lock()
	loggedIn := s.loggedIn
	s.mu.Unlock()
	if !loggedIn {
		return
	}

	s.cleanupOnce.Do(func() {
		s.a.sessions.remove(s)
		s.a.deps.Metrics.SessionEnded()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		userID := s.userSnapshot().ID
		if err := s.a.deps.Users.Remove(ctx, userID); err != nil {
			logger.Debug("session user removal failed", "session_id", s.id, "error", err)
		}
		if err := s.a.deps.Chats.RemoveUser(ctx, userID); err != nil {
			logger.Debug("session chat cleanup failed", "session_id", s.id, "error", err)
		}
		if released, err := s.a.deps.Transfers.ReleaseSession(ctx, s.id); err == nil && released > 0 {
			logger.Debug("session transfer reservations released", "session_id", s.id, "count", released)
		}
	})
}

// sessionIndex tracks logged-in sessions by user id, for the client
// info dump and the idle sweeper.
type sessionIndex struct {
	mu   sync.RWMutex
	byID map[uint16]*session
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{byID: make(map[uint16]*session)}
}

func (i *sessionIndex) add(s *session) {
	i.mu.Lock()
	i.byID[s.userSnapshot().ID] = s
	i.mu.Unlock()
}

func (i *sessionIndex) remove(s *session) {
	i.mu.Lock()
	delete(i.byID, s.userSnapshot().ID)
	i.mu.Unlock()
}

func (i *sessionIndex) get(userID uint16) (*session, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.byID[userID]
	return s, ok
}

func (i *sessionIndex) each(fn func(*session)) {
	i.mu.RLock()
	sessions := make([]*session, 0, len(i.byID))
	for _, s := range i.byID {
		sessions = append(sessions, s)
	}
	i.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}
