package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds session-scoped logging context. A control or transfer
// session stamps one of these into its context at accept time and enriches
// it as the connection progresses (login, transaction dispatch).
type LogContext struct {
	SessionID   string    // short session id (xid)
	RemoteAddr  string    // client address without port
	Login       string    // account login once authenticated
	UserID      uint16    // user id once registered
	Transaction string    // transaction name while dispatching
	StartTime   time.Time // for duration calculation
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection.
func NewLogContext(sessionID, remoteAddr string) *LogContext {
	return &LogContext{
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	out := *lc
	return &out
}

// WithLogin returns a copy with the authenticated login and user id set.
func (lc *LogContext) WithLogin(login string, userID uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Login = login
		clone.UserID = userID
	}
	return clone
}

// WithTransaction returns a copy with the transaction name set.
func (lc *LogContext) WithTransaction(name string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Transaction = name
	}
	return clone
}

// DurationMs returns milliseconds since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
