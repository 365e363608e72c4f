package control

import "time"

// Config holds the control listener settings.
type Config struct {
	// BindAddress is the interface to bind; empty binds all.
	BindAddress string

	// Port is the control listener port.
	Port int

	// ServerName is the advertised server name, used in client info
	// dumps and logs.
	ServerName string

	// MaxConnections bounds concurrent sessions. 0 means unlimited.
	MaxConnections int

	// ReadTimeout is the per-frame header read deadline. 0 disables it.
	ReadTimeout time.Duration

	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown before connections are
	// force-closed.
	ShutdownTimeout time.Duration

	// IdleAway marks sessions away after this much inactivity. 0
	// disables the sweeper.
	IdleAway time.Duration

	// AgreementPath points at an optional agreement text pushed after
	// login.
	AgreementPath string

	// MaxFramePayload rejects larger frame bodies at the reader.
	MaxFramePayload uint32

	// OutboxDepth bounds each session's outbound frame queue.
	OutboxDepth int
}

// applyDefaults fills zero values. Port 0 is left alone: it means an
// ephemeral port, which tests rely on; the config package supplies the
// real default.
func (c *Config) applyDefaults() {
	if c.ServerName == "" {
		c.ServerName = "Halcyon"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxFramePayload == 0 {
		c.MaxFramePayload = 16 << 20
	}
	if c.OutboxDepth == 0 {
		c.OutboxDepth = 64
	}
}
