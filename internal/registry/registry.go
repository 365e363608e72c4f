// Package registry holds the server's online state: users, chat rooms,
// the news feed, and pending file transfers. Each registry is an actor:
// one goroutine owns the mutable state and is reached only through a
// bounded command channel, so sessions never share locks.
//
// Commands that cause a notification reply to their caller first and
// publish second. A session that registers a user therefore sees its own
// user id before any peer sees the join, which is what the protocol's
// reply-then-notify transaction flow requires.
//
// Read-side snapshots (user list, room membership) are published through
// atomic values so that sessions can sample them on the notification hot
// path without queueing behind writers.
package registry

import "errors"

var (
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrChatNotFound indicates an unknown chat room id.
	ErrChatNotFound = errors.New("chat room not found")
	// ErrNotInvited indicates a join attempt without an invitation.
	ErrNotInvited = errors.New("not invited to chat room")
	// ErrTransferNotFound indicates an unknown or already claimed
	// transfer reference.
	ErrTransferNotFound = errors.New("transfer reference not found")
)

// DefaultQueueDepth bounds actor command queues when the config does not
// say otherwise.
const DefaultQueueDepth = 128
