// Package notify implements the server-wide notification bus. Sessions
// and registries publish events onto the bus; every control session
// subscribes and translates the events it cares about into outbound
// transactions.
//
// Publish never blocks: each subscriber has a bounded buffer and a full
// subscriber misses the event instead of stalling the publisher. The
// subscriber observes the gap as a lag count and carries on; a chat line
// lost to a stalled client beats a server-wide pile-up.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/halcyonline/halcyon/internal/protocol/wire"
)

// Kind discriminates notification variants.
type Kind uint8

const (
	// KindUserJoin announces a newly registered user.
	KindUserJoin Kind = iota
	// KindUserUpdate announces a change to a user's name, icon or flags.
	KindUserUpdate
	// KindUserLeave announces a disconnected user.
	KindUserLeave
	// KindChat carries a chat line; ChatID 0 is the public room.
	KindChat
	// KindInstantMessage carries a private message to TargetID.
	KindInstantMessage
	// KindBroadcast carries an admin announcement for everyone.
	KindBroadcast
	// KindNews announces a freshly posted news article.
	KindNews
	// KindChatInvite invites TargetID into room ChatID.
	KindChatInvite
	// KindChatDecline reports a declined invitation to room members.
	KindChatDecline
	// KindChatJoin announces a user joining room ChatID.
	KindChatJoin
	// KindChatLeave announces TargetID leaving room ChatID.
	KindChatLeave
	// KindChatSubject announces a new subject for room ChatID.
	KindChatSubject
	// KindDisconnect orders the session owning TargetID to close.
	KindDisconnect
)

var kindNames = map[Kind]string{
	KindUserJoin:       "user_join",
	KindUserUpdate:     "user_update",
	KindUserLeave:      "user_leave",
	KindChat:           "chat",
	KindInstantMessage: "instant_message",
	KindBroadcast:      "broadcast",
	KindNews:           "news",
	KindChatInvite:     "chat_invite",
	KindChatDecline:    "chat_decline",
	KindChatJoin:       "chat_join",
	KindChatLeave:      "chat_leave",
	KindChatSubject:    "chat_subject",
	KindDisconnect:     "disconnect",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Notification is one bus event. Which fields are meaningful depends on
// Kind: User is the acting user (joiner, sender, inviter), TargetID the
// affected user where the actor and subject differ, Text the payload
// bytes in the client's encoding.
type Notification struct {
	Kind     Kind
	User     wire.UserInfo
	TargetID uint16
	ChatID   uint32
	Text     []byte
	Auto     bool // marks automatic replies so two auto-responders cannot loop
}

// LaggedError reports events missed by a slow subscriber since it last
// caught up. The subscriber may keep receiving afterwards.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged: %d notifications dropped", e.Missed)
}

// Bus is the process-wide broadcast channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus whose subscribers buffer up to buffer notifications.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The caller owns the subscriber
// and must Close it when done.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		bus: b,
		ch:  make(chan Notification, b.buffer),
	}

	b.mu.Lock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	return s
}

// Publish delivers n to every current subscriber without blocking. Full
// subscribers miss the event and have their lag counter bumped.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for s := range b.subs {
		select {
		case s.ch <- n:
		default:
			s.missed.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Close shuts the bus down. Subscriber channels are closed so receivers
// observe end-of-stream; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Published returns the total notifications accepted by Publish.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the total notifications missed by lagging subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscriber is one receiver end of the bus.
type Subscriber struct {
	bus    *Bus
	ch     chan Notification
	missed atomic.Uint64
	once   sync.Once
}

// C exposes the receive channel for use in a select loop. The channel is
// closed when the subscriber or the bus closes.
func (s *Subscriber) C() <-chan Notification {
	return s.ch
}

// Lagged returns the notifications missed since the last call and resets
// the counter.
func (s *Subscriber) Lagged() uint64 {
	return s.missed.Swap(0)
}

// Recv returns the next notification. After a gap it first reports a
// LaggedError; the subscriber remains usable. A closed bus or cancelled
// context ends the stream with the context or a closed-channel error.
func (s *Subscriber) Recv(ctx context.Context) (Notification, error) {
	if missed := s.Lagged(); missed > 0 {
		return Notification{}, &LaggedError{Missed: missed}
	}

	select {
	case n, ok := <-s.ch:
		if !ok {
			return Notification{}, context.Canceled
		}
		return n, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// Close detaches the subscriber from the bus and closes its channel.
// Safe to call more than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
		s.bus.mu.Unlock()
	})
}
