package registry

import (
	"context"
	"sync/atomic"

	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
)

// Room is a private chat room: subject, members in join order, and the
// set of invited user ids allowed to join.
type Room struct {
	ID         uint32
	Subject    string
	HasSubject bool
	Members    []wire.UserInfo

	invited map[uint16]struct{}
}

// IsMember reports whether id is currently in the room.
func (r *Room) IsMember(id uint16) bool {
	for _, m := range r.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (r *Room) clone() Room {
	out := *r
	out.Members = append([]wire.UserInfo(nil), r.Members...)
	out.invited = nil
	return out
}

// Chats owns the private chat rooms. Room ids are assigned from 1.
type Chats struct {
	bus      *notify.Bus
	cmds     chan chatCmd
	snapshot atomic.Value // map[uint32]Room, rooms and member slices immutable
}

type chatCmdKind int

const (
	chatCreate chatCmdKind = iota
	chatInvite
	chatDecline
	chatJoin
	chatLeave
	chatSetSubject
	chatRemoveUser
)

type chatCmd struct {
	kind     chatCmdKind
	chatID   uint32
	user     wire.UserInfo // creator, joiner, inviter or decliner
	targetID uint16
	invitees []uint16
	subject  string
	reply    chan chatReply
}

type chatReply struct {
	room Room
	err  error
}

// NewChats creates the chat registry. Run must be started before any
// command is issued.
func NewChats(bus *notify.Bus, queueDepth int) *Chats {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	c := &Chats{
		bus:  bus,
		cmds: make(chan chatCmd, queueDepth),
	}
	c.snapshot.Store(map[uint32]Room{})
	return c
}

// Run owns the room map until ctx is cancelled.
func (c *Chats) Run(ctx context.Context) {
	rooms := make(map[uint32]*Room)
	nextID := uint32(1)

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-c.cmds:
			switch cmd.kind {
			case chatCreate:
				room := &Room{
					ID:      nextID,
					Members: []wire.UserInfo{cmd.user},
					invited: make(map[uint16]struct{}, len(cmd.invitees)+1),
				}
				nextID++
				room.invited[cmd.user.ID] = struct{}{}
				for _, id := range cmd.invitees {
					room.invited[id] = struct{}{}
				}
				rooms[room.ID] = room
				c.publishSnapshot(rooms)
				cmd.reply <- chatReply{room: room.clone()}
				for _, id := range cmd.invitees {
					if id == cmd.user.ID {
						continue
					}
					c.bus.Publish(notify.Notification{
						Kind:     notify.KindChatInvite,
						ChatID:   room.ID,
						TargetID: id,
						User:     cmd.user,
					})
				}

			case chatInvite:
				room, ok := rooms[cmd.chatID]
				if !ok {
					cmd.reply <- chatReply{err: ErrChatNotFound}
					continue
				}
				room.invited[cmd.targetID] = struct{}{}
				cmd.reply <- chatReply{room: room.clone()}
				c.bus.Publish(notify.Notification{
					Kind:     notify.KindChatInvite,
					ChatID:   cmd.chatID,
					TargetID: cmd.targetID,
					User:     cmd.user,
				})

			case chatDecline:
				room, ok := rooms[cmd.chatID]
				if !ok {
					cmd.reply <- chatReply{err: ErrChatNotFound}
					continue
				}
				delete(room.invited, cmd.user.ID)
				cmd.reply <- chatReply{room: room.clone()}
				c.bus.Publish(notify.Notification{
					Kind:   notify.KindChatDecline,
					ChatID: cmd.chatID,
					User:   cmd.user,
				})

			case chatJoin:
				room, ok := rooms[cmd.chatID]
				if !ok {
					cmd.reply <- chatReply{err: ErrChatNotFound}
					continue
				}
				if _, invited := room.invited[cmd.user.ID]; !invited {
					cmd.reply <- chatReply{err: ErrNotInvited}
					continue
				}
				if !room.IsMember(cmd.user.ID) {
					room.Members = append(room.Members, cmd.user)
				}
				c.publishSnapshot(rooms)
				cmd.reply <- chatReply{room: room.clone()}
				c.bus.Publish(notify.Notification{
					Kind:   notify.KindChatJoin,
					ChatID: cmd.chatID,
					User:   cmd.user,
				})

			case chatLeave:
				room, ok := rooms[cmd.chatID]
				if !ok {
					cmd.reply <- chatReply{err: ErrChatNotFound}
					continue
				}
				c.removeMember(rooms, room, cmd.targetID)
				cmd.reply <- chatReply{}

			case chatSetSubject:
				room, ok := rooms[cmd.chatID]
				if !ok {
					cmd.reply <- chatReply{err: ErrChatNotFound}
					continue
				}
				room.Subject = cmd.subject
				room.HasSubject = true
				c.publishSnapshot(rooms)
				cmd.reply <- chatReply{room: room.clone()}
				c.bus.Publish(notify.Notification{
					Kind:   notify.KindChatSubject,
					ChatID: cmd.chatID,
					Text:   []byte(cmd.subject),
				})

			case chatRemoveUser:
				for _, room := range rooms {
					if room.IsMember(cmd.targetID) {
						c.removeMember(rooms, room, cmd.targetID)
					} else {
						delete(room.invited, cmd.targetID)
					}
				}
				cmd.reply <- chatReply{}
			}
		}
	}
}

// removeMember drops id from the room, deleting the room when it empties,
// and publishes the leave. Callers already hold the actor goroutine.
func (c *Chats) removeMember(rooms map[uint32]*Room, room *Room, id uint16) {
	for i, m := range room.Members {
		if m.ID == id {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}
	if len(room.Members) == 0 {
		delete(rooms, room.ID)
	}
	c.publishSnapshot(rooms)
	c.bus.Publish(notify.Notification{
		Kind:     notify.KindChatLeave,
		ChatID:   room.ID,
		TargetID: id,
	})
}

func (c *Chats) publishSnapshot(rooms map[uint32]*Room) {
	snap := make(map[uint32]Room, len(rooms))
	for id, room := range rooms {
		snap[id] = room.clone()
	}
	c.snapshot.Store(snap)
}

func (c *Chats) send(ctx context.Context, cmd chatCmd) (chatReply, error) {
	cmd.reply = make(chan chatReply, 1)

	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return chatReply{}, ctx.Err()
	}

	select {
	case reply := <-cmd.reply:
		return reply, reply.err
	case <-ctx.Done():
		return chatReply{}, ctx.Err()
	}
}

// Create opens a room with creator as its sole member, records the
// invitees, and publishes an invitation to each of them.
func (c *Chats) Create(ctx context.Context, creator wire.UserInfo, invitees []uint16) (Room, error) {
	reply, err := c.send(ctx, chatCmd{kind: chatCreate, user: creator, invitees: invitees})
	return reply.room, err
}

// Invite adds target to the room's invitation set and publishes the
// invitation on inviter's behalf.
func (c *Chats) Invite(ctx context.Context, chatID uint32, target uint16, inviter wire.UserInfo) error {
	_, err := c.send(ctx, chatCmd{kind: chatInvite, chatID: chatID, targetID: target, user: inviter})
	return err
}

// Decline withdraws decliner's invitation and tells the room.
func (c *Chats) Decline(ctx context.Context, chatID uint32, decliner wire.UserInfo) error {
	_, err := c.send(ctx, chatCmd{kind: chatDecline, chatID: chatID, user: decliner})
	return err
}

// Join adds an invited user to the room and returns the room state with
// the joiner included.
func (c *Chats) Join(ctx context.Context, chatID uint32, user wire.UserInfo) (Room, error) {
	reply, err := c.send(ctx, chatCmd{kind: chatJoin, chatID: chatID, user: user})
	return reply.room, err
}

// Leave removes a member; the last member out deletes the room.
func (c *Chats) Leave(ctx context.Context, chatID uint32, userID uint16) error {
	_, err := c.send(ctx, chatCmd{kind: chatLeave, chatID: chatID, targetID: userID})
	return err
}

// SetSubject stores the room subject, last writer wins.
func (c *Chats) SetSubject(ctx context.Context, chatID uint32, subject string) error {
	_, err := c.send(ctx, chatCmd{kind: chatSetSubject, chatID: chatID, subject: subject})
	return err
}

// RemoveUser drops a disconnected user from every room and invitation
// set.
func (c *Chats) RemoveUser(ctx context.Context, userID uint16) error {
	_, err := c.send(ctx, chatCmd{kind: chatRemoveUser, targetID: userID})
	return err
}

// Rooms returns the most recent room snapshot. It never blocks on the
// actor; rooms and member slices must not be mutated.
func (c *Chats) Rooms() map[uint32]Room {
	return c.snapshot.Load().(map[uint32]Room)
}

// IsMember samples the snapshot for delivery filtering.
func (c *Chats) IsMember(chatID uint32, userID uint16) bool {
	room, ok := c.Rooms()[chatID]
	return ok && room.IsMember(userID)
}
