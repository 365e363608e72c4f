package registry

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
)

// Users owns the set of online users. Ids are assigned from 1 and never
// reused within a server run.
type Users struct {
	bus      *notify.Bus
	cmds     chan userCmd
	snapshot atomic.Value // []wire.UserInfo ordered by id
}

type userCmdKind int

const (
	userAdd userCmdKind = iota
	userUpdate
	userRemove
	userGet
)

type userCmd struct {
	kind  userCmdKind
	user  wire.UserInfo
	id    uint16
	reply chan userReply
}

type userReply struct {
	user wire.UserInfo
	err  error
}

// NewUsers creates the user registry. Run must be started before any
// command is issued.
func NewUsers(bus *notify.Bus, queueDepth int) *Users {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	u := &Users{
		bus:  bus,
		cmds: make(chan userCmd, queueDepth),
	}
	u.snapshot.Store([]wire.UserInfo{})
	return u
}

// Run owns the user map until ctx is cancelled.
func (u *Users) Run(ctx context.Context) {
	users := make(map[uint16]wire.UserInfo)
	nextID := uint16(1)

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-u.cmds:
			switch cmd.kind {
			case userAdd:
				user := cmd.user
				user.ID = nextID
				nextID++
				users[user.ID] = user
				u.publishSnapshot(users)
				cmd.reply <- userReply{user: user}
				u.bus.Publish(notify.Notification{Kind: notify.KindUserJoin, User: user})

			case userUpdate:
				user := cmd.user
				kind := notify.KindUserUpdate
				if _, ok := users[user.ID]; !ok || user.ID == 0 {
					// SetClientUserInfo before login: register on the
					// spot, preserving a caller-chosen id when present.
					if user.ID == 0 {
						user.ID = nextID
						nextID++
					} else if user.ID >= nextID {
						nextID = user.ID + 1
					}
					kind = notify.KindUserJoin
				}
				users[user.ID] = user
				u.publishSnapshot(users)
				cmd.reply <- userReply{user: user}
				u.bus.Publish(notify.Notification{Kind: kind, User: user})

			case userRemove:
				user, ok := users[cmd.id]
				delete(users, cmd.id)
				u.publishSnapshot(users)
				cmd.reply <- userReply{user: user}
				if ok {
					u.bus.Publish(notify.Notification{Kind: notify.KindUserLeave, User: user, TargetID: cmd.id})
				}

			case userGet:
				user, ok := users[cmd.id]
				reply := userReply{user: user}
				if !ok {
					reply.err = ErrUserNotFound
				}
				cmd.reply <- reply
			}
		}
	}
}

func (u *Users) publishSnapshot(users map[uint16]wire.UserInfo) {
	list := make([]wire.UserInfo, 0, len(users))
	for _, user := range users {
		list = append(list, user)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	u.snapshot.Store(list)
}

func (u *Users) send(ctx context.Context, cmd userCmd) (userReply, error) {
	cmd.reply = make(chan userReply, 1)

	select {
	case u.cmds <- cmd:
	case <-ctx.Done():
		return userReply{}, ctx.Err()
	}

	select {
	case reply := <-cmd.reply:
		return reply, reply.err
	case <-ctx.Done():
		// The actor discards the buffered reply; nothing leaks.
		return userReply{}, ctx.Err()
	}
}

// Add registers a user and returns the record with its assigned id.
func (u *Users) Add(ctx context.Context, user wire.UserInfo) (wire.UserInfo, error) {
	reply, err := u.send(ctx, userCmd{kind: userAdd, user: user})
	return reply.user, err
}

// Update replaces the stored record for user.ID. Unknown ids are
// registered instead, preserving the pre-login SetClientUserInfo quirk.
func (u *Users) Update(ctx context.Context, user wire.UserInfo) (wire.UserInfo, error) {
	reply, err := u.send(ctx, userCmd{kind: userUpdate, user: user})
	return reply.user, err
}

// Remove drops a user. Removing an unknown id is not an error.
func (u *Users) Remove(ctx context.Context, id uint16) error {
	_, err := u.send(ctx, userCmd{kind: userRemove, id: id})
	return err
}

// Get returns the user with the given id.
func (u *Users) Get(ctx context.Context, id uint16) (wire.UserInfo, error) {
	reply, err := u.send(ctx, userCmd{kind: userGet, id: id})
	return reply.user, err
}

// Snapshot returns the most recent user list ordered by id. It never
// blocks on the actor; the slice must not be mutated.
func (u *Users) Snapshot() []wire.UserInfo {
	return u.snapshot.Load().([]wire.UserInfo)
}
