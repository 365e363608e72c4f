package control

import (
	"context"

	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
)

// deliver translates one bus event into an outbound frame for this
// session, applying the target and membership filters. Returns false
// when the session must close (admin disconnect aimed at it).
func (s *session) deliver(ctx context.Context, n notify.Notification) bool {
	user := s.userSnapshot()

	switch n.Kind {
	case notify.KindUserJoin, notify.KindUserUpdate:
		s.push(wire.New(wire.TranNotifyChangeUser,
			wire.NewUint16Field(wire.FieldUserID, n.User.ID),
			wire.NewUint16Field(wire.FieldUserIconID, n.User.Icon),
			wire.NewUint16Field(wire.FieldUserFlags, n.User.Flags),
			wire.NewStringField(wire.FieldUserName, n.User.Name),
		))

	case notify.KindUserLeave:
		s.push(wire.New(wire.TranNotifyDeleteUser,
			wire.NewUint16Field(wire.FieldUserID, n.User.ID),
		))

	case notify.KindChat:
		if n.ChatID != 0 && !s.a.deps.Chats.IsMember(n.ChatID, user.ID) {
			return true
		}
		fields := []wire.Field{wire.NewField(wire.FieldData, n.Text)}
		if n.ChatID != 0 {
			fields = append([]wire.Field{wire.NewUint32Field(wire.FieldChatID, n.ChatID)}, fields...)
		}
		s.push(wire.New(wire.TranChatMsg, fields...))

	case notify.KindInstantMessage:
		if n.TargetID != user.ID {
			return true
		}
		s.deliverInstantMessage(ctx, n, user)

	case notify.KindBroadcast:
		s.push(wire.New(wire.TranServerMsg,
			wire.NewField(wire.FieldData, n.Text),
			wire.NewUint16Field(wire.FieldOptions, 1),
		))

	case notify.KindNews:
		s.push(wire.New(wire.TranNewMsg,
			wire.NewField(wire.FieldData, n.Text),
		))

	case notify.KindChatInvite:
		if n.TargetID != user.ID {
			return true
		}
		s.push(wire.New(wire.TranInviteToChat,
			wire.NewUint32Field(wire.FieldChatID, n.ChatID),
			wire.NewUint16Field(wire.FieldUserID, n.User.ID),
			wire.NewStringField(wire.FieldUserName, n.User.Name),
		))

	case notify.KindChatDecline:
		if !s.a.deps.Chats.IsMember(n.ChatID, user.ID) {
			return true
		}
		s.push(wire.New(wire.TranChatMsg,
			wire.NewUint32Field(wire.FieldChatID, n.ChatID),
			wire.NewStringField(wire.FieldData, "\r*** "+n.User.Name+" declined invitation to chat"),
		))

	case notify.KindChatJoin:
		if !s.a.deps.Chats.IsMember(n.ChatID, user.ID) {
			return true
		}
		s.push(wire.New(wire.TranNotifyChatChangeUser,
			wire.NewUint32Field(wire.FieldChatID, n.ChatID),
			wire.NewUint16Field(wire.FieldUserID, n.User.ID),
			wire.NewUint16Field(wire.FieldUserIconID, n.User.Icon),
			wire.NewUint16Field(wire.FieldUserFlags, n.User.Flags),
			wire.NewStringField(wire.FieldUserName, n.User.Name),
		))

	case notify.KindChatLeave:
		if !s.a.deps.Chats.IsMember(n.ChatID, user.ID) {
			return true
		}
		s.push(wire.New(wire.TranNotifyChatDeleteUser,
			wire.NewUint32Field(wire.FieldChatID, n.ChatID),
			wire.NewUint16Field(wire.FieldUserID, n.TargetID),
		))

	case notify.KindChatSubject:
		if !s.a.deps.Chats.IsMember(n.ChatID, user.ID) {
			return true
		}
		s.push(wire.New(wire.TranNotifyChatSubject,
			wire.NewUint32Field(wire.FieldChatID, n.ChatID),
			wire.NewField(wire.FieldChatSubject, n.Text),
		))

	case notify.KindDisconnect:
		if n.TargetID != user.ID {
			return true
		}
		logger.InfoCtx(ctx, "disconnected by administrator", "by_user_id", n.User.ID)
		s.push(wire.New(wire.TranDisconnectMsg,
			wire.NewField(wire.FieldData, disconnectText(n.Text)),
		))
		return false

	default:
		logger.DebugCtx(ctx, "unhandled notification", "kind", n.Kind.String())
	}

	return true
}

// deliverInstantMessage handles the refuse-PM bounce and the stored
// auto-reply. Automatic messages are delivered but never answered, so
// two auto-responders cannot loop.
func (s *session) deliverInstantMessage(ctx context.Context, n notify.Notification, user wire.UserInfo) {
	if user.RefusesPM() && !n.Auto {
		s.a.deps.Bus.Publish(notify.Notification{
			Kind:     notify.KindInstantMessage,
			User:     user,
			TargetID: n.User.ID,
			Text:     []byte(user.Name + " does not accept private messages."),
			Auto:     true,
		})
		return
	}

	fields := []wire.Field{
		wire.NewUint16Field(wire.FieldUserID, n.User.ID),
		wire.NewStringField(wire.FieldUserName, n.User.Name),
		wire.NewField(wire.FieldData, n.Text),
	}
	if n.Auto {
		fields = append(fields, wire.NewField(wire.FieldAutomaticResponse, nil))
	}
	s.push(wire.New(wire.TranServerMsg, fields...))

	if n.Auto {
		return
	}
	if reply, ok := s.autoReply.Load().(string); ok && reply != "" {
		s.a.deps.Bus.Publish(notify.Notification{
			Kind:     notify.KindInstantMessage,
			User:     user,
			TargetID: n.User.ID,
			Text:     []byte(reply),
			Auto:     true,
		})
	}
}

// push enqueues a server-initiated frame and counts it.
func (s *session) push(frame *wire.Frame) {
	if s.send(frame) {
		s.a.deps.Metrics.NotificationSent()
	}
}

func disconnectText(text []byte) []byte {
	if len(text) > 0 {
		return text
	}
	return []byte("You have been disconnected.")
}
