package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/logger"
	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
	"github.com/halcyonline/halcyon/internal/protocol/xfer"
	"github.com/halcyonline/halcyon/internal/registry"
	"github.com/halcyonline/halcyon/internal/telemetry"
)

type handlerFunc func(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error)

// operation is one dispatch table row. A nil permitted accepts every
// logged-in session.
type operation struct {
	name      string
	handler   handlerFunc
	permitted func(p *account.Permissions) bool
	denial    string
}

var operations = map[uint16]*operation{
	wire.TranGetUserNameList:   {name: "GetUserNameList", handler: handleGetUserNameList},
	wire.TranGetMsgs:           {name: "GetMessages", handler: handleGetMessages, permitted: func(p *account.Permissions) bool { return p.News.Read }, denial: "read the news"},
	wire.TranOldPostNews:       {name: "PostNews", handler: handlePostNews, permitted: func(p *account.Permissions) bool { return p.News.Post }, denial: "post news"},
	wire.TranGetFileNameList:   {name: "GetFileNameList", handler: handleGetFileNameList},
	wire.TranGetFileInfo:       {name: "GetFileInfo", handler: handleGetFileInfo},
	wire.TranSetClientUserInfo: {name: "SetClientUserInfo", handler: handleSetClientUserInfo},
	wire.TranChatSend:          {name: "SendChat", handler: handleSendChat, permitted: func(p *account.Permissions) bool { return p.Chat.Send }, denial: "participate in chat"},
	wire.TranSendInstantMsg:    {name: "SendInstantMessage", handler: handleSendInstantMessage},
	wire.TranUserBroadcast:     {name: "UserBroadcast", handler: handleUserBroadcast, permitted: func(p *account.Permissions) bool { return p.User.Broadcast }, denial: "broadcast messages"},
	wire.TranInviteNewChat:     {name: "InviteToNewChat", handler: handleInviteToNewChat, permitted: func(p *account.Permissions) bool { return p.Chat.Send }, denial: "participate in chat"},
	wire.TranInviteToChat:      {name: "InviteToChat", handler: handleInviteToChat, permitted: func(p *account.Permissions) bool { return p.Chat.Send }, denial: "participate in chat"},
	wire.TranRejectChatInvite:  {name: "RejectChatInvite", handler: handleRejectChatInvite},
	wire.TranJoinChat:          {name: "JoinChat", handler: handleJoinChat},
	wire.TranLeaveChat:         {name: "LeaveChat", handler: handleLeaveChat},
	wire.TranSetChatSubject:    {name: "SetChatSubject", handler: handleSetChatSubject, permitted: func(p *account.Permissions) bool { return p.Chat.SetSubject }, denial: "set chat subjects"},
	wire.TranGetClientInfoText: {name: "GetClientInfoText", handler: handleGetClientInfoText, permitted: func(p *account.Permissions) bool { return p.User.GetInfo }, denial: "view client information"},
	wire.TranDownloadFile:      {name: "DownloadFile", handler: handleDownloadFile, permitted: func(p *account.Permissions) bool { return p.File.Download }, denial: "download files"},
	wire.TranUploadFile:        {name: "UploadFile", handler: handleUploadFile, permitted: func(p *account.Permissions) bool { return p.File.Upload }, denial: "upload files"},
	wire.TranNewFolder:         {name: "NewFolder", handler: handleNewFolder, permitted: func(p *account.Permissions) bool { return p.File.MakeFolder }, denial: "create folders"},
	wire.TranDeleteFile:        {name: "DeleteFile", handler: handleDeleteFile, permitted: func(p *account.Permissions) bool { return p.File.Delete }, denial: "delete files"},
	wire.TranMoveFile:          {name: "MoveFile", handler: handleMoveFile, permitted: func(p *account.Permissions) bool { return p.File.Rename }, denial: "move files"},
	wire.TranAgreed:            {name: "Agreed", handler: handleAgreed},
	wire.TranDisconnectUser:    {name: "DisconnectUser", handler: handleDisconnectUser, permitted: func(p *account.Permissions) bool { return p.User.Disconnect }, denial: "disconnect users"},
	wire.TranKeepAlive:         {name: "KeepAlive", handler: handleKeepAlive},
}

// dispatch routes one inbound frame. Unknown or unsupported types are
// logged and ignored without a reply.
func (s *session) dispatch(ctx context.Context, req *wire.Frame) {
	op, ok := operations[req.Type]
	if !ok {
		logger.DebugCtx(ctx, "unsupported transaction ignored", "tran", wire.TranName(req.Type), "tran_id", req.ID)
		return
	}

	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithTransaction(op.name))
	ctx, span := telemetry.StartTransactionSpan(ctx, op.name, req.Type, req.ID,
		telemetry.SessionID(s.id), telemetry.ClientAddr(s.remote))
	defer span.End()

	if op.permitted != nil && !op.permitted(&s.acct.Permissions) {
		logger.InfoCtx(ctx, "transaction denied")
		s.a.deps.Metrics.FrameHandled(op.name, 0, true)
		s.send(wire.NewError(req, "You are not allowed to "+op.denial+"."))
		return
	}

	start := time.Now()
	reply, err := op.handler(ctx, s, req)
	s.a.deps.Metrics.FrameHandled(op.name, time.Since(start).Seconds(), err != nil)

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "transaction failed", "error", err)
		s.send(wire.NewError(req, errorText(err)))
		return
	}
	if reply != nil {
		s.send(reply)
	}
}

// errorText maps internal errors to the message carried in an error
// reply. File-area sentinels get client-friendly wording.
func errorText(err error) string {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return "File not found."
	case errors.Is(err, files.ErrExists):
		return "A file with that name already exists."
	case errors.Is(err, files.ErrPathEscape):
		return "Invalid file path."
	case errors.Is(err, registry.ErrChatNotFound):
		return "Chat does not exist."
	case errors.Is(err, registry.ErrNotInvited):
		return "You were not invited to this chat."
	case errors.Is(err, registry.ErrUserNotFound):
		return "User not found."
	default:
		return err.Error()
	}
}

func handleGetUserNameList(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	users := s.a.deps.Users.Snapshot()
	fields := make([]wire.Field, 0, len(users))
	for _, u := range users {
		fields = append(fields, u.Field())
	}
	return wire.NewReply(req, fields...), nil
}

func handleGetMessages(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	text, err := s.a.deps.News.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return wire.NewReply(req, wire.NewField(wire.FieldData, text)), nil
}

func handlePostNews(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	text := req.FieldBytes(wire.FieldData)
	if len(text) == 0 {
		return nil, errors.New("empty news post")
	}
	if err := s.a.deps.News.Post(ctx, text); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func handleGetFileNameList(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestPath(s, req, wire.FieldFilePath)
	if err != nil {
		return nil, err
	}

	entries, err := s.a.deps.Files.List(parts)
	if err != nil {
		return nil, err
	}

	fields := make([]wire.Field, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, wire.FileEntry{
			Type:    e.Type,
			Creator: e.Creator,
			Size:    e.Size,
			Name:    s.a.deps.Codec.Encode(e.Name),
		}.Field())
	}
	return wire.NewReply(req, fields...), nil
}

func handleGetFileInfo(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}

	info, err := s.a.deps.Files.Info(parts)
	if err != nil {
		return nil, err
	}

	fields := []wire.Field{
		wire.NewField(wire.FieldFileName, s.a.deps.Codec.Encode(info.Name)),
		wire.NewStringField(wire.FieldFileTypeString, info.Type),
		wire.NewStringField(wire.FieldFileCreatorString, info.Creator),
		wire.NewDateField(wire.FieldFileCreateDate, info.CreatedAt),
		wire.NewDateField(wire.FieldFileModifyDate, info.ModifiedAt),
		wire.NewStringField(wire.FieldFileType, info.Type),
		// Always present, empty when no comment has been set.
		wire.NewField(wire.FieldFileComment, s.a.deps.Codec.Encode(info.Comment)),
	}
	if !info.IsDir {
		fields = append(fields, wire.NewUint32Field(wire.FieldFileSize, uint32(info.Size)))
	}
	return wire.NewReply(req, fields...), nil
}

// handleSetClientUserInfo updates name and icon; notification only, no
// reply. An AutomaticResponse field arms or clears the auto-reply.
func handleSetClientUserInfo(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	if f, ok := req.GetField(wire.FieldAutomaticResponse); ok {
		s.autoReply.Store(string(f.Data))
	}
	return nil, updateUserTuple(ctx, s, req)
}

func handleAgreed(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	if err := updateUserTuple(ctx, s, req); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func updateUserTuple(ctx context.Context, s *session, req *wire.Frame) error {
	s.mu.Lock()
	if name := req.FieldText(wire.FieldUserName); name != "" && s.acct.Permissions.Misc.UseAnyName {
		s.user.Name = name
	}
	if f, ok := req.GetField(wire.FieldUserIconID); ok {
		s.user.Icon = f.Uint16()
	}
	user := s.user
	s.mu.Unlock()

	_, err := s.a.deps.Users.Update(ctx, user)
	return err
}

func handleSendChat(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	text := req.FieldBytes(wire.FieldData)
	user := s.userSnapshot()

	var chatID uint32
	if f, ok := req.GetField(wire.FieldChatID); ok {
		chatID = f.Uint32()
		if !s.a.deps.Chats.IsMember(chatID, user.ID) {
			return nil, errors.New("not a member of this chat")
		}
	}

	var line []byte
	if f, ok := req.GetField(wire.FieldChatOptions); ok && f.Uint16() == wire.ChatOptionAction {
		line = append([]byte("\r*** "+user.Name+" "), text...)
	} else {
		line = append([]byte("\r "+user.Name+": "), text...)
	}

	s.a.deps.Bus.Publish(notify.Notification{
		Kind:   notify.KindChat,
		User:   user,
		ChatID: chatID,
		Text:   line,
	})
	return nil, nil
}

func handleSendInstantMessage(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	target, ok := req.GetField(wire.FieldUserID)
	if !ok {
		return nil, errors.New("missing target user")
	}

	s.a.deps.Bus.Publish(notify.Notification{
		Kind:     notify.KindInstantMessage,
		User:     s.userSnapshot(),
		TargetID: target.Uint16(),
		Text:     req.FieldBytes(wire.FieldData),
	})
	return wire.NewReply(req), nil
}

func handleUserBroadcast(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	s.a.deps.Bus.Publish(notify.Notification{
		Kind: notify.KindBroadcast,
		User: s.userSnapshot(),
		Text: req.FieldBytes(wire.FieldData),
	})
	return wire.NewReply(req), nil
}

func handleInviteToNewChat(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	var invitees []uint16
	for _, f := range req.Fields {
		if f.ID == wire.FieldUserID {
			invitees = append(invitees, f.Uint16())
		}
	}

	user := s.userSnapshot()
	room, err := s.a.deps.Chats.Create(ctx, user, invitees)
	if err != nil {
		return nil, err
	}

	return wire.NewReply(req,
		wire.NewUint32Field(wire.FieldChatID, room.ID),
		wire.NewUint16Field(wire.FieldUserID, user.ID),
		wire.NewUint16Field(wire.FieldUserIconID, user.Icon),
		wire.NewUint16Field(wire.FieldUserFlags, user.Flags),
		wire.NewStringField(wire.FieldUserName, user.Name),
	), nil
}

func handleInviteToChat(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	chatField, ok := req.GetField(wire.FieldChatID)
	if !ok {
		return nil, errors.New("missing chat id")
	}
	targetField, ok := req.GetField(wire.FieldUserID)
	if !ok {
		return nil, errors.New("missing target user")
	}

	user := s.userSnapshot()
	if !s.a.deps.Chats.IsMember(chatField.Uint32(), user.ID) {
		return nil, errors.New("not a member of this chat")
	}

	if err := s.a.deps.Chats.Invite(ctx, chatField.Uint32(), targetField.Uint16(), user); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func handleRejectChatInvite(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	chatField, ok := req.GetField(wire.FieldChatID)
	if !ok {
		return nil, errors.New("missing chat id")
	}
	return nil, s.a.deps.Chats.Decline(ctx, chatField.Uint32(), s.userSnapshot())
}

func handleJoinChat(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	chatField, ok := req.GetField(wire.FieldChatID)
	if !ok {
		return nil, errors.New("missing chat id")
	}

	room, err := s.a.deps.Chats.Join(ctx, chatField.Uint32(), s.userSnapshot())
	if err != nil {
		return nil, err
	}

	var fields []wire.Field
	if room.HasSubject {
		fields = append(fields, wire.NewStringField(wire.FieldChatSubject, room.Subject))
	}
	for _, m := range room.Members {
		fields = append(fields, m.Field())
	}
	return wire.NewReply(req, fields...), nil
}

func handleLeaveChat(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	chatField, ok := req.GetField(wire.FieldChatID)
	if !ok {
		return nil, errors.New("missing chat id")
	}
	return nil, s.a.deps.Chats.Leave(ctx, chatField.Uint32(), s.userSnapshot().ID)
}

func handleSetChatSubject(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	chatField, ok := req.GetField(wire.FieldChatID)
	if !ok {
		return nil, errors.New("missing chat id")
	}
	subject := req.FieldText(wire.FieldChatSubject)
	return nil, s.a.deps.Chats.SetSubject(ctx, chatField.Uint32(), subject)
}

func handleGetClientInfoText(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	target, ok := req.GetField(wire.FieldUserID)
	if !ok {
		return nil, errors.New("missing target user")
	}

	other, ok := s.a.sessions.get(target.Uint16())
	if !ok {
		return nil, registry.ErrUserNotFound
	}

	user := other.userSnapshot()
	idle := time.Since(time.Unix(0, other.lastActivity.Load())).Round(time.Second)

	var b strings.Builder
	fmt.Fprintf(&b, "Name:      %s\r", user.Name)
	fmt.Fprintf(&b, "Account:   %s\r", other.login)
	fmt.Fprintf(&b, "Address:   %s\r", other.remote)
	fmt.Fprintf(&b, "Server:    %s\r", s.a.config.ServerName)
	fmt.Fprintf(&b, "Connected: %s\r", other.connectedAt.Format(time.Stamp))
	fmt.Fprintf(&b, "Idle:      %s\r", idle)

	return wire.NewReply(req,
		wire.NewStringField(wire.FieldUserName, user.Name),
		wire.NewField(wire.FieldData, s.a.deps.Codec.Encode(b.String())),
	), nil
}

func handleDownloadFile(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}

	info, err := s.a.deps.Files.Info(parts)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return nil, errors.New("cannot download a folder")
	}

	fork := xfer.NewInfoFork(string(s.a.deps.Codec.Encode(info.Name)), info.Type, info.Creator, info.CreatedAt, info.ModifiedAt)
	transferSize := xfer.ContainerSize(fork, info.Size)

	transfer, err := s.a.deps.Transfers.Register(ctx, registry.Transfer{
		Kind:      registry.TransferDownload,
		Path:      strings.Join(parts, "/"),
		Size:      info.Size,
		SessionID: s.id,
		UserName:  s.userSnapshot().Name,
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "download reserved",
		"ref", transfer.Reference, "transfer_id", transfer.CorrelationID.String(),
		"path", transfer.Path, "bytes", info.Size)

	return wire.NewReply(req,
		wire.NewUint32Field(wire.FieldTransferSize, uint32(transferSize)),
		wire.NewUint32Field(wire.FieldFileSize, uint32(info.Size)),
		wire.NewUint32Field(wire.FieldRefNum, transfer.Reference),
		wire.NewUint16Field(wire.FieldWaitingCount, 0),
	), nil
}

func handleUploadFile(ctx context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}
	if s.a.deps.Files.Exists(parts) {
		return nil, files.ErrExists
	}

	var declared int64
	if f, ok := req.GetField(wire.FieldTransferSize); ok {
		declared = int64(f.Uint32())
	}

	transfer, err := s.a.deps.Transfers.Register(ctx, registry.Transfer{
		Kind:      registry.TransferUpload,
		Path:      strings.Join(parts, "/"),
		Size:      declared,
		SessionID: s.id,
		UserName:  s.userSnapshot().Name,
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "upload reserved",
		"ref", transfer.Reference, "transfer_id", transfer.CorrelationID.String(),
		"path", transfer.Path)

	return wire.NewReply(req,
		wire.NewUint32Field(wire.FieldRefNum, transfer.Reference),
	), nil
}

func handleNewFolder(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}
	if err := s.a.deps.Files.Mkdir(parts); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func handleDeleteFile(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	parts, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}
	if err := s.a.deps.Files.Delete(parts); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func handleMoveFile(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	src, err := requestFilePath(s, req)
	if err != nil {
		return nil, err
	}
	dst, err := requestPath(s, req, wire.FieldFileNewPath)
	if err != nil {
		return nil, err
	}
	if err := s.a.deps.Files.Move(src, dst); err != nil {
		return nil, err
	}
	return wire.NewReply(req), nil
}

func handleDisconnectUser(_ context.Context, s *session, req *wire.Frame) (*wire.Frame, error) {
	target, ok := req.GetField(wire.FieldUserID)
	if !ok {
		return nil, errors.New("missing target user")
	}

	s.a.deps.Bus.Publish(notify.Notification{
		Kind:     notify.KindDisconnect,
		User:     s.userSnapshot(),
		TargetID: target.Uint16(),
		Text:     req.FieldBytes(wire.FieldData),
	})
	return wire.NewReply(req), nil
}

func handleKeepAlive(_ context.Context, _ *session, req *wire.Frame) (*wire.Frame, error) {
	return wire.NewReply(req), nil
}

// requestPath decodes an optional wire path parameter into file-area
// components; absent means the root.
func requestPath(s *session, req *wire.Frame, fieldID uint16) ([]string, error) {
	data := req.FieldBytes(fieldID)
	if data == nil {
		return nil, nil
	}
	raw, err := wire.ParsePath(data)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(raw))
	for i, p := range raw {
		parts[i] = s.a.deps.Codec.Decode([]byte(p))
	}
	return parts, nil
}

// requestFilePath combines the FilePath parameter with the mandatory
// FileName parameter.
func requestFilePath(s *session, req *wire.Frame) ([]string, error) {
	parts, err := requestPath(s, req, wire.FieldFilePath)
	if err != nil {
		return nil, err
	}
	nameBytes := req.FieldBytes(wire.FieldFileName)
	if len(nameBytes) == 0 {
		return nil, errors.New("missing file name")
	}
	return append(parts, s.a.deps.Codec.Decode(nameBytes)), nil
}
