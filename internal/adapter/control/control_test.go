package control

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/adapter"
	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/files"
	"github.com/halcyonline/halcyon/internal/notify"
	"github.com/halcyonline/halcyon/internal/protocol/wire"
	"github.com/halcyonline/halcyon/internal/protocol/xfer"
	"github.com/halcyonline/halcyon/internal/registry"
)

const adminAccount = `
[identity]
name = "Administrator"
login = "admin"
password = ""

[permissions.file]
download = true
upload = true
delete = true
rename = true
make_folder = true

[permissions.user]
disconnect = true
broadcast = true
get_info = true

[permissions.news]
read = true
post = true

[permissions.chat]
send = true
set_subject = true

[permissions.misc]
use_any_name = true
admin = true
`

type testServer struct {
	adapter  *Adapter
	filesDir string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	accountsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(accountsDir, "admin.toml"), []byte(adminAccount), 0o600))
	store, err := account.NewStore(accountsDir, true)
	require.NoError(t, err)

	filesDir := t.TempDir()
	area, err := files.New(filesDir)
	require.NoError(t, err)

	codec, err := encoding.ForName("macroman")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := notify.New(64)
	users := registry.NewUsers(bus, 0)
	chats := registry.NewChats(bus, 0)
	news, err := registry.NewNews(bus, codec, "", 0)
	require.NoError(t, err)
	transfers := registry.NewTransfers(0, 0)

	go users.Run(ctx)
	go chats.Run(ctx)
	go news.Run(ctx)
	go transfers.Run(ctx)

	a := New(Config{Port: 0}, Deps{
		Bus:       bus,
		Users:     users,
		Chats:     chats,
		News:      news,
		Transfers: transfers,
		Accounts:  store,
		Files:     area,
		Codec:     codec,
		Metrics:   adapter.NullMetrics(),
	})

	go func() { _ = a.Serve(ctx) }()
	select {
	case <-a.ListenerReady():
	case <-time.After(5 * time.Second):
		t.Fatal("listener never came up")
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx)
	})

	return &testServer{adapter: a, filesDir: filesDir}
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	nextID uint32
}

// dial connects and completes the handshake.
func (srv *testServer) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.adapter.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello := wire.Hello{SubProtocol: 0, Version: wire.HandshakeVersion}
	_, err = conn.Write(hello.Encode())
	require.NoError(t, err)

	reply := make([]byte, wire.HelloReplySize)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	code, err := wire.ParseHelloReply(reply)
	require.NoError(t, err)
	require.Equal(t, wire.HandshakeOK, code)

	return &testClient{t: t, conn: conn}
}

func (c *testClient) request(tranType uint16, fields ...wire.Field) uint32 {
	c.t.Helper()
	c.nextID++
	frame := wire.NewRequest(tranType, c.nextID, fields...)
	_, err := c.conn.Write(frame.Encode())
	require.NoError(c.t, err)
	return c.nextID
}

func (c *testClient) readFrame() *wire.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	head := make([]byte, wire.HeaderSize)
	_, err := io.ReadFull(c.conn, head)
	require.NoError(c.t, err)
	header, err := wire.ParseHeader(head)
	require.NoError(c.t, err)

	body := make([]byte, header.TotalSize)
	_, err = io.ReadFull(c.conn, body)
	require.NoError(c.t, err)
	fields, err := wire.ParseBody(body)
	require.NoError(c.t, err)

	return &wire.Frame{
		Flags:     header.Flags,
		IsReply:   header.IsReply,
		Type:      header.Type,
		ID:        header.ID,
		ErrorCode: header.ErrorCode,
		Fields:    fields,
	}
}

// readReply skips server-initiated frames until the reply for id.
func (c *testClient) readReply(id uint32) *wire.Frame {
	c.t.Helper()
	for i := 0; i < 32; i++ {
		frame := c.readFrame()
		if frame.IsReply == 1 && frame.ID == id {
			return frame
		}
	}
	c.t.Fatal("reply never arrived")
	return nil
}

// readType skips frames until one of the wanted type arrives.
func (c *testClient) readType(tranType uint16) *wire.Frame {
	c.t.Helper()
	for i := 0; i < 32; i++ {
		frame := c.readFrame()
		if frame.Type == tranType {
			return frame
		}
	}
	c.t.Fatalf("no %s frame arrived", wire.TranName(tranType))
	return nil
}

func (c *testClient) login(loginName, userName string) *wire.Frame {
	c.t.Helper()
	fields := []wire.Field{
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials([]byte(loginName))),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials(nil)),
		wire.NewStringField(wire.FieldUserName, userName),
		wire.NewUint16Field(wire.FieldUserIconID, 128),
	}
	id := c.request(wire.TranLogin, fields...)
	reply := c.readReply(id)
	require.Zero(c.t, reply.ErrorCode, "login failed: %s", reply.FieldText(wire.FieldErrorText))
	return reply
}

func TestHandshakeRefusesWrongVersion(t *testing.T) {
	srv := startServer(t)

	conn, err := net.Dial("tcp", srv.adapter.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	hello := wire.Hello{Version: 2}
	_, err = conn.Write(hello.Encode())
	require.NoError(t, err)

	reply := make([]byte, wire.HelloReplySize)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	code, err := wire.ParseHelloReply(reply)
	require.NoError(t, err)
	assert.Equal(t, wire.HandshakeErrRefused, code)

	// Server closes after the refusal.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestLoginVersionReplyAndUserList(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	reply := c.login("admin", "mike")
	version, ok := reply.GetField(wire.FieldVersion)
	require.True(t, ok)
	assert.Equal(t, wire.ProtocolVersion, version.Int())

	id := c.request(wire.TranGetUserNameList)
	list := c.readReply(id)

	var names []string
	for _, f := range list.Fields {
		require.Equal(t, wire.FieldUserNameWithInfo, f.ID)
		u, err := wire.ParseUserInfo(f.Data)
		require.NoError(t, err)
		names = append(names, u.Name)
	}
	assert.Contains(t, names, "mike")
}

func TestGuestLogin(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	fields := []wire.Field{
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials(nil)),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials(nil)),
	}
	id := c.request(wire.TranLogin, fields...)
	reply := c.readReply(id)
	assert.Zero(t, reply.ErrorCode)
}

func TestBareGuestLoginIsNameless(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	// A Login with no parameters at all logs in as the built-in guest,
	// which carries no display name.
	id := c.request(wire.TranLogin)
	reply := c.readReply(id)
	require.Zero(t, reply.ErrorCode)

	id = c.request(wire.TranGetUserNameList)
	list := c.readReply(id)
	require.Len(t, list.Fields, 1)

	u, err := wire.ParseUserInfo(list.Fields[0].Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)
	assert.Zero(t, u.Flags)
	assert.Zero(t, u.Icon)
	assert.Equal(t, "", u.Name)
}

func TestUserInfoBeforeLoginIsStashed(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	// Some clients push their nickname and icon before logging in; the
	// tuple must survive into the login instead of ending the session.
	c.request(wire.TranSetClientUserInfo,
		wire.NewStringField(wire.FieldUserName, "early bird"),
		wire.NewUint16Field(wire.FieldUserIconID, 7),
	)

	id := c.request(wire.TranLogin,
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials([]byte("admin"))),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials(nil)),
	)
	reply := c.readReply(id)
	require.Zero(t, reply.ErrorCode)

	id = c.request(wire.TranGetUserNameList)
	list := c.readReply(id)
	require.Len(t, list.Fields, 1)

	u, err := wire.ParseUserInfo(list.Fields[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "early bird", u.Name)
	assert.EqualValues(t, 7, u.Icon)
}

func TestTeardownDuringLoginLeavesNoUser(t *testing.T) {
	srv := startServer(t)

	client, server := net.Pipe()
	defer client.Close()
	s := newSession(server, srv.adapter)

	frame := wire.NewRequest(wire.TranLogin, 1,
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials([]byte("admin"))),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials(nil)),
		wire.NewStringField(wire.FieldUserName, "ghost"),
	)

	// A write failure can tear the session down while the login is
	// still registering the user; the registration must be undone.
	s.close()
	require.NoError(t, s.handleLogin(context.Background(), frame))

	assert.Empty(t, srv.adapter.deps.Users.Snapshot())
}

func TestLoginRetryAfterDenial(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	id := c.request(wire.TranLogin,
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials([]byte("admin"))),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials([]byte("wrong"))),
	)
	reply := c.readReply(id)
	assert.EqualValues(t, 1, reply.ErrorCode)
	assert.NotEmpty(t, reply.FieldText(wire.FieldErrorText))

	c.login("admin", "second try")
}

func TestNonLoginFirstFrameCloses(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	id := c.request(wire.TranGetUserNameList)
	reply := c.readReply(id)
	assert.EqualValues(t, 1, reply.ErrorCode)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestChatFanout(t *testing.T) {
	srv := startServer(t)
	alice := srv.dial(t)
	alice.login("admin", "alice")
	bob := srv.dial(t)
	bob.login("admin", "bob")

	bob.request(wire.TranChatSend, wire.NewStringField(wire.FieldData, "hello"))

	want := "\r bob: hello"
	for _, c := range []*testClient{alice, bob} {
		msg := c.readType(wire.TranChatMsg)
		assert.Equal(t, want, msg.FieldText(wire.FieldData))
	}
}

func TestChatActionLine(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)
	c.login("admin", "alice")

	c.request(wire.TranChatSend,
		wire.NewStringField(wire.FieldData, "waves"),
		wire.NewUint16Field(wire.FieldChatOptions, wire.ChatOptionAction),
	)

	msg := c.readType(wire.TranChatMsg)
	assert.Equal(t, "\r*** alice waves", msg.FieldText(wire.FieldData))
}

func TestNewsPostAndRead(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)
	c.login("admin", "editor")

	id := c.request(wire.TranOldPostNews, wire.NewStringField(wire.FieldData, "first"))
	c.readReply(id)
	id = c.request(wire.TranOldPostNews, wire.NewStringField(wire.FieldData, "second"))
	c.readReply(id)

	id = c.request(wire.TranGetMsgs)
	reply := c.readReply(id)
	assert.Equal(t, "second\r--\rfirst", reply.FieldText(wire.FieldData))
}

func TestNewsPermissionDenied(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)

	// Guests may read the news but not post it.
	id := c.request(wire.TranLogin,
		wire.NewField(wire.FieldUserLogin, wire.ObfuscateCredentials(nil)),
		wire.NewField(wire.FieldUserPassword, wire.ObfuscateCredentials(nil)),
	)
	c.readReply(id)

	id = c.request(wire.TranOldPostNews, wire.NewStringField(wire.FieldData, "spam"))
	reply := c.readReply(id)
	assert.EqualValues(t, 1, reply.ErrorCode)
	assert.Contains(t, reply.FieldText(wire.FieldErrorText), "not allowed")
}

func TestGetFileInfo(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(srv.filesDir, "readme.txt"), []byte("hello world"), 0o644))

	c := srv.dial(t)
	c.login("admin", "alice")

	id := c.request(wire.TranGetFileInfo, wire.NewStringField(wire.FieldFileName, "readme.txt"))
	reply := c.readReply(id)
	require.Zero(t, reply.ErrorCode)

	assert.Equal(t, "readme.txt", reply.FieldText(wire.FieldFileName))
	assert.Equal(t, "TEXT", reply.FieldText(wire.FieldFileTypeString))
	assert.Equal(t, "ttxt", reply.FieldText(wire.FieldFileCreatorString))
	size, ok := reply.GetField(wire.FieldFileSize)
	require.True(t, ok)
	assert.EqualValues(t, 11, size.Uint32())
	_, ok = reply.GetField(wire.FieldFileModifyDate)
	assert.True(t, ok)

	// The comment field is present even when no comment is set.
	comment, ok := reply.GetField(wire.FieldFileComment)
	require.True(t, ok)
	assert.Empty(t, comment.Data)
}

func TestGetFileNameList(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(srv.filesDir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(srv.filesDir, "Stuff"), 0o755))

	c := srv.dial(t)
	c.login("admin", "alice")

	id := c.request(wire.TranGetFileNameList)
	reply := c.readReply(id)
	require.Len(t, reply.Fields, 2)

	first, err := wire.ParseFileEntry(reply.Fields[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "Stuff", string(first.Name))
	assert.Equal(t, wire.FolderType, first.Type)

	second, err := wire.ParseFileEntry(reply.Fields[1].Data)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", string(second.Name))
	assert.Equal(t, "TEXT", second.Type)
}

func TestDownloadFileReply(t *testing.T) {
	srv := startServer(t)
	payload := []byte("some file payload")
	require.NoError(t, os.WriteFile(filepath.Join(srv.filesDir, "data.bin"), payload, 0o644))

	c := srv.dial(t)
	c.login("admin", "alice")

	id := c.request(wire.TranDownloadFile, wire.NewStringField(wire.FieldFileName, "data.bin"))
	reply := c.readReply(id)
	require.Zero(t, reply.ErrorCode)

	ref, ok := reply.GetField(wire.FieldRefNum)
	require.True(t, ok)
	assert.Equal(t, registry.RefBase, ref.Uint32())

	fileSize, ok := reply.GetField(wire.FieldFileSize)
	require.True(t, ok)
	assert.EqualValues(t, len(payload), fileSize.Uint32())

	waiting, ok := reply.GetField(wire.FieldWaitingCount)
	require.True(t, ok)
	assert.Zero(t, waiting.Uint16())

	info := xfer.NewInfoFork("data.bin", "BINA", "SITx", time.Now(), time.Now())
	wantSize := xfer.ContainerSize(info, int64(len(payload)))
	transferSize, ok := reply.GetField(wire.FieldTransferSize)
	require.True(t, ok)
	assert.EqualValues(t, wantSize, transferSize.Uint32())
}

func TestInstantMessage(t *testing.T) {
	srv := startServer(t)
	alice := srv.dial(t)
	alice.login("admin", "alice")
	bob := srv.dial(t)
	bob.login("admin", "bob")

	// Find bob's id from the user list.
	id := alice.request(wire.TranGetUserNameList)
	list := alice.readReply(id)
	var bobID uint16
	for _, f := range list.Fields {
		u, err := wire.ParseUserInfo(f.Data)
		require.NoError(t, err)
		if u.Name == "bob" {
			bobID = u.ID
		}
	}
	require.NotZero(t, bobID)

	alice.request(wire.TranSendInstantMsg,
		wire.NewUint16Field(wire.FieldUserID, bobID),
		wire.NewStringField(wire.FieldData, "psst"),
	)

	msg := bob.readType(wire.TranServerMsg)
	assert.Equal(t, "psst", msg.FieldText(wire.FieldData))
	assert.Equal(t, "alice", msg.FieldText(wire.FieldUserName))
}

func TestDisconnectUser(t *testing.T) {
	srv := startServer(t)
	admin := srv.dial(t)
	admin.login("admin", "op")
	victim := srv.dial(t)
	victim.login("admin", "victim")

	id := admin.request(wire.TranGetUserNameList)
	list := admin.readReply(id)
	var victimID uint16
	for _, f := range list.Fields {
		u, err := wire.ParseUserInfo(f.Data)
		require.NoError(t, err)
		if u.Name == "victim" {
			victimID = u.ID
		}
	}
	require.NotZero(t, victimID)

	admin.request(wire.TranDisconnectUser, wire.NewUint16Field(wire.FieldUserID, victimID))

	msg := victim.readType(wire.TranDisconnectMsg)
	assert.NotEmpty(t, msg.FieldBytes(wire.FieldData))

	// The server closes the victim's connection after the message.
	require.NoError(t, victim.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		head := make([]byte, wire.HeaderSize)
		if _, err := io.ReadFull(victim.conn, head); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		header, err := wire.ParseHeader(head)
		require.NoError(t, err)
		if _, err := io.ReadFull(victim.conn, make([]byte, header.TotalSize)); err != nil {
			break
		}
	}
}

func TestPrivateChatInviteJoin(t *testing.T) {
	srv := startServer(t)
	alice := srv.dial(t)
	alice.login("admin", "alice")
	bob := srv.dial(t)
	bob.login("admin", "bob")

	id := alice.request(wire.TranGetUserNameList)
	list := alice.readReply(id)
	var bobID uint16
	for _, f := range list.Fields {
		u, err := wire.ParseUserInfo(f.Data)
		require.NoError(t, err)
		if u.Name == "bob" {
			bobID = u.ID
		}
	}
	require.NotZero(t, bobID)

	id = alice.request(wire.TranInviteNewChat, wire.NewUint16Field(wire.FieldUserID, bobID))
	created := alice.readReply(id)
	require.Zero(t, created.ErrorCode)
	chatField, ok := created.GetField(wire.FieldChatID)
	require.True(t, ok)
	chatID := chatField.Uint32()
	require.NotZero(t, chatID)

	invite := bob.readType(wire.TranInviteToChat)
	inviteChat, ok := invite.GetField(wire.FieldChatID)
	require.True(t, ok)
	assert.Equal(t, chatID, inviteChat.Uint32())
	assert.Equal(t, "alice", invite.FieldText(wire.FieldUserName))

	id = bob.request(wire.TranJoinChat, wire.NewUint32Field(wire.FieldChatID, chatID))
	joined := bob.readReply(id)
	require.Zero(t, joined.ErrorCode)

	var members []string
	for _, f := range joined.Fields {
		if f.ID == wire.FieldUserNameWithInfo {
			u, err := wire.ParseUserInfo(f.Data)
			require.NoError(t, err)
			members = append(members, u.Name)
		}
	}
	assert.Contains(t, members, "alice")
	assert.Contains(t, members, "bob")

	// Chat lines in the room reach both members, no one else.
	outsider := srv.dial(t)
	outsider.login("admin", "carol")

	bob.request(wire.TranChatSend,
		wire.NewUint32Field(wire.FieldChatID, chatID),
		wire.NewStringField(wire.FieldData, "secret"),
	)
	msg := alice.readType(wire.TranChatMsg)
	assert.True(t, strings.HasSuffix(msg.FieldText(wire.FieldData), "bob: secret"))

	// Outsider sees nothing; a keep-alive reply is the only traffic.
	id = outsider.request(wire.TranKeepAlive)
	reply := outsider.readFrame()
	assert.EqualValues(t, 1, reply.IsReply)
	assert.Equal(t, id, reply.ID)
}

func TestFolderOperations(t *testing.T) {
	srv := startServer(t)
	c := srv.dial(t)
	c.login("admin", "alice")

	id := c.request(wire.TranNewFolder, wire.NewStringField(wire.FieldFileName, "Uploads"))
	reply := c.readReply(id)
	require.Zero(t, reply.ErrorCode)

	info, err := os.Stat(filepath.Join(srv.filesDir, "Uploads"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, os.WriteFile(filepath.Join(srv.filesDir, "junk.txt"), []byte("x"), 0o644))
	id = c.request(wire.TranDeleteFile, wire.NewStringField(wire.FieldFileName, "junk.txt"))
	reply = c.readReply(id)
	require.Zero(t, reply.ErrorCode)
	_, err = os.Stat(filepath.Join(srv.filesDir, "junk.txt"))
	assert.True(t, os.IsNotExist(err))
}

