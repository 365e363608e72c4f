// Package wire implements the Hotline control protocol codec: the TRTP
// handshake, the 20-byte transaction header, parameter lists, and the
// small binary structures embedded in parameters (packed dates, file
// paths, user tuples, file entries).
//
// All multi-byte integers are big-endian. A transaction on the wire is:
//
//	Offset  Size  Field
//	0       1     Flags
//	1       1     IsReply (0 request, 1 reply)
//	2       2     Type
//	4       4     ID
//	8       4     ErrorCode (0 = ok)
//	12      4     TotalSize (body bytes, parameter count included)
//	16      4     DataSize (must equal TotalSize; no fragmentation)
//	20      2     parameter count
//	22      ...   parameters: field id (2), field size (2), data
//
// The codec is transport-free: reading and writing frames against a
// connection lives with the adapters.
package wire

// Control handshake magic and sizes.
const (
	ProtocolID = "TRTP" // control handshake magic

	HelloSize      = 12 // client hello: magic + sub-protocol + version + sub-version
	HelloReplySize = 8  // server reply: magic + error code

	// HandshakeVersion is the only protocol version the server accepts.
	HandshakeVersion = 1
)

// HeaderSize is the fixed transaction header size.
const HeaderSize = 20

// ProtocolVersion is the server protocol version carried in the Login
// reply's Version field.
const ProtocolVersion = 123

// Transaction types.
const (
	TranReply                uint16 = 0
	TranError                uint16 = 100
	TranGetMsgs              uint16 = 101
	TranNewMsg               uint16 = 102
	TranOldPostNews          uint16 = 103
	TranServerMsg            uint16 = 104
	TranChatSend             uint16 = 105
	TranChatMsg              uint16 = 106
	TranLogin                uint16 = 107
	TranSendInstantMsg       uint16 = 108
	TranShowAgreement        uint16 = 109
	TranDisconnectUser       uint16 = 110
	TranDisconnectMsg        uint16 = 111
	TranInviteNewChat        uint16 = 112
	TranInviteToChat         uint16 = 113
	TranRejectChatInvite     uint16 = 114
	TranJoinChat             uint16 = 115
	TranLeaveChat            uint16 = 116
	TranNotifyChatChangeUser uint16 = 117
	TranNotifyChatDeleteUser uint16 = 118
	TranNotifyChatSubject    uint16 = 119
	TranSetChatSubject       uint16 = 120
	TranAgreed               uint16 = 121
	TranServerBanner         uint16 = 122
	TranGetFileNameList      uint16 = 200
	TranDownloadFile         uint16 = 202
	TranUploadFile           uint16 = 203
	TranDeleteFile           uint16 = 204
	TranNewFolder            uint16 = 205
	TranGetFileInfo          uint16 = 206
	TranSetFileInfo          uint16 = 207
	TranMoveFile             uint16 = 208
	TranMakeFileAlias        uint16 = 209
	TranDownloadFldr         uint16 = 210
	TranDownloadBanner       uint16 = 211
	TranUploadFldr           uint16 = 212
	TranGetUserNameList      uint16 = 300
	TranNotifyChangeUser     uint16 = 301
	TranNotifyDeleteUser     uint16 = 302
	TranGetClientInfoText    uint16 = 303
	TranSetClientUserInfo    uint16 = 304
	TranNewUser              uint16 = 350
	TranDeleteUser           uint16 = 351
	TranGetUser              uint16 = 352
	TranSetUser              uint16 = 353
	TranUserAccess           uint16 = 354
	TranUserBroadcast        uint16 = 355
	TranKeepAlive            uint16 = 500
)

// Field ids.
const (
	FieldErrorText           uint16 = 100
	FieldData                uint16 = 101
	FieldUserName            uint16 = 102
	FieldUserID              uint16 = 103
	FieldUserIconID          uint16 = 104
	FieldUserLogin           uint16 = 105
	FieldUserPassword        uint16 = 106
	FieldRefNum              uint16 = 107
	FieldTransferSize        uint16 = 108
	FieldChatOptions         uint16 = 109
	FieldUserAccess          uint16 = 110
	FieldUserAlias           uint16 = 111
	FieldUserFlags           uint16 = 112
	FieldOptions             uint16 = 113
	FieldChatID              uint16 = 114
	FieldChatSubject         uint16 = 115
	FieldWaitingCount        uint16 = 116
	FieldServerAgreement     uint16 = 150
	FieldVersion             uint16 = 160
	FieldCommunityBannerID   uint16 = 161
	FieldServerName          uint16 = 162
	FieldFileNameWithInfo    uint16 = 200
	FieldFileName            uint16 = 201
	FieldFilePath            uint16 = 202
	FieldFileResumeData      uint16 = 203
	FieldFileTransferOptions uint16 = 204
	FieldFileTypeString      uint16 = 205
	FieldFileCreatorString   uint16 = 206
	FieldFileSize            uint16 = 207
	FieldFileCreateDate      uint16 = 208
	FieldFileModifyDate      uint16 = 209
	FieldFileComment         uint16 = 210
	FieldFileNewName         uint16 = 211
	FieldFileNewPath         uint16 = 212
	FieldFileType            uint16 = 213
	FieldQuotingMsg          uint16 = 214
	FieldAutomaticResponse   uint16 = 215
	FieldFolderItemCount     uint16 = 220
	FieldUserNameWithInfo    uint16 = 300
)

// User flag bits carried in FieldUserFlags.
const (
	UserFlagAway       uint16 = 1 << 0
	UserFlagAdmin      uint16 = 1 << 1
	UserFlagRefusePM   uint16 = 1 << 2
	UserFlagRefuseChat uint16 = 1 << 3
)

// ChatOptions value marking an action ("/me") chat line.
const ChatOptionAction = 1

// tranNames maps transaction types to names for logging. Unlisted types
// format as hex.
var tranNames = map[uint16]string{
	TranReply:                "Reply",
	TranError:                "Error",
	TranGetMsgs:              "GetMessages",
	TranNewMsg:               "NewMessage",
	TranOldPostNews:          "PostNews",
	TranServerMsg:            "ServerMessage",
	TranChatSend:             "SendChat",
	TranChatMsg:              "ChatMessage",
	TranLogin:                "Login",
	TranSendInstantMsg:       "SendInstantMessage",
	TranShowAgreement:        "ShowAgreement",
	TranDisconnectUser:       "DisconnectUser",
	TranDisconnectMsg:        "DisconnectMessage",
	TranInviteNewChat:        "InviteToNewChat",
	TranInviteToChat:         "InviteToChat",
	TranRejectChatInvite:     "RejectChatInvite",
	TranJoinChat:             "JoinChat",
	TranLeaveChat:            "LeaveChat",
	TranNotifyChatChangeUser: "NotifyChatUserChange",
	TranNotifyChatDeleteUser: "NotifyChatUserDelete",
	TranNotifyChatSubject:    "NotifyChatSubject",
	TranSetChatSubject:       "SetChatSubject",
	TranAgreed:               "Agreed",
	TranServerBanner:         "ServerBanner",
	TranGetFileNameList:      "GetFileNameList",
	TranDownloadFile:         "DownloadFile",
	TranUploadFile:           "UploadFile",
	TranDeleteFile:           "DeleteFile",
	TranNewFolder:            "NewFolder",
	TranGetFileInfo:          "GetFileInfo",
	TranSetFileInfo:          "SetFileInfo",
	TranMoveFile:             "MoveFile",
	TranMakeFileAlias:        "MakeFileAlias",
	TranDownloadFldr:         "DownloadFolder",
	TranDownloadBanner:       "DownloadBanner",
	TranUploadFldr:           "UploadFolder",
	TranGetUserNameList:      "GetUserNameList",
	TranNotifyChangeUser:     "NotifyUserChange",
	TranNotifyDeleteUser:     "NotifyUserDelete",
	TranGetClientInfoText:    "GetClientInfoText",
	TranSetClientUserInfo:    "SetClientUserInfo",
	TranNewUser:              "NewUser",
	TranDeleteUser:           "DeleteUser",
	TranGetUser:              "GetUser",
	TranSetUser:              "SetUser",
	TranUserAccess:           "UserAccess",
	TranUserBroadcast:        "UserBroadcast",
	TranKeepAlive:            "KeepAlive",
}
