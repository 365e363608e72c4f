package logger

// Standard field keys for structured logging. Use these consistently so
// that log aggregation can query by key across the control and transfer
// adapters.
const (
	// Session and connection
	KeySessionID  = "session_id"  // short session id (xid)
	KeyRemoteAddr = "remote_addr" // client address
	KeyLogin      = "login"       // account login
	KeyUserID     = "user_id"     // registered user id
	KeyUserName   = "user_name"   // display name
	KeyProtocol   = "protocol"    // control, transfer
	KeyPort       = "port"        // listener port

	// Transactions
	KeyTransaction = "tran"      // transaction name (Login, SendChat, ...)
	KeyTranType    = "tran_type" // numeric transaction type
	KeyTranID      = "tran_id"   // request id echoed in replies
	KeyFields      = "fields"    // parameter count

	// Chat and news
	KeyChatID  = "chat_id"
	KeyMembers = "members"

	// Files and transfers
	KeyPath      = "path"      // file-area relative path
	KeyReference = "ref"       // transfer reference number
	KeyTransfer  = "transfer"  // transfer correlation id (uuid)
	KeyDirection = "direction" // download, upload
	KeyBytes     = "bytes"
	KeySize      = "size"
	KeyEntries   = "entries"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
)
