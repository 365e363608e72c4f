package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for protocol operations. Client keys follow the
// OpenTelemetry semantic conventions; protocol keys carry their own
// prefix.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// Control protocol attributes
	AttrTranType  = "tran.type"  // numeric transaction type
	AttrTranName  = "tran.name"  // human-readable transaction name
	AttrTranID    = "tran.id"    // client transaction id
	AttrSessionID = "session.id" // server session id
	AttrLogin     = "user.login" // account login, never the password
	AttrUserID    = "user.id"    // wire user id
	AttrChatID    = "chat.id"    // private chat room id

	// Transfer attributes
	AttrTransferRef       = "transfer.ref"
	AttrTransferDirection = "transfer.direction" // download or upload
	AttrTransferPath      = "transfer.path"
	AttrTransferBytes     = "transfer.bytes"

	// File area attributes
	AttrFilePath = "file.path"
	AttrFileSize = "file.size"
)

// Span names. Transaction spans are minted per dispatch as
// "tran.<name>"; these cover the fixed phases.
const (
	SpanHandshake = "session.handshake"
	SpanLogin     = "session.login"
	SpanTransfer  = "transfer.stream"
)

// ClientAddr returns an attribute for the full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// SessionID returns an attribute for the server session id.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Login returns an attribute for the account login.
func Login(login string) attribute.KeyValue {
	return attribute.String(AttrLogin, login)
}

// UserID returns an attribute for the wire user id.
func UserID(id uint16) attribute.KeyValue {
	return attribute.Int(AttrUserID, int(id))
}

// TranType returns an attribute for the numeric transaction type.
func TranType(t uint16) attribute.KeyValue {
	return attribute.Int(AttrTranType, int(t))
}

// TranID returns an attribute for the client transaction id.
func TranID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrTranID, int64(id))
}

// ChatID returns an attribute for a private chat room id.
func ChatID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrChatID, int64(id))
}

// TransferRef returns an attribute for a transfer reference number.
func TransferRef(ref uint32) attribute.KeyValue {
	return attribute.Int64(AttrTransferRef, int64(ref))
}

// TransferDirection returns an attribute for the transfer direction.
func TransferDirection(direction string) attribute.KeyValue {
	return attribute.String(AttrTransferDirection, direction)
}

// TransferBytes returns an attribute for bytes moved.
func TransferBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrTransferBytes, n)
}

// FilePath returns an attribute for a file area path.
func FilePath(path string) attribute.KeyValue {
	return attribute.String(AttrFilePath, path)
}

// FileSize returns an attribute for a file size.
func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// StartTransactionSpan starts a span for one control transaction.
func StartTransactionSpan(ctx context.Context, name string, tranType uint16, tranID uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		TranType(tranType),
		TranID(tranID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "tran."+name, trace.WithAttributes(allAttrs...))
}

// StartTransferSpan starts a span for one transfer connection.
func StartTransferSpan(ctx context.Context, direction string, ref uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		TransferDirection(direction),
		TransferRef(ref),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanTransfer, trace.WithAttributes(allAttrs...))
}

// StartLoginSpan starts a span for the login phase of a session.
func StartLoginSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanLogin, trace.WithAttributes(attrs...))
}
