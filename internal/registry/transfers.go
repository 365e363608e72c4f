package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefBase is the first transfer reference number. Starting at the high
// bit makes references trivially distinguishable from other ids in logs.
const RefBase uint32 = 0x80000000

// DefaultTransferTTL is how long an unclaimed reservation survives
// before the janitor evicts it.
const DefaultTransferTTL = 5 * time.Minute

// TransferKind distinguishes downloads from uploads.
type TransferKind int

const (
	// TransferDownload streams a file to the client.
	TransferDownload TransferKind = iota
	// TransferUpload streams a file from the client.
	TransferUpload
)

func (k TransferKind) String() string {
	if k == TransferUpload {
		return "upload"
	}
	return "download"
}

// Transfer is one pending file-transfer reservation, created on the
// control connection and claimed exactly once by a transfer connection.
type Transfer struct {
	Reference     uint32
	Kind          TransferKind
	Path          string // file-area relative path, slash separated
	Size          int64  // data fork size for downloads, declared size for uploads
	SessionID     string // control session that made the reservation
	UserName      string
	CorrelationID uuid.UUID // ties control and transfer log lines together
	Created       time.Time
}

// Transfers owns the pending reservations.
type Transfers struct {
	cmds chan transferCmd
	ttl  time.Duration
}

type transferCmdKind int

const (
	transferRegister transferCmdKind = iota
	transferClaim
	transferReleaseSession
	transferCount
)

type transferCmd struct {
	kind      transferCmdKind
	transfer  Transfer
	reference uint32
	sessionID string
	reply     chan transferReply
}

type transferReply struct {
	transfer Transfer
	count    int
	err      error
}

// NewTransfers creates the transfer registry. A non-positive ttl keeps
// the default eviction window.
func NewTransfers(ttl time.Duration, queueDepth int) *Transfers {
	if ttl <= 0 {
		ttl = DefaultTransferTTL
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Transfers{
		cmds: make(chan transferCmd, queueDepth),
		ttl:  ttl,
	}
}

// Run owns the reservation map until ctx is cancelled. A janitor tick
// evicts reservations whose client never showed up.
func (t *Transfers) Run(ctx context.Context) {
	pending := make(map[uint32]Transfer)
	nextRef := RefBase

	janitor := time.NewTicker(t.ttl / 2)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-janitor.C:
			for ref, tr := range pending {
				if now.Sub(tr.Created) > t.ttl {
					delete(pending, ref)
				}
			}

		case cmd := <-t.cmds:
			switch cmd.kind {
			case transferRegister:
				tr := cmd.transfer
				tr.Reference = nextRef
				nextRef++
				tr.CorrelationID = uuid.New()
				tr.Created = time.Now()
				pending[tr.Reference] = tr
				cmd.reply <- transferReply{transfer: tr}

			case transferClaim:
				tr, ok := pending[cmd.reference]
				if !ok {
					cmd.reply <- transferReply{err: ErrTransferNotFound}
					continue
				}
				delete(pending, cmd.reference)
				cmd.reply <- transferReply{transfer: tr}

			case transferReleaseSession:
				released := 0
				for ref, tr := range pending {
					if tr.SessionID == cmd.sessionID {
						delete(pending, ref)
						released++
					}
				}
				cmd.reply <- transferReply{count: released}

			case transferCount:
				cmd.reply <- transferReply{count: len(pending)}
			}
		}
	}
}

func (t *Transfers) send(ctx context.Context, cmd transferCmd) (transferReply, error) {
	cmd.reply = make(chan transferReply, 1)

	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return transferReply{}, ctx.Err()
	}

	select {
	case reply := <-cmd.reply:
		return reply, reply.err
	case <-ctx.Done():
		return transferReply{}, ctx.Err()
	}
}

// Register reserves a reference for the given transfer and returns the
// completed record.
func (t *Transfers) Register(ctx context.Context, tr Transfer) (Transfer, error) {
	reply, err := t.send(ctx, transferCmd{kind: transferRegister, transfer: tr})
	return reply.transfer, err
}

// Claim hands out a reservation exactly once; a second claim of the same
// reference fails with ErrTransferNotFound.
func (t *Transfers) Claim(ctx context.Context, reference uint32) (Transfer, error) {
	reply, err := t.send(ctx, transferCmd{kind: transferClaim, reference: reference})
	return reply.transfer, err
}

// ReleaseSession evicts every reservation made by a closing session and
// reports how many were dropped.
func (t *Transfers) ReleaseSession(ctx context.Context, sessionID string) (int, error) {
	reply, err := t.send(ctx, transferCmd{kind: transferReleaseSession, sessionID: sessionID})
	return reply.count, err
}

// Pending returns the outstanding reservation count.
func (t *Transfers) Pending(ctx context.Context) (int, error) {
	reply, err := t.send(ctx, transferCmd{kind: transferCount})
	return reply.count, err
}
