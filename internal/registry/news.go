package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/notify"
)

// ArticleSeparator joins news articles in the read-all aggregation.
const ArticleSeparator = "\r--\r"

// News owns the server news feed: decoded articles, newest first. The
// feed is append-only and lives in memory; an optional seed file is read
// once at start and never written back.
type News struct {
	bus   *notify.Bus
	codec encoding.Codec
	cmds  chan newsCmd
	seed  []string // articles from the seed file, consumed by Run
}

type newsCmdKind int

const (
	newsPost newsCmdKind = iota
	newsReadAll
)

type newsCmd struct {
	kind  newsCmdKind
	text  []byte
	reply chan newsReply
}

type newsReply struct {
	data []byte
}

// NewNews creates the news registry. When seedPath is set the file's
// contents become the initial articles, split on the article separator.
func NewNews(bus *notify.Bus, codec encoding.Codec, seedPath string, queueDepth int) (*News, error) {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	n := &News{
		bus:   bus,
		codec: codec,
		cmds:  make(chan newsCmd, queueDepth),
	}

	if seedPath != "" {
		raw, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("read news seed %q: %w", seedPath, err)
		}
		if text := codec.Decode(raw); text != "" {
			n.seed = strings.Split(text, ArticleSeparator)
		}
	}

	return n, nil
}

// Run owns the article list until ctx is cancelled.
func (n *News) Run(ctx context.Context) {
	articles := append([]string(nil), n.seed...)

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-n.cmds:
			switch cmd.kind {
			case newsPost:
				// Store decoded so the configured output encoding is
				// authoritative on read, whatever the client sent.
				article := n.codec.Decode(cmd.text)
				articles = append([]string{article}, articles...)
				cmd.reply <- newsReply{}
				n.bus.Publish(notify.Notification{Kind: notify.KindNews, Text: cmd.text})

			case newsReadAll:
				joined := strings.Join(articles, ArticleSeparator)
				cmd.reply <- newsReply{data: n.codec.Encode(joined)}
			}
		}
	}
}

func (n *News) send(ctx context.Context, cmd newsCmd) (newsReply, error) {
	cmd.reply = make(chan newsReply, 1)

	select {
	case n.cmds <- cmd:
	case <-ctx.Done():
		return newsReply{}, ctx.Err()
	}

	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-ctx.Done():
		return newsReply{}, ctx.Err()
	}
}

// Post prepends an article and publishes it.
func (n *News) Post(ctx context.Context, text []byte) error {
	_, err := n.send(ctx, newsCmd{kind: newsPost, text: text})
	return err
}

// ReadAll returns every article, newest first, joined by the article
// separator and encoded with the configured codec.
func (n *News) ReadAll(ctx context.Context) ([]byte, error) {
	reply, err := n.send(ctx, newsCmd{kind: newsReadAll})
	return reply.data, err
}
