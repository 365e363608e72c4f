package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonline/halcyon/internal/encoding"
	"github.com/halcyonline/halcyon/internal/notify"
)

func startNews(t *testing.T, seedPath string) (*News, *notify.Bus) {
	t.Helper()
	bus := notify.New(256)
	codec, err := encoding.ForName("macroman")
	require.NoError(t, err)

	news, err := NewNews(bus, codec, seedPath, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(bus.Close)
	go news.Run(ctx)

	return news, bus
}

func TestNewsEmpty(t *testing.T) {
	news, _ := startNews(t, "")

	all, err := news.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewsPostNewestFirst(t *testing.T) {
	news, bus := startNews(t, "")
	ctx := context.Background()

	sub := bus.Subscribe()
	defer sub.Close()

	require.NoError(t, news.Post(ctx, []byte("first")))
	require.NoError(t, news.Post(ctx, []byte("second")))

	n := recvKind(t, sub, notify.KindNews)
	assert.Equal(t, []byte("first"), n.Text)

	all, err := news.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second\r--\rfirst", string(all))
}

func TestNewsAppendOnly(t *testing.T) {
	news, _ := startNews(t, "")
	ctx := context.Background()

	require.NoError(t, news.Post(ctx, []byte("old")))
	before, err := news.ReadAll(ctx)
	require.NoError(t, err)

	require.NoError(t, news.Post(ctx, []byte("new")))
	after, err := news.ReadAll(ctx)
	require.NoError(t, err)

	// Earlier articles survive a post untouched, as the suffix.
	assert.Equal(t, "new"+ArticleSeparator+string(before), string(after))
}

func TestNewsSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "news.txt")
	require.NoError(t, os.WriteFile(path, []byte("welcome\r--\rolder"), 0o644))

	news, _ := startNews(t, path)
	ctx := context.Background()

	all, err := news.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "welcome\r--\rolder", string(all))

	require.NoError(t, news.Post(ctx, []byte("fresh")))
	all, err = news.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh\r--\rwelcome\r--\rolder", string(all))
}

func TestNewsSeedFileMissing(t *testing.T) {
	bus := notify.New(8)
	defer bus.Close()
	codec, err := encoding.ForName("ascii")
	require.NoError(t, err)

	_, err = NewNews(bus, codec, filepath.Join(t.TempDir(), "absent.txt"), 0)
	assert.Error(t, err)
}

func TestNewsReencodesOnRead(t *testing.T) {
	news, _ := startNews(t, "")
	ctx := context.Background()

	// 0xA5 is the MacRoman bullet; it must survive a store/read cycle
	// because articles are decoded on post and re-encoded on read.
	require.NoError(t, news.Post(ctx, []byte{'n', 'e', 'w', 's', 0xA5}))

	all, err := news.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{'n', 'e', 'w', 's', 0xA5}, all)
}
