package watcher

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/cvfill/internal/browser/memdoc"
	"github.com/xkilldash9x/cvfill/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDoc(t *testing.T) *memdoc.Document {
	t.Helper()
	doc, err := memdoc.Parse(strings.NewReader(`<html><body></body></html>`), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	return doc
}

func addForm(root *html.Node) {
	var body *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil && body == nil; c = c.NextSibling {
			find(c)
		}
	}
	find(root)
	body.AppendChild(&html.Node{Type: html.ElementNode, Data: "form"})
}

// start runs w in the background and returns a stop function that waits for it to exit.
func start(t *testing.T, w *Watcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

type chanSource struct {
	ch chan struct{}
}

func (s chanSource) Mutations(context.Context) (<-chan struct{}, error) {
	return s.ch, nil
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	src := chanSource{ch: make(chan struct{})}
	var rescans atomic.Int32
	w := New(src, func(context.Context) error {
		rescans.Add(1)
		return nil
	}, config.WatcherConfig{Enabled: true, DebounceWindow: 50 * time.Millisecond}, zaptest.NewLogger(t))

	stop := start(t, w)
	defer stop()

	// Unbuffered sends return only once the watcher has taken each one.
	for i := 0; i < 5; i++ {
		src.ch <- struct{}{}
	}
	assert.Eventually(t, func() bool { return rescans.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), rescans.Load(), "a burst collapses into one rescan")

	src.ch <- struct{}{}
	assert.Eventually(t, func() bool { return rescans.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_RescansPerNotificationWithoutWindow(t *testing.T) {
	doc := newDoc(t)
	var rescans atomic.Int32
	w := New(doc, func(context.Context) error {
		rescans.Add(1)
		return errors.New("page navigated away")
	}, config.WatcherConfig{Enabled: true}, zaptest.NewLogger(t))

	stop := start(t, w)
	defer stop()

	assert.Eventually(t, func() bool {
		doc.Mutate(addForm)
		return rescans.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	before := rescans.Load()
	assert.Eventually(t, func() bool {
		doc.Mutate(addForm)
		return rescans.Load() > before
	}, time.Second, 10*time.Millisecond, "a failed rescan does not stop the watcher")
}

type brokenSource struct{}

func (brokenSource) Mutations(context.Context) (<-chan struct{}, error) {
	return nil, errors.New("observer injection failed")
}

func TestWatcher_SubscriptionFailure(t *testing.T) {
	w := New(brokenSource{}, func(context.Context) error { return nil }, config.WatcherConfig{}, zaptest.NewLogger(t))
	assert.Error(t, w.Run(context.Background()))
}

type closedSource struct{}

func (closedSource) Mutations(context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{})
	close(ch)
	return ch, nil
}

func TestWatcher_StopsWhenSourceCloses(t *testing.T) {
	w := New(closedSource{}, func(context.Context) error { return nil }, config.WatcherConfig{}, zaptest.NewLogger(t))
	assert.NoError(t, w.Run(context.Background()))
}

func TestNew_Limiter(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rescan := func(context.Context) error { return nil }

	w := New(closedSource{}, rescan, config.WatcherConfig{}, logger)
	assert.Nil(t, w.limiter)

	w = New(closedSource{}, rescan, config.WatcherConfig{RescanRate: 2}, logger)
	require.NotNil(t, w.limiter)
	assert.Equal(t, 1, w.limiter.Burst())
}
