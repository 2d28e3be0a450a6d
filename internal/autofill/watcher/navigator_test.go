package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/controller"
	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/browser/memdoc"
	"github.com/xkilldash9x/cvfill/internal/config"
)

type navSource struct {
	ch  chan dom.Navigation
	err error
}

func (s navSource) Navigations(context.Context) (<-chan dom.Navigation, error) {
	return s.ch, s.err
}

// readySource reports when the navigator has subscribed.
type readySource struct {
	dom.NavigationSource
	ready chan struct{}
}

func (s readySource) Navigations(ctx context.Context) (<-chan dom.Navigation, error) {
	ch, err := s.NavigationSource.Navigations(ctx)
	close(s.ready)
	return ch, err
}

func runNavigator(t *testing.T, n *Navigator) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("navigator did not stop")
		}
	}
}

func TestNavigator_ResetsOnCommitAndRescansOnLoad(t *testing.T) {
	src := navSource{ch: make(chan dom.Navigation, 4)}
	var mu sync.Mutex
	var calls []string
	record := func(c string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, c)
	}
	n := NewNavigator(src, func() { record("reset") }, func(context.Context) error {
		record("rescan")
		return nil
	}, zaptest.NewLogger(t))

	stop := runNavigator(t, n)
	src.ch <- dom.Navigation{URL: "https://jobs.example.com/next"}
	src.ch <- dom.Navigation{URL: "https://jobs.example.com/next", Loaded: true}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 3
	}, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []string{"rescan", "reset", "rescan"}, calls, "initial scan, then commit and load")
}

func TestNavigator_RescanFailureKeepsFollowing(t *testing.T) {
	src := navSource{ch: make(chan dom.Navigation)}
	var mu sync.Mutex
	rescans := 0
	n := NewNavigator(src, func() {}, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		rescans++
		return errors.New("detached")
	}, zaptest.NewLogger(t))

	stop := runNavigator(t, n)
	src.ch <- dom.Navigation{Loaded: true}
	src.ch <- dom.Navigation{Loaded: true}
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, rescans)
}

func TestNavigator_SubscriptionFailure(t *testing.T) {
	n := NewNavigator(navSource{err: errors.New("tab closed")}, func() {}, func(context.Context) error {
		t.Fatal("no scan without a subscription")
		return nil
	}, zaptest.NewLogger(t))
	assert.Error(t, n.Run(context.Background()))
}

func TestNavigator_FormsFollowTheDocument(t *testing.T) {
	logger := zaptest.NewLogger(t)
	doc, err := memdoc.Parse(strings.NewReader(`<html><body><form id="apply">
		<input name="first_name"><input name="email" type="email">
	</form></body></html>`), "https://jobs.example.com/apply", logger)
	require.NoError(t, err)
	t.Cleanup(doc.Close)

	ctrl := controller.New(doc, config.NewDefaultConfig().Autofill(), logger)
	t.Cleanup(ctrl.Close)

	src := readySource{NavigationSource: doc, ready: make(chan struct{})}
	stop := runNavigator(t, NewNavigator(src, ctrl.Reset, ctrl.Rescan, logger))
	defer stop()
	<-src.ready

	check := func() bool {
		resp := ctrl.Handle(context.Background(), &schemas.Request{Action: schemas.ActionCheckForForms})
		return *resp.FormsFound
	}
	assert.Eventually(t, check, time.Second, 5*time.Millisecond, "forms are known once the page has loaded")

	// The next document has an input at the position the first name had.
	require.NoError(t, doc.Load(strings.NewReader(`<html><body><div>
		<input id="search" name="q">
	</div></body></html>`), "https://jobs.example.com/thanks"))

	assert.Eventually(t, func() bool { return !check() }, time.Second, 5*time.Millisecond)

	resp := ctrl.Handle(context.Background(), &schemas.Request{
		Action: schemas.ActionPerformFill,
		CVData: json.RawMessage(`{"personal_info":{"full_name":"Jane Doe","email":"jane@x.com"}}`),
	})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeNoForms, resp.Code)
	assert.Empty(t, doc.Value(`//*[@id='search']`), "nothing is written into the new document")

	require.NoError(t, doc.Load(strings.NewReader(`<html><body><form>
		<input name="email" type="email">
	</form></body></html>`), "https://jobs.example.com/apply/2"))
	assert.Eventually(t, check, time.Second, 5*time.Millisecond)
}
