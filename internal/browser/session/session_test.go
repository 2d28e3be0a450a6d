package session

import (
	"context"
	"net/url"
	"os"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/config"
)

func TestBuildAllocatorOptions(t *testing.T) {
	m := &Manager{cfg: config.BrowserConfig{Headless: true, Args: []string{"--lang=en-US", "mute-audio"}}}
	opts := m.buildAllocatorOptions()

	want := len(chromedp.DefaultExecAllocatorOptions) + 4 + 2
	if goruntime.GOOS == "linux" {
		want += 3
	}
	assert.Len(t, opts, want)
}

func TestHelperScriptEmbedded(t *testing.T) {
	require.NotEmpty(t, helperScript)
	assert.Contains(t, helperScript, mutationBinding)
	assert.Contains(t, helperScript, dom.HiddenMarkerAttr)
}

func TestPage_MutationFanOut(t *testing.T) {
	tab, closeTab := context.WithCancel(context.Background())
	closed := 0
	p := newPage(tab, closeTab, config.BrowserConfig{}, zaptest.NewLogger(t), func() { closed++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Mutations(ctx)
	require.NoError(t, err)

	p.bindingListener(&runtime.EventBindingCalled{Name: "someone_else"})
	select {
	case <-ch:
		t.Fatal("foreign bindings must not notify")
	default:
	}

	p.bindingListener(&runtime.EventBindingCalled{Name: mutationBinding})
	p.bindingListener(&runtime.EventBindingCalled{Name: mutationBinding})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	p.Close()
	p.Close()
	assert.Equal(t, 1, closed)

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.subscribers) == 0
	}, time.Second, 5*time.Millisecond, "closing the tab drops subscribers")

	_, err = p.Mutations(context.Background())
	assert.Error(t, err)
}

func TestPage_NavigationFanOut(t *testing.T) {
	tab, closeTab := context.WithCancel(context.Background())
	p := newPage(tab, closeTab, config.BrowserConfig{}, zaptest.NewLogger(t), nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Navigations(ctx)
	require.NoError(t, err)

	p.navigationListener(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "child", ParentID: "main", URL: "https://ads.example.com"}})
	p.navigationListener(&runtime.EventBindingCalled{Name: mutationBinding})
	select {
	case n := <-ch:
		t.Fatalf("unexpected navigation %+v", n)
	default:
	}

	p.navigationListener(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main", URL: "https://jobs.example.com/apply"}})
	p.navigationListener(&page.EventLoadEventFired{})

	for _, want := range []dom.Navigation{
		{URL: "https://jobs.example.com/apply"},
		{URL: "https://jobs.example.com/apply", Loaded: true},
	} {
		select {
		case got := <-ch:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("no navigation notification")
		}
	}

	cancel()
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.navigations) == 0
	}, time.Second, 5*time.Millisecond)
}

// TestPage_LiveBrowser needs a local Chrome; set CVFILL_BROWSER_TESTS=1 to run it.
func TestPage_LiveBrowser(t *testing.T) {
	if os.Getenv("CVFILL_BROWSER_TESTS") == "" {
		t.Skip("CVFILL_BROWSER_TESTS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m, err := NewManager(ctx, zaptest.NewLogger(t), config.BrowserConfig{Headless: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	p, err := m.NewPage(ctx)
	require.NoError(t, err)
	defer p.Close()

	page := `<html><body><form id="f">
		<input id="email" name="email">
		<input id="gone" name="gone" style="display:none">
		<select id="c"><option>United States</option><option>Canada</option></select>
	</form></body></html>`
	require.NoError(t, p.Navigate(ctx, "data:text/html,"+url.PathEscape(page)))

	doc, err := p.Snapshot(ctx)
	require.NoError(t, err)
	groups := dom.NewScanner(zaptest.NewLogger(t)).Scan(doc)
	require.Len(t, groups, 1)
	var names []string
	for _, c := range groups[0].Candidates {
		names = append(names, c.Name)
	}
	assert.NotContains(t, names, "gone", "layout-hidden controls are marked in the snapshot")

	require.NoError(t, p.SetValue(ctx, `//*[@id='email']`, "jane@x.com"))
	require.NoError(t, p.DispatchEvents(ctx, `//*[@id='email']`, []string{"input", "change"}))
	require.NoError(t, p.SelectOption(ctx, `//*[@id='c']`, 1))
	require.NoError(t, p.Flash(ctx, `//*[@id='email']`, "#4CAF50", 50*time.Millisecond))
	require.NoError(t, p.HighlightForms(ctx, []string{`//*[@id='f']`}))
	require.NoError(t, p.ClearHighlights(ctx))
	assert.Error(t, p.SetValue(ctx, `//*[@id='missing']`, "x"))

	var value string
	require.NoError(t, p.run(ctx, chromedp.Value(`#email`, &value, chromedp.ByQuery)))
	assert.Equal(t, "jane@x.com", value)

	mutations, err := p.Mutations(ctx)
	require.NoError(t, err)
	require.NoError(t, p.run(ctx, chromedp.Evaluate(`document.body.appendChild(document.createElement("form")); true`, nil)))
	select {
	case <-mutations:
	case <-time.After(5 * time.Second):
		t.Fatal("no mutation notification from the page")
	}

	u, err := p.URL(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "data:text/html"))
}
