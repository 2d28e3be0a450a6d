// Package session drives a live Chromium tab through chromedp and exposes it
// as a dom.Page.
package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed js/cvfill.js
var helperScript string

// mutationBinding is the page binding the helper script calls on childList mutations.
const mutationBinding = "__cvfill_mutation"

// opTimeout bounds every single page call.
const opTimeout = 10 * time.Second

// Page is a browser tab. It implements dom.Page and dom.MutationSource.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
	navigations map[chan dom.Navigation]struct{}
	mainURL     string

	closeOnce sync.Once
	onClose   func()
}

var (
	_ dom.Page             = (*Page)(nil)
	_ dom.MutationSource   = (*Page)(nil)
	_ dom.NavigationSource = (*Page)(nil)
)

// actionResult is what every helper returns.
type actionResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func newPage(tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Page {
	return &Page{
		ctx:         tabCtx,
		cancel:      cancel,
		logger:      logger,
		cfg:         cfg,
		subscribers: make(map[chan struct{}]struct{}),
		navigations: make(map[chan dom.Navigation]struct{}),
		onClose:     onClose,
	}
}

// install exposes the mutation binding and installs the helper script on
// every new document.
func (p *Page) install(ctx context.Context) error {
	chromedp.ListenTarget(p.ctx, p.bindingListener)
	chromedp.ListenTarget(p.ctx, p.navigationListener)

	return p.run(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			if err := runtime.AddBinding(mutationBinding).Do(c); err != nil {
				return fmt.Errorf("failed to add mutation binding: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(helperScript).Do(c); err != nil {
				return fmt.Errorf("failed to inject helper script: %w", err)
			}
			return nil
		}),
		chromedp.Evaluate(helperScript, nil),
	)
}

func (p *Page) bindingListener(ev interface{}) {
	binding, ok := ev.(*runtime.EventBindingCalled)
	if !ok || binding.Name != mutationBinding {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in mutation listener.", zap.Any("panic_reason", r), zap.String("stack", string(debug.Stack())))
		}
	}()

	p.mu.Lock()
	subs := make([]chan struct{}, 0, len(p.subscribers))
	for ch := range p.subscribers {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// navigationListener turns main-frame commits and load events into
// navigation notifications. It runs on the event loop and must not block.
func (p *Page) navigationListener(ev interface{}) {
	var nav dom.Navigation
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		p.mu.Lock()
		p.mainURL = e.Frame.URL
		p.mu.Unlock()
		nav = dom.Navigation{URL: e.Frame.URL}
	case *page.EventLoadEventFired:
		p.mu.Lock()
		url := p.mainURL
		p.mu.Unlock()
		nav = dom.Navigation{URL: url, Loaded: true}
	default:
		return
	}

	p.mu.Lock()
	subs := make([]chan dom.Navigation, 0, len(p.navigations))
	for ch := range p.navigations {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- nav:
		default:
			p.logger.Debug("Navigation subscriber is behind, dropping event.", zap.String("url", nav.URL), zap.Bool("loaded", nav.Loaded))
		}
	}
}

// run executes actions on the tab bounded by ctx and opTimeout.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancelOp := context.WithTimeout(ctx, opTimeout)
	defer cancelOp()
	runCtx, cancel := combineContext(p.ctx, opCtx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// call invokes a helper and converts a failed result into an error.
func (p *Page) call(ctx context.Context, fn string, args ...any) error {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode argument of %s: %w", fn, err)
		}
		encoded = append(encoded, string(b))
	}
	script := fmt.Sprintf("window.__cvfill.%s(%s)", fn, strings.Join(encoded, ", "))

	var raw []byte
	err := p.run(ctx, chromedp.Evaluate(script, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithSilent(true)
	}))
	if err != nil {
		return fmt.Errorf("%s failed: %w", fn, err)
	}

	var res actionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("%s returned an unexpected result: %w", fn, err)
	}
	if !res.OK {
		return errors.New(res.Error)
	}
	return nil
}

// Navigate loads url and waits for the configured settle time.
func (p *Page) Navigate(ctx context.Context, url string) error {
	timeout := p.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, cancelRun := combineContext(p.ctx, navCtx)
	defer cancelRun()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	p.logger.Info("Page loaded.", zap.String("url", url))

	if p.cfg.PostLoadWait > 0 {
		select {
		case <-time.After(p.cfg.PostLoadWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Snapshot serializes the live document, marking controls the layout engine
// considers hidden, and parses it.
func (p *Page) Snapshot(ctx context.Context) (*html.Node, error) {
	var raw []byte
	err := p.run(ctx, chromedp.Evaluate("window.__cvfill.snapshot()", &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}

	var markup *string
	if err := json.Unmarshal(raw, &markup); err != nil {
		return nil, fmt.Errorf("snapshot returned an unexpected result: %w", err)
	}
	if markup == nil {
		return nil, dom.ErrNoDocument
	}
	doc, err := html.Parse(strings.NewReader(*markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return doc, nil
}

// URL returns the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.call(ctx, "setValue", selector, value)
}

func (p *Page) SetChecked(ctx context.Context, selector string, checked bool) error {
	return p.call(ctx, "setChecked", selector, checked)
}

func (p *Page) SelectOption(ctx context.Context, selector string, index int) error {
	return p.call(ctx, "selectOption", selector, index)
}

func (p *Page) DispatchEvents(ctx context.Context, selector string, events []string) error {
	return p.call(ctx, "dispatch", selector, events)
}

func (p *Page) Flash(ctx context.Context, selector, color string, d time.Duration) error {
	return p.call(ctx, "flash", selector, color, d.Milliseconds())
}

func (p *Page) HighlightForms(ctx context.Context, selectors []string) error {
	return p.call(ctx, "highlight", selectors)
}

func (p *Page) ClearHighlights(ctx context.Context) error {
	return p.call(ctx, "clearHighlights")
}

// Mutations delivers a value per batch of structural changes under the body
// until ctx is done. Bursts coalesce when the receiver is slow.
func (p *Page) Mutations(ctx context.Context) (<-chan struct{}, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, fmt.Errorf("tab is closed: %w", err)
	}
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.ctx.Done():
		}
		p.mu.Lock()
		delete(p.subscribers, ch)
		p.mu.Unlock()
	}()
	return ch, nil
}

// Navigations delivers main-frame commits and loads until ctx is done.
func (p *Page) Navigations(ctx context.Context) (<-chan dom.Navigation, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, fmt.Errorf("tab is closed: %w", err)
	}
	ch := make(chan dom.Navigation, 8)
	p.mu.Lock()
	p.navigations[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.ctx.Done():
		}
		p.mu.Lock()
		delete(p.navigations, ch)
		p.mu.Unlock()
	}()
	return ch, nil
}

// Close closes the tab.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
}
