// Package memdoc implements dom.Page over an in-memory HTML tree. It backs
// offline fills of saved pages and serves as the page substrate in tests.
package memdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
)

// ErrNotFound is returned when a selector matches no element.
var ErrNotFound = errors.New("element not found")

// OverlayAttr marks containers highlighted by HighlightForms.
const OverlayAttr = "data-cvfill-overlay"

// Event records a dispatched DOM event.
type Event struct {
	Selector string
	Type     string
	Bubbles  bool
}

// Document is a mutex-guarded HTML tree implementing dom.Page and dom.MutationSource.
type Document struct {
	mu     sync.Mutex
	root   *html.Node
	url    string
	logger *zap.Logger

	events      []Event
	overlays    []*html.Node
	flashes     map[*html.Node]*flash
	subscribers map[chan struct{}]struct{}
	navigations map[chan dom.Navigation]struct{}
}

type flash struct {
	timer    *time.Timer
	original string
	hadStyle bool
	applied  string
	gen      int
}

var (
	_ dom.Page             = (*Document)(nil)
	_ dom.MutationSource   = (*Document)(nil)
	_ dom.NavigationSource = (*Document)(nil)
)

// New wraps an already parsed document.
func New(root *html.Node, url string, logger *zap.Logger) *Document {
	return &Document{
		root:        root,
		url:         url,
		logger:      logger.Named("memdoc"),
		flashes:     make(map[*html.Node]*flash),
		subscribers: make(map[chan struct{}]struct{}),
		navigations: make(map[chan dom.Navigation]struct{}),
	}
}

// Parse reads an HTML document.
func Parse(r io.Reader, url string, logger *zap.Logger) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return New(root, url, logger), nil
}

// Snapshot returns a deep copy of the document.
func (d *Document) Snapshot(ctx context.Context) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == nil {
		return nil, dom.ErrNoDocument
	}
	return clone(d.root), nil
}

// URL returns the address the document was loaded from.
func (d *Document) URL(ctx context.Context) (string, error) {
	return d.url, ctx.Err()
}

func (d *Document) find(selector string) (*html.Node, error) {
	if d.root == nil {
		return nil, dom.ErrNoDocument
	}
	n, err := htmlquery.Query(d.root, selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return n, nil
}

// SetValue assigns an input's value attribute or a textarea's text.
func (d *Document) SetValue(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.find(selector)
	if err != nil {
		return err
	}
	switch {
	case dom.IsElement(n, "textarea"):
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case dom.IsElement(n, "input"):
		setAttr(n, "value", value)
	default:
		return fmt.Errorf("cannot set value on <%s>", n.Data)
	}
	return nil
}

// SetChecked toggles the checked attribute. Checking a radio unchecks the
// other radios of its group.
func (d *Document) SetChecked(ctx context.Context, selector string, checked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.find(selector)
	if err != nil {
		return err
	}
	if !dom.IsElement(n, "input") {
		return fmt.Errorf("cannot check <%s>", n.Data)
	}
	if !checked {
		removeAttr(n, "checked")
		return nil
	}
	if dom.ControlType(n) == "radio" {
		for _, other := range dom.RadioGroup(n) {
			removeAttr(other, "checked")
		}
	}
	setAttr(n, "checked", "")
	return nil
}

// SelectOption selects the option at index among all option descendants of
// a select element.
func (d *Document) SelectOption(ctx context.Context, selector string, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.find(selector)
	if err != nil {
		return err
	}
	if !dom.IsElement(n, "select") {
		return fmt.Errorf("cannot select an option of <%s>", n.Data)
	}
	options := dom.Options(n)
	if index < 0 || index >= len(options) {
		return fmt.Errorf("option index %d out of range (%d options)", index, len(options))
	}
	multiple := dom.HasAttr(n, "multiple")
	for i, o := range options {
		switch {
		case i == index:
			setAttr(o, "selected", "")
		case !multiple:
			removeAttr(o, "selected")
		}
	}
	return nil
}

// DispatchEvents records the events. There are no listeners in a static document.
func (d *Document) DispatchEvents(ctx context.Context, selector string, events []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.find(selector); err != nil {
		return err
	}
	for _, ev := range events {
		d.events = append(d.events, Event{Selector: selector, Type: ev, Bubbles: true})
	}
	return nil
}

// Flash outlines an element and restores its style after dur.
func (d *Document) Flash(ctx context.Context, selector, color string, dur time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.find(selector)
	if err != nil {
		return err
	}

	f, active := d.flashes[n]
	if active {
		f.timer.Stop()
	} else {
		f = &flash{}
		for _, a := range n.Attr {
			if a.Key == "style" {
				f.original, f.hadStyle = a.Val, true
			}
		}
		d.flashes[n] = f
	}

	f.applied = strings.TrimSuffix(strings.TrimSpace(f.original), ";")
	if f.applied != "" {
		f.applied += "; "
	}
	f.applied += "outline: 2px solid " + color + "; outline-offset: 1px"
	setAttr(n, "style", f.applied)

	f.gen++
	gen := f.gen
	f.timer = time.AfterFunc(dur, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// A later Flash on the same element superseded this timer.
		if cur, ok := d.flashes[n]; ok && cur.gen == gen {
			d.restore(n)
		}
	})
	return nil
}

// restore puts back the style an element had before Flash, unless the page
// changed it in the meantime. Callers hold d.mu.
func (d *Document) restore(n *html.Node) {
	f, ok := d.flashes[n]
	if !ok {
		return
	}
	delete(d.flashes, n)
	current := ""
	for _, a := range n.Attr {
		if a.Key == "style" {
			current = a.Val
		}
	}
	if current != f.applied {
		return
	}
	if f.hadStyle {
		setAttr(n, "style", f.original)
	} else {
		removeAttr(n, "style")
	}
}

// HighlightForms marks the containers with OverlayAttr.
func (d *Document) HighlightForms(ctx context.Context, selectors []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sel := range selectors {
		n, err := d.find(sel)
		if err != nil {
			d.logger.Debug("Overlay target vanished.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		setAttr(n, OverlayAttr, "true")
		d.overlays = append(d.overlays, n)
	}
	return nil
}

// ClearHighlights removes every overlay marker.
func (d *Document) ClearHighlights(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range d.overlays {
		removeAttr(n, OverlayAttr)
	}
	d.overlays = nil
	return nil
}

// Mutations notifies the subscriber after every Mutate call until ctx is done.
// Notifications coalesce when the subscriber falls behind.
func (d *Document) Mutations(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.subscribers, ch)
		d.mu.Unlock()
	}()
	return ch, nil
}

// Mutate changes the document under the lock and notifies subscribers, the
// way a childList mutation would on a live page.
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	fn(d.root)
	subs := make([]chan struct{}, 0, len(d.subscribers))
	for ch := range d.subscribers {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Navigations notifies the subscriber of every Load until ctx is done.
func (d *Document) Navigations(ctx context.Context) (<-chan dom.Navigation, error) {
	ch := make(chan dom.Navigation, 8)
	d.mu.Lock()
	d.navigations[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.navigations, ch)
		d.mu.Unlock()
	}()
	return ch, nil
}

// Load replaces the document the way a navigation would. Overlays and
// pending flashes belong to the old document and are dropped. Subscribers
// see the commit and then the load.
func (d *Document) Load(r io.Reader, url string) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	d.mu.Lock()
	for n, f := range d.flashes {
		f.timer.Stop()
		delete(d.flashes, n)
	}
	d.overlays = nil
	d.root = root
	d.url = url
	subs := make([]chan dom.Navigation, 0, len(d.navigations))
	for ch := range d.navigations {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	d.logger.Debug("Document replaced.", zap.String("url", url))
	for _, ch := range subs {
		for _, loaded := range []bool{false, true} {
			select {
			case ch <- dom.Navigation{URL: url, Loaded: loaded}:
			default:
			}
		}
	}
	return nil
}

// Close restores every pending flash immediately.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n, f := range d.flashes {
		f.timer.Stop()
		d.restore(n)
	}
}

// Render writes the current document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == nil {
		return dom.ErrNoDocument
	}
	return html.Render(w, d.root)
}

// Events returns the events dispatched so far.
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Attr reads an attribute of the element at selector.
func (d *Document) Attr(selector, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.find(selector)
	if err != nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Value reads the current value of an input or textarea.
func (d *Document) Value(selector string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.find(selector)
	if err != nil {
		return ""
	}
	if dom.IsElement(n, "textarea") {
		return htmlquery.InnerText(n)
	}
	return dom.Attr(n, "value")
}

// SelectedIndex returns the index of the first selected option, or -1.
func (d *Document) SelectedIndex(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.find(selector)
	if err != nil {
		return -1
	}
	for i, o := range dom.Options(n) {
		if dom.HasAttr(o, "selected") {
			return i
		}
	}
	return -1
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// clone deep-copies a node tree.
func clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(clone(child))
	}
	return c
}
