// browser/dom/page.go
package dom

import (
	"context"
	"errors"
	"time"

	"golang.org/x/net/html"
)

// ErrNoDocument is returned when a page has no document to snapshot.
var ErrNoDocument = errors.New("page has no document")

// HiddenMarkerAttr is set on snapshot nodes that the live page found to have no
// layout box or to be hidden through computed style. It never exists in the
// live document, only in snapshots.
const HiddenMarkerAttr = "data-cvfill-hidden"

// Page is the set of primitives the autofill core needs from a document.
// Elements are addressed by the XPath selectors produced by GenerateUniqueXPath
// against a snapshot of the same page.
type Page interface {
	// Snapshot returns a parsed copy of the current document. Mutating the
	// returned tree never affects the page.
	Snapshot(ctx context.Context) (*html.Node, error)
	// URL returns the address of the current document, or "" when it has none.
	URL(ctx context.Context) (string, error)

	// SetValue assigns the value of a text-like control.
	SetValue(ctx context.Context, selector, value string) error
	// SetChecked checks or unchecks a checkbox or radio button.
	SetChecked(ctx context.Context, selector string, checked bool) error
	// SelectOption selects the option at index (as in select.options) of a select element.
	SelectOption(ctx context.Context, selector string, index int) error
	// DispatchEvents fires bubbling events of the given types on the element, in order.
	DispatchEvents(ctx context.Context, selector string, events []string) error

	// Flash applies a transient highlight to an element and restores its
	// original style after d.
	Flash(ctx context.Context, selector string, color string, d time.Duration) error
	// HighlightForms draws overlays around the given containers.
	HighlightForms(ctx context.Context, selectors []string) error
	// ClearHighlights removes every overlay drawn by HighlightForms.
	ClearHighlights(ctx context.Context) error
}

// MutationSource is implemented by pages that can report structural changes.
type MutationSource interface {
	// Mutations delivers one value per batch of childList mutations under the
	// document body until ctx is done.
	Mutations(ctx context.Context) (<-chan struct{}, error)
}

// Navigation reports a change of the main-frame document. Loaded is false when
// the new document has committed and true once it has finished loading.
type Navigation struct {
	URL    string
	Loaded bool
}

// NavigationSource is implemented by pages whose document can be replaced.
type NavigationSource interface {
	// Navigations delivers main-frame navigations until ctx is done.
	Navigations(ctx context.Context) (<-chan Navigation, error)
}
