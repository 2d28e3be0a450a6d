// Package writer performs the control-specific write of a resolved value into
// a page element and emits the events hosting pages listen for.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/config"
)

// Target is an element to write, as found in a snapshot of the page.
type Target struct {
	// Node is the snapshot node. Radio groups and select options are read from it.
	Node     *html.Node
	Selector string
	Type     string
}

// textTypes are control types whose value is set directly. Password inputs
// are never written.
var textTypes = map[string]bool{
	"text":           true,
	"email":          true,
	"tel":            true,
	"url":            true,
	"number":         true,
	"date":           true,
	"datetime-local": true,
	"month":          true,
	"week":           true,
	"time":           true,
	"search":         true,
	"textarea":       true,
}

// Writer writes values into a page.
type Writer struct {
	page   dom.Page
	logger *zap.Logger

	events        []string
	color         string
	flashDuration time.Duration
}

// New creates a writer for page using the event order and highlight settings of cfg.
func New(page dom.Page, logger *zap.Logger, cfg config.AutofillConfig) *Writer {
	events := cfg.EventOrder
	if len(events) == 0 {
		events = []string{"input", "change"}
	}
	return &Writer{
		page:          page,
		logger:        logger.Named("writer"),
		events:        events,
		color:         cfg.HighlightColor,
		flashDuration: cfg.HighlightDuration,
	}
}

// Write stores value into the target. It returns false without error when
// the control cannot take the value: an unsupported type, a radio group with
// no matching value, or a select with no matching option. Errors come only
// from the page itself.
func (w *Writer) Write(ctx context.Context, t Target, value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}

	selector := t.Selector
	var err error
	switch {
	case textTypes[t.Type]:
		err = w.page.SetValue(ctx, selector, value)

	case t.Type == "checkbox":
		err = w.page.SetChecked(ctx, selector, truthy(value))

	case t.Type == "radio":
		match := matchRadio(t.Node, value)
		if match == nil {
			w.logger.Debug("No radio in group matches value.", zap.String("selector", selector))
			return false, nil
		}
		selector = dom.GenerateUniqueXPath(match)
		err = w.page.SetChecked(ctx, selector, true)

	case strings.HasPrefix(t.Type, "select"):
		index, ok := matchOption(t.Node, value)
		if !ok {
			w.logger.Debug("No select option matches value.", zap.String("selector", selector))
			return false, nil
		}
		err = w.page.SelectOption(ctx, selector, index)

	default:
		w.logger.Debug("Unsupported control type, skipping.", zap.String("type", t.Type), zap.String("selector", selector))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write %s control %s: %w", t.Type, selector, err)
	}

	// The value is in place; notification and feedback failures do not undo it.
	if err := w.page.DispatchEvents(ctx, selector, w.events); err != nil {
		w.logger.Warn("Failed to dispatch change events.", zap.String("selector", selector), zap.Error(err))
	}
	if w.flashDuration > 0 {
		if err := w.page.Flash(ctx, selector, w.color, w.flashDuration); err != nil {
			w.logger.Debug("Failed to flash field.", zap.String("selector", selector), zap.Error(err))
		}
	}
	return true, nil
}

// truthy reports whether a value checks a checkbox.
func truthy(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && v != "false" && v != "0"
}

// matchRadio finds the enabled radio of the group whose value equals value,
// ignoring case. A radio without a value attribute has the value "on".
func matchRadio(radio *html.Node, value string) *html.Node {
	if radio == nil {
		return nil
	}
	want := strings.TrimSpace(value)
	for _, r := range dom.RadioGroup(radio) {
		if dom.HasAttr(r, "disabled") {
			continue
		}
		v := "on"
		if dom.HasAttr(r, "value") {
			v = dom.Attr(r, "value")
		}
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return r
		}
	}
	return nil
}

// matchOption returns the index of the first enabled option whose text or
// value contains value, ignoring case.
func matchOption(sel *html.Node, value string) (int, bool) {
	if sel == nil {
		return 0, false
	}
	want := strings.ToLower(strings.TrimSpace(value))
	for _, o := range dom.ExtractSelectOptions(sel) {
		if o.Disabled {
			continue
		}
		if strings.Contains(strings.ToLower(o.Text), want) || strings.Contains(strings.ToLower(o.Value), want) {
			return o.Index, true
		}
	}
	return 0, false
}
