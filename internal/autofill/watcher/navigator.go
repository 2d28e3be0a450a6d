package watcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
)

// Navigator ties the detected forms to the current document. They are
// forgotten as soon as a new main-frame document commits and rebuilt once it
// has loaded.
type Navigator struct {
	source dom.NavigationSource
	reset  func()
	rescan RescanFunc
	logger *zap.Logger
}

// NewNavigator creates a navigator calling reset on commit and rescan on load.
func NewNavigator(source dom.NavigationSource, reset func(), rescan RescanFunc, logger *zap.Logger) *Navigator {
	return &Navigator{
		source: source,
		reset:  reset,
		rescan: rescan,
		logger: logger.Named("navigator"),
	}
}

// Run scans the document already loaded, then follows navigations until ctx
// is done.
func (n *Navigator) Run(ctx context.Context) error {
	navs, err := n.source.Navigations(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to navigations: %w", err)
	}
	if err := n.rescan(ctx); err != nil && ctx.Err() == nil {
		n.logger.Warn("Initial scan failed.", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case nav, ok := <-navs:
			if !ok {
				return nil
			}
			if !nav.Loaded {
				n.logger.Debug("Document replaced, forgetting detected forms.", zap.String("url", nav.URL))
				n.reset()
				continue
			}
			if err := n.rescan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				n.logger.Warn("Rescan after navigation failed.", zap.String("url", nav.URL), zap.Error(err))
			}
		}
	}
}
