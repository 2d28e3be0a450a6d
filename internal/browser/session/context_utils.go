package session

import (
	"context"
)

// combineContext derives a context from tab, which carries the chromedp
// target, that is also canceled when op is done. Page calls run on it so
// that both the caller's deadline and the tab's lifetime apply.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
