package browser

import "context"

// combineContext derives a context from tabCtx (which carries the CDP target)
// that is also canceled when opCtx is. chromedp needs the tab context's values,
// while the caller's context carries the operational deadline.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
