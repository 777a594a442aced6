package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/errs"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultDOMReadyTimeout   = 15 * time.Second
)

// ChromeDriver opens one non-persistent chromedp context per request, bounded
// by a weighted semaphore so load cannot spawn unbounded browser processes.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	sem    *semaphore.Weighted
}

func NewChromeDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromeDriver {
	maxContexts := cfg.MaxContexts
	if maxContexts <= 0 {
		maxContexts = 4
	}
	return &ChromeDriver{
		cfg:    cfg,
		logger: logger.Named("browser"),
		sem:    semaphore.NewWeighted(maxContexts),
	}
}

func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	return opts
}

// Open acquires an admission slot, launches an isolated context, navigates and
// waits for network quiescence plus DOM readiness. The context is released on
// every failure path before returning.
func (d *ChromeDriver) Open(ctx context.Context, url string, opts OpenOptions) (Page, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, errs.Wrap(errs.UpstreamTimeout, "analysis capacity wait aborted", err)
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		if d.cfg.NavigationTimeout > 0 {
			navTimeout = d.cfg.NavigationTimeout
		} else {
			navTimeout = defaultNavigationTimeout
		}
	}
	domTimeout := opts.DOMReadyTimeout
	if domTimeout <= 0 {
		if d.cfg.DOMReadyTimeout > 0 {
			domTimeout = d.cfg.DOMReadyTimeout
		} else {
			domTimeout = defaultDOMReadyTimeout
		}
	}
	quiet := d.cfg.NetworkQuiet
	if quiet <= 0 {
		quiet = 2 * time.Second
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	p := &chromedpPage{
		tabCtx:  tabCtx,
		lastURL: url,
	}
	p.release = func() {
		cancelTab()
		cancelAlloc()
		d.sem.Release(1)
	}

	if err := p.navigate(ctx, url, navTimeout, domTimeout, quiet); err != nil {
		p.Close()
		return nil, err
	}

	d.logger.Debug("page opened", zap.String("url", p.URL()))
	return p, nil
}

// Close is a no-op for the chromedp driver; contexts are owned by pages.
func (d *ChromeDriver) Close() error { return nil }

type chromedpPage struct {
	tabCtx  context.Context
	lastURL string

	closeOnce sync.Once
	release   func()
}

// waitNetworkIdle signals once no network request has been in flight for
// idleAfter. The timer starts immediately so pages that load without any
// follow-up requests still become idle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMu sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	startTimer()
	return idleChan
}

func (p *chromedpPage) navigate(ctx context.Context, url string, navTimeout, domTimeout, quiet time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	idle := waitNetworkIdle(p.tabCtx, quiet)

	if err := p.run(navCtx,
		network.Enable(),
		chromedp.Navigate(url),
	); err != nil {
		if navCtx.Err() != nil {
			return errs.Wrap(errs.UpstreamTimeout, "navigation timed out", err)
		}
		return errs.Wrap(errs.UpstreamFailure, "navigation failed", err)
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		return errs.Wrap(errs.UpstreamTimeout, "timed out waiting for network quiescence", navCtx.Err())
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, domTimeout)
	defer cancelReady()
	if err := p.run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return errs.Wrap(errs.UpstreamTimeout, "timed out waiting for DOM readiness", err)
	}

	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err == nil && loc != "" {
		p.lastURL = loc
	}
	return nil
}

// run executes actions against the tab while honoring the caller's context.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) URL() string { return p.lastURL }

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", errs.Wrap(errs.UpstreamFailure, "reading page title", err)
	}
	return title, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errs.Wrap(errs.UpstreamFailure, "capturing document HTML", err)
	}
	return html, nil
}

func (p *chromedpPage) InjectScript(ctx context.Context, src string) error {
	if err := p.run(ctx, chromedp.Evaluate(src, nil)); err != nil {
		return errs.Wrap(errs.UpstreamFailure, "injecting script", err)
	}
	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, expr string, out any) error {
	err := p.run(ctx, chromedp.Evaluate(expr, out, func(params *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.UpstreamTimeout, "in-page evaluation timed out", err)
		}
		return errs.Wrap(errs.UpstreamFailure, "in-page evaluation failed", err)
	}
	return nil
}

func (p *chromedpPage) Close() {
	p.closeOnce.Do(p.release)
}
