// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without a real browser.
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/quietfield/a11yd/internal/browser"
)

// ─── Page ──────────────────────────────────────────────────────────────

// DummyPage implements browser.Page against canned data.
//
// Evaluate matches the expression against the EvalResults keys by substring
// and JSON round-trips the first matching value into out, so tests can hand
// it the same structured values the real engine would produce.
type DummyPage struct {
	PageURL   string
	PageTitle string
	PageHTML  string

	InjectErr   error
	TitleErr    error
	EvalResults map[string]any

	mu      sync.Mutex
	Scripts []string
	Evals   []string
	Closed  int
}

func (p *DummyPage) URL() string { return p.PageURL }

func (p *DummyPage) Title(_ context.Context) (string, error) {
	return p.PageTitle, p.TitleErr
}

func (p *DummyPage) HTML(_ context.Context) (string, error) {
	return p.PageHTML, nil
}

func (p *DummyPage) InjectScript(_ context.Context, src string) error {
	if p.InjectErr != nil {
		return p.InjectErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scripts = append(p.Scripts, src)
	return nil
}

func (p *DummyPage) Evaluate(_ context.Context, expr string, out any) error {
	p.mu.Lock()
	p.Evals = append(p.Evals, expr)
	p.mu.Unlock()

	for key, val := range p.EvalResults {
		if strings.Contains(expr, key) {
			raw, err := json.Marshal(val)
			if err != nil {
				return err
			}
			return json.Unmarshal(raw, out)
		}
	}
	return json.Unmarshal([]byte("null"), out)
}

func (p *DummyPage) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed++
}

// ─── Driver ────────────────────────────────────────────────────────────

// DummyDriver implements browser.Driver, handing out Page for every Open.
// Set OpenErr to force navigation failures.
type DummyDriver struct {
	Page    *DummyPage
	OpenErr error

	mu       sync.Mutex
	Opened   []string
	lastOpts browser.OpenOptions
	closed   bool
}

func (d *DummyDriver) Open(_ context.Context, url string, opts browser.OpenOptions) (browser.Page, error) {
	d.mu.Lock()
	d.Opened = append(d.Opened, url)
	d.lastOpts = opts
	d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.Page.PageURL == "" {
		d.Page.PageURL = url
	}
	return d.Page, nil
}

func (d *DummyDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// OpenCount reports how many pages were requested.
func (d *DummyDriver) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Opened)
}

// LastOpts returns the options of the most recent Open.
func (d *DummyDriver) LastOpts() browser.OpenOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastOpts
}
