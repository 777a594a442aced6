// Package auditor injects the axe-core rule engine into a loaded page and
// returns its findings untouched. What counts as a violation is entirely the
// engine's business; this adapter only guarantees faithful pass-through.
package auditor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/browser"
	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/errs"
)

// DefaultTags is the rule-set selection used when the request names none.
var DefaultTags = []string{"wcag2a", "wcag2aa", "wcag21aa", "best-practice"}

// Selection names the rules or tags the engine should evaluate.
type Selection struct {
	Rules []string `json:"rules,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// Node describes one affected DOM node.
type Node struct {
	HTML           string   `json:"html"`
	Target         []string `json:"target,omitempty"`
	FailureSummary string   `json:"failureSummary,omitempty"`
}

// Finding is one raw engine result (violation, pass, incomplete or
// inapplicable).
type Finding struct {
	ID          string   `json:"id"`
	Impact      string   `json:"impact,omitempty"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Help        string   `json:"help"`
	HelpURL     string   `json:"helpUrl"`
	Nodes       []Node   `json:"nodes"`
}

// Engine identifies the rule engine that produced a result.
type Engine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Result is the engine's structured output for one page.
type Result struct {
	Violations   []Finding `json:"violations"`
	Passes       []Finding `json:"passes"`
	Incomplete   []Finding `json:"incomplete"`
	Inapplicable []Finding `json:"inapplicable"`
	TestEngine   Engine    `json:"testEngine"`
}

// RuleInfo is one entry of the engine's rule catalogue.
type RuleInfo struct {
	RuleID      string   `json:"ruleId"`
	Description string   `json:"description"`
	Help        string   `json:"help"`
	HelpURL     string   `json:"helpUrl"`
	Tags        []string `json:"tags"`
}

// Auditor loads the engine script once and injects it per page.
type Auditor struct {
	script string
	logger *zap.Logger
	driver browser.Driver

	rulesMu sync.Mutex
	rules   []RuleInfo
}

// New reads the engine script from cfg.ScriptPath.
func New(cfg config.AuditorConfig, driver browser.Driver, logger *zap.Logger) (*Auditor, error) {
	src, err := os.ReadFile(cfg.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading audit engine script %s: %w", cfg.ScriptPath, err)
	}
	return &Auditor{
		script: string(src),
		driver: driver,
		logger: logger.Named("auditor"),
	}, nil
}

// NewWithScript builds an Auditor from an in-memory script source. Used by
// tests and embedders that ship the engine themselves.
func NewWithScript(script string, driver browser.Driver, logger *zap.Logger) *Auditor {
	return &Auditor{script: script, driver: driver, logger: logger.Named("auditor")}
}

// Run injects the engine into page and evaluates it with sel. An empty tag
// and rule selection falls back to DefaultTags.
func (a *Auditor) Run(ctx context.Context, page browser.Page, sel Selection) (*Result, error) {
	if err := page.InjectScript(ctx, a.script); err != nil {
		return nil, err
	}

	var loaded bool
	if err := page.Evaluate(ctx, `typeof window.axe !== 'undefined'`, &loaded); err != nil {
		return nil, err
	}
	if !loaded {
		return nil, errs.New(errs.UpstreamFailure, "audit engine not loaded after injection")
	}

	if len(sel.Tags) == 0 && len(sel.Rules) == 0 {
		sel.Tags = DefaultTags
	}
	runOpts, err := runOptionsJSON(sel)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encoding rule selection", err)
	}

	var result Result
	expr := fmt.Sprintf(`window.axe.run(document, %s)`, runOpts)
	if err := page.Evaluate(ctx, expr, &result); err != nil {
		return nil, err
	}

	a.logger.Debug("audit complete",
		zap.String("url", page.URL()),
		zap.Int("violations", len(result.Violations)),
		zap.Int("passes", len(result.Passes)),
	)
	return &result, nil
}

// Rules returns the engine's rule catalogue by evaluating it on a blank page.
// The catalogue is immutable for a given engine build, so the first successful
// read is cached for the process lifetime.
func (a *Auditor) Rules(ctx context.Context) ([]RuleInfo, error) {
	a.rulesMu.Lock()
	defer a.rulesMu.Unlock()
	if a.rules != nil {
		return a.rules, nil
	}

	page, err := a.driver.Open(ctx, "about:blank", browser.OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.InjectScript(ctx, a.script); err != nil {
		return nil, err
	}

	var rules []RuleInfo
	if err := page.Evaluate(ctx, `window.axe.getRules()`, &rules); err != nil {
		return nil, err
	}

	a.rules = rules
	return rules, nil
}

// runOptionsJSON builds the axe.run options object. Rule selections map to
// axe's runOnly form; tag selections pass through as a tag filter.
func runOptionsJSON(sel Selection) (string, error) {
	opts := map[string]any{}
	if len(sel.Rules) > 0 {
		opts["runOnly"] = map[string]any{"type": "rule", "values": sel.Rules}
	} else if len(sel.Tags) > 0 {
		opts["runOnly"] = map[string]any{"type": "tag", "values": sel.Tags}
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
