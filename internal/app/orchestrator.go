// Package app sequences one analysis request: validate, drive the browser,
// audit, transform, persist, return. Stages run strictly in order; the
// browsing context is released on every exit path.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/auditor"
	"github.com/quietfield/a11yd/internal/browser"
	"github.com/quietfield/a11yd/internal/errs"
	"github.com/quietfield/a11yd/internal/pagemeta"
	"github.com/quietfield/a11yd/internal/report"
	"github.com/quietfield/a11yd/internal/store"
	"github.com/quietfield/a11yd/internal/urlnorm"
)

// Stage names one step of the request lifecycle.
type Stage string

const (
	StageValidated  Stage = "validated"
	StageNavigating Stage = "navigating"
	StageAuditing   Stage = "auditing"
	StageBuilt      Stage = "built"
	StagePersisted  Stage = "persisted"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// StageEvent is one progress update for a running analysis.
type StageEvent struct {
	AnalysisID string `json:"analysis_id"`
	Stage      Stage  `json:"stage"`
	Error      string `json:"error,omitempty"`
}

// Options selects rules/tags and the navigation wait budget for one request.
type Options struct {
	Rules    []string `json:"rules,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	WaitTime int      `json:"waitTime,omitempty"` // milliseconds
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	driver  browser.Driver
	auditor *auditor.Auditor
	store   *store.Store
	logger  *zap.Logger
}

func NewOrchestrator(driver browser.Driver, aud *auditor.Auditor, st *store.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		driver:  driver,
		auditor: aud,
		store:   st,
		logger:  logger.Named("orchestrator"),
	}
}

// emit sends ev without blocking; slow or absent listeners drop events.
func emit(events chan<- StageEvent, ev StageEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

// Analyze runs the full pipeline for ownerID against rawURL. events is
// optional; when non-nil it receives stage updates. Persistence is
// best-effort: a failed history write is logged and the built report is still
// returned with Persisted=false.
func (o *Orchestrator) Analyze(ctx context.Context, ownerID, rawURL string, opts Options, events chan<- StageEvent) (*report.Report, error) {
	analysisID := uuid.New().String()
	logger := o.logger.With(zap.String("analysis_id", analysisID), zap.String("owner_id", ownerID))

	fail := func(err error) (*report.Report, error) {
		emit(events, StageEvent{AnalysisID: analysisID, Stage: StageFailed, Error: errs.SafeMessage(err)})
		return nil, err
	}

	if ownerID == "" {
		return fail(errs.New(errs.Unauthorized, "no token, authorization denied"))
	}

	target, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return fail(err)
	}
	emit(events, StageEvent{AnalysisID: analysisID, Stage: StageValidated})
	logger.Info("analysis started", zap.String("url", target))

	emit(events, StageEvent{AnalysisID: analysisID, Stage: StageNavigating})
	openOpts := browser.OpenOptions{}
	if opts.WaitTime > 0 {
		openOpts.NavigationTimeout = time.Duration(opts.WaitTime) * time.Millisecond
	}
	page, err := o.driver.Open(ctx, target, openOpts)
	if err != nil {
		logger.Warn("navigation failed", zap.Error(err))
		return fail(err)
	}
	defer page.Close()

	emit(events, StageEvent{AnalysisID: analysisID, Stage: StageAuditing})
	sel := auditor.Selection{Rules: opts.Rules, Tags: opts.Tags}
	raw, err := o.auditor.Run(ctx, page, sel)
	if err != nil {
		logger.Warn("audit failed", zap.Error(err))
		return fail(err)
	}

	title, err := page.Title(ctx)
	if err != nil || title == "" {
		if html, htmlErr := page.HTML(ctx); htmlErr == nil {
			title = pagemeta.Extract(html).Title
		}
	}

	rep := report.Build(report.Input{
		Raw:          raw,
		URL:          page.URL(),
		Title:        title,
		Options:      sel,
		AnalysisTime: time.Now().UTC(),
	})
	emit(events, StageEvent{AnalysisID: analysisID, Stage: StageBuilt})

	saved, err := o.store.SaveReport(ctx, ownerID, rep)
	if err != nil {
		logger.Error("persisting report failed, returning unpersisted report", zap.Error(err))
		rep.Persisted = false
	} else {
		rep = saved
		emit(events, StageEvent{AnalysisID: analysisID, Stage: StagePersisted})
	}

	emit(events, StageEvent{AnalysisID: analysisID, Stage: StageCompleted})
	logger.Info("analysis complete",
		zap.Int("score", rep.Score),
		zap.Int("violations", rep.Summary.TotalViolations),
		zap.Bool("persisted", rep.Persisted),
	)
	return rep, nil
}

// History returns ownerID's most recent reports, newest first, capped at 50.
func (o *Orchestrator) History(ctx context.Context, ownerID string) ([]*report.Report, error) {
	if ownerID == "" {
		return nil, errs.New(errs.Unauthorized, "no token, authorization denied")
	}
	return o.store.ListRecentReports(ctx, ownerID, 0)
}

// Rules exposes the audit engine's rule catalogue.
func (o *Orchestrator) Rules(ctx context.Context) ([]auditor.RuleInfo, error) {
	return o.auditor.Rules(ctx)
}
