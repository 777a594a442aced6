package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/app"
	"github.com/quietfield/a11yd/internal/errs"
)

// handleAnalyzeWS runs an analysis while streaming stage events to the
// client, followed by the final report. Query parameters: url, plus the
// optional rule/tag selection as repeated values and waitTime in
// milliseconds.
func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request, subjectID string) {
	q := r.URL.Query()
	target := q.Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}

	opts := app.Options{
		Rules: q["rule"],
		Tags:  q["tag"],
	}
	if ms, err := strconv.Atoi(q.Get("waitTime")); err == nil && ms > 0 {
		opts.WaitTime = ms
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan app.StageEvent, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				// Client went away; the analysis keeps its own context.
				return
			}
		}
	}()

	rep, err := s.orchestrator.Analyze(r.Context(), subjectID, target, opts, events)
	close(events)
	<-done

	if err != nil {
		_ = conn.WriteJSON(map[string]string{
			"error":   errs.KindOf(err).String(),
			"message": errs.SafeMessage(err),
		})
		return
	}
	_ = conn.WriteJSON(map[string]any{"report": rep})
}
