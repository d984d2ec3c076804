// Package views holds the admin UI pages as templ components.
package views

//go:generate templ generate

import (
	"context"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examfix/internal/i18n"
	"github.com/pavelanni/examfix/internal/model"
	"github.com/pavelanni/examfix/internal/scope"
)

// Notice is a one-shot message shown at the top of a page.
type Notice struct {
	Kind string `json:"k"` // "info" or "error"
	Text string `json:"t"`
}

// DashboardData is everything the main page shows.
type DashboardData struct {
	User      *model.User
	Scope     scope.State
	Run       model.RunState
	Notice    *Notice
	CanImport bool
}

// path prefixes an absolute route with the deployment base path.
func path(ctx context.Context, route string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + route)
}

func noticeKind(n *Notice) string {
	if n.Kind == "error" {
		return "error"
	}
	return "info"
}

var checklistColumns = []string{"Type", "Topic", "Statement", "Status", "Issues"}

type counter struct {
	ID  string
	Key string
	N   int
}

func counters(p model.RunProgress) []counter {
	return []counter{
		{"count-valid", "Valid", p.ValidCount},
		{"count-fixed", "Fixed", p.FixedCount},
		{"count-failed", "Failed", p.FailedCount},
	}
}

func pauseKey(p model.RunProgress) string {
	if p.IsPaused {
		return "Resume"
	}
	return "Pause"
}

func progressLine(ctx context.Context, p model.RunProgress) string {
	if p.TotalCount == 0 {
		return ""
	}
	return appI18n.Td(ctx, "ProgressLine", map[string]any{"Current": p.CurrentIndex, "Total": p.TotalCount})
}

func outcomesByID(run model.RunState) map[string]*model.Outcome {
	out := make(map[string]*model.Outcome, len(run.Outcomes))
	for i := range run.Outcomes {
		out[run.Outcomes[i].ID] = &run.Outcomes[i]
	}
	return out
}

// runConfig is read by the progress script on the dashboard.
func runConfig(ctx context.Context, d DashboardData) map[string]any {
	phases := map[string]string{}
	for _, ph := range []model.RunPhase{model.PhaseIdle, model.PhaseRunning, model.PhasePaused, model.PhaseCompleted, model.PhaseStopped} {
		phases[string(ph)] = appI18n.T(ctx, "Phase_"+string(ph))
	}
	statuses := map[string]string{}
	for _, s := range []model.OutcomeStatus{model.OutcomePending, model.OutcomeChecking, model.OutcomeValid, model.OutcomeFixed, model.OutcomeFailed} {
		statuses[string(s)] = appI18n.T(ctx, "Status_"+string(s))
	}
	return map[string]any{
		"running":  d.Run.Progress.IsRunning,
		"stream":   model.BasePathFromContext(ctx) + "/run/stream",
		"phases":   phases,
		"statuses": statuses,
		"progress": appI18n.Td(ctx, "ProgressLine", map[string]any{"Current": "%c", "Total": "%t"}),
	}
}
