package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examfix/internal/model"
)

const (
	// DefaultDelay is the courtesy gap between two validation calls.
	DefaultDelay = 500 * time.Millisecond

	// PreviewRunes is the length of the current item preview.
	PreviewRunes = 100
)

// Startup errors. A rejected Start leaves the run state untouched.
var (
	ErrEmptySelection = errors.New("no questions selected")
	ErrAlreadyRunning = errors.New("a validation run is already in progress")
)

// Control errors.
var (
	ErrNotRunning = errors.New("no validation run in progress")
	ErrNotPaused  = errors.New("validation run is not paused")
)

// IsStartupError reports whether err rejected a run before it began.
func IsStartupError(err error) bool {
	return errors.Is(err, ErrEmptySelection) || errors.Is(err, ErrAlreadyRunning)
}

// Validator checks one question and optionally proposes a correction.
type Validator interface {
	Validate(ctx context.Context, req model.ValidationRequest) (model.Verdict, error)
}

// Updater persists corrected question content.
type Updater interface {
	UpdateCandidate(ctx context.Context, id string, c model.Content) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithDelay sets the gap between consecutive validation calls.
func WithDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithCallTimeout bounds each validation call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.callTimeout = d
		}
	}
}

// WithLogger sets the logger used for run events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSleeper overrides how the inter-call delay is waited out (useful for tests).
// The sleeper must return early with ctx.Err() when ctx is cancelled.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner executes validation runs one at a time.
type Runner struct {
	validator   Validator
	updater     Updater
	delay       time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	// mu guards everything below.
	mu      sync.Mutex
	state   model.RunState
	active  *run
	last    *run
	subs    map[int]chan model.RunState
	nextSub int
}

// run is the control block of one Start call.
type run struct {
	id     string
	items  []model.Candidate
	ctx    context.Context
	cancel context.CancelFunc
	resume chan struct{} // non-nil while paused
	done   chan struct{}
}

// New creates a Runner.
func New(v Validator, u Updater, opts ...Option) *Runner {
	r := &Runner{
		validator: v,
		updater:   u,
		delay:     DefaultDelay,
		logger:    slog.Default(),
		sleep:     sleepContext,
		now:       time.Now,
		state:     model.RunState{Phase: model.PhaseIdle, Outcomes: []model.Outcome{}},
		subs:      make(map[int]chan model.RunState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start begins a run over items in the given order and returns its id.
// The run outlives ctx's cancellation; use Stop to end it.
func (r *Runner) Start(ctx context.Context, items []model.Candidate) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptySelection
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rn := &run{
		id:     uuid.NewString(),
		items:  append([]model.Candidate(nil), items...),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	outcomes := make([]model.Outcome, len(items))
	for i, it := range items {
		outcomes[i] = model.Outcome{ID: it.ID, Status: model.OutcomePending, Issues: []string{}}
	}
	started := r.now()
	r.state = model.RunState{
		RunID:     rn.id,
		Phase:     model.PhaseRunning,
		Progress:  model.RunProgress{TotalCount: len(items), IsRunning: true},
		Outcomes:  outcomes,
		StartedAt: &started,
	}
	r.active = rn
	r.last = rn
	r.publishLocked()
	r.mu.Unlock()

	r.logger.Info("validation run started", "run_id", rn.id, "items", len(items))
	go r.loop(rn)
	return rn.id, nil
}

func (r *Runner) loop(rn *run) {
	defer close(rn.done)
	defer rn.cancel()

	for i, item := range rn.items {
		if !r.waitIfPaused(rn) {
			return
		}
		if !r.begin(rn, i, item) {
			return
		}

		verdict, err := r.validate(rn, item)

		if !r.settle(rn, i, item, verdict, err) {
			return
		}

		if i < len(rn.items)-1 {
			if err := r.sleep(rn.ctx, r.delay); err != nil {
				return
			}
		}
	}
	r.finish(rn)
}

// waitIfPaused blocks while rn is paused. It returns false once rn is stopped.
func (r *Runner) waitIfPaused(rn *run) bool {
	for {
		r.mu.Lock()
		if r.active != rn {
			r.mu.Unlock()
			return false
		}
		resume := rn.resume
		r.mu.Unlock()
		if resume == nil {
			return true
		}
		select {
		case <-resume:
		case <-rn.ctx.Done():
			return false
		}
	}
}

// begin marks item i as checking. It returns false if rn has been stopped.
func (r *Runner) begin(rn *run, i int, item model.Candidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rn {
		return false
	}
	r.state.Progress.CurrentIndex = i + 1
	r.state.Progress.CurrentPreview = item.Preview(PreviewRunes)
	r.state.Outcomes[i].Status = model.OutcomeChecking
	r.publishLocked()
	return true
}

// validate calls the validator. Stop does not cancel the call.
func (r *Runner) validate(rn *run, item model.Candidate) (verdict model.Verdict, err error) {
	ctx := context.WithoutCancel(rn.ctx)
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("validator panic: %v", p)
		}
	}()
	return r.validator.Validate(ctx, model.RequestFor(item))
}

// settle applies the verdict for item i, persisting a correction first.
// It returns false, committing nothing, if rn was stopped in the meantime.
func (r *Runner) settle(rn *run, i int, item model.Candidate, verdict model.Verdict, callErr error) bool {
	out := model.Outcome{ID: item.ID, Issues: []string{}}

	switch {
	case callErr != nil:
		out.Status = model.OutcomeFailed
		out.Issues = append(out.Issues, "validation call failed: "+callErr.Error())

	case verdict.Correction != nil:
		if !r.isActive(rn) {
			r.logger.Info("discarding late correction", "run_id", rn.id, "question_id", item.ID)
			return false
		}
		fixed := verdict.Correction.Apply(item.Content)
		if err := r.updater.UpdateCandidate(context.WithoutCancel(rn.ctx), item.ID, fixed); err != nil {
			out.Status = model.OutcomeFailed
			out.Issues = append(out.Issues, "could not save correction: "+err.Error())
			r.logger.Error("persist correction", "question_id", item.ID, "error", err)
			break
		}
		out.Status = model.OutcomeFixed
		out.Corrected = &fixed
		if verdict.Reason != "" {
			out.Issues = append(out.Issues, verdict.Reason)
		}

	case verdict.IsValid:
		out.Status = model.OutcomeValid
		out.IsValid = true

	default:
		out.Status = model.OutcomeFailed
		reason := verdict.Reason
		if reason == "" {
			reason = "question is invalid and no correction was proposed"
		}
		out.Issues = append(out.Issues, reason)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rn {
		r.logger.Info("discarding late result", "run_id", rn.id, "question_id", item.ID, "status", out.Status)
		return false
	}
	r.state.Outcomes[i] = out
	switch out.Status {
	case model.OutcomeValid:
		r.state.Progress.ValidCount++
	case model.OutcomeFixed:
		r.state.Progress.FixedCount++
	case model.OutcomeFailed:
		r.state.Progress.FailedCount++
	}
	r.publishLocked()
	r.logger.Debug("question checked", "run_id", rn.id, "question_id", item.ID, "status", out.Status)
	return true
}

func (r *Runner) isActive(rn *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active == rn
}

func (r *Runner) finish(rn *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rn {
		return
	}
	r.endLocked(model.PhaseCompleted)
	p := r.state.Progress
	r.logger.Info("validation run completed", "run_id", rn.id,
		"valid", p.ValidCount, "fixed", p.FixedCount, "failed", p.FailedCount)
}

// endLocked closes the active run in the given terminal phase.
func (r *Runner) endLocked(phase model.RunPhase) {
	finished := r.now()
	r.state.Phase = phase
	r.state.Progress.IsRunning = false
	r.state.Progress.IsPaused = false
	r.state.FinishedAt = &finished
	if r.active.resume != nil {
		close(r.active.resume)
		r.active.resume = nil
	}
	r.active = nil
	r.publishLocked()
}

// Pause suspends the active run before its next item.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ErrNotRunning
	}
	if r.active.resume != nil {
		return nil
	}
	r.active.resume = make(chan struct{})
	r.state.Phase = model.PhasePaused
	r.state.Progress.IsPaused = true
	r.publishLocked()
	r.logger.Info("validation run paused", "run_id", r.active.id)
	return nil
}

// Resume continues a paused run with its next unprocessed item.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ErrNotRunning
	}
	if r.active.resume == nil {
		return ErrNotPaused
	}
	close(r.active.resume)
	r.active.resume = nil
	r.state.Phase = model.PhaseRunning
	r.state.Progress.IsPaused = false
	r.publishLocked()
	r.logger.Info("validation run resumed", "run_id", r.active.id)
	return nil
}

// TogglePause pauses a running run or resumes a paused one.
func (r *Runner) TogglePause() error {
	r.mu.Lock()
	paused := r.active != nil && r.active.resume != nil
	r.mu.Unlock()
	if paused {
		return r.Resume()
	}
	return r.Pause()
}

// Stop ends the active run. Counts are frozen and unprocessed items stay pending.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ErrNotRunning
	}
	rn := r.active
	rn.cancel()
	r.endLocked(model.PhaseStopped)
	r.logger.Info("validation run stopped", "run_id", rn.id, "at", r.state.Progress.CurrentIndex)
	return nil
}

// IsRunning reports whether a run is active, paused or not.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Wait blocks until the most recent run's loop has exited or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	rn := r.last
	r.mu.Unlock()
	if rn == nil {
		return nil
	}
	select {
	case <-rn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the run state.
func (r *Runner) Snapshot() model.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Runner) copyLocked() model.RunState {
	s := r.state
	s.Outcomes = make([]model.Outcome, len(r.state.Outcomes))
	for i, o := range r.state.Outcomes {
		o.Issues = append([]string{}, o.Issues...)
		if o.Corrected != nil {
			c := *o.Corrected
			if c.Options.Valid {
				c.Options.Value = append([]string(nil), c.Options.Value...)
			}
			o.Corrected = &c
		}
		s.Outcomes[i] = o
	}
	return s
}
