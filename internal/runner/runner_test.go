package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examfix/internal/model"
)

// fakeValidator answers by statement text. A gate makes the call block until closed.
type fakeValidator struct {
	mu       sync.Mutex
	verdicts map[string]model.Verdict
	errs     map[string]error
	gates    map[string]chan struct{}
	entered  chan string
	calls    []string
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{
		verdicts: make(map[string]model.Verdict),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 16),
	}
}

func (f *fakeValidator) gate(statement string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[statement] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeValidator) Validate(ctx context.Context, req model.ValidationRequest) (model.Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Statement)
	gate := f.gates[req.Statement]
	v, err := f.verdicts[req.Statement], f.errs[req.Statement]
	f.mu.Unlock()

	f.entered <- req.Statement
	if gate != nil {
		<-gate
	}
	return v, err
}

func (f *fakeValidator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeUpdater struct {
	mu      sync.Mutex
	err     error
	updates map[string]model.Content
}

func (f *fakeUpdater) UpdateCandidate(_ context.Context, id string, c model.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = make(map[string]model.Content)
	}
	f.updates[id] = c
	return nil
}

func (f *fakeUpdater) Updates() map[string]model.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.Content, len(f.updates))
	for k, v := range f.updates {
		out[k] = v
	}
	return out
}

func candidate(id, statement string, typ model.QuestionType) model.Candidate {
	c := model.Candidate{ID: id, Type: typ, Content: model.Content{Statement: statement}}
	if typ == model.TypeMCQ {
		c.Options = model.Some([]string{"1", "2", "3", "4"})
		c.Answer = model.Some("A")
	}
	return c
}

func threeItems() []model.Candidate {
	return []model.Candidate{
		candidate("q1", "Q1", model.TypeMCQ),
		candidate("q2", "Q2", model.TypeMCQ),
		candidate("q3", "Q3", model.TypeNAT),
	}
}

func scenarioValidator() *fakeValidator {
	v := newFakeValidator()
	v.verdicts["Q1"] = model.Verdict{IsValid: true}
	v.verdicts["Q2"] = model.Verdict{
		IsValid:    false,
		Correction: &model.Correction{Answer: model.Some("C")},
		Reason:     "answer key was wrong",
	}
	v.verdicts["Q3"] = model.Verdict{IsValid: false, Reason: "statement is unsolvable"}
	return v
}

func newTestRunner(v Validator, u Updater, opts ...Option) *Runner {
	return New(v, u, append([]Option{WithDelay(0)}, opts...)...)
}

func waitDone(t *testing.T, r *Runner) model.RunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	return r.Snapshot()
}

func waitEntered(t *testing.T, v *fakeValidator, want string) {
	t.Helper()
	select {
	case got := <-v.entered:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("validator never called for %s", want)
	}
}

func TestRunner_Scenario(t *testing.T) {
	v := scenarioValidator()
	u := &fakeUpdater{}
	r := newTestRunner(v, u)

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	st := waitDone(t, r)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.False(t, st.Progress.IsRunning)
	assert.Equal(t, 1, st.Progress.ValidCount)
	assert.Equal(t, 1, st.Progress.FixedCount)
	assert.Equal(t, 1, st.Progress.FailedCount)
	assert.Equal(t, 3, st.Progress.CurrentIndex)
	assert.Equal(t, st.Progress.TotalCount, st.Progress.Done())

	require.Len(t, st.Outcomes, 3)
	for i, id := range []string{"q1", "q2", "q3"} {
		assert.Equal(t, id, st.Outcomes[i].ID)
		assert.True(t, st.Outcomes[i].Status.Terminal())
	}
	assert.Equal(t, model.OutcomeValid, st.Outcomes[0].Status)
	assert.True(t, st.Outcomes[0].IsValid)
	assert.Equal(t, model.OutcomeFixed, st.Outcomes[1].Status)
	require.NotNil(t, st.Outcomes[1].Corrected)
	assert.Equal(t, "C", st.Outcomes[1].Corrected.Answer.Or(""))
	assert.Equal(t, model.OutcomeFailed, st.Outcomes[2].Status)
	assert.Equal(t, []string{"statement is unsolvable"}, st.Outcomes[2].Issues)

	updates := u.Updates()
	require.Len(t, updates, 1, "only the fixed item may touch the store")
	fixed := updates["q2"]
	assert.Equal(t, "C", fixed.Answer.Or(""))
	assert.Equal(t, "Q2", fixed.Statement, "absent correction fields keep the original")
	assert.Len(t, fixed.Options.Value, 4)

	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, v.Calls())
}

func TestRunner_CallErrorIsIsolated(t *testing.T) {
	v := scenarioValidator()
	v.errs["Q2"] = errors.New("connection reset by peer")
	r := newTestRunner(v, &fakeUpdater{})

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	st := waitDone(t, r)

	assert.Equal(t, model.OutcomeFailed, st.Outcomes[1].Status)
	require.NotEmpty(t, st.Outcomes[1].Issues)
	assert.Contains(t, st.Outcomes[1].Issues[0], "connection reset by peer")
	assert.Equal(t, model.OutcomeFailed, st.Outcomes[2].Status, "run should proceed to Q3")
	assert.Equal(t, 2, st.Progress.FailedCount)
	assert.Equal(t, model.PhaseCompleted, st.Phase)
}

func TestRunner_PersistFailureIsNotFixed(t *testing.T) {
	u := &fakeUpdater{err: errors.New("disk full")}
	r := newTestRunner(scenarioValidator(), u)

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	st := waitDone(t, r)

	assert.Equal(t, model.OutcomeFailed, st.Outcomes[1].Status)
	assert.Nil(t, st.Outcomes[1].Corrected)
	assert.Contains(t, st.Outcomes[1].Issues[0], "could not save correction")
	assert.Equal(t, 0, st.Progress.FixedCount)
	assert.Equal(t, 2, st.Progress.FailedCount)
}

func TestRunner_StartupErrors(t *testing.T) {
	v := newFakeValidator()
	release := v.gate("Q1")
	r := newTestRunner(v, &fakeUpdater{})

	_, err := r.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
	assert.True(t, IsStartupError(err))
	assert.Equal(t, model.PhaseIdle, r.Snapshot().Phase)

	id, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	waitEntered(t, v, "Q1")

	_, err = r.Start(context.Background(), threeItems()[:1])
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, IsStartupError(err))
	assert.Equal(t, id, r.Snapshot().RunID, "rejected start must not replace the run")

	close(release)
	st := waitDone(t, r)
	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.False(t, IsStartupError(ErrNotRunning))
}

func TestRunner_PauseResume(t *testing.T) {
	v := scenarioValidator()
	release := v.gate("Q2")
	r := newTestRunner(v, &fakeUpdater{})

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	waitEntered(t, v, "Q1")
	waitEntered(t, v, "Q2")

	require.NoError(t, r.Pause())
	st := r.Snapshot()
	assert.Equal(t, model.PhasePaused, st.Phase)
	assert.True(t, st.Progress.IsPaused)
	assert.True(t, r.IsRunning())

	// The in-flight item finishes; the next one waits for Resume.
	close(release)
	require.Eventually(t, func() bool {
		return r.Snapshot().Outcomes[1].Status == model.OutcomeFixed
	}, 5*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return r.Snapshot().Outcomes[2].Status != model.OutcomePending
	}, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, r.TogglePause())
	st = waitDone(t, r)

	assert.Equal(t, model.PhaseCompleted, st.Phase)
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, v.Calls(), "no item reprocessed or skipped")
	assert.Equal(t, 3, st.Progress.Done())
}

func TestRunner_StopDiscardsLateResult(t *testing.T) {
	v := scenarioValidator()
	release := v.gate("Q2")
	u := &fakeUpdater{}
	r := newTestRunner(v, u)

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	waitEntered(t, v, "Q1")
	waitEntered(t, v, "Q2")

	require.NoError(t, r.Stop())
	frozen := r.Snapshot()
	assert.Equal(t, model.PhaseStopped, frozen.Phase)
	assert.False(t, frozen.Progress.IsRunning)
	assert.False(t, r.IsRunning())

	close(release)
	st := waitDone(t, r)

	assert.Equal(t, frozen.Progress, st.Progress, "counts are frozen at stop")
	assert.Equal(t, model.OutcomeValid, st.Outcomes[0].Status)
	assert.Equal(t, model.OutcomeChecking, st.Outcomes[1].Status)
	assert.Equal(t, model.OutcomePending, st.Outcomes[2].Status)
	assert.Empty(t, u.Updates(), "late correction must not be persisted")
	assert.Equal(t, []string{"Q1", "Q2"}, v.Calls())

	assert.ErrorIs(t, r.Stop(), ErrNotRunning)
}

func TestRunner_StopWhilePaused(t *testing.T) {
	v := scenarioValidator()
	release := v.gate("Q1")
	r := newTestRunner(v, &fakeUpdater{})

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	waitEntered(t, v, "Q1")
	require.NoError(t, r.Pause())
	close(release)
	require.Eventually(t, func() bool {
		return r.Snapshot().Outcomes[0].Status == model.OutcomeValid
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	st := waitDone(t, r)

	assert.Equal(t, model.PhaseStopped, st.Phase)
	assert.False(t, st.Progress.IsPaused)
	assert.Equal(t, []string{"Q1"}, v.Calls())
	assert.Equal(t, model.OutcomePending, st.Outcomes[1].Status)
	assert.Equal(t, model.OutcomePending, st.Outcomes[2].Status)
}

func TestRunner_StopInterruptsDelay(t *testing.T) {
	v := scenarioValidator()
	r := New(v, &fakeUpdater{}, WithDelay(time.Hour))

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.Snapshot().Outcomes[0].Status == model.OutcomeValid
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	st := waitDone(t, r)
	assert.Equal(t, model.PhaseStopped, st.Phase)
	assert.Equal(t, []string{"Q1"}, v.Calls())
}

func TestRunner_ControlErrors(t *testing.T) {
	r := newTestRunner(newFakeValidator(), &fakeUpdater{})
	assert.ErrorIs(t, r.Pause(), ErrNotRunning)
	assert.ErrorIs(t, r.Resume(), ErrNotRunning)
	assert.ErrorIs(t, r.Stop(), ErrNotRunning)
	assert.ErrorIs(t, r.TogglePause(), ErrNotRunning)

	v := newFakeValidator()
	release := v.gate("Q1")
	r = newTestRunner(v, &fakeUpdater{})
	_, err := r.Start(context.Background(), threeItems()[:1])
	require.NoError(t, err)
	waitEntered(t, v, "Q1")
	assert.ErrorIs(t, r.Resume(), ErrNotPaused)
	close(release)
	waitDone(t, r)
}

func TestRunner_DelayBetweenCalls(t *testing.T) {
	var mu sync.Mutex
	var slept []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	r := New(scenarioValidator(), &fakeUpdater{}, WithDelay(2*time.Second), WithSleeper(sleeper))

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	waitDone(t, r)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept, "no delay after the last item")
}

type blockingValidator struct{}

func (blockingValidator) Validate(ctx context.Context, _ model.ValidationRequest) (model.Verdict, error) {
	<-ctx.Done()
	return model.Verdict{}, ctx.Err()
}

func TestRunner_CallTimeout(t *testing.T) {
	r := newTestRunner(blockingValidator{}, &fakeUpdater{}, WithCallTimeout(20*time.Millisecond))

	_, err := r.Start(context.Background(), threeItems()[:1])
	require.NoError(t, err)
	st := waitDone(t, r)

	assert.Equal(t, model.OutcomeFailed, st.Outcomes[0].Status)
	assert.Contains(t, st.Outcomes[0].Issues[0], "deadline exceeded")
}

func TestRunner_StartContextCancelDoesNotStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRunner(scenarioValidator(), &fakeUpdater{})

	_, err := r.Start(ctx, threeItems())
	require.NoError(t, err)
	cancel()

	st := waitDone(t, r)
	assert.Equal(t, model.PhaseCompleted, st.Phase)
}

func TestRunner_Subscribe(t *testing.T) {
	r := newTestRunner(scenarioValidator(), &fakeUpdater{})
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	first := <-ch
	assert.Equal(t, model.PhaseIdle, first.Phase)

	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.Phase == model.PhaseCompleted {
				assert.Equal(t, 3, st.Progress.Done())
				return
			}
		case <-timeout:
			t.Fatal("never observed completed state")
		}
	}
}

func TestRunner_SnapshotIsCopy(t *testing.T) {
	r := newTestRunner(scenarioValidator(), &fakeUpdater{})
	_, err := r.Start(context.Background(), threeItems())
	require.NoError(t, err)
	st := waitDone(t, r)

	st.Outcomes[0].Status = model.OutcomeFailed
	st.Outcomes[1].Corrected.Answer = model.Some("Z")
	again := r.Snapshot()
	assert.Equal(t, model.OutcomeValid, again.Outcomes[0].Status)
	assert.Equal(t, "C", again.Outcomes[1].Corrected.Answer.Or(""))
}
