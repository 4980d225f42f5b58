package attempt

import (
	"bytes"
	"context"
	"io"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"github.com/volatiletech/null/v8"

	"github.com/rhyrak/go-allocate/internal/lp"
	"github.com/rhyrak/go-allocate/internal/matching"
	"github.com/rhyrak/go-allocate/internal/notify"
	notifymocks "github.com/rhyrak/go-allocate/internal/notify/mocks"
	"github.com/rhyrak/go-allocate/internal/objective"
	"github.com/rhyrak/go-allocate/internal/scheduler"
	"github.com/rhyrak/go-allocate/internal/solver"
	solvermocks "github.com/rhyrak/go-allocate/internal/solver/mocks"
	"github.com/rhyrak/go-allocate/internal/storage"
	"github.com/rhyrak/go-allocate/internal/storage/memory"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// fakeSource serves in-memory snapshots and can fail a number of times first.
type fakeSource struct {
	mu       sync.Mutex
	schedule *model.ScheduleSnapshot
	matching *model.MatchingSnapshot
	failures int
	calls    int
}

func (s *fakeSource) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.Wrap(ErrDataUnavailable, "replica lagging")
	}
	return nil
}

func (s *fakeSource) Schedule(context.Context, string) (*model.ScheduleSnapshot, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.schedule, nil
}

func (s *fakeSource) Matching(context.Context, string) (*model.MatchingSnapshot, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.matching, nil
}

// scheduleSnapshot has three talks, two assessors capped at three and two
// slots in distinct sessions.
func scheduleSnapshot() *model.ScheduleSnapshot {
	pool := []int64{100, 101}
	return &model.ScheduleSnapshot{
		Talks: []*model.Talk{
			{ID: 10, PeriodID: 1, GroupID: 10, Pool: pool},
			{ID: 11, PeriodID: 1, GroupID: 11, Pool: pool},
			{ID: 12, PeriodID: 1, GroupID: 12, Pool: pool},
		},
		Assessors: []*model.Assessor{
			{ID: 100, AssignedLimit: null.IntFrom(3), Enrolled: true},
			{ID: 101, AssignedLimit: null.IntFrom(3), Enrolled: true},
		},
		Slots: []*model.Slot{
			{ID: 1000, SessionID: 1, RoomID: 1},
			{ID: 1001, SessionID: 2, RoomID: 1},
		},
		Periods:              []*model.Period{{ID: 1, RequiredResources: 1, MaxOccupancy: 2}},
		AssessorAvailability: model.AvailabilityTable{},
		TalkAvailability:     model.AvailabilityTable{},
	}
}

func matchingSnapshot() *model.MatchingSnapshot {
	return &model.MatchingSnapshot{
		Selectors: []*model.Selector{
			{ID: 10, Rankings: map[int64]int{100: 1, 200: 2}},
			{ID: 11, Rankings: map[int64]int{100: 2, 200: 1}},
		},
		Faculty: []*model.Faculty{{ID: 1}, {ID: 2}},
		Projects: []*model.Project{
			{ID: 100, OwnerID: 1, PeriodID: 5, Markers: []int64{2}},
			{ID: 200, OwnerID: 2, PeriodID: 5, Markers: []int64{1}},
		},
		Periods: []*model.Period{{ID: 5, RequiredResources: 1, MaxOccupancy: 2, SupervisingCATS: 10, MarkingCATS: 3}},
	}
}

type fixture struct {
	store   *memory.Store
	source  *fakeSource
	scope   tally.TestScope
	console *notify.Console
	runner  *Runner
}

func testOptions() Options {
	return Options{
		Scheduling:        scheduler.DefaultOptions(),
		SchedulingWeights: objective.Weights{Occupancy: 1},
		Matching:          matching.DefaultOptions(),
		MatchingWeights:   objective.Weights{Preference: 1},
		DefaultBackend:    solver.BackendGophersat,
		Recipients:        []mail.Address{{Address: "office@example.com"}},
	}
}

func newFixture(t *testing.T, adapters ...solver.Adapter) *fixture {
	t.Helper()
	if len(adapters) == 0 {
		adapters = []solver.Adapter{solver.NewGophersat(1)}
	}
	f := &fixture{
		store:   memory.New(),
		source:  &fakeSource{schedule: scheduleSnapshot(), matching: matchingSnapshot()},
		scope:   tally.NewTestScope("", nil),
		console: notify.NewConsole(io.Discard, mail.Address{Address: "noreply@example.com"}),
	}
	f.runner = NewRunner(f.store, f.source, solver.NewRegistry(adapters...), f.console, testOptions(), f.scope)
	return f
}

func (f *fixture) create(t *testing.T, req Request) *model.Attempt {
	t.Helper()
	if req.Input == "" {
		req.Input = "term-1"
	}
	a, err := f.runner.Create(context.Background(), req)
	require.NoError(t, err)
	return a
}

func (f *fixture) attempt(t *testing.T, id string) *model.Attempt {
	t.Helper()
	a, err := f.store.GetAttempt(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) counter(name, outcome string) int64 {
	for _, c := range f.scope.Snapshot().Counters() {
		if c.Name() == name && c.Tags()["outcome"] == outcome {
			return c.Value()
		}
	}
	return 0
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, Request{Kind: model.KindScheduling})
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.ModeLive, a.Mode)
	assert.Equal(t, model.ObjectiveFresh, a.Objective)
	assert.Equal(t, solver.BackendGophersat, a.Backend)
	assert.Equal(t, model.StateCreated, f.attempt(t, a.ID).State)
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Create(ctx, Request{Kind: model.KindScheduling})
	assert.Error(t, err, "input is required")

	_, err = f.runner.Create(ctx, Request{Kind: "timetable", Input: "x"})
	assert.Error(t, err)

	_, err = f.runner.Create(ctx, Request{Kind: model.KindScheduling, Input: "x", Objective: model.ObjectiveDeviation})
	assert.Error(t, err, "deviation needs a prior")

	_, err = f.runner.Create(ctx, Request{Kind: model.KindScheduling, Input: "x", Objective: model.ObjectiveDeviation, PriorAttemptID: "missing"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = f.runner.Create(ctx, Request{Kind: model.KindScheduling, Input: "x", Backend: "glpk"})
	assert.True(t, errors.Is(err, solver.ErrUnknownBackend))
}

func TestRunLiveScheduling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, Request{Kind: model.KindScheduling})

	require.NoError(t, f.runner.Run(ctx, a.ID))

	got := f.attempt(t, a.ID)
	assert.True(t, got.Finished)
	assert.Equal(t, model.StateFinished, got.State)
	assert.Equal(t, model.Optimal, got.Outcome)
	assert.Equal(t, 2.0, got.Score)
	assert.Contains(t, got.Message, "[  OK]: Talk placed once check.")
	assert.NotContains(t, got.Message, "[FAIL]")

	placements, err := f.store.Placements(ctx, a.ID)
	require.NoError(t, err)
	placed := 0
	for _, p := range placements {
		placed += len(p.Units)
		assert.Len(t, p.Resources, 1)
	}
	assert.Equal(t, 3, placed)

	assert.Equal(t, int64(1), f.counter("attempt.outcome.finished", "optimal"))
	sent := f.console.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "optimal")

	assert.Equal(t, model.ErrAttemptFinished, f.runner.Run(ctx, a.ID))
}

func TestRunInfeasibleIsAnOutcome(t *testing.T) {
	f := newFixture(t)
	f.source.schedule.Periods[0].Facilities = model.FacilityRecording
	a := f.create(t, Request{Kind: model.KindScheduling})

	require.NoError(t, f.runner.Run(context.Background(), a.ID))
	got := f.attempt(t, a.ID)
	assert.True(t, got.Finished)
	assert.Equal(t, model.Infeasible, got.Outcome)

	placements, err := f.store.Placements(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, placements)
}

func TestRunLiveMatching(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, Request{Kind: model.KindMatching})
	require.NoError(t, f.runner.Run(context.Background(), a.ID))

	got := f.attempt(t, a.ID)
	assert.Equal(t, model.Optimal, got.Outcome)
	// both selectors get their first choice
	assert.Equal(t, 2.0, got.Score)
	assert.Contains(t, got.Message, "[  OK]: Selector assigned once check.")
}

func TestDeviationReproducesPrior(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, Request{Kind: model.KindScheduling})
	require.NoError(t, f.runner.Run(ctx, first.ID))
	want, err := f.store.Placements(ctx, first.ID)
	require.NoError(t, err)

	second := f.create(t, Request{Kind: model.KindScheduling, Objective: model.ObjectiveDeviation, PriorAttemptID: first.ID, NoNewTargets: true})
	require.NoError(t, f.runner.Run(ctx, second.ID))

	got := f.attempt(t, second.ID)
	assert.Equal(t, model.Optimal, got.Outcome)
	assert.Equal(t, 0.0, got.Score)
	placements, err := f.store.Placements(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, want, placements)
}

func TestDeviationRejectsPriorOfOtherKind(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, Request{Kind: model.KindMatching})
	_, err := f.runner.Create(context.Background(), Request{
		Kind: model.KindScheduling, Input: "x", Objective: model.ObjectiveDeviation, PriorAttemptID: first.ID,
	})
	assert.Error(t, err)
}

func TestRunBackendFailureIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := solvermocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Name().Return("mock").AnyTimes()
	adapter.EXPECT().Solve(gomock.Any(), gomock.Any()).
		Return(nil, errors.Wrap(solver.ErrBackend, "cbc: executable file not found"))

	f := newFixture(t, adapter)
	a := f.create(t, Request{Kind: model.KindScheduling, Backend: "mock"})

	err := f.runner.Run(context.Background(), a.ID)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	got := f.attempt(t, a.ID)
	assert.False(t, got.Finished)
	assert.Equal(t, model.StateSolving, got.State)
}

func TestRunStaleReferenceIsDataUnavailable(t *testing.T) {
	f := newFixture(t)
	f.source.schedule.Talks[0].PeriodID = 9
	a := f.create(t, Request{Kind: model.KindScheduling})

	err := f.runner.Run(context.Background(), a.ID)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestOfflineRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notifymocks.NewMockNotifier(ctrl)
	var prepared *notify.Message
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *notify.Message) error {
		prepared = msg
		return nil
	})
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

	f := newFixture(t)
	f.runner.notifier = notifier
	f.runner.opts.ArtifactDir = t.TempDir()
	ctx := context.Background()
	a := f.create(t, Request{Kind: model.KindScheduling, Mode: model.ModeOffline})

	require.NoError(t, f.runner.Run(ctx, a.ID))
	got := f.attempt(t, a.ID)
	assert.False(t, got.Finished)
	assert.Equal(t, model.StateSolving, got.State)

	lpData, err := f.store.Artifact(ctx, a.ID, storage.FormatLP)
	require.NoError(t, err)
	assert.Contains(t, string(lpData), "Minimize")
	mpsData, err := f.store.Artifact(ctx, a.ID, storage.FormatMPS)
	require.NoError(t, err)
	assert.Contains(t, string(mpsData), "ROWS")
	require.NotNil(t, prepared)
	require.Len(t, prepared.Attachments, 2)
	assert.Equal(t, lpData, prepared.Attachments[0].Content)

	// solve the same model elsewhere and upload the result
	snap := scheduleSnapshot()
	b, err := scheduler.Build(snap, scheduler.Enumerate(snap), scheduler.DefaultOptions(), &objective.Fresh{Weights: testOptions().SchedulingWeights})
	require.NoError(t, err)
	res, err := solver.NewGophersat(1).Solve(ctx, b.Model)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, res.Status)
	var sol bytes.Buffer
	require.NoError(t, lp.WriteSolution(&sol, b.Model, "Optimal", res.Solution))

	done, err := f.runner.ImportSolution(ctx, a.ID, &sol)
	require.NoError(t, err)
	assert.Equal(t, model.Optimal, done.Outcome)
	assert.True(t, f.attempt(t, a.ID).Finished)

	placements, err := f.store.Placements(ctx, a.ID)
	require.NoError(t, err)
	placed := 0
	for _, p := range placements {
		placed += len(p.Units)
	}
	assert.Equal(t, 3, placed)

	_, err = f.store.Enumeration(ctx, a.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = f.runner.ImportSolution(ctx, a.ID, strings.NewReader("Optimal - objective value 0\n"))
	assert.Equal(t, model.ErrAttemptFinished, err)
}

func prepareOffline(t *testing.T, f *fixture) *model.Attempt {
	t.Helper()
	a := f.create(t, Request{Kind: model.KindScheduling, Mode: model.ModeOffline})
	require.NoError(t, f.runner.Run(context.Background(), a.ID))
	return a
}

func TestImportMalformedSolution(t *testing.T) {
	f := newFixture(t)
	a := prepareOffline(t, f)

	got, err := f.runner.ImportSolution(context.Background(), a.ID, strings.NewReader("Optimal - objective value 1\n 0 no_such_var 1 0\n"))
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.Equal(t, model.Undefined, got.Outcome)
	assert.NotEmpty(t, got.Message)
}

func TestImportStoppedSolve(t *testing.T) {
	f := newFixture(t)
	a := prepareOffline(t, f)

	got, err := f.runner.ImportSolution(context.Background(), a.ID, strings.NewReader("Stopped on time - objective value 3\n"))
	require.NoError(t, err)
	assert.Equal(t, model.NotSolved, got.Outcome)
}

func TestImportAfterEntitiesRemoved(t *testing.T) {
	f := newFixture(t)
	a := prepareOffline(t, f)
	f.source.schedule.Talks = f.source.schedule.Talks[1:]

	got, err := f.runner.ImportSolution(context.Background(), a.ID, strings.NewReader("Optimal - objective value 0\n"))
	require.NoError(t, err)
	assert.Equal(t, model.Undefined, got.Outcome)
	assert.Contains(t, got.Message, "unit 10 no longer exists")
	_, err = f.store.Enumeration(context.Background(), a.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestImportWithoutEnumeration(t *testing.T) {
	f := newFixture(t)
	a := prepareOffline(t, f)
	require.NoError(t, f.store.DeleteEnumeration(context.Background(), a.ID))

	got, err := f.runner.ImportSolution(context.Background(), a.ID, strings.NewReader("Optimal - objective value 0\n"))
	require.NoError(t, err)
	assert.True(t, got.Finished)
	assert.Equal(t, model.Undefined, got.Outcome)
}

func TestImportPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := f.create(t, Request{Kind: model.KindScheduling})
	_, err := f.runner.ImportSolution(ctx, live.ID, strings.NewReader(""))
	assert.Equal(t, ErrNotOffline, err)

	offline := f.create(t, Request{Kind: model.KindScheduling, Mode: model.ModeOffline})
	_, err = f.runner.ImportSolution(ctx, offline.ID, strings.NewReader(""))
	assert.Equal(t, ErrNotPrepared, err)
}

func TestRevertAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, Request{Kind: model.KindScheduling})
	require.NoError(t, f.runner.Run(ctx, a.ID))
	original, err := f.store.Placements(ctx, a.ID)
	require.NoError(t, err)

	f.store.SetCurrent(a.ID, nil)
	require.NoError(t, f.runner.Revert(ctx, a.ID))
	current, err := f.store.Placements(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, original, current)

	stale := prepareOffline(t, f)
	require.NoError(t, f.runner.Abandon(ctx, stale.ID, errors.New("operator cancelled")))
	require.NoError(t, f.store.SaveEnumeration(ctx, stale.ID, nil))
	n, err := f.runner.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
