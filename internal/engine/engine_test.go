package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/results"
)

// stubModel proposes n events of one kind per year, addressed to person ids
// base+1..base+n, and applies the ones with even ids.
type stubModel struct {
	name    string
	kind    event.Kind
	base    int
	n       int
	handled map[int]int
	log     *[]string
	failOn  int
	soft    string
}

func newStubModel(name string, kind event.Kind, base, n int, log *[]string) *stubModel {
	return &stubModel{name: name, kind: kind, base: base, n: n, handled: make(map[int]int), log: log}
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) PrepareYear(_ context.Context, yc *YearContext) ([]event.Event, error) {
	m.record("prepare")
	evs := make([]event.Event, 0, m.n)
	for i := 1; i <= m.n; i++ {
		switch m.kind {
		case event.KindBirth:
			evs = append(evs, event.Birth(m.base+i))
		case event.KindDeath:
			evs = append(evs, event.Death(m.base+i))
		case event.KindJobChange:
			evs = append(evs, event.JobChange(m.base+i))
		default:
			evs = append(evs, event.Move(m.base+i))
		}
	}
	return evs, nil
}

func (m *stubModel) HandleEvent(_ context.Context, yc *YearContext, ev event.Event) (bool, error) {
	id := ev.PersonID()
	if ev.Kind() == event.KindMove {
		id = ev.HouseholdID()
	}
	m.handled[id]++
	if m.failOn != 0 && id == m.failOn {
		return false, errors.New("boom")
	}
	if id%2 == 0 {
		return true, nil
	}
	if m.soft != "" {
		yc.Counters.SoftFailure(m.soft)
	}
	return false, nil
}

func (m *stubModel) FinishYear(context.Context, *YearContext) error {
	m.record("finish")
	return nil
}

func (m *stubModel) record(what string) {
	if m.log != nil {
		*m.log = append(*m.log, m.name+"."+what)
	}
}

type stubAnnual struct {
	name string
	log  *[]string
	err  error
}

func (a *stubAnnual) Name() string { return a.name }

func (a *stubAnnual) FinishYear(context.Context, *YearContext) error {
	*a.log = append(*a.log, a.name+".finish")
	return a.err
}

type hookedAnnual struct {
	stubAnnual
}

func (h *hookedAnnual) Setup(_ context.Context, yc *YearContext) error {
	*h.log = append(*h.log, fmt.Sprintf("%s.setup(%d)", h.name, yc.Year))
	return nil
}

func (h *hookedAnnual) EndSimulation(_ context.Context, yc *YearContext) error {
	*h.log = append(*h.log, fmt.Sprintf("%s.end(%d)", h.name, yc.Year))
	return nil
}

// valueModel is registered by value and holds a slice, so its dynamic type is
// not comparable.
type valueModel struct {
	name string
	tags []string
	log  *[]string
}

func (m valueModel) Name() string { return m.name }

func (m valueModel) PrepareYear(context.Context, *YearContext) ([]event.Event, error) {
	*m.log = append(*m.log, m.name+".prepare")
	return nil, nil
}

func (m valueModel) HandleEvent(context.Context, *YearContext, event.Event) (bool, error) {
	return false, nil
}

func (m valueModel) FinishYear(context.Context, *YearContext) error {
	*m.log = append(*m.log, m.name+".finish")
	return nil
}

type failingSink struct{}

func (failingSink) WriteYear(context.Context, results.YearResult) error {
	return errors.New("disk full")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestScheduler(t *testing.T, seed uint64, opts ...Option) *Scheduler {
	t.Helper()
	return New(seed, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestScheduler_DuplicateRegistration(t *testing.T) {
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("a", event.KindBirth, 0, 1, nil)))

	err := s.RegisterEventModel(event.KindBirth, newStubModel("b", event.KindBirth, 0, 1, nil))
	require.Error(t, err)
	assert.True(t, IsDuplicateRegistration(err))
	assert.Contains(t, err.Error(), "already handled by a")
}

func TestScheduler_InvalidRegistration(t *testing.T) {
	s := newTestScheduler(t, 1)

	err := s.RegisterEventModel(event.KindUnknown, newStubModel("a", event.KindBirth, 0, 1, nil))
	code, ok := ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidRegistration, code)

	err = s.RegisterEventModel(event.KindBirth, nil)
	code, _ = ErrorCode(err)
	assert.Equal(t, ErrCodeInvalidRegistration, code)

	err = s.RegisterAnnualModel(nil)
	code, _ = ErrorCode(err)
	assert.Equal(t, ErrCodeInvalidRegistration, code)
}

func TestScheduler_UnregisteredKindIsFatal(t *testing.T) {
	s := newTestScheduler(t, 1)
	// The model emits deaths but is only registered for births.
	m := newStubModel("liar", event.KindDeath, 0, 3, nil)
	require.NoError(t, s.RegisterEventModel(event.KindBirth, m))

	_, err := s.Simulate(context.Background(), 2012)
	require.Error(t, err)
	assert.True(t, IsUnregisteredKind(err))
	assert.Empty(t, m.handled)
}

func TestScheduler_DispatchCountsMatchProduced(t *testing.T) {
	births := newStubModel("birth", event.KindBirth, 0, 20, nil)
	deaths := newStubModel("death", event.KindDeath, 100, 7, nil)
	moves := newStubModel("move", event.KindMove, 200, 0, nil)
	sink := &results.MemorySink{}

	s := newTestScheduler(t, 42, WithSink(sink), WithRunID("run-1"))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, births))
	require.NoError(t, s.RegisterEventModel(event.KindDeath, deaths))
	require.NoError(t, s.RegisterEventModel(event.KindMove, moves))

	r, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)

	assert.Equal(t, 27, r.Dispatched())
	assert.Equal(t, 10, r.Succeeded(event.KindBirth))
	assert.Equal(t, 3, r.Succeeded(event.KindDeath))
	assert.Equal(t, []diag.KindTally{
		{Kind: event.KindBirth, Attempted: 20, Succeeded: 10},
		{Kind: event.KindDeath, Attempted: 7, Succeeded: 3},
		{Kind: event.KindMove, Attempted: 0, Succeeded: 0},
	}, r.Events, "every registered kind is reported, even with no events")

	require.Len(t, sink.Years, 1)
	assert.Equal(t, "run-1", sink.Years[0].RunID)
	assert.Equal(t, r, sink.Years[0])
}

func TestScheduler_EachEventHandledExactlyOnce(t *testing.T) {
	births := newStubModel("birth", event.KindBirth, 0, 50, nil)
	deaths := newStubModel("death", event.KindDeath, 1000, 50, nil)
	s := newTestScheduler(t, 7)
	require.NoError(t, s.RegisterEventModel(event.KindBirth, births))
	require.NoError(t, s.RegisterEventModel(event.KindDeath, deaths))

	_, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)

	for _, m := range []*stubModel{births, deaths} {
		require.Len(t, m.handled, 50)
		for id, n := range m.handled {
			assert.Equal(t, 1, n, "%s event %d", m.name, id)
		}
	}
}

func dispatchOrder(t *testing.T, seed uint64, years int) []string {
	t.Helper()
	var order []string
	s := newTestScheduler(t, seed, WithDispatchObserver(func(d Dispatch) {
		order = append(order, fmt.Sprintf("%d:%d:%s:%s", d.Seq, d.Year, d.Event, d.State))
	}))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("birth", event.KindBirth, 0, 15, nil)))
	require.NoError(t, s.RegisterEventModel(event.KindDeath, newStubModel("death", event.KindDeath, 100, 15, nil)))
	require.NoError(t, s.RegisterEventModel(event.KindMove, newStubModel("move", event.KindMove, 200, 15, nil)))
	require.NoError(t, s.Run(context.Background(), 2011, 2010+years))
	return order
}

func TestScheduler_Deterministic(t *testing.T) {
	first := dispatchOrder(t, 99, 3)
	second := dispatchOrder(t, 99, 3)
	require.Len(t, first, 135)
	assert.Equal(t, first, second, "same seed and registration order reproduce the dispatch order")

	other := dispatchOrder(t, 100, 3)
	assert.NotEqual(t, first, other, "a different seed shuffles differently")
}

func TestScheduler_ShuffleMixesKinds(t *testing.T) {
	order := dispatchOrder(t, 5, 1)
	// With 45 events, an unshuffled list would start with 15 births.
	births := 0
	for _, line := range order[:15] {
		if strings.Contains(line, ":birth(") {
			births++
		}
	}
	assert.Less(t, births, 15)
}

func TestScheduler_ObserverSeesTerminalStates(t *testing.T) {
	var seen []Dispatch
	s := newTestScheduler(t, 3, WithDispatchObserver(func(d Dispatch) { seen = append(seen, d) }))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("birth", event.KindBirth, 0, 4, nil)))

	_, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)
	_, err = s.Simulate(context.Background(), 2013)
	require.NoError(t, err)

	require.Len(t, seen, 8)
	for i, d := range seen {
		assert.Equal(t, int64(i+1), d.Seq, "seq keeps growing across years")
		assert.Equal(t, "birth", d.Model)
		if d.Event.PersonID()%2 == 0 {
			assert.Equal(t, event.StateApplied, d.State)
		} else {
			assert.Equal(t, event.StateRejected, d.State)
		}
	}
	assert.Equal(t, int64(8), s.Clock().Current())
}

func TestScheduler_FinishOrder(t *testing.T) {
	var log []string
	a := newStubModel("a", event.KindBirth, 0, 1, &log)
	b := newStubModel("b", event.KindDeath, 0, 1, &log)
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterEventModel(event.KindBirth, a))
	require.NoError(t, s.RegisterAnnualModel(&stubAnnual{name: "aging", log: &log}))
	require.NoError(t, s.RegisterEventModel(event.KindDeath, b))
	require.NoError(t, s.RegisterAnnualModel(&stubAnnual{name: "labor", log: &log}))

	_, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a.prepare", "b.prepare",
		"aging.finish", "labor.finish",
		"a.finish", "b.finish",
	}, log)
}

func TestScheduler_MultiKindModelPreparedOnce(t *testing.T) {
	var log []string
	m := newStubModel("migration", event.KindMove, 0, 2, &log)
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterEventModel(event.KindMigrationIn, m))
	require.NoError(t, s.RegisterEventModel(event.KindMigrationOut, m))
	require.NoError(t, s.RegisterEventModel(event.KindMove, m))

	_, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)
	assert.Equal(t, []string{"migration.prepare", "migration.finish"}, log)
}

func TestScheduler_NonPointerModelsAreNotMerged(t *testing.T) {
	var log []string
	m := valueModel{name: "v", tags: []string{"a"}, log: &log}
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterEventModel(event.KindMigrationIn, m))
	require.NoError(t, s.RegisterEventModel(event.KindMigrationOut, m))
	require.NoError(t, s.RegisterAnnualModel(m))

	require.NotPanics(t, func() {
		require.NoError(t, s.Run(context.Background(), 2012, 2012))
	})
	assert.Equal(t, 2, strings.Count(strings.Join(log, " "), "v.prepare"))
}

func TestScheduler_ModelErrorPropagates(t *testing.T) {
	m := newStubModel("birth", event.KindBirth, 0, 10, nil)
	m.failOn = 4
	sink := &results.MemorySink{}
	s := newTestScheduler(t, 11, WithSink(sink))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, m))

	_, err := s.Simulate(context.Background(), 2012)
	require.Error(t, err)
	assert.True(t, IsModelFailure(err))
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "year=2012")
	assert.Empty(t, sink.Years, "an aborted year writes nothing")

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, event.KindBirth, re.Kind)
}

func TestScheduler_AnnualErrorPropagates(t *testing.T) {
	var log []string
	cause := errors.New("forecast missing")
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterAnnualModel(&stubAnnual{name: "labor", log: &log, err: cause}))

	_, err := s.Simulate(context.Background(), 2012)
	require.ErrorIs(t, err, cause)
	assert.True(t, IsModelFailure(err))
}

func TestScheduler_SinkFailure(t *testing.T) {
	s := newTestScheduler(t, 1, WithSink(failingSink{}))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("birth", event.KindBirth, 0, 1, nil)))

	_, err := s.Simulate(context.Background(), 2012)
	assert.True(t, IsSinkFailure(err))
	assert.True(t, IsFatal(err))
	assert.False(t, IsFatal(fmt.Errorf("run interrupted: %w", context.Canceled)))
}

func TestScheduler_CountersResetEachYear(t *testing.T) {
	m := newStubModel("birth", event.KindBirth, 0, 5, nil)
	m.soft = diag.NoVacantDwellingForMove
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterEventModel(event.KindBirth, m))

	r, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)
	assert.Equal(t, []diag.Named{{Name: diag.NoVacantDwellingForMove, Value: 3}}, r.SoftFailures)
	// Still readable after the year ends.
	assert.Equal(t, 5, s.Counters().Attempted(event.KindBirth))

	r, err = s.Simulate(context.Background(), 2013)
	require.NoError(t, err)
	assert.Equal(t, 2013, s.Counters().Year())
	assert.Equal(t, 5, s.Counters().Attempted(event.KindBirth), "not 10: reset at year start")
	assert.Equal(t, 3, r.SoftFailures[0].Value)

	assert.Equal(t, []diag.Named{{Name: diag.NoVacantDwellingForMove, Value: 6}}, s.SoftFailureTotals())
}

func TestScheduler_Summaries(t *testing.T) {
	calls := 0
	s := newTestScheduler(t, 1, WithSummaries(
		func() []diag.Named { calls++; return []diag.Named{{Name: "persons", Value: 10 + calls}} },
		func() []diag.Named { return []diag.Named{{Name: "households", Value: 4}} },
	))

	r, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)
	assert.Equal(t, []diag.Named{{Name: "persons", Value: 11}, {Name: "households", Value: 4}}, r.Summaries)
}

func TestScheduler_RunHooksAndWarning(t *testing.T) {
	var log []string
	var logBuf bytes.Buffer
	m := newStubModel("birth", event.KindBirth, 0, 3, nil)
	m.soft = diag.NoVacantJob
	hooks := &hookedAnnual{stubAnnual{name: "hooks", log: &log}}

	s := New(1, WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, m))
	require.NoError(t, s.RegisterAnnualModel(hooks))

	require.NoError(t, s.Run(context.Background(), 2011, 2012))

	assert.Equal(t, []string{"hooks.setup(2011)", "hooks.finish", "hooks.finish", "hooks.end(2012)"}, log)
	assert.Contains(t, logBuf.String(), "soft failures during run")
	assert.Contains(t, logBuf.String(), `"no vacant job"=4`)
}

func TestScheduler_RunWithoutSoftFailuresDoesNotWarn(t *testing.T) {
	var logBuf bytes.Buffer
	s := New(1, WithLogger(slog.New(slog.NewTextHandler(&logBuf, nil))))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("birth", event.KindBirth, 0, 3, nil)))

	require.NoError(t, s.Run(context.Background(), 2011, 2011))
	assert.NotContains(t, logBuf.String(), "WARN")
}

func TestScheduler_RunInvalidRange(t *testing.T) {
	s := newTestScheduler(t, 1)
	err := s.Run(context.Background(), 2012, 2011)
	code, ok := ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidYearRange, code)
}

func TestScheduler_RunStopsBetweenYearsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &results.MemorySink{}
	s := newTestScheduler(t, 1, WithSink(sink), WithSummaries(func() []diag.Named {
		cancel()
		return nil
	}))

	err := s.Run(ctx, 2011, 2020)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.Years, 1, "the started year completes")
}

func TestScheduler_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	s := newTestScheduler(t, 1, WithTracer(tp.Tracer("test")))
	require.NoError(t, s.RegisterEventModel(event.KindBirth, newStubModel("birth", event.KindBirth, 0, 2, nil)))

	_, err := s.Simulate(context.Background(), 2012)
	require.NoError(t, err)

	var names []string
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"phase.prepare", "phase.shuffle", "phase.dispatch", "phase.finish", "simulate.year"}, names)
}

// Whatever the seed and the candidate counts, dispatched == produced and the
// per-kind success tallies match the handlers' own view.
func TestScheduler_CountEqualityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		nb := rapid.IntRange(0, 40).Draw(rt, "births")
		nd := rapid.IntRange(0, 40).Draw(rt, "deaths")

		s := New(seed, WithLogger(quietLogger()))
		births := newStubModel("birth", event.KindBirth, 0, nb, nil)
		deaths := newStubModel("death", event.KindDeath, 0, nd, nil)
		if err := s.RegisterEventModel(event.KindBirth, births); err != nil {
			rt.Fatal(err)
		}
		if err := s.RegisterEventModel(event.KindDeath, deaths); err != nil {
			rt.Fatal(err)
		}

		r, err := s.Simulate(context.Background(), 2000)
		if err != nil {
			rt.Fatal(err)
		}
		if r.Dispatched() != nb+nd {
			rt.Fatalf("dispatched %d, produced %d", r.Dispatched(), nb+nd)
		}
		if r.Succeeded(event.KindBirth) != nb/2 || r.Succeeded(event.KindDeath) != nd/2 {
			rt.Fatalf("unexpected success tallies %+v", r.Events)
		}
	})
}
