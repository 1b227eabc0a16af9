package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/finedust/pkg/errors"
)

var seoul = time.FixedZone("Asia/Seoul", 9*60*60)

func TestServiceTodayComputesDoseAndGrade(t *testing.T) {
	today := Date{Year: 2019, Month: 2, Day: 8}
	pollution := newStubPollution()
	pollution.days[today] = Concentration{
		Fine:      []HourlyValue{{Hour: 10, Value: 60}, {Hour: 9, Value: 40}},
		Ultrafine: []HourlyValue{{Hour: 9, Value: 20}, {Hour: 10, Value: 30}},
	}
	motion := newStubMotion(true)
	motion.days[today] = []HourlyValue{{Hour: 10, Value: 500}, {Hour: 9, Value: 1000}}
	publisher := &stubPublisher{}
	svc := newTestService(t, motion, pollution, newStubStore(), publisher)

	snap, err := svc.Today(context.Background())
	require.NoError(t, err)
	require.Equal(t, today, snap.Date)
	require.Equal(t, 70, snap.FineDust)      // 40*1 + 60*0.5
	require.Equal(t, 35, snap.UltrafineDust) // 20*1 + 30*0.5
	require.Equal(t, GradeUnhealthy, snap.Grade)
	require.Equal(t, 3, snap.GradeLevel)
	require.NotEqual(t, uuid.Nil, snap.RequestID)
	require.Len(t, publisher.published, 1)
	require.Equal(t, snap, publisher.published[0])
}

func TestServiceTodayPublishFailureIsNotFatal(t *testing.T) {
	today := Date{Year: 2019, Month: 2, Day: 8}
	pollution := newStubPollution()
	pollution.days[today] = Concentration{}
	publisher := &stubPublisher{err: errors.New("valkey down")}
	svc := newTestService(t, newStubMotion(true), pollution, newStubStore(), publisher)

	snap, err := svc.Today(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, snap.FineDust)
	require.Equal(t, GradeGood, snap.Grade)
}

func TestServiceTodayUnauthorizedSkipsRemoteCalls(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(false)
	svc := newTestService(t, motion, pollution, newStubStore(), nil)

	_, err := svc.Today(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, CodeAuthorization))
	require.Equal(t, 0, pollution.callCount())
	require.Equal(t, 0, motion.distanceCalls)
}

func TestServiceTodayPropagatesSourceError(t *testing.T) {
	pollution := newStubPollution()
	pollution.dayErr = apperrors.Wrap(CodeDataFormat, "bad payload", nil)
	svc := newTestService(t, newStubMotion(true), pollution, newStubStore(), nil)

	_, err := svc.Today(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, CodeDataFormat))
}

func TestServiceWeekBackfillIsIdempotent(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	rng := mustRange(t, "2019-02-01", "2019-02-03")
	for i, day := range rng.Days() {
		pollution.days[day] = Concentration{
			Fine:      []HourlyValue{{Hour: 12, Value: float64(10 * (i + 1))}},
			Ultrafine: []HourlyValue{{Hour: 12, Value: float64(5 * (i + 1))}},
		}
		motion.days[day] = []HourlyValue{{Hour: 12, Value: 2000}}
	}
	store := newStubStore()
	svc := newTestService(t, motion, pollution, store, nil)

	first, err := svc.Week(context.Background(), rng)
	require.NoError(t, err)
	require.NoError(t, first.PersistErr)
	require.Equal(t, []IntakeRecord{
		{Date: mustDate(t, "2019-02-01"), FineDust: 20, UltrafineDust: 10},
		{Date: mustDate(t, "2019-02-02"), FineDust: 40, UltrafineDust: 20},
		{Date: mustDate(t, "2019-02-03"), FineDust: 60, UltrafineDust: 30},
	}, first.Records)
	require.Equal(t, rng.Days(), first.Backfilled)
	require.Equal(t, 1, pollution.callCount())
	require.Equal(t, 1, store.persistCalls)

	second, err := svc.Week(context.Background(), rng)
	require.NoError(t, err)
	require.Equal(t, first.Records, second.Records)
	require.Empty(t, second.Backfilled)
	require.Equal(t, 3, second.Usage.CacheHits)
	require.Equal(t, 1, pollution.callCount(), "cached days must not be fetched again")
	require.Equal(t, 1, store.persistCalls)
}

func TestServiceWeekMergesCacheAndBackfillInDateOrder(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	rng := mustRange(t, "2019-02-01", "2019-02-05")
	for _, day := range rng.Days() {
		pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 8, Value: 10}}, Ultrafine: []HourlyValue{{Hour: 8, Value: 10}}}
		motion.days[day] = []HourlyValue{{Hour: 8, Value: 1000}}
	}
	store := newStubStore()
	store.records[mustDate(t, "2019-02-02")] = IntakeRecord{Date: mustDate(t, "2019-02-02"), FineDust: 99, UltrafineDust: 98}
	store.records[mustDate(t, "2019-02-04")] = IntakeRecord{Date: mustDate(t, "2019-02-04"), FineDust: 77, UltrafineDust: 76}
	svc := newTestService(t, motion, pollution, store, nil)

	out, err := svc.Week(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, out.Records, 5)
	for i, day := range rng.Days() {
		require.Equal(t, day, out.Records[i].Date)
	}
	require.Equal(t, 99, out.Records[1].FineDust)
	require.Equal(t, 77, out.Records[3].FineDust)
	require.Equal(t, 10, out.Records[0].FineDust)
	require.Equal(t, []Date{mustDate(t, "2019-02-01"), mustDate(t, "2019-02-03"), mustDate(t, "2019-02-05")}, out.Backfilled)
	require.Equal(t, 3, pollution.callCount(), "one range fetch per contiguous run of missing days")
	require.ElementsMatch(t, []Date{mustDate(t, "2019-02-01"), mustDate(t, "2019-02-03"), mustDate(t, "2019-02-05")}, pollution.requestedDays())
}

func TestServiceWeekPartialFailureKeepsEarlierCache(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	week := mustRange(t, "2019-02-01", "2019-02-07")
	for _, day := range week.Days() {
		pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 8, Value: 10}}, Ultrafine: []HourlyValue{{Hour: 8, Value: 5}}}
		motion.days[day] = []HourlyValue{{Hour: 8, Value: 1000}}
	}
	store := newStubStore()
	svc := newTestService(t, motion, pollution, store, nil)

	early := mustRange(t, "2019-02-01", "2019-02-03")
	_, err := svc.Week(context.Background(), early)
	require.NoError(t, err)

	pollution.failDays[mustDate(t, "2019-02-04")] = apperrors.Wrap(CodeNetwork, "timeout", nil)
	_, err = svc.Week(context.Background(), week)
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, CodeNetwork))
	require.Len(t, store.records, 3, "failed request must not persist anything")

	calls := pollution.callCount()
	again, err := svc.Week(context.Background(), early)
	require.NoError(t, err)
	require.Len(t, again.Records, 3)
	require.Equal(t, calls, pollution.callCount())
}

func TestServiceWeekPersistFailureStillReturnsRecords(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	rng := mustRange(t, "2019-02-01", "2019-02-02")
	for _, day := range rng.Days() {
		pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 1, Value: 10}}}
		motion.days[day] = []HourlyValue{{Hour: 1, Value: 1000}}
	}
	store := newStubStore()
	store.persistErr = errors.New("disk full")
	svc := newTestService(t, motion, pollution, store, nil)

	out, err := svc.Week(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)
	require.Equal(t, 10, out.Records[0].FineDust)
	require.Error(t, out.PersistErr)
	require.True(t, apperrors.IsCode(out.PersistErr, CodePersistence))
}

func TestServiceWeekLookupFailureTreatedAsMiss(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	day := mustDate(t, "2019-02-01")
	pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 1, Value: 10}}}
	motion.days[day] = []HourlyValue{{Hour: 1, Value: 1000}}
	store := newStubStore()
	store.lookupErr = errors.New("connection reset")
	svc := newTestService(t, motion, pollution, store, nil)

	out, err := svc.Week(context.Background(), DateRange{Start: day, End: day})
	require.NoError(t, err)
	require.Equal(t, 1, out.Usage.LookupErrors)
	require.Equal(t, []Date{day}, out.Backfilled)
	require.Equal(t, 1, pollution.callCount())
}

func TestServiceWeekUnauthorizedShortCircuits(t *testing.T) {
	pollution := newStubPollution()
	store := newStubStore()
	svc := newTestService(t, newStubMotion(false), pollution, store, nil)

	_, err := svc.Week(context.Background(), mustRange(t, "2019-02-01", "2019-02-07"))
	require.True(t, apperrors.IsCode(err, CodeAuthorization))
	require.Equal(t, 0, pollution.callCount())
	require.Equal(t, 0, store.lookupCalls)
}

func TestServiceWeekIncompleteSeriesFails(t *testing.T) {
	pollution := newStubPollution()
	pollution.skipDays[mustDate(t, "2019-02-02")] = true
	motion := newStubMotion(true)
	svc := newTestService(t, motion, pollution, newStubStore(), nil)

	_, err := svc.Week(context.Background(), mustRange(t, "2019-02-01", "2019-02-03"))
	require.True(t, apperrors.IsCode(err, CodeDataFormat))
}

func TestServiceWeekRejectsInvalidRange(t *testing.T) {
	svc := newTestService(t, newStubMotion(true), newStubPollution(), newStubStore(), nil)

	_, err := svc.Week(context.Background(), DateRange{Start: mustDate(t, "2019-02-05"), End: mustDate(t, "2019-02-01")})
	require.True(t, apperrors.IsCode(err, CodeInvalidInput))

	_, err = svc.Week(context.Background(), mustRange(t, "2019-01-01", "2019-03-01"))
	require.True(t, apperrors.IsCode(err, CodeInvalidInput))
}

func TestServiceTodayFailsWhenDistanceUnavailable(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	motion.dayErr = errors.New("health store locked")
	publisher := &stubPublisher{}
	svc := newTestService(t, motion, pollution, newStubStore(), publisher)

	_, err := svc.Today(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, CodeSourceUnavailable))
	require.Empty(t, publisher.published)
}

func TestServiceWeekFailsWhenDistanceUnavailable(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	rng := mustRange(t, "2019-02-01", "2019-02-03")
	for _, day := range rng.Days() {
		pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 8, Value: 10}}}
		motion.days[day] = []HourlyValue{{Hour: 8, Value: 1000}}
	}
	motion.failDays[mustDate(t, "2019-02-02")] = errors.New("health store locked")
	store := newStubStore()
	svc := newTestService(t, motion, pollution, store, nil)

	_, err := svc.Week(context.Background(), rng)
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, CodeSourceUnavailable))
	require.Equal(t, 0, store.persistCalls)
	require.Empty(t, store.records)
}

func TestServiceWeekRejectsTodayAndFutureDays(t *testing.T) {
	pollution := newStubPollution()
	store := newStubStore()
	svc := newTestService(t, newStubMotion(true), pollution, store, nil)

	for _, rng := range []DateRange{
		mustRange(t, "2019-02-08", "2019-02-10"),
		mustRange(t, "2019-02-06", "2019-02-08"),
		mustRange(t, "2019-02-09", "2019-02-09"),
	} {
		_, err := svc.Week(context.Background(), rng)
		require.True(t, apperrors.IsCode(err, CodeInvalidInput), rng.String())
	}
	require.Equal(t, 0, pollution.callCount())
	require.Equal(t, 0, store.persistCalls)
	require.Empty(t, store.records)
}

func TestServiceWeekRejectsBackfillBeyondSourceHistory(t *testing.T) {
	pollution := newStubPollution()
	motion := newStubMotion(true)
	store := newStubStore()
	svc := newTestService(t, motion, pollution, store, nil)

	// Source history reaches back to 2019-01-09.
	_, err := svc.Week(context.Background(), mustRange(t, "2019-01-05", "2019-01-10"))
	require.True(t, apperrors.IsCode(err, CodeInvalidInput))
	require.Equal(t, 0, pollution.callCount())
	require.Empty(t, store.records)

	for _, day := range mustRange(t, "2019-01-05", "2019-01-08").Days() {
		store.records[day] = IntakeRecord{Date: day, FineDust: 7, UltrafineDust: 3}
	}
	out, err := svc.Week(context.Background(), mustRange(t, "2019-01-05", "2019-01-10"))
	require.NoError(t, err)
	require.Len(t, out.Records, 6)
	require.Equal(t, 7, out.Records[0].FineDust)
	require.Equal(t, []Date{mustDate(t, "2019-01-09"), mustDate(t, "2019-01-10")}, out.Backfilled)
}

func TestServiceWeekSharedBackfillSurvivesCancelledCaller(t *testing.T) {
	pollution := newStubPollution()
	pollution.block = make(chan struct{})
	pollution.started = make(chan struct{}, 1)
	motion := newStubMotion(true)
	rng := mustRange(t, "2019-02-01", "2019-02-03")
	for _, day := range rng.Days() {
		pollution.days[day] = Concentration{Fine: []HourlyValue{{Hour: 9, Value: 10}}}
		motion.days[day] = []HourlyValue{{Hour: 9, Value: 1000}}
	}
	store := newStubStore()
	svc := newTestService(t, motion, pollution, store, nil)

	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Week(first, rng)
		firstErr <- err
	}()
	<-pollution.started

	type result struct {
		out WeeklyIntake
		err error
	}
	second := make(chan result, 1)
	go func() {
		out, err := svc.Week(context.Background(), rng)
		second <- result{out: out, err: err}
	}()
	require.Eventually(t, func() bool { return store.lookups() >= 2*rng.Len() }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(pollution.block)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.out.Records, 3)
	require.Equal(t, 10, res.out.Records[0].FineDust)
	require.Equal(t, 3, store.stored())
}

func TestServiceDefaultWeek(t *testing.T) {
	svc := newTestService(t, newStubMotion(true), newStubPollution(), newStubStore(), nil)

	rng := svc.DefaultWeek()
	require.Equal(t, mustDate(t, "2019-02-02"), rng.Start)
	require.Equal(t, mustDate(t, "2019-02-07"), rng.End)
}

func newTestService(t *testing.T, motion MotionSource, pollution PollutionSource, store IntakeStore, publisher TodayPublisher) *service {
	t.Helper()
	svc := NewService(Config{Timezone: seoul}, motion, pollution, store, publisher, slog.New(slog.NewTextHandler(io.Discard, nil))).(*service)
	svc.now = func() time.Time {
		return time.Date(2019, 2, 8, 14, 30, 0, 0, seoul)
	}
	return svc
}

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := NewDateRange(mustDate(t, start), mustDate(t, end))
	require.NoError(t, err)
	return r
}

type stubPollution struct {
	mu        sync.Mutex
	days      map[Date]Concentration
	failDays  map[Date]error
	skipDays  map[Date]bool
	dayErr    error
	calls     int
	requested []Date
	// block, when set, holds range fetches until closed or cancelled.
	block   chan struct{}
	started chan struct{}
}

func newStubPollution() *stubPollution {
	return &stubPollution{
		days:     make(map[Date]Concentration),
		failDays: make(map[Date]error),
		skipDays: make(map[Date]bool),
	}
}

func (s *stubPollution) ConcentrationForDay(_ context.Context, day Date) (Concentration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requested = append(s.requested, day)
	if s.dayErr != nil {
		return Concentration{}, s.dayErr
	}
	return s.days[day], nil
}

func (s *stubPollution) ConcentrationForRange(ctx context.Context, r DateRange) ([]DailyValue[Concentration], error) {
	if s.block != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]DailyValue[Concentration], 0, r.Len())
	for _, day := range r.Days() {
		s.requested = append(s.requested, day)
		if err := s.failDays[day]; err != nil {
			return nil, err
		}
		if s.skipDays[day] {
			continue
		}
		out = append(out, DailyValue[Concentration]{Date: day, Value: s.days[day]})
	}
	return out, nil
}

func (s *stubPollution) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubPollution) requestedDays() []Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Date(nil), s.requested...)
}

type stubMotion struct {
	mu            sync.Mutex
	authorized    bool
	days          map[Date][]HourlyValue
	dayErr        error
	failDays      map[Date]error
	distanceCalls int
}

func newStubMotion(authorized bool) *stubMotion {
	return &stubMotion{authorized: authorized, days: make(map[Date][]HourlyValue), failDays: make(map[Date]error)}
}

func (s *stubMotion) IsAuthorized(context.Context) (bool, error) {
	return s.authorized, nil
}

func (s *stubMotion) DistanceForDay(_ context.Context, day Date) ([]HourlyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distanceCalls++
	if s.dayErr != nil {
		return nil, s.dayErr
	}
	return s.days[day], nil
}

func (s *stubMotion) DistanceForRange(_ context.Context, r DateRange) ([]DailyValue[[]HourlyValue], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distanceCalls++
	out := make([]DailyValue[[]HourlyValue], 0, r.Len())
	for _, day := range r.Days() {
		if err := s.failDays[day]; err != nil {
			return nil, err
		}
		out = append(out, DailyValue[[]HourlyValue]{Date: day, Value: s.days[day]})
	}
	return out, nil
}

type stubStore struct {
	mu           sync.Mutex
	records      map[Date]IntakeRecord
	lookupErr    error
	persistErr   error
	lookupCalls  int
	persistCalls int
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[Date]IntakeRecord)}
}

func (s *stubStore) Lookup(_ context.Context, day Date) (IntakeRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if s.lookupErr != nil {
		return IntakeRecord{}, false, s.lookupErr
	}
	rec, ok := s.records[day]
	return rec, ok, nil
}

func (s *stubStore) Persist(_ context.Context, records []IntakeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistCalls++
	if s.persistErr != nil {
		return s.persistErr
	}
	for _, rec := range records {
		if _, exists := s.records[rec.Date]; !exists {
			s.records[rec.Date] = rec
		}
	}
	return nil
}

func (s *stubStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupCalls
}

func (s *stubStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type stubPublisher struct {
	published []TodayIntake
	err       error
}

func (s *stubPublisher) Publish(_ context.Context, snapshot TodayIntake) error {
	s.published = append(s.published, snapshot)
	return s.err
}
