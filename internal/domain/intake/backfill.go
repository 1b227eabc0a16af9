package intake

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/yanqian/finedust/pkg/errors"
)

// backfillTimeout bounds a shared backfill, which outlives the requests
// waiting on it.
const backfillTimeout = time.Minute

// Per-date resolution states, used in debug logs.
const (
	stateCached    = "cached"
	stateFetching  = "fetching"
	stateComputed  = "computed"
	statePersisted = "persisted"
)

func (s *service) Week(ctx context.Context, r DateRange) (WeeklyIntake, error) {
	if err := r.Validate(); err != nil {
		return WeeklyIntake{}, apperrors.Wrap(CodeInvalidInput, "invalid date range", err)
	}
	if r.Len() > s.cfg.MaxRangeDays {
		return WeeklyIntake{}, apperrors.Wrap(CodeInvalidInput, fmt.Sprintf("date range cannot exceed %d days", s.cfg.MaxRangeDays), nil)
	}
	today := s.today()
	if !r.End.Before(today) {
		return WeeklyIntake{}, apperrors.Wrap(CodeInvalidInput, fmt.Sprintf("date range must end before today (%s)", today), nil)
	}
	if err := s.ensureAuthorized(ctx); err != nil {
		return WeeklyIntake{}, err
	}

	days := r.Days()
	resolved := make(map[Date]IntakeRecord, len(days))
	var missing []Date
	out := WeeklyIntake{Range: r}
	for _, day := range days {
		rec, ok, err := s.store.Lookup(ctx, day)
		if err != nil {
			s.logger.Warn("intake cache lookup failed, backfilling", "date", day, "error", err)
			out.Usage.LookupErrors++
			missing = append(missing, day)
			continue
		}
		if !ok {
			missing = append(missing, day)
			continue
		}
		resolved[day] = rec
		out.Usage.CacheHits++
		s.logger.Debug("intake day resolved", "date", day, "state", stateCached)
	}

	if oldest := today.AddDays(-s.cfg.HistoryDays); len(missing) > 0 && missing[0].Before(oldest) {
		return WeeklyIntake{}, apperrors.Wrap(CodeInvalidInput, fmt.Sprintf("no source data before %s to backfill %s", oldest, missing[0]), nil)
	}

	computed, err := s.backfill(ctx, missing)
	if err != nil {
		return WeeklyIntake{}, err
	}
	for _, rec := range computed {
		resolved[rec.Date] = rec
	}

	out.Records = make([]IntakeRecord, 0, len(days))
	for _, day := range days {
		out.Records = append(out.Records, resolved[day])
	}
	out.Backfilled = missing
	out.Usage.Backfilled = len(computed)

	if len(computed) > 0 {
		if err := s.store.Persist(ctx, computed); err != nil {
			s.logger.Warn("intake cache persist failed", "range", r, "records", len(computed), "error", err)
			out.PersistErr = apperrors.Wrap(CodePersistence, "failed to cache backfilled intakes", err)
		} else {
			for _, rec := range computed {
				s.logger.Debug("intake day resolved", "date", rec.Date, "state", statePersisted)
			}
		}
	}

	s.logger.Info("weekly intake resolved", "range", r, "cached", out.Usage.CacheHits, "backfilled", out.Usage.Backfilled)
	return out, nil
}

// backfill computes records for the missing days. Each contiguous run of
// missing days is fetched with one range request per source.
func (s *service) backfill(ctx context.Context, missing []Date) ([]IntakeRecord, error) {
	runs := contiguousRuns(missing)
	if len(runs) == 0 {
		return nil, nil
	}
	results := make([][]IntakeRecord, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			recs, err := s.backfillRun(gctx, run)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]IntakeRecord, 0, len(missing))
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// backfillRun collapses concurrent backfills of the same run into one. The
// shared computation is detached from any single caller, so a cancelled
// request only stops waiting.
func (s *service) backfillRun(ctx context.Context, run DateRange) ([]IntakeRecord, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(run.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(detached, backfillTimeout)
		defer cancel()
		return s.computeRun(fctx, run)
	})
	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(CodeNetwork, fmt.Sprintf("backfill of %s abandoned", run), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("intake backfill shared with concurrent request", "range", run)
		}
		recs := res.Val.([]IntakeRecord)
		return append([]IntakeRecord(nil), recs...), nil
	}
}

func (s *service) computeRun(ctx context.Context, run DateRange) ([]IntakeRecord, error) {
	s.logger.Debug("intake backfill started", "range", run, "state", stateFetching)

	var (
		pollution []DailyValue[Concentration]
		motion    []DailyValue[[]HourlyValue]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.pollution.ConcentrationForRange(gctx, run)
		if err != nil {
			return wrapWithCode(err, CodeNetwork, fmt.Sprintf("failed to fetch dust concentration for %s", run))
		}
		pollution = p
		return nil
	})
	g.Go(func() error {
		m, err := s.motion.DistanceForRange(gctx, run)
		if err != nil {
			return wrapWithCode(err, CodeSourceUnavailable, fmt.Sprintf("failed to fetch distance for %s", run))
		}
		motion = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := AlignDaily(inRange(pollution, run), inRange(motion, run))
	if len(pairs) != run.Len() {
		return nil, apperrors.Wrap(CodeDataFormat, fmt.Sprintf("incomplete series for %s: %d of %d days", run, len(pairs), run.Len()), nil)
	}
	records := make([]IntakeRecord, 0, len(pairs))
	for _, p := range pairs {
		if p.Left.Date != p.Right.Date {
			return nil, apperrors.Wrap(CodeDataFormat, fmt.Sprintf("series days disagree: %s vs %s", p.Left.Date, p.Right.Date), nil)
		}
		rec := IntakeRecord{
			Date:          p.Left.Date,
			FineDust:      dailyDose(AlignHourly(p.Left.Value.Fine, p.Right.Value), s.cfg.DoseCoefficient),
			UltrafineDust: dailyDose(AlignHourly(p.Left.Value.Ultrafine, p.Right.Value), s.cfg.DoseCoefficient),
		}
		records = append(records, rec)
		s.logger.Debug("intake day resolved", "date", rec.Date, "state", stateComputed, "fine", rec.FineDust, "ultrafine", rec.UltrafineDust)
	}
	return records, nil
}

func inRange[T any](values []DailyValue[T], r DateRange) []DailyValue[T] {
	out := make([]DailyValue[T], 0, len(values))
	seen := make(map[Date]struct{}, len(values))
	for _, v := range values {
		if !r.Contains(v.Date) {
			continue
		}
		if _, dup := seen[v.Date]; dup {
			continue
		}
		seen[v.Date] = struct{}{}
		out = append(out, v)
	}
	return out
}

// contiguousRuns groups ascending days into inclusive ranges of consecutive days.
func contiguousRuns(days []Date) []DateRange {
	var runs []DateRange
	for _, day := range days {
		if n := len(runs); n > 0 && runs[n-1].End.AddDays(1) == day {
			runs[n-1].End = day
			continue
		}
		runs = append(runs, DateRange{Start: day, End: day})
	}
	return runs
}
