package intake

import "sort"

// Pair couples two values that share a key position.
type Pair[A, B any] struct {
	Left  A
	Right B
}

// AlignHourly sorts both series by hour and pairs them by position.
//
// Pairing is positional, not key-matched: when one source is missing an
// hour the remaining entries shift. Callers relying on exact hour matching
// must fill gaps first.
func AlignHourly(left, right []HourlyValue) []Pair[HourlyValue, HourlyValue] {
	hour := func(v HourlyValue) int { return v.Hour }
	return alignByKey(left, right, hour, hour)
}

// AlignDaily sorts both series by date and pairs them by position, with the
// same positional caveat as AlignHourly.
func AlignDaily[A, B any](left []DailyValue[A], right []DailyValue[B]) []Pair[DailyValue[A], DailyValue[B]] {
	return alignByKey(left, right,
		func(v DailyValue[A]) int { return dayKey(v.Date) },
		func(v DailyValue[B]) int { return dayKey(v.Date) },
	)
}

func alignByKey[A, B any](left []A, right []B, keyA func(A) int, keyB func(B) int) []Pair[A, B] {
	a := sortedCopy(left, keyA)
	b := sortedCopy(right, keyB)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]Pair[A, B], 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Pair[A, B]{Left: a[i], Right: b[i]})
	}
	return out
}

func sortedCopy[T any](items []T, key func(T) int) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) < key(out[j])
	})
	return out
}

func dayKey(d Date) int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}
