package orders

import (
	"context"
	"time"
)

// Named date windows over ListByDateRange. Boundaries are computed in the
// ledger clock's location so "today" follows the deployment timezone.

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ListToday returns orders created since local midnight.
func (l *Ledger) ListToday(ctx context.Context) ([]Order, error) {
	now := l.nowFn()
	return l.ListByDateRange(ctx, startOfDay(now), now)
}

// ListYesterday returns orders created during the previous local day.
func (l *Ledger) ListYesterday(ctx context.Context) ([]Order, error) {
	today := startOfDay(l.nowFn())
	start := today.AddDate(0, 0, -1)
	return l.ListByDateRange(ctx, start, today.Add(-time.Nanosecond))
}

// ListLastNDays returns orders from the trailing n-day window, today
// included. n <= 0 yields an empty result.
func (l *Ledger) ListLastNDays(ctx context.Context, n int) ([]Order, error) {
	if n <= 0 {
		return []Order{}, nil
	}
	now := l.nowFn()
	start := startOfDay(now).AddDate(0, 0, -(n - 1))
	return l.ListByDateRange(ctx, start, now)
}

// ListThisMonth returns orders created since the first of the month.
func (l *Ledger) ListThisMonth(ctx context.Context) ([]Order, error) {
	now := l.nowFn()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return l.ListByDateRange(ctx, start, now)
}

// ListLastMonth returns orders created during the previous calendar month.
func (l *Ledger) ListLastMonth(ctx context.Context) ([]Order, error) {
	now := l.nowFn()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := thisMonth.AddDate(0, -1, 0)
	return l.ListByDateRange(ctx, start, thisMonth.Add(-time.Nanosecond))
}

// ListThisYear returns orders created since January 1st.
func (l *Ledger) ListThisYear(ctx context.Context) ([]Order, error) {
	now := l.nowFn()
	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	return l.ListByDateRange(ctx, start, now)
}
