// Package ticket issues the per-day ticket numbers printed on confirmed orders.
package ticket

import (
	"context"
	"fmt"
	"time"
)

// Counter is the slice of an open store transaction the sequencer needs.
// IncrementTicketCounter must create the row for day with value 1 or add one
// to it, in a single statement, and return the new value.
type Counter interface {
	IncrementTicketCounter(ctx context.Context, day string) (int, error)
}

const dayLayout = "2006-01-02"

type Sequencer struct {
	loc *time.Location
	now func() time.Time
}

func NewSequencer(loc *time.Location, now func() time.Time) *Sequencer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Sequencer{loc: loc, now: now}
}

// Day pins t to midday of its calendar date in the configured zone, so a
// later conversion to another offset cannot move it across midnight.
func (s *Sequencer) Day(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, s.loc)
}

func (s *Sequencer) DayKey(t time.Time) string { return s.Day(t).Format(dayLayout) }

// Next returns today's next ticket number. It has no effect of its own: the
// increment lives and dies with the transaction behind tx, which must be an
// open store transaction.
func (s *Sequencer) Next(ctx context.Context, tx Counter) (int, error) {
	day := s.DayKey(s.now())
	n, err := tx.IncrementTicketCounter(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("next ticket for %s: %w", day, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("next ticket for %s: counter returned %d", day, n)
	}
	return n, nil
}
