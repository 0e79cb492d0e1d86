package stats

import (
	"context"
	"time"

	"github.com/justestif/adorify/internal/sessions"
)

// HistogramDays is the number of daily buckets in a study-time histogram.
const HistogramDays = 28

// HistogramBuilder buckets completed study time by calendar day.
type HistogramBuilder struct {
	reader sessions.Reader
	now    func() time.Time
	loc    *time.Location
}

// NewHistogramBuilder creates a HistogramBuilder. Days are calendar days in
// loc; a nil loc means UTC and a nil now uses time.Now.
func NewHistogramBuilder(reader sessions.Reader, now func() time.Time, loc *time.Location) *HistogramBuilder {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HistogramBuilder{reader: reader, now: now, loc: loc}
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

// StudyTime returns exactly HistogramDays buckets of completed seconds,
// oldest day first, the last bucket being today. Sessions are placed on the
// day they started.
func (h *HistogramBuilder) StudyTime(ctx context.Context, username string) ([]int, error) {
	today := h.now().In(h.loc)
	y, m, d := today.Date()

	// Index by calendar date rather than elapsed hours so DST days land
	// in the right bucket.
	index := make(map[civilDate]int, HistogramDays)
	var since time.Time
	for i := range HistogramDays {
		day := time.Date(y, m, d-(HistogramDays-1)+i, 0, 0, 0, 0, h.loc)
		if i == 0 {
			since = day
		}
		index[dateOf(day)] = i
	}

	buckets := make([]int, HistogramDays)
	for s, err := range h.reader.AllForUserSince(ctx, username, since) {
		if err != nil {
			return nil, err
		}
		if i, ok := index[dateOf(s.StartedAt.In(h.loc))]; ok {
			buckets[i] += s.CompletedAmount
		}
	}
	return buckets, nil
}
