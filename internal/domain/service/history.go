package service

import (
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// renderedHistoryLimit caps the chart series at the most recent points;
// older points drop off the head, never the tail.
const renderedHistoryLimit = 15

type aggregateKind int

const (
	runningAverage aggregateKind = iota
	runningMaximum
)

// timedValue is one event already converted into the display currency.
type timedValue struct {
	ts    time.Time
	value float64
}

func bucketLabels(ts time.Time) (timeLabel, dateLabel string) {
	return ts.Format("15:04"), ts.Format("02/01")
}

// historyBuilder turns an event stream into a bounded running-aggregate
// series: cumulative mean ("consensus so far") or cumulative maximum
// ("best offer so far"), one point per minute bucket. It keeps the running
// state so single events extend the series without a full rebuild.
type historyBuilder struct {
	kind   aggregateKind
	points []model.HistoryPoint
	sum    float64
	count  int
	max    float64
}

func newHistoryBuilder(kind aggregateKind) *historyBuilder {
	return &historyBuilder{kind: kind}
}

func (b *historyBuilder) reset() {
	b.points = nil
	b.sum = 0
	b.count = 0
	b.max = 0
}

// Rebuild recomputes the whole series from an ordered event list.
func (b *historyBuilder) Rebuild(events []timedValue) {
	b.reset()

	type bucket struct {
		timeLabel string
		dateLabel string
		values    []float64
	}
	var order []string
	buckets := make(map[string]*bucket)

	for _, ev := range events {
		tl, dl := bucketLabels(ev.ts)
		key := dl + "-" + tl
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{timeLabel: tl, dateLabel: dl}
			buckets[key] = bk
			order = append(order, key)
		}
		bk.values = append(bk.values, ev.value)
	}

	// Each emitted point aggregates everything seen up to and including
	// its bucket, not just the bucket itself.
	for _, key := range order {
		bk := buckets[key]
		for _, v := range bk.values {
			b.accumulate(v)
		}
		b.push(model.HistoryPoint{Value: b.current(), Time: bk.timeLabel, Date: bk.dateLabel})
	}
}

// Append extends the series with a single new event using the retained
// running state. If the event lands in the same minute bucket as the last
// point, that point is replaced with the newer cumulative value; an exactly
// identical point is a no-op so repeated derivations for one change do not
// pile up duplicates.
func (b *historyBuilder) Append(ts time.Time, value float64) {
	b.accumulate(value)
	tl, dl := bucketLabels(ts)
	p := model.HistoryPoint{Value: b.current(), Time: tl, Date: dl}

	if n := len(b.points); n > 0 {
		last := b.points[n-1]
		if last.Time == tl && last.Date == dl {
			if last.Value == p.Value {
				return
			}
			b.points[n-1] = p
			return
		}
	}
	b.push(p)
}

func (b *historyBuilder) accumulate(v float64) {
	switch b.kind {
	case runningAverage:
		b.sum += v
		b.count++
	case runningMaximum:
		if v > b.max {
			b.max = v
		}
	}
}

func (b *historyBuilder) current() float64 {
	switch b.kind {
	case runningAverage:
		if b.count == 0 {
			return 0
		}
		return b.sum / float64(b.count)
	case runningMaximum:
		return b.max
	}
	return 0
}

func (b *historyBuilder) push(p model.HistoryPoint) {
	b.points = append(b.points, p)
	if len(b.points) > renderedHistoryLimit {
		b.points = b.points[len(b.points)-renderedHistoryLimit:]
	}
}

// Points returns a copy of the series to prevent external modification.
func (b *historyBuilder) Points() []model.HistoryPoint {
	out := make([]model.HistoryPoint, len(b.points))
	copy(out, b.points)
	return out
}
