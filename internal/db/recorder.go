package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
)

// DefaultRecorderBuffer is the queue depth used when NewRecorder is given
// a non-positive size.
const DefaultRecorderBuffer = 256

type sampleRow struct {
	sessionID string
	sample    location.Sample
}

// Recorder persists samples and events off the tracking path. RecordSample
// and RecordEvent never block: they queue the row, or drop it and count the
// drop when the queue is full. Run performs the writes.
type Recorder struct {
	db      *DB
	samples chan sampleRow
	events  chan location.Event

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(db *DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &Recorder{
		db:      db,
		samples: make(chan sampleRow, buffer),
		events:  make(chan location.Event, buffer),
	}
}

// RecordSample is a location.SampleSink.
func (r *Recorder) RecordSample(sessionID string, s location.Sample) {
	select {
	case r.samples <- sampleRow{sessionID: sessionID, sample: s}:
	default:
		r.dropped.Add(1)
	}
}

// RecordEvent is a location.EventSink.
func (r *Recorder) RecordEvent(e location.Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued rows until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	// Writes already dequeued complete even if ctx ends mid-insert.
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case row := <-r.samples:
			r.writeSample(wctx, row)
		case e := <-r.events:
			r.writeEvent(wctx, e)
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case row := <-r.samples:
			r.writeSample(ctx, row)
		case e := <-r.events:
			r.writeEvent(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) writeSample(ctx context.Context, row sampleRow) {
	if err := r.db.InsertSample(ctx, row.sessionID, row.sample); err != nil {
		r.failed.Add(1)
		monitoring.Logf("[recorder] insert sample: %v", err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) writeEvent(ctx context.Context, e location.Event) {
	if err := r.db.InsertEvent(ctx, e); err != nil {
		r.failed.Add(1)
		monitoring.Logf("[recorder] insert event %s: %v", e.Kind, err)
		return
	}
	r.written.Add(1)
}

// RecorderStats counts rows by outcome.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Queued:  len(r.samples) + len(r.events),
	}
}
