package db

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// AccuracyStats summarises the horizontal accuracy of stored samples.
// Percentiles use the empirical quantile of the accuracy radii.
type AccuracyStats struct {
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
	Min    float64   `json:"min"`
	P50    float64   `json:"p50"`
	P95    float64   `json:"p95"`
	Max    float64   `json:"max"`
	First  time.Time `json:"first,omitempty"`
	Last   time.Time `json:"last,omitempty"`
}

// AccuracyStats computes statistics over samples taken at or after since.
// Samples without a fix are excluded.
func (db *DB) AccuracyStats(ctx context.Context, since time.Time) (AccuracyStats, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	rows, err := db.QueryContext(ctx,
		`SELECT horizontal_accuracy, sample_unix_ms
		   FROM samples
		  WHERE sample_unix_ms >= ? AND horizontal_accuracy > 0`, sinceMs)
	if err != nil {
		return AccuracyStats{}, err
	}
	defer rows.Close()

	var (
		acc         []float64
		first, last int64
	)
	for rows.Next() {
		var (
			a  float64
			ms int64
		)
		if err := rows.Scan(&a, &ms); err != nil {
			return AccuracyStats{}, err
		}
		if len(acc) == 0 || ms < first {
			first = ms
		}
		if ms > last {
			last = ms
		}
		acc = append(acc, a)
	}
	if err := rows.Err(); err != nil {
		return AccuracyStats{}, err
	}
	return summarize(acc, first, last), nil
}

func summarize(acc []float64, firstMs, lastMs int64) AccuracyStats {
	if len(acc) == 0 {
		return AccuracyStats{}
	}
	sort.Float64s(acc)
	st := AccuracyStats{
		Count: len(acc),
		Mean:  stat.Mean(acc, nil),
		Min:   acc[0],
		Max:   acc[len(acc)-1],
		P50:   stat.Quantile(0.5, stat.Empirical, acc, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, acc, nil),
		First: time.UnixMilli(firstMs).UTC(),
		Last:  time.UnixMilli(lastMs).UTC(),
	}
	if len(acc) > 1 {
		st.StdDev = stat.StdDev(acc, nil)
	}
	return st
}
