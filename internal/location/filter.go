package location

import "time"

const (
	// MaxSampleAge is the oldest a sample may be, relative to receipt, and
	// still be considered.
	MaxSampleAge = 30 * time.Second
	// MaxHorizontalAccuracy is the exclusive upper bound on accepted
	// accuracy radii, in meters.
	MaxHorizontalAccuracy = 2000.0
)

// Select returns the most precise usable sample in batch, judged at now.
// Stale samples, samples without a positive accuracy below
// MaxHorizontalAccuracy and samples at the (0,0) no-fix sentinel are
// skipped. Ties keep the earlier sample.
func Select(now time.Time, batch []Sample) (Sample, bool) {
	var (
		best  Sample
		found bool
	)
	for _, s := range batch {
		if !Usable(now, s) {
			continue
		}
		if !found || s.HorizontalAccuracy < best.HorizontalAccuracy {
			best = s
			found = true
		}
	}
	return best, found
}

// Usable reports whether s passes the age, accuracy and sentinel checks.
func Usable(now time.Time, s Sample) bool {
	if now.Sub(s.Timestamp) > MaxSampleAge {
		return false
	}
	if s.HorizontalAccuracy <= 0 || s.HorizontalAccuracy >= MaxHorizontalAccuracy {
		return false
	}
	if s.Latitude == 0 && s.Longitude == 0 {
		return false
	}
	return true
}
