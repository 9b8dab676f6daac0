// Package stats summarizes a harness session: how many commands ran, how
// they ended, how long they took and what cleanup had to do.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DurationDigest tracks command durations for percentile reporting.
// It is safe for concurrent use.
type DurationDigest struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int64
	sum    time.Duration
	max    time.Duration
}

// NewDurationDigest creates an empty digest.
func NewDurationDigest() *DurationDigest {
	return &DurationDigest{
		digest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
	}
}

// Add records one duration. Non-positive durations are ignored.
func (d *DurationDigest) Add(v time.Duration) {
	if v <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.digest.Add(float64(v), 1)
	d.count++
	d.sum += v
	if v > d.max {
		d.max = v
	}
}

// Count returns the number of recorded durations.
func (d *DurationDigest) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Quantile returns the q-th quantile (0..1), or 0 when empty.
func (d *DurationDigest) Quantile(q float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return time.Duration(d.digest.Quantile(q))
}

// Mean returns the average duration, or 0 when empty.
func (d *DurationDigest) Mean() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return d.sum / time.Duration(d.count)
}

// Max returns the longest duration recorded.
func (d *DurationDigest) Max() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}
