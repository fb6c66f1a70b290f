package monitor

import "github.com/solpulse/ingest/internal/model"

// sampleRing is a bounded, oldest-evicted-first ring buffer of MetricSample.
// It is not safe for concurrent use on its own; callers hold the owning
// series' lock.
type sampleRing struct {
	samples []model.MetricSample
	maxSize int
	next    int
	full    bool
}

func newSampleRing(maxSize int) *sampleRing {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &sampleRing{
		samples: make([]model.MetricSample, maxSize),
		maxSize: maxSize,
	}
}

func (r *sampleRing) Append(s model.MetricSample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % r.maxSize
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the current number of live samples (<= maxSize).
func (r *sampleRing) Len() int {
	if r.full {
		return r.maxSize
	}
	return r.next
}

// Ordered returns the samples oldest-first.
func (r *sampleRing) Ordered() []model.MetricSample {
	n := r.Len()
	out := make([]model.MetricSample, 0, n)
	if !r.full {
		out = append(out, r.samples[:r.next]...)
		return out
	}
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}
