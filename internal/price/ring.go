package price

import "github.com/solpulse/ingest/internal/model"

// historyRing is a bounded, oldest-evicted-first ring of PriceRecord,
// sized per mint. It mirrors internal/monitor's sampleRing shape but holds
// PriceRecord instead of MetricSample; kept separate to avoid a cross-
// package dependency for a four-method ring buffer.
type historyRing struct {
	records []model.PriceRecord
	maxSize int
	next    int
	full    bool
}

func newHistoryRing(maxSize int) *historyRing {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &historyRing{records: make([]model.PriceRecord, maxSize), maxSize: maxSize}
}

func (r *historyRing) Append(rec model.PriceRecord) {
	r.records[r.next] = rec
	r.next = (r.next + 1) % r.maxSize
	if r.next == 0 {
		r.full = true
	}
}

func (r *historyRing) Ordered() []model.PriceRecord {
	if !r.full {
		out := make([]model.PriceRecord, r.next)
		copy(out, r.records[:r.next])
		return out
	}
	out := make([]model.PriceRecord, 0, r.maxSize)
	out = append(out, r.records[r.next:]...)
	out = append(out, r.records[:r.next]...)
	return out
}
