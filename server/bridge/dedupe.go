package bridge

// dedupe remembers recently processed platform update ids so a
// redelivered webhook is silently ignored. Check before processing,
// Mark only after; a crash mid-event leaves it unmarked and eligible
// for redelivery.
//
// Only the dispatch loop touches it, so it carries no lock. Capacity
// is bounded by evicting the oldest entry ring-buffer style.
type dedupe struct {
	seen  map[int64]struct{}
	order []int64
	next  int
}

func newDedupe(capacity int) *dedupe {
	if capacity <= 0 {
		capacity = 1024
	}
	return &dedupe{
		seen:  make(map[int64]struct{}, capacity),
		order: make([]int64, capacity),
	}
}

// Check reports whether the id was already processed.
func (d *dedupe) Check(id int64) bool {
	_, ok := d.seen[id]
	return ok
}

// Mark records the id, evicting the oldest entry when full.
func (d *dedupe) Mark(id int64) {
	if _, ok := d.seen[id]; ok {
		return
	}
	if old := d.order[d.next]; old != 0 {
		delete(d.seen, old)
	}
	d.order[d.next] = id
	d.next = (d.next + 1) % len(d.order)
	d.seen[id] = struct{}{}
}
