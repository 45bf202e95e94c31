// Package progress throttles status updates so a transfer never produces more
// than about 100/step edits regardless of chunk granularity.
package progress

// Reporter converts a monotonically non-decreasing (current, total) counter
// stream into percentage emissions. An emission happens when the percentage
// advanced by at least step points since the last one, or on first reaching
// 100. One Reporter serves exactly one pipeline stage and one status message.
type Reporter struct {
	step int
	last int
	emit func(pct int)
}

func NewReporter(step int, emit func(pct int)) *Reporter {
	if step <= 0 {
		step = 5
	}
	return &Reporter{step: step, last: -1, emit: emit}
}

// Update feeds the counter. Regressions and unknown totals are ignored.
func (r *Reporter) Update(current, total int64) {
	if total <= 0 {
		return
	}
	if current > total {
		current = total
	}
	pct := int(current * 100 / total)
	if pct < r.last {
		return
	}
	if pct >= 100 {
		if r.last != 100 {
			r.last = 100
			r.emit(100)
		}
		return
	}
	if r.last < 0 || pct >= r.last+r.step {
		r.last = pct
		r.emit(pct)
	}
}

// Done forces the terminal 100% emission if it has not happened yet.
func (r *Reporter) Done() {
	if r.last != 100 {
		r.last = 100
		r.emit(100)
	}
}
