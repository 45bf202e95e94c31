package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitsAtThresholdSteps(t *testing.T) {
	var got []int
	r := NewReporter(5, func(p int) { got = append(got, p) })

	r.Update(0, 100)
	r.Update(3, 100)
	r.Update(5, 100)
	r.Update(9, 100)
	r.Update(10, 100)
	r.Update(100, 100)

	assert.Equal(t, []int{0, 5, 10, 100}, got)
}

func TestBoundedEmissionCount(t *testing.T) {
	// Byte-level granularity must still cap at ceil(100/5)+1 = 21 updates.
	var n int
	r := NewReporter(5, func(int) { n++ })
	total := int64(1 << 20)
	for cur := int64(0); cur <= total; cur += 111 {
		r.Update(cur, total)
	}
	r.Update(total, total)
	assert.LessOrEqual(t, n, 21)
}

func TestMonotonicIgnoresRegression(t *testing.T) {
	var got []int
	r := NewReporter(5, func(p int) { got = append(got, p) })

	r.Update(50, 100)
	r.Update(20, 100) // stale counter, ignored
	r.Update(55, 100)

	assert.Equal(t, []int{50, 55}, got)
}

func TestHundredEmittedOnce(t *testing.T) {
	var got []int
	r := NewReporter(5, func(p int) { got = append(got, p) })

	r.Update(100, 100)
	r.Update(100, 100)
	r.Done()

	assert.Equal(t, []int{100}, got)
}

func TestUnknownTotalIgnored(t *testing.T) {
	var n int
	r := NewReporter(5, func(int) { n++ })
	r.Update(10, 0)
	r.Update(10, -1)
	assert.Zero(t, n)
}
