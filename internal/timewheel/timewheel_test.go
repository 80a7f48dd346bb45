package timewheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleAndDrainSameRevolution(t *testing.T) {
	w := New[string](4)

	slot := w.Schedule("a", SlotNone, 2)
	require.NotEqual(t, SlotNone, slot)

	var due []string
	for i := 0; i < 2; i++ {
		_, d := w.Advance()
		due = append(due, d...)
	}
	assert.Equal(t, []string{"a"}, due)
}

func TestScheduleSurvivesMultipleRevolutions(t *testing.T) {
	w := New[string](2) // tiny ring, TTL spans several laps

	w.Schedule("a", SlotNone, 7) // 7 ticks on a 2-bucket ring: 3 full laps + 1

	due := 0
	for tick := 0; tick < 6; tick++ {
		_, d := w.Advance()
		due += len(d)
	}
	assert.Equal(t, 0, due, "must not expire before its 7th tick")

	_, d := w.Advance()
	assert.Equal(t, []string{"a"}, d)
}

func TestRescheduleRemovesFromOldBucket(t *testing.T) {
	w := New[string](4)

	slot := w.Schedule("a", SlotNone, 1)
	slot = w.Schedule("a", slot, 4) // push it out further

	var due []string
	for i := 0; i < 2; i++ {
		_, d := w.Advance()
		due = append(due, d...)
	}
	assert.Empty(t, due, "rescheduled key must not fire at its old time")

	for i := 0; i < 2; i++ {
		_, d := w.Advance()
		due = append(due, d...)
	}
	assert.Equal(t, []string{"a"}, due)
	_ = slot
}

func TestUnscheduleRemovesEntry(t *testing.T) {
	w := New[string](4)
	slot := w.Schedule("a", SlotNone, 1)
	w.Unschedule("a", slot)

	_, due := w.Advance()
	assert.Empty(t, due)
}

func TestTicksFromDuration(t *testing.T) {
	assert.Equal(t, 1, TicksFromDuration(1, 10))
	assert.Equal(t, 1, TicksFromDuration(10, 10))
	assert.Equal(t, 5, TicksFromDuration(41, 10))
	assert.Equal(t, 1, TicksFromDuration(0, 10))
}
