package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestClockAdvanceFiresInOrder(t *testing.T) {
	c := NewTestClock()
	c.SetTime(0)

	var fired []string
	require.NoError(t, c.SetTimer("every-100", 100, 100, 0, func(e TimeEvent) {
		fired = append(fired, e.Name)
	}))
	require.NoError(t, c.SetTimeAlert("alert-250", 250, func(e TimeEvent) {
		fired = append(fired, e.Name)
	}))

	events := c.AdvanceTime(300)
	require.Len(t, events, 4)
	assert.Equal(t, []string{"every-100", "every-100", "alert-250", "every-100"}, fired)
	assert.EqualValues(t, 100, events[0].TsEvent)
	assert.EqualValues(t, 200, events[1].TsEvent)
	assert.EqualValues(t, 250, events[2].TsEvent)
	assert.EqualValues(t, 300, events[3].TsEvent)
	assert.EqualValues(t, 300, c.TimestampNs())
}

func TestTestClockAlertIsOneShot(t *testing.T) {
	c := NewTestClock()
	count := 0
	require.NoError(t, c.SetTimeAlert("once", 50, func(TimeEvent) { count++ }))

	c.AdvanceTime(100)
	c.AdvanceTime(200)
	assert.Equal(t, 1, count)
	assert.Empty(t, c.TimerNames())
}

func TestTestClockStopBound(t *testing.T) {
	c := NewTestClock()
	count := 0
	require.NoError(t, c.SetTimer("bounded", 100, 100, 200, func(TimeEvent) { count++ }))

	c.AdvanceTime(500)
	assert.Equal(t, 2, count)
}

func TestTestClockDuplicateName(t *testing.T) {
	c := NewTestClock()
	require.NoError(t, c.SetTimer("t", 10, 0, 0, func(TimeEvent) {}))
	assert.Error(t, c.SetTimer("t", 10, 0, 0, func(TimeEvent) {}))
	c.CancelTimer("t")
	assert.NoError(t, c.SetTimer("t", 10, 0, 0, func(TimeEvent) {}))
}
