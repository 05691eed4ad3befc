package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_DrainRunsNestedPosts(t *testing.T) {
	m := NewManual()
	var got []string

	m.Post(func() {
		got = append(got, "a")
		m.Post(func() { got = append(got, "c") })
	})
	m.Post(func() { got = append(got, "b") })

	assert.Equal(t, 3, m.Drain())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestManual_AdvanceFiresDueTimersInOrder(t *testing.T) {
	m := NewManual()
	var got []string

	m.AfterFunc(30*time.Millisecond, func() { got = append(got, "late") })
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "early") })

	m.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"early"}, got)
	assert.Equal(t, 1, m.ActiveTimers())

	m.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"early", "late"}, got)
	assert.Equal(t, 30*time.Millisecond, m.Now())
}

func TestManual_StopTimer(t *testing.T) {
	m := NewManual()
	fired := false

	timer := m.AfterFunc(time.Millisecond, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(time.Second)
	assert.False(t, fired)
	_, ok := m.NextDelay()
	assert.False(t, ok)
}
