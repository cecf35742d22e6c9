package ltl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimersExpireInDeadlineOrder(t *testing.T) {
	ts := newTimers()
	base := time.Unix(0, 0)
	keyA := timerKey{src: 1, kind: timerIncompleteAccess}
	keyB := timerKey{src: 2, kind: timerIncompleteAccess}
	keyC := timerKey{src: 3, kind: timerIncompleteAccess}

	ts.schedule(keyB, base.Add(2*time.Second))
	ts.schedule(keyA, base.Add(1*time.Second))
	ts.schedule(keyC, base.Add(3*time.Second))

	fired := ts.expired(base.Add(2 * time.Second))
	require.Len(t, fired, 2)
	assert.Equal(t, keyA, fired[0])
	assert.Equal(t, keyB, fired[1])
}

func TestTimersRescheduleOverwritesPreviousDeadline(t *testing.T) {
	ts := newTimers()
	base := time.Unix(0, 0)
	key := timerKey{src: 1, kind: timerBlockAckAccess}

	ts.schedule(key, base.Add(time.Second))
	ts.schedule(key, base.Add(5*time.Second))

	assert.Empty(t, ts.expired(base.Add(time.Second)), "the earlier schedule must be superseded, not fired")

	fired := ts.expired(base.Add(5 * time.Second))
	require.Len(t, fired, 1)
	assert.Equal(t, key, fired[0])
}

func TestTimersCancelPreventsFiring(t *testing.T) {
	ts := newTimers()
	base := time.Unix(0, 0)
	key := timerKey{src: 1, kind: timerIncompleteControl}

	ts.schedule(key, base.Add(time.Second))
	ts.cancel(key)

	assert.Empty(t, ts.expired(base.Add(time.Second)))
}

func TestTimersNextDeadlineSkipsCancelledEntries(t *testing.T) {
	ts := newTimers()
	base := time.Unix(0, 0)
	keyA := timerKey{src: 1, kind: timerIncompleteAccess}
	keyB := timerKey{src: 2, kind: timerIncompleteAccess}

	ts.schedule(keyA, base.Add(time.Second))
	ts.schedule(keyB, base.Add(2*time.Second))
	ts.cancel(keyA)

	deadline, ok := ts.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, base.Add(2*time.Second), deadline)
}

func TestTimersNextDeadlineEmptyWhenNothingPending(t *testing.T) {
	ts := newTimers()
	_, ok := ts.nextDeadline()
	assert.False(t, ok)
}
