package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerExpiresAfterDuration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timer, expired := NewTimer(ctx, nil)
	timer.Set(10 * time.Millisecond)

	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer did not expire")
	}
}

func TestTimerClearPreventsExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timer, expired := NewTimer(ctx, nil)
	timer.Set(50 * time.Millisecond)
	timer.Clear()

	select {
	case <-expired:
		t.Fatal("timer expired after being cleared")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManagerArmInactivityTriggersLock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var locked int32
	mgr := Start(ctx, func() { atomic.AddInt32(&locked, 1) }, func() {})
	defer mgr.Stop()

	mgr.ArmInactivity(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&locked) == 1
	}, 3*time.Second, 5*time.Millisecond)
}

func TestArmSyncZeroClears(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var synced int32
	mgr := Start(ctx, func() {}, func() { atomic.AddInt32(&synced, 1) })
	defer mgr.Stop()

	mgr.ArmSync(0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&synced))
}
