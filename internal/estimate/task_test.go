package estimate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/model"
)

func newTestTask() (*Task, *clock.FakeClock) {
	clk := clock.Fake(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	task := NewTask(TaskOptions{
		Clock: clk,
		Delay: DefaultDelay,
		Hubs:  func() []model.Hub { return testHubs() },
	})
	return task, clk
}

func TestTaskBecomesReadyAfterDelay(t *testing.T) {
	task, clk := newTestTask()
	assert.Equal(t, StateIdle, task.Snapshot().State)

	task.Start("turbines older than 3.2.0")
	assert.Equal(t, StateEstimating, task.Snapshot().State)
	assert.Equal(t, 1, clk.PendingCount())

	clk.Advance(DefaultDelay - time.Millisecond)
	assert.Equal(t, StateEstimating, task.Snapshot().State)

	clk.Advance(time.Millisecond)
	snap := task.Snapshot()
	require.Equal(t, StateReady, snap.State)
	assert.True(t, snap.Ready("turbines older than 3.2.0"))
	assert.False(t, snap.Ready("other"))
	assert.Equal(t, ForHubs("turbines older than 3.2.0", testHubs()), snap.Result)
}

func TestTaskRestartSupersedesOutstanding(t *testing.T) {
	task, clk := newTestTask()

	first := task.Start("first condition")
	clk.Advance(500 * time.Millisecond)
	second := task.Start("second condition")
	assert.Greater(t, second, first)
	assert.Equal(t, 1, clk.PendingCount())

	clk.Advance(500 * time.Millisecond)
	snap := task.Snapshot()
	assert.Equal(t, StateEstimating, snap.State)
	assert.Equal(t, "second condition", snap.Condition)

	clk.Advance(400 * time.Millisecond)
	snap = task.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "second condition", snap.Condition)
	assert.Equal(t, second, snap.Generation)
}

func TestTaskClearDropsResult(t *testing.T) {
	task, clk := newTestTask()

	task.Start("condition")
	task.Clear()
	clk.Advance(2 * DefaultDelay)
	snap := task.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Condition)
	assert.Zero(t, snap.Result.DeviceCount)

	task.Start("condition")
	clk.Advance(DefaultDelay)
	require.Equal(t, StateReady, task.Snapshot().State)
	task.Clear()
	assert.Equal(t, StateIdle, task.Snapshot().State)
}

func TestTaskBlankConditionStaysIdle(t *testing.T) {
	task, clk := newTestTask()
	task.Start("   ")
	assert.Equal(t, StateIdle, task.Snapshot().State)
	assert.Zero(t, clk.PendingCount())
}

func TestTaskZeroDelayIsImmediate(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	task := NewTask(TaskOptions{Clock: clk, Hubs: func() []model.Hub { return testHubs() }})
	task.Start("gateways")
	assert.Equal(t, StateReady, task.Snapshot().State)
}
