package wizard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/estimate"
	"fleetjobs/internal/fleet"
	"fleetjobs/internal/groups"
	"fleetjobs/internal/model"
)

var testStart = time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC)

type harness struct {
	engine *Engine
	clock  *clock.FakeClock
	groups *groups.Store
	fleet  *fleet.Topology
}

func newHarness(t *testing.T) harness {
	t.Helper()
	f, err := fleet.LoadFile("")
	require.NoError(t, err)

	clk := clock.Fake(testStart)
	topo := fleet.NewTopology(f, fleet.Options{Clock: clk, LinkDelay: time.Second})
	store := groups.NewStore(f.Groups, clk, nil)
	task := estimate.NewTask(estimate.TaskOptions{
		Clock: clk,
		Delay: estimate.DefaultDelay,
		Hubs:  topo.LinkedHubs,
	})
	e, err := New(Options{
		Groups:    store,
		Fleet:     topo,
		Estimates: task,
		Clock:     clk,
		Operator:  "ops@contoso",
	})
	require.NoError(t, err)
	return harness{engine: e, clock: clk, groups: store, fleet: topo}
}

func sumHubTotals(job model.JobRecord) int {
	n := 0
	for _, h := range job.HubProgress {
		n += h.Total
	}
	return n
}

func advanceTo(t *testing.T, e *Engine, step Step) {
	t.Helper()
	for e.CurrentStep() != step {
		require.True(t, e.Advance(), "stuck on %s", e.CurrentStep())
	}
}

func TestBasicsBlocksBlankName(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	assert.False(t, e.CanAdvance())
	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	require.True(t, e.Advance())
	assert.Equal(t, StepBasics, e.CurrentStep())

	e.SetName("   ")
	assert.False(t, e.CanAdvance())
	assert.False(t, e.Advance())
	assert.Equal(t, StepBasics, e.CurrentStep())

	e.SetName("Firmware 3.2.1")
	assert.True(t, e.Advance())
	assert.Equal(t, StepTarget, e.CurrentStep())
}

func TestBackDoesNotRevalidate(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	e.SetName("x")
	advanceTo(t, e, StepTarget)

	e.SetName("")
	assert.True(t, e.Back())
	assert.Equal(t, StepBasics, e.CurrentStep())
	assert.True(t, e.Back())
	assert.False(t, e.Back())
	assert.Equal(t, StepJobType, e.CurrentStep())
}

func TestChangingJobTypeClampsIndexAndDropsPayload(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeManagementUpdate))
	e.SetName("Telemetry")
	require.NoError(t, e.SetProperty("telemetryInterval", "30"))
	advanceTo(t, e, StepReview)
	assert.Equal(t, 4, e.Index())

	require.NoError(t, e.SetJobType(model.JobTypeCertRevocation))
	assert.Equal(t, 3, e.Index())
	assert.Equal(t, StepReview, e.CurrentStep())
	assert.Empty(t, e.State().Properties)

	err := e.SetProperty("a", "b")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, errors.Is(e.SetJobType("reboot"), ErrInvalidInput))
}

func TestPropertiesUpsertAndRemove(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeManagementUpdate))

	require.NoError(t, e.SetProperty("a", "1"))
	require.NoError(t, e.SetProperty(" b ", "2"))
	require.NoError(t, e.SetProperty("a", "3"))
	assert.Equal(t, []model.PropertyEdit{{Field: "a", Value: "3"}, {Field: "b", Value: "2"}}, e.State().Properties)

	assert.True(t, e.RemoveProperty("a"))
	assert.False(t, e.RemoveProperty("a"))
	assert.Equal(t, []model.PropertyEdit{{Field: "b", Value: "2"}}, e.State().Properties)
	assert.Error(t, e.SetProperty(" ", "x"))
}

func TestTargetModeSwitchIsFullReset(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.NoError(t, e.SelectGroup("grp-legacy-turbines"))
	st := e.State()
	assert.Equal(t, model.TargetGroup, st.TargetMode)
	assert.Equal(t, "grp-legacy-turbines", st.GroupID)
	assert.Equal(t, "turbines older than 3.2.0", st.Condition)

	require.NoError(t, e.SetTargetMode(model.TargetCustom))
	st = e.State()
	assert.Empty(t, st.GroupID)
	assert.Empty(t, st.Condition)

	e.SetCondition("gateways")
	e.RequestEstimate()
	require.NoError(t, e.SetTargetMode(model.TargetCustom))
	assert.Empty(t, e.State().Condition)
	assert.Equal(t, estimate.StateIdle, e.Estimate().State)

	assert.Error(t, e.SelectGroup("grp-missing"))
	assert.Error(t, e.SetTargetMode("everything"))
}

func TestSetConditionInvalidatesEstimate(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetTargetMode(model.TargetCustom))

	e.SetCondition("turbines older than 3.2.0")
	e.RequestEstimate()
	h.clock.Advance(estimate.DefaultDelay)
	require.Equal(t, estimate.StateReady, e.Estimate().State)

	e.SetCondition("turbines older than 3.2.0")
	assert.Equal(t, estimate.StateReady, e.Estimate().State, "unchanged text keeps estimate")

	e.SetCondition("turbines older than 3.3.0")
	assert.Equal(t, estimate.StateIdle, e.Estimate().State)
}

func TestCopyPickerFlow(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.True(t, e.BeginCopy())
	assert.True(t, e.Picking())
	assert.False(t, e.CanAdvance())
	assert.False(t, e.Advance())

	assert.True(t, e.Back())
	assert.False(t, e.Picking())
	assert.Equal(t, model.JobType(""), e.State().JobType)
	assert.Equal(t, StepJobType, e.CurrentStep())

	src := model.JobRecord{
		ID:          "job-1001",
		Name:        "Telemetry tune",
		Description: "shorter interval",
		Type:        model.JobTypeManagementUpdate,
		TargetMode:  model.TargetGroup,
		TargetRef:   "grp-eu-gateways",
		Priority:    model.PriorityHigh,
		Details: model.JobDetails{Properties: []model.PropertyEdit{
			{Field: "telemetryInterval", Value: "15"},
		}},
	}
	assert.Error(t, e.PickCopySource(src), "picker not open")

	require.True(t, e.BeginCopy())
	require.NoError(t, e.PickCopySource(src))
	st := e.State()
	assert.False(t, st.Picking)
	assert.Equal(t, StepBasics, e.CurrentStep())
	assert.Equal(t, "Telemetry tune (copy)", st.Name)
	assert.Equal(t, "shorter interval", st.Description)
	assert.Equal(t, model.JobTypeManagementUpdate, st.JobType)
	assert.Equal(t, model.TargetGroup, st.TargetMode)
	assert.Equal(t, "grp-eu-gateways", st.GroupID)
	assert.Equal(t, "job-1001", st.CopySource)
	assert.Equal(t, model.PriorityHigh, st.Priority)
	assert.Equal(t, src.Details.Properties, st.Properties)

	advanceTo(t, e, StepReview)
	job, err := e.Complete()
	require.NoError(t, err)
	assert.Equal(t, "job-1001", job.CopiedFrom)
	assert.Equal(t, 1190, job.TargetDeviceCount)
	assert.Equal(t, 1190, sumHubTotals(job))
	for _, hp := range job.HubProgress {
		assert.Contains(t, []string{"hub-eu-west", "hub-eu-north"}, hp.HubName)
	}
}

func TestCompleteGroupTarget(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	e.SetName("  Firmware 3.2.1 ")
	e.SetDescription("turbine controller")
	require.NoError(t, e.SelectGroup("grp-legacy-turbines"))
	advanceTo(t, e, StepReview)

	job, err := e.Complete()
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "Firmware 3.2.1", job.Name)
	assert.Equal(t, model.StatusRunning, job.Status)
	assert.Equal(t, model.TargetGroup, job.TargetMode)
	assert.Equal(t, "Legacy turbines", job.TargetName)
	assert.Equal(t, "grp-legacy-turbines", job.TargetRef)
	assert.Equal(t, 3412, job.TargetDeviceCount)
	assert.Equal(t, 3412, sumHubTotals(job))
	assert.Equal(t, model.DeviceCounts{Pending: 3412}, job.Devices)
	assert.Equal(t, "ops@contoso", job.CreatedBy)
	assert.Equal(t, testStart, job.StartedAt)
	assert.Equal(t, model.PriorityNormal, job.Priority)
	for _, hp := range job.HubProgress {
		assert.Zero(t, hp.Succeeded)
		assert.Zero(t, hp.Failed)
		assert.Equal(t, hp.Total, hp.Pending)
		assert.Equal(t, model.StatusRunning, hp.Status)
	}
	require.Len(t, job.Timeline, 1)
	assert.Equal(t, model.SeverityStart, job.Timeline[0].Severity)

	assert.Equal(t, StepJobType, e.CurrentStep(), "engine resets after completion")
	assert.Empty(t, e.State().Name)
}

func TestCompleteGroupTargetWithoutLinkedHubs(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	for _, hub := range h.fleet.Hubs() {
		require.True(t, h.fleet.UnlinkHub(hub.Name))
	}

	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	e.SetName("Firmware 3.2.1")
	require.NoError(t, e.SelectGroup("grp-legacy-turbines"))
	advanceTo(t, e, StepReview)

	_, err := e.Complete()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Equal(t, StepReview, e.CurrentStep(), "failed completion keeps the run")
	assert.Equal(t, "grp-legacy-turbines", e.State().GroupID)
}

func TestNewRequiresGroupsAndFleet(t *testing.T) {
	h := newHarness(t)

	_, err := New(Options{Groups: h.groups})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = New(Options{Fleet: h.fleet})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	e, err := New(Options{Groups: h.groups, Fleet: h.fleet, Clock: h.clock})
	require.NoError(t, err)
	assert.Equal(t, StepJobType, e.CurrentStep())
}

func TestCompleteNamespaceTargetSkipsLinkingHubs(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	_, err := h.fleet.LinkHub(model.Hub{Name: "hub-sa-east", Region: "brazilsouth", DeviceCount: 500})
	require.NoError(t, err)

	require.NoError(t, e.SetJobType(model.JobTypeCertRevocation))
	e.SetName("Revoke batch")
	advanceTo(t, e, StepReview)

	job, err := e.Complete()
	require.NoError(t, err)
	assert.Equal(t, "contoso-wind", job.TargetName)
	assert.Equal(t, 12847, job.TargetDeviceCount)
	assert.Equal(t, 12847, sumHubTotals(job))
	assert.Len(t, job.HubProgress, 5)
}

func TestCompleteCustomTargetUsesEstimate(t *testing.T) {
	h := newHarness(t)
	e := h.engine

	require.NoError(t, e.SetJobType(model.JobTypeManagementAction))
	e.SetName("Reboot EU")
	require.NoError(t, e.SetTargetMode(model.TargetCustom))
	e.SetCondition("gateways region:*europe")
	require.NoError(t, e.SetPriority("HIGH"))
	e.RequestEstimate()
	h.clock.Advance(estimate.DefaultDelay)
	want := e.Estimate().Result.DeviceCount

	advanceTo(t, e, StepDetails)
	assert.False(t, e.CanAdvance())
	require.NoError(t, e.SetAction("reboot"))
	require.NoError(t, e.SetActionPayload(`{"delaySeconds": 30}`))
	advanceTo(t, e, StepReview)

	job, err := e.Complete()
	require.NoError(t, err)
	assert.Equal(t, want, job.TargetDeviceCount)
	assert.Equal(t, want, sumHubTotals(job))
	assert.Equal(t, model.PriorityHigh, job.Priority)
	require.NotNil(t, job.Details.Action)
	assert.Equal(t, "reboot", job.Details.Action.ActionName)
	for _, hp := range job.HubProgress {
		assert.Contains(t, []string{"hub-eu-west", "hub-eu-north"}, hp.HubName)
	}
}

func TestCompleteCustomTargetWithoutReadyEstimate(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	e.SetName("x")
	require.NoError(t, e.SetTargetMode(model.TargetCustom))
	e.SetCondition("turbines older than 3.2.0")
	advanceTo(t, e, StepReview)

	job, err := e.Complete()
	require.NoError(t, err)
	want := estimate.ForHubs("turbines older than 3.2.0", h.fleet.LinkedHubs()).DeviceCount
	assert.Equal(t, want, job.TargetDeviceCount)
	assert.Equal(t, want, sumHubTotals(job))
}

func TestCompleteRequiresReviewStep(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	_, err := e.Complete()
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestCompleteRevalidatesEveryStep(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetJobType(model.JobTypeSoftwareUpdate))
	e.SetName("x")
	advanceTo(t, e, StepReview)
	e.SetName(" ")

	_, err := e.Complete()
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestSaveConditionAsGroup(t *testing.T) {
	h := newHarness(t)
	e := h.engine
	require.NoError(t, e.SetTargetMode(model.TargetCustom))
	e.SetCondition("pumps in region:east*")

	_, err := e.SaveConditionAsGroup("East pumps")
	assert.True(t, errors.Is(err, ErrNotReady))

	e.RequestEstimate()
	h.clock.Advance(estimate.DefaultDelay)
	g, err := e.SaveConditionAsGroup("East pumps")
	require.NoError(t, err)
	assert.Equal(t, "pumps in region:east*", g.ConditionText)
	assert.Equal(t, e.Estimate().Result.DeviceCount, g.DeviceCount)
	assert.Equal(t, model.TargetCustom, e.State().TargetMode)

	listed := h.groups.List()
	assert.Equal(t, g.ID, listed[0].ID)
}
