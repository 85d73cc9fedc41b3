// Package wizard sequences and validates the job creation steps and
// turns a finished run into a JobRecord.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/estimate"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/model"
)

var (
	ErrNotReady     = errors.New("wizard not ready")
	ErrInvalidInput = errors.New("invalid wizard input")
)

const copySuffix = " (copy)"

type GroupStore interface {
	FindByID(id string) (model.SavedGroup, bool)
	Create(name, conditionText string, deviceCount int) (model.SavedGroup, error)
}

type Fleet interface {
	Namespace() string
	LinkedHubs() []model.Hub
}

// Options configures an Engine. Groups and Fleet are required.
type Options struct {
	Groups    GroupStore
	Fleet     Fleet
	Estimates *estimate.Task
	Clock     clock.Clock
	Operator  string
	Logger    logrus.FieldLogger
}

// Engine holds one wizard run. It is not safe for concurrent use; the
// TUI drives it from its update loop.
type Engine struct {
	state State
	index int

	groups    GroupStore
	fleet     Fleet
	estimates *estimate.Task
	clock     clock.Clock
	operator  string
	log       logrus.FieldLogger
}

func New(opts Options) (*Engine, error) {
	if opts.Groups == nil || opts.Fleet == nil {
		return nil, fmt.Errorf("%w: wizard needs a group store and a fleet", ErrInvalidInput)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Estimates == nil {
		opts.Estimates = estimate.NewTask(estimate.TaskOptions{
			Clock: opts.Clock,
			Delay: estimate.DefaultDelay,
			Hubs:  opts.Fleet.LinkedHubs,
		})
	}
	e := &Engine{
		groups:    opts.Groups,
		fleet:     opts.Fleet,
		estimates: opts.Estimates,
		clock:     opts.Clock,
		operator:  strings.TrimSpace(opts.Operator),
		log:       logging.OrDiscard(opts.Logger),
	}
	e.Reset()
	return e, nil
}

// Reset discards the current run.
func (e *Engine) Reset() {
	e.state = State{
		TargetMode: model.TargetNamespace,
		Priority:   model.PriorityNormal,
	}
	e.index = 0
	e.estimates.Clear()
}

func (e *Engine) State() State {
	return e.state.clone()
}

func (e *Engine) Steps() []Step {
	return StepsFor(e.state.JobType)
}

func (e *Engine) Index() int {
	return e.index
}

func (e *Engine) CurrentStep() Step {
	steps := e.Steps()
	return steps[e.index]
}

func (e *Engine) Picking() bool {
	return e.state.Picking
}

func (e *Engine) CanAdvance() bool {
	return Validate(e.CurrentStep(), e.state)
}

// Advance moves to the next step if the current one validates.
func (e *Engine) Advance() bool {
	if !e.CanAdvance() || e.index >= len(e.Steps())-1 {
		return false
	}
	e.index++
	return true
}

// Back moves to the previous step without revalidating. Inside the copy
// picker it leaves the picker instead.
func (e *Engine) Back() bool {
	if e.state.Picking {
		e.CancelCopy()
		return true
	}
	if e.index == 0 {
		return false
	}
	e.index--
	return true
}

func (e *Engine) SetJobType(t model.JobType) error {
	if _, err := model.ParseJobType(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.state.Picking = false
	e.applyJobType(t)
	return nil
}

// applyJobType drops detail payloads that do not belong to t and keeps
// the step index inside the new sequence.
func (e *Engine) applyJobType(t model.JobType) {
	e.state.JobType = t
	if t != model.JobTypeManagementUpdate {
		e.state.Properties = nil
	}
	if t != model.JobTypeManagementAction {
		e.state.Action = nil
	}
	if n := len(e.Steps()); e.index > n-1 {
		e.index = n - 1
	}
}

// BeginCopy opens the source-job picker. It is only available on the
// job type step.
func (e *Engine) BeginCopy() bool {
	if e.CurrentStep() != StepJobType {
		return false
	}
	e.state.Picking = true
	return true
}

// CancelCopy leaves the picker with no job type chosen.
func (e *Engine) CancelCopy() {
	e.state.Picking = false
	e.state.CopySource = ""
	e.applyJobType("")
	e.index = 0
}

// PickCopySource pre-fills the run from src and moves to basics.
func (e *Engine) PickCopySource(src model.JobRecord) error {
	if !e.state.Picking {
		return fmt.Errorf("%w: copy picker is not open", ErrNotReady)
	}
	if _, err := model.ParseJobType(string(src.Type)); err != nil {
		return fmt.Errorf("%w: source job %s: %v", ErrInvalidInput, src.ID, err)
	}

	e.state.Picking = false
	e.state.CopySource = src.ID
	e.applyJobType(src.Type)
	e.state.Name = src.Name + copySuffix
	e.state.Description = src.Description
	switch src.Type {
	case model.JobTypeManagementUpdate:
		e.state.Properties = append([]model.PropertyEdit(nil), src.Details.Properties...)
	case model.JobTypeManagementAction:
		if src.Details.Action != nil {
			a := *src.Details.Action
			e.state.Action = &a
		}
	}

	e.resetTarget(model.TargetNamespace)
	switch src.TargetMode {
	case model.TargetGroup:
		if g, ok := e.groups.FindByID(src.TargetRef); ok {
			e.resetTarget(model.TargetGroup)
			e.state.GroupID = g.ID
			e.state.Condition = g.ConditionText
		}
	case model.TargetCustom:
		e.resetTarget(model.TargetCustom)
		e.state.Condition = src.TargetRef
	}
	if p := strings.TrimSpace(src.Priority); p != "" {
		e.state.Priority = p
	}

	e.index = 1
	return nil
}

func (e *Engine) SetName(name string) {
	e.state.Name = name
}

func (e *Engine) SetDescription(description string) {
	e.state.Description = description
}

// SetProperty adds or replaces the edit for field.
func (e *Engine) SetProperty(field, value string) error {
	if e.state.JobType != model.JobTypeManagementUpdate {
		return fmt.Errorf("%w: job type %q has no property edits", ErrInvalidInput, e.state.JobType)
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return fmt.Errorf("%w: property field is required", ErrInvalidInput)
	}
	for i := range e.state.Properties {
		if e.state.Properties[i].Field == field {
			e.state.Properties[i].Value = value
			return nil
		}
	}
	e.state.Properties = append(e.state.Properties, model.PropertyEdit{Field: field, Value: value})
	return nil
}

func (e *Engine) RemoveProperty(field string) bool {
	field = strings.TrimSpace(field)
	for i, p := range e.state.Properties {
		if p.Field != field {
			continue
		}
		e.state.Properties = append(e.state.Properties[:i:i], e.state.Properties[i+1:]...)
		return true
	}
	return false
}

func (e *Engine) SetAction(name string) error {
	a, err := e.action()
	if err != nil {
		return err
	}
	a.ActionName = name
	return nil
}

func (e *Engine) SetActionPayload(text string) error {
	a, err := e.action()
	if err != nil {
		return err
	}
	a.JSONPayload = text
	return nil
}

func (e *Engine) action() (*model.ActionInvocation, error) {
	if e.state.JobType != model.JobTypeManagementAction {
		return nil, fmt.Errorf("%w: job type %q has no action", ErrInvalidInput, e.state.JobType)
	}
	if e.state.Action == nil {
		e.state.Action = &model.ActionInvocation{}
	}
	return e.state.Action, nil
}

// SetTargetMode always resets the selected group, the condition and
// the outstanding estimate, even when mode is unchanged.
func (e *Engine) SetTargetMode(mode model.TargetMode) error {
	switch mode {
	case model.TargetNamespace, model.TargetGroup, model.TargetCustom:
	default:
		return fmt.Errorf("%w: unknown target mode %q", ErrInvalidInput, mode)
	}
	e.resetTarget(mode)
	return nil
}

func (e *Engine) resetTarget(mode model.TargetMode) {
	e.state.TargetMode = mode
	e.state.GroupID = ""
	e.state.Condition = ""
	e.estimates.Clear()
}

// SelectGroup targets a saved group and copies its condition text.
func (e *Engine) SelectGroup(id string) error {
	g, ok := e.groups.FindByID(id)
	if !ok {
		return fmt.Errorf("%w: unknown group %q", ErrInvalidInput, id)
	}
	if e.state.TargetMode != model.TargetGroup {
		e.resetTarget(model.TargetGroup)
	}
	e.state.GroupID = g.ID
	e.state.Condition = g.ConditionText
	return nil
}

// SetCondition replaces the custom condition and drops any estimate
// made for the previous text.
func (e *Engine) SetCondition(text string) {
	if text == e.state.Condition {
		return
	}
	e.state.Condition = text
	e.estimates.Clear()
}

// SetPriority accepts a catalog priority or the empty string.
func (e *Engine) SetPriority(p string) error {
	p = strings.ToLower(strings.TrimSpace(p))
	if p != "" && !knownPriority(p) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, p)
	}
	e.state.Priority = p
	return nil
}

func knownPriority(p string) bool {
	for _, v := range model.Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// RequestEstimate starts an estimate for the current condition. It
// returns the estimate generation so callers can poll for it.
func (e *Engine) RequestEstimate() uint64 {
	return e.estimates.Start(e.state.Condition)
}

func (e *Engine) Estimate() estimate.Snapshot {
	return e.estimates.Snapshot()
}

// SaveConditionAsGroup stores the custom condition with the device
// count of its ready estimate. The run stays in custom mode.
func (e *Engine) SaveConditionAsGroup(name string) (model.SavedGroup, error) {
	if e.state.TargetMode != model.TargetCustom || strings.TrimSpace(e.state.Condition) == "" {
		return model.SavedGroup{}, fmt.Errorf("%w: no custom condition to save", ErrNotReady)
	}
	snap := e.estimates.Snapshot()
	if !snap.Ready(e.state.Condition) {
		return model.SavedGroup{}, fmt.Errorf("%w: estimate is %s", ErrNotReady, snap.State)
	}
	return e.groups.Create(name, e.state.Condition, snap.Result.DeviceCount)
}

// Complete turns a fully valid run into a running job and resets the
// engine. It is only available on the review step.
func (e *Engine) Complete() (model.JobRecord, error) {
	if e.state.Picking || e.CurrentStep() != StepReview {
		return model.JobRecord{}, fmt.Errorf("%w: not on review step", ErrNotReady)
	}
	for _, step := range e.Steps() {
		if !Validate(step, e.state) {
			return model.JobRecord{}, fmt.Errorf("%w: step %s is incomplete", ErrNotReady, step)
		}
	}

	target, err := e.resolveTarget()
	if err != nil {
		return model.JobRecord{}, err
	}
	allocation := Allocate(target.devices, target.hubs)
	if target.devices > 0 && len(allocation) == 0 {
		return model.JobRecord{}, fmt.Errorf("%w: no linked hubs in scope for %s", ErrNotReady, target.name)
	}

	now := e.clock.Now().UTC()
	job := model.JobRecord{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(e.state.Name),
		Description:       strings.TrimSpace(e.state.Description),
		Type:              e.state.JobType,
		Status:            model.StatusRunning,
		TargetMode:        e.state.TargetMode,
		TargetName:        target.name,
		TargetRef:         target.ref,
		TargetDeviceCount: target.devices,
		Priority:          e.state.Priority,
		CreatedBy:         e.operator,
		StartedAt:         now,
		CopiedFrom:        e.state.CopySource,
		Devices:           model.DeviceCounts{Pending: target.devices},
		HubProgress:       allocation,
	}
	if job.Priority == "" {
		job.Priority = model.PriorityNormal
	}
	switch job.Type {
	case model.JobTypeManagementUpdate:
		job.Details.Properties = append([]model.PropertyEdit(nil), e.state.Properties...)
	case model.JobTypeManagementAction:
		a := *e.state.Action
		job.Details.Action = &a
	}
	job.RollupDevices()
	job.AppendEvent(now, model.SeverityStart, "Job started",
		fmt.Sprintf("%d devices across %d hubs", job.TargetDeviceCount, len(job.HubProgress)))

	e.log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"type":    job.Type,
		"target":  job.TargetMode,
		"devices": job.TargetDeviceCount,
		"hubs":    len(job.HubProgress),
	}).Info("job created")

	e.Reset()
	return job, nil
}

type resolvedTarget struct {
	name    string
	ref     string
	devices int
	hubs    []model.Hub
}

func (e *Engine) resolveTarget() (resolvedTarget, error) {
	linked := e.fleet.LinkedHubs()
	switch e.state.TargetMode {
	case model.TargetGroup:
		g, ok := e.groups.FindByID(e.state.GroupID)
		if !ok {
			return resolvedTarget{}, fmt.Errorf("%w: group %q no longer exists", ErrNotReady, e.state.GroupID)
		}
		return resolvedTarget{
			name:    g.Name,
			ref:     g.ID,
			devices: g.DeviceCount,
			hubs:    estimate.Scope(g.ConditionText, linked),
		}, nil
	case model.TargetCustom:
		cond := e.state.Condition
		var devices int
		if snap := e.estimates.Snapshot(); snap.Ready(cond) {
			devices = snap.Result.DeviceCount
		} else {
			devices = estimate.ForHubs(cond, linked).DeviceCount
		}
		return resolvedTarget{
			name:    strings.TrimSpace(cond),
			ref:     cond,
			devices: devices,
			hubs:    estimate.Scope(cond, linked),
		}, nil
	default:
		return resolvedTarget{
			name:    e.fleet.Namespace(),
			devices: model.TotalsOf(linked).Devices,
			hubs:    linked,
		}, nil
	}
}
