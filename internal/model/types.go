package model

import (
	"fmt"
	"strings"
	"time"
)

type JobType string

const (
	JobTypeManagementAction JobType = "management_action"
	JobTypeManagementUpdate JobType = "management_update"
	JobTypeSoftwareUpdate   JobType = "software_update"
	JobTypeCertRevocation   JobType = "cert_revocation"
)

// JobTypeInfo is one entry of the static job-type catalog.
type JobTypeInfo struct {
	Type        JobType `json:"type"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
}

// JobTypes is the catalog offered by the wizard, in display order.
var JobTypes = []JobTypeInfo{
	{Type: JobTypeSoftwareUpdate, Label: "Software update", Description: "Roll out a firmware or software version to devices"},
	{Type: JobTypeCertRevocation, Label: "Certificate revocation", Description: "Revoke device certificates and force re-enrollment"},
	{Type: JobTypeManagementUpdate, Label: "Property update", Description: "Write desired properties on the device twin"},
	{Type: JobTypeManagementAction, Label: "Management action", Description: "Invoke a named action with a JSON payload"},
}

func ParseJobType(raw string) (JobType, error) {
	v := JobType(strings.ToLower(strings.TrimSpace(raw)))
	for _, info := range JobTypes {
		if info.Type == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown job type %q", raw)
}

func (t JobType) Label() string {
	for _, info := range JobTypes {
		if info.Type == t {
			return info.Label
		}
	}
	return string(t)
}

// HasDetails reports whether the job type carries a detail payload.
func (t JobType) HasDetails() bool {
	return t == JobTypeManagementAction || t == JobTypeManagementUpdate
}

type TargetMode string

const (
	TargetNamespace TargetMode = "namespace"
	TargetGroup     TargetMode = "group"
	TargetCustom    TargetMode = "custom"
)

var TargetModes = []TargetMode{TargetNamespace, TargetGroup, TargetCustom}

const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

var Priorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

type Severity string

const (
	SeverityStart   Severity = "start"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

type HubStatus string

const (
	HubHealthy  HubStatus = "healthy"
	HubDegraded HubStatus = "degraded"
	HubOffline  HubStatus = "offline"
	HubAdding   HubStatus = "adding"
)

// Hub is one sub-cluster of the namespace.
type Hub struct {
	Name        string    `json:"name" yaml:"name"`
	Region      string    `json:"region" yaml:"region"`
	DeviceCount int       `json:"device_count" yaml:"device_count"`
	AssetCount  int       `json:"asset_count,omitempty" yaml:"asset_count"`
	Status      HubStatus `json:"status" yaml:"status"`
}

// Linked reports whether the hub can take part in a job.
func (h Hub) Linked() bool {
	return h.Status != HubAdding && h.Status != HubOffline
}

type SavedGroup struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	ConditionText string    `json:"condition_text" yaml:"condition"`
	DeviceCount   int       `json:"device_count" yaml:"device_count"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

type PropertyEdit struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type ActionInvocation struct {
	ActionName  string `json:"action_name"`
	JSONPayload string `json:"json_payload"`
}

// JobDetails is the detail payload a job was created with. At most one
// of the two variants is set, matching the job type.
type JobDetails struct {
	Properties []PropertyEdit    `json:"properties,omitempty"`
	Action     *ActionInvocation `json:"action,omitempty"`
}

type DeviceCounts struct {
	Succeeded int `json:"succeeded"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

func (d DeviceCounts) Total() int {
	return d.Succeeded + d.Pending + d.Failed
}

type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Detail    string    `json:"detail,omitempty"`
	Severity  Severity  `json:"severity"`
}

// JobRecord is one job as listed and tracked. TargetRef holds the group
// id for group targets and the condition text for custom targets.
type JobRecord struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Type              JobType         `json:"type"`
	Status            JobStatus       `json:"status"`
	TargetMode        TargetMode      `json:"target_mode"`
	TargetName        string          `json:"target_name"`
	TargetRef         string          `json:"target_ref,omitempty"`
	TargetDeviceCount int             `json:"target_device_count"`
	Priority          string          `json:"priority"`
	CreatedBy         string          `json:"created_by"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CopiedFrom        string          `json:"copied_from,omitempty"`
	Details           JobDetails      `json:"details,omitzero"`
	Devices           DeviceCounts    `json:"devices"`
	HubProgress       []HubProgress   `json:"hub_progress"`
	Timeline          []TimelineEvent `json:"timeline"`
}

// Clone returns a deep copy so stores can hand records out without
// sharing slices.
func (j JobRecord) Clone() JobRecord {
	out := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.Details.Properties = append([]PropertyEdit(nil), j.Details.Properties...)
	if j.Details.Action != nil {
		a := *j.Details.Action
		out.Details.Action = &a
	}
	out.HubProgress = append([]HubProgress(nil), j.HubProgress...)
	out.Timeline = append([]TimelineEvent(nil), j.Timeline...)
	return out
}

// AppendEvent adds a timeline entry. The timeline is never re-sorted.
func (j *JobRecord) AppendEvent(at time.Time, severity Severity, text, detail string) {
	j.Timeline = append(j.Timeline, TimelineEvent{
		Timestamp: at,
		Text:      text,
		Detail:    detail,
		Severity:  severity,
	})
}

// RollupDevices recomputes the job-level counters from hub progress.
// Jobs without hub progress keep their counters.
func (j *JobRecord) RollupDevices() {
	if len(j.HubProgress) == 0 {
		return
	}
	var d DeviceCounts
	for _, h := range j.HubProgress {
		d.Succeeded += h.Succeeded
		d.Failed += h.Failed
		d.Pending += h.Pending
	}
	j.Devices = d
}

// FleetTotals is the device and asset count of a set of hubs.
type FleetTotals struct {
	Devices int `json:"devices"`
	Assets  int `json:"assets"`
}

func TotalsOf(hubs []Hub) FleetTotals {
	var t FleetTotals
	for _, h := range hubs {
		if h.DeviceCount > 0 {
			t.Devices += h.DeviceCount
		}
		if h.AssetCount > 0 {
			t.Assets += h.AssetCount
		}
	}
	return t
}
