// Package jobview derives what the job screens show: the filtered and
// sorted job list with its summary, and the per-job detail figures.
package jobview

import (
	"fmt"
	"sort"
	"strings"

	"fleetjobs/internal/model"
)

type Column string

const (
	ColumnID       Column = "id"
	ColumnName     Column = "name"
	ColumnType     Column = "type"
	ColumnStatus   Column = "status"
	ColumnTarget   Column = "target"
	ColumnDevices  Column = "devices"
	ColumnProgress Column = "progress"
	ColumnStarted  Column = "started"
)

var Columns = []Column{
	ColumnID, ColumnName, ColumnType, ColumnStatus,
	ColumnTarget, ColumnDevices, ColumnProgress, ColumnStarted,
}

func ParseColumn(raw string) (Column, error) {
	v := Column(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range Columns {
		if c == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown sort column %q", raw)
}

// SortState is the active sort. The zero value keeps input order.
type SortState struct {
	Column Column
	Desc   bool
}

// Toggle flips the direction when column is already active and starts a
// new column ascending.
func (s SortState) Toggle(column Column) SortState {
	if s.Column == column {
		return SortState{Column: column, Desc: !s.Desc}
	}
	return SortState{Column: column}
}

type Options struct {
	Search   string
	Statuses []model.JobStatus
	Types    []model.JobType
	Sort     SortState
}

// Query filters and sorts jobs without modifying the input. Search
// matches id or name case-insensitively. An empty filter list admits
// everything; the status and type filters must both admit a job.
func Query(jobs []model.JobRecord, opts Options) []model.JobRecord {
	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	out := make([]model.JobRecord, 0, len(jobs))
	for _, job := range jobs {
		if needle != "" &&
			!strings.Contains(strings.ToLower(job.ID), needle) &&
			!strings.Contains(strings.ToLower(job.Name), needle) {
			continue
		}
		if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, job.Status) {
			continue
		}
		if len(opts.Types) > 0 && !containsType(opts.Types, job.Type) {
			continue
		}
		out = append(out, job)
	}

	if opts.Sort.Column == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], opts.Sort.Column)
		if opts.Sort.Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b model.JobRecord, column Column) int {
	switch column {
	case ColumnID:
		return compareText(a.ID, b.ID)
	case ColumnName:
		return compareText(a.Name, b.Name)
	case ColumnType:
		return compareText(a.Type.Label(), b.Type.Label())
	case ColumnStatus:
		return compareText(string(a.Status), string(b.Status))
	case ColumnTarget:
		return compareText(a.TargetName, b.TargetName)
	case ColumnDevices:
		return compareInt(a.TargetDeviceCount, b.TargetDeviceCount)
	case ColumnProgress:
		return compareInt(ProgressPercent(a.Devices), ProgressPercent(b.Devices))
	case ColumnStarted:
		return a.StartedAt.Compare(b.StartedAt)
	default:
		return 0
	}
}

func compareText(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func containsStatus(list []model.JobStatus, v model.JobStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(list []model.JobType, v model.JobType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

type Summary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Scheduled int `json:"scheduled"`
}

// Summarize counts jobs by status. Callers pass the unfiltered set.
func Summarize(jobs []model.JobRecord) Summary {
	s := Summary{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Status {
		case model.StatusRunning:
			s.Running++
		case model.StatusCompleted:
			s.Completed++
		case model.StatusFailed:
			s.Failed++
		case model.StatusScheduled:
			s.Scheduled++
		}
	}
	return s
}
