package jobstore

import (
	_ "embed"
	"fmt"
	"strings"

	"fleetjobs/internal/model"
	"fleetjobs/internal/runstore"
)

//go:embed history.json
var defaultHistory []byte

type historyFile struct {
	Jobs []model.JobRecord `json:"jobs"`
}

// LoadHistory reads seed jobs from a JSON file that may carry comments.
// An empty path loads the built-in history.
func LoadHistory(path string) ([]model.JobRecord, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		jobs, err := ParseHistory(defaultHistory)
		if err != nil {
			return nil, fmt.Errorf("history (built-in): %w", err)
		}
		return jobs, nil
	}

	var f historyFile
	if err := runstore.ReadJSON(p, &f); err != nil {
		return nil, err
	}
	if err := validateHistory(f.Jobs); err != nil {
		return nil, fmt.Errorf("history %s: %w", p, err)
	}
	return f.Jobs, nil
}

func ParseHistory(data []byte) ([]model.JobRecord, error) {
	var f historyFile
	if err := runstore.DecodeJSON(data, &f); err != nil {
		return nil, err
	}
	if err := validateHistory(f.Jobs); err != nil {
		return nil, err
	}
	return f.Jobs, nil
}

func validateHistory(jobs []model.JobRecord) error {
	seen := make(map[string]bool, len(jobs))
	for i := range jobs {
		if err := validateJob(jobs[i]); err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
		if seen[jobs[i].ID] {
			return fmt.Errorf("job %d: duplicate id %q", i, jobs[i].ID)
		}
		seen[jobs[i].ID] = true
	}
	return nil
}

func validateJob(job model.JobRecord) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := model.ParseJobType(string(job.Type)); err != nil {
		return fmt.Errorf("%s: %w", job.ID, err)
	}
	if !model.IsKnownStatus(job.Status) {
		return fmt.Errorf("%s: unknown job status %q", job.ID, job.Status)
	}
	d := job.Devices
	if d.Succeeded < 0 || d.Pending < 0 || d.Failed < 0 || job.TargetDeviceCount < 0 {
		return fmt.Errorf("%s: device counts must be >= 0", job.ID)
	}
	if job.Status.Terminal() && d.Total() != job.TargetDeviceCount {
		return fmt.Errorf("%s: %s job accounts for %d of %d devices", job.ID, job.Status, d.Total(), job.TargetDeviceCount)
	}
	if len(job.HubProgress) == 0 {
		return nil
	}
	var hubs model.DeviceCounts
	allocated := 0
	for _, h := range job.HubProgress {
		if !h.Valid() {
			return fmt.Errorf("%s: hub %s progress does not add up to %d", job.ID, h.HubName, h.Total)
		}
		allocated += h.Total
		hubs.Succeeded += h.Succeeded
		hubs.Failed += h.Failed
		hubs.Pending += h.Pending
	}
	if allocated != job.TargetDeviceCount {
		return fmt.Errorf("%s: hubs hold %d of %d target devices", job.ID, allocated, job.TargetDeviceCount)
	}
	if hubs != d {
		return fmt.Errorf("%s: device counts %+v do not match hub progress %+v", job.ID, d, hubs)
	}
	return nil
}
