package model

// HubProgress tracks one hub's share of a job. Succeeded+Failed+Pending
// always equals Total.
type HubProgress struct {
	HubName   string    `json:"hub_name"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
	Status    JobStatus `json:"status"`
}

// NewHubProgress seeds a hub with every device pending. Negative totals
// are clamped to zero.
func NewHubProgress(hubName string, total int) HubProgress {
	if total < 0 {
		total = 0
	}
	return HubProgress{
		HubName: hubName,
		Total:   total,
		Pending: total,
		Status:  StatusRunning,
	}
}

// Record moves devices out of pending. Negative inputs are ignored and
// both deltas are clamped to what is still pending, succeeded first.
// The hub completes once nothing is pending; it is failed if every
// device failed.
func (h *HubProgress) Record(succeeded, failed int) {
	if succeeded < 0 {
		succeeded = 0
	}
	if failed < 0 {
		failed = 0
	}
	if succeeded > h.Pending {
		succeeded = h.Pending
	}
	h.Succeeded += succeeded
	h.Pending -= succeeded
	if failed > h.Pending {
		failed = h.Pending
	}
	h.Failed += failed
	h.Pending -= failed

	if h.Pending == 0 && !h.Status.Terminal() {
		if h.Total > 0 && h.Failed == h.Total {
			h.Status = StatusFailed
		} else {
			h.Status = StatusCompleted
		}
	}
}

// Valid reports whether the counters are consistent.
func (h HubProgress) Valid() bool {
	if h.Total < 0 || h.Succeeded < 0 || h.Failed < 0 || h.Pending < 0 {
		return false
	}
	return h.Succeeded+h.Failed+h.Pending == h.Total
}
