package jobview

import (
	"math"
	"time"

	"fleetjobs/internal/model"
)

type Bucket string

const (
	BucketSucceeded Bucket = "succeeded"
	BucketFailed    Bucket = "failed"
	BucketPending   Bucket = "pending"
)

const (
	RingRadius = 40.0
	SegmentGap = 4.0
)

var RingCircumference = 2 * math.Pi * RingRadius

type Percentages struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Segment is one arc of the progress ring. Offset is measured along the
// circumference from the ring's start.
type Segment struct {
	Bucket Bucket  `json:"bucket"`
	Value  int     `json:"value"`
	Length float64 `json:"length"`
	Offset float64 `json:"offset"`
}

type HubRollup struct {
	HubName   string          `json:"hub_name"`
	Status    model.JobStatus `json:"status"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Pending   int             `json:"pending"`
	Percent   Percentages     `json:"percent"`
	Progress  int             `json:"progress"`
}

type Detail struct {
	Total    int                `json:"total"`
	Devices  model.DeviceCounts `json:"devices"`
	Percent  Percentages        `json:"percent"`
	Progress int                `json:"progress"`
	Segments []Segment          `json:"segments"`
	Hubs     []HubRollup        `json:"hubs"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// Derive computes the detail figures for job. now is used for the
// elapsed time of unfinished jobs.
func Derive(job model.JobRecord, now time.Time) Detail {
	d := job.Devices
	out := Detail{
		Total:    d.Total(),
		Devices:  d,
		Percent:  PercentagesOf(d),
		Progress: ProgressPercent(d),
		Segments: Segments(d),
		Hubs:     make([]HubRollup, 0, len(job.HubProgress)),
		Elapsed:  Elapsed(job, now),
	}
	for _, h := range job.HubProgress {
		hd := model.DeviceCounts{Succeeded: h.Succeeded, Failed: h.Failed, Pending: h.Pending}
		out.Hubs = append(out.Hubs, HubRollup{
			HubName:   h.HubName,
			Status:    h.Status,
			Total:     hd.Total(),
			Succeeded: h.Succeeded,
			Failed:    h.Failed,
			Pending:   h.Pending,
			Percent:   PercentagesOf(hd),
			Progress:  ProgressPercent(hd),
		})
	}
	return out
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func PercentagesOf(d model.DeviceCounts) Percentages {
	total := d.Total()
	return Percentages{
		Succeeded: percent(d.Succeeded, total),
		Failed:    percent(d.Failed, total),
		Pending:   percent(d.Pending, total),
	}
}

// ProgressPercent is the share of devices that are no longer pending.
func ProgressPercent(d model.DeviceCounts) int {
	return percent(d.Succeeded+d.Failed, d.Total())
}

// Segments lays out the ring in draw order succeeded, failed, pending.
// Every bucket gets a segment; empty buckets have no length and add no
// gap. A gap follows each non-empty arc when more than one is drawn.
func Segments(d model.DeviceCounts) []Segment {
	values := []struct {
		bucket Bucket
		value  int
	}{
		{BucketSucceeded, d.Succeeded},
		{BucketFailed, d.Failed},
		{BucketPending, d.Pending},
	}

	total := d.Total()
	nonZero := 0
	for _, v := range values {
		if v.value > 0 {
			nonZero++
		}
	}
	gap := 0.0
	if nonZero > 1 {
		gap = SegmentGap
	}
	drawable := RingCircumference - gap*float64(nonZero)

	out := make([]Segment, 0, len(values))
	offset := 0.0
	for _, v := range values {
		seg := Segment{Bucket: v.bucket, Value: v.value, Offset: offset}
		if v.value > 0 && total > 0 {
			seg.Length = drawable * float64(v.value) / float64(total)
			offset += seg.Length + gap
		}
		out = append(out, seg)
	}
	return out
}

// Elapsed runs from the start to completion, or to now for unfinished
// jobs. Jobs that have not started yet report zero.
func Elapsed(job model.JobRecord, now time.Time) time.Duration {
	end := now
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}
	if job.StartedAt.IsZero() || end.Before(job.StartedAt) {
		return 0
	}
	return end.Sub(job.StartedAt)
}
