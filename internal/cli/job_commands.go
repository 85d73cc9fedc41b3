package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"fleetjobs/internal/jobview"
	"fleetjobs/internal/model"
	"fleetjobs/internal/runstore"
)

type listFlags struct {
	search   string
	statuses []string
	types    []string
	sort     string
	desc     bool
}

func addListFlags(fs *pflag.FlagSet) *listFlags {
	f := &listFlags{}
	fs.StringVar(&f.search, "search", "", "match job id or name (case-insensitive)")
	fs.StringSliceVar(&f.statuses, "status", nil, "status filter: running|completed|failed|scheduled (repeatable)")
	fs.StringSliceVar(&f.types, "type", nil, "job type filter (repeatable)")
	fs.StringVar(&f.sort, "sort", "", "sort column: "+joinColumns())
	fs.BoolVar(&f.desc, "desc", false, "sort descending")
	return f
}

func joinColumns() string {
	parts := make([]string, len(jobview.Columns))
	for i, c := range jobview.Columns {
		parts[i] = string(c)
	}
	return strings.Join(parts, "|")
}

func (f *listFlags) options() (jobview.Options, error) {
	opts := jobview.Options{Search: f.search}
	for _, raw := range f.statuses {
		s, err := model.ParseJobStatus(raw)
		if err != nil {
			return jobview.Options{}, err
		}
		opts.Statuses = append(opts.Statuses, s)
	}
	for _, raw := range f.types {
		t, err := model.ParseJobType(raw)
		if err != nil {
			return jobview.Options{}, err
		}
		opts.Types = append(opts.Types, t)
	}
	if strings.TrimSpace(f.sort) != "" {
		c, err := jobview.ParseColumn(f.sort)
		if err != nil {
			return jobview.Options{}, err
		}
		opts.Sort = jobview.SortState{Column: c, Desc: f.desc}
	}
	return opts, nil
}

type jobsResult struct {
	Summary jobview.Summary   `json:"summary"`
	Jobs    []model.JobRecord `json:"jobs"`
}

func runJobs(args []string, out io.Writer) error {
	fs := newFlagSet("jobs", out)
	common := addCommonFlags(fs)
	list := addListFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	opts, err := list.options()
	if err != nil {
		return err
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.jobs.List()
	res := jobsResult{
		Summary: jobview.Summarize(all),
		Jobs:    jobview.Query(all, opts),
	}
	if *jsonOut {
		return printJSON(out, res)
	}

	fmt.Fprintf(out, "jobs: %d total | %d running | %d completed | %d failed | %d scheduled\n",
		res.Summary.Total, res.Summary.Running, res.Summary.Completed, res.Summary.Failed, res.Summary.Scheduled)
	if len(res.Jobs) == 0 {
		fmt.Fprintln(out, "no jobs match")
		return nil
	}
	rows := make([][]string, 0, len(res.Jobs))
	for _, j := range res.Jobs {
		rows = append(rows, []string{
			j.ID,
			truncateRunes(j.Name, 32),
			j.Type.Label(),
			string(j.Status),
			truncateRunes(j.TargetName, 28),
			formatCount(j.TargetDeviceCount),
			strconv.Itoa(jobview.ProgressPercent(j.Devices)) + "%",
			formatTimestamp(j.StartedAt),
		})
	}
	fmt.Fprint(out, renderTable([]string{"ID", "NAME", "TYPE", "STATUS", "TARGET", "DEVICES", "PROGRESS", "STARTED"}, rows))
	return nil
}

type showResult struct {
	Job    model.JobRecord `json:"job"`
	Detail jobview.Detail  `json:"detail"`
}

func runShow(args []string, out io.Writer) error {
	fs := newFlagSet("show", out)
	common := addCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: fleetjobs show [flags] <job-id>")
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	id := strings.TrimSpace(fs.Arg(0))
	job, ok := a.jobs.FindByID(id)
	if !ok {
		return fmt.Errorf("job %q not found", id)
	}
	now := a.clock.Now()
	res := showResult{Job: job, Detail: jobview.Derive(job, now)}
	if *jsonOut {
		return printJSON(out, res)
	}
	printJobDetail(out, job, res.Detail, now)
	return nil
}

func printJobDetail(out io.Writer, job model.JobRecord, d jobview.Detail, now time.Time) {
	fmt.Fprintf(out, "%s  %s\n", job.ID, job.Name)
	if strings.TrimSpace(job.Description) != "" {
		fmt.Fprintln(out, job.Description)
	}
	fmt.Fprintln(out)
	for _, line := range jobSummaryLines(job, d, now) {
		fmt.Fprintln(out, line)
	}

	if len(d.Hubs) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(d.Hubs))
		for _, h := range d.Hubs {
			rows = append(rows, []string{
				h.HubName,
				string(h.Status),
				formatCount(h.Total),
				formatCount(h.Succeeded),
				formatCount(h.Failed),
				formatCount(h.Pending),
				strconv.Itoa(h.Progress) + "%",
			})
		}
		fmt.Fprint(out, renderTable([]string{"HUB", "STATUS", "TOTAL", "SUCCEEDED", "FAILED", "PENDING", "PROGRESS"}, rows))
	}

	if len(job.Timeline) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "timeline:")
		for _, ev := range job.Timeline {
			fmt.Fprintf(out, "  %s  [%s] %s\n", formatTimestamp(ev.Timestamp), ev.Severity, ev.Text)
			if strings.TrimSpace(ev.Detail) != "" {
				fmt.Fprintf(out, "      %s\n", ev.Detail)
			}
		}
	}
}

func jobSummaryLines(job model.JobRecord, d jobview.Detail, now time.Time) []string {
	lines := []string{
		kv("type", job.Type.Label()),
		kv("status", string(job.Status)),
		kv("target", fmt.Sprintf("%s (%s, %s devices)", job.TargetName, job.TargetMode, formatCount(job.TargetDeviceCount))),
		kv("priority", defaultIfEmpty(job.Priority, model.PriorityNormal)),
		kv("created_by", defaultIfEmpty(job.CreatedBy, "-")),
		kv("started", fmt.Sprintf("%s (%s)", formatTimestamp(job.StartedAt), formatRelative(job.StartedAt, now))),
		kv("elapsed", formatElapsed(d.Elapsed)),
	}
	if job.CopiedFrom != "" {
		lines = append(lines, kv("copied_from", job.CopiedFrom))
	}
	for _, p := range job.Details.Properties {
		lines = append(lines, kv("set", p.Field+" = "+p.Value))
	}
	if a := job.Details.Action; a != nil {
		lines = append(lines, kv("action", a.ActionName+" "+a.JSONPayload))
	}
	lines = append(lines,
		kv("devices", fmt.Sprintf("%s succeeded (%d%%) | %s failed (%d%%) | %s pending (%d%%)",
			formatCount(d.Devices.Succeeded), d.Percent.Succeeded,
			formatCount(d.Devices.Failed), d.Percent.Failed,
			formatCount(d.Devices.Pending), d.Percent.Pending)),
		kv("progress", strconv.Itoa(d.Progress)+"%"),
	)
	return lines
}

func runProgress(args []string, out io.Writer) error {
	fs := newFlagSet("progress", out)
	common := addCommonFlags(fs)
	hub := fs.String("hub", "", "hub reporting progress")
	succeeded := fs.Int("succeeded", 0, "devices that finished successfully since the last report")
	failed := fs.Int("failed", 0, "devices that failed since the last report")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: fleetjobs progress --hub <name> [--succeeded N] [--failed N] <job-id>")
	}
	if strings.TrimSpace(*hub) == "" {
		return errors.New("--hub is required")
	}
	if *succeeded < 0 || *failed < 0 {
		return errors.New("--succeeded and --failed must be >= 0")
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.ApplyHubUpdate(strings.TrimSpace(fs.Arg(0)), *hub, *succeeded, *failed)
	if err != nil {
		return err
	}
	now := a.clock.Now()
	d := jobview.Derive(job, now)
	if *jsonOut {
		return printJSON(out, showResult{Job: job, Detail: d})
	}
	printJobDetail(out, job, d, now)
	return nil
}

type exportReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Namespace   string            `json:"namespace"`
	Summary     jobview.Summary   `json:"summary"`
	Jobs        []model.JobRecord `json:"jobs"`
}

func runExport(args []string, out io.Writer) error {
	fs := newFlagSet("export", out)
	common := addCommonFlags(fs)
	list := addListFlags(fs)
	outPath := fs.String("out", "", "report path (required)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if strings.TrimSpace(*outPath) == "" {
		return errors.New("--out is required")
	}
	opts, err := list.options()
	if err != nil {
		return err
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.jobs.List()
	report := exportReport{
		GeneratedAt: a.clock.Now().UTC(),
		Namespace:   a.fleet.Namespace(),
		Summary:     jobview.Summarize(all),
		Jobs:        jobview.Query(all, opts),
	}
	if err := runstore.WriteJSON(*outPath, report); err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d jobs to %s\n", len(report.Jobs), *outPath)
	return nil
}
