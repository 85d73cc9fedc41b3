package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fleetjobs/internal/jobview"
	"fleetjobs/internal/model"
)

type manageMode int

const (
	manageModeBrowse manageMode = iota
	manageModeSearch
	manageModeDetail
	manageModeWizard
)

type manageModel struct {
	app *app

	jobs    []model.JobRecord
	rows    []model.JobRecord
	summary jobview.Summary

	search       textinput.Model
	sort         jobview.SortState
	statusFilter int // 0 = all, else index+1 into model.JobStatuses
	typeFilter   int // 0 = all, else index+1 into model.JobTypes

	cursor   int
	detailID string
	width    int
	height   int
	mode     manageMode
	wiz      *wizardForm

	statusMessage string
}

type manageLoadedMsg struct {
	jobs []model.JobRecord
}

func runManage(args []string, out io.Writer) error {
	fs := newFlagSet("manage", out)
	common := addCommonFlags(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("manage requires an interactive terminal (TTY)")
	}

	// The TUI owns the terminal; logs go to log.file or nowhere.
	a, err := openApp(common, appOptions{LogFallback: io.Discard})
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(newManageModel(a), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("manage requires an interactive terminal (TTY)")
		}
		return err
	}
	return nil
}

func newManageModel(a *app) manageModel {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search id or name"
	search.CharLimit = 128

	m := manageModel{
		app:    a,
		search: search,
		mode:   manageModeBrowse,
	}
	m.setJobs(a.jobs.List())
	return m
}

func (m manageModel) Init() tea.Cmd {
	return loadJobsCmd(m.app)
}

func loadJobsCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		return manageLoadedMsg{jobs: a.jobs.List()}
	}
}

func (m *manageModel) setJobs(jobs []model.JobRecord) {
	m.jobs = jobs
	m.summary = jobview.Summarize(jobs)
	m.applyQuery()
}

func (m manageModel) queryOptions() jobview.Options {
	opts := jobview.Options{
		Search: m.search.Value(),
		Sort:   m.sort,
	}
	if m.statusFilter > 0 {
		opts.Statuses = []model.JobStatus{model.JobStatuses[m.statusFilter-1]}
	}
	if m.typeFilter > 0 {
		opts.Types = []model.JobType{model.JobTypes[m.typeFilter-1].Type}
	}
	return opts
}

func (m *manageModel) applyQuery() {
	m.rows = jobview.Query(m.jobs, m.queryOptions())
	if m.cursor > len(m.rows)-1 {
		m.cursor = maxInt(len(m.rows)-1, 0)
	}
}

func (m manageModel) selectedJob() (model.JobRecord, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return model.JobRecord{}, false
	}
	return m.rows[m.cursor], true
}

func (m manageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.search.Width = clampInt(m.width-8, 20, 80)
		if m.wiz != nil {
			m.wiz.resize(m.width)
		}
		return m, nil
	case manageLoadedMsg:
		m.setJobs(msg.jobs)
		return m, nil
	case estimateTickMsg:
		return m.handleEstimateTick(msg)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case manageModeSearch:
		return m.updateSearch(keyMsg)
	case manageModeDetail:
		return m.updateDetail(keyMsg)
	case manageModeWizard:
		return m.updateWizard(keyMsg)
	default:
		return m.updateBrowse(keyMsg)
	}
}

func (m manageModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		job, ok := m.selectedJob()
		if !ok {
			m.statusMessage = "no job selected"
			return m, nil
		}
		m.mode = manageModeDetail
		m.detailID = job.ID
		return m, nil
	case "/":
		m.mode = manageModeSearch
		cmd := m.search.Focus()
		return m, cmd
	case "s":
		m.statusFilter = (m.statusFilter + 1) % (len(model.JobStatuses) + 1)
		m.applyQuery()
		return m, nil
	case "t":
		m.typeFilter = (m.typeFilter + 1) % (len(model.JobTypes) + 1)
		m.applyQuery()
		return m, nil
	case "x":
		m.statusFilter = 0
		m.typeFilter = 0
		m.search.SetValue("")
		m.sort = jobview.SortState{}
		m.applyQuery()
		m.statusMessage = "filters cleared"
		return m, nil
	case "1", "2", "3", "4", "5", "6", "7", "8":
		idx, _ := strconv.Atoi(key)
		m.sort = m.sort.Toggle(jobview.Columns[idx-1])
		m.applyQuery()
		return m, nil
	case "n":
		return m.openWizard(nil)
	case "c":
		job, ok := m.selectedJob()
		if !ok {
			return m.openWizard(nil)
		}
		return m.openWizard(&job)
	case "r":
		return m, loadJobsCmd(m.app)
	}
	return m, nil
}

func (m manageModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc":
		m.search.Blur()
		m.mode = manageModeBrowse
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applyQuery()
	return m, cmd
}

func (m manageModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "backspace", "left", "h":
		m.mode = manageModeBrowse
		m.detailID = ""
		return m, nil
	case "c":
		job, ok := m.app.jobs.FindByID(m.detailID)
		if !ok {
			return m, nil
		}
		return m.openWizard(&job)
	}
	return m, nil
}

func (m manageModel) View() string {
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case manageModeDetail:
		return m.viewDetail()
	case manageModeWizard:
		return m.viewWizard()
	default:
		return m.viewBrowse()
	}
}

func (m manageModel) viewBrowse() string {
	header := manageTitleStyle.Render("fleetjobs manage  "+m.app.fleet.Namespace()) + "\n" +
		manageMutedStyle.Render("up/down: move | enter: detail | /: search | s: status | t: type | 1-8: sort | x: clear | n: new job | c: copy | q: quit")

	summary := fmt.Sprintf("%d jobs  %s  %s  %s  %s",
		m.summary.Total,
		statusStyle(model.StatusRunning).Render(fmt.Sprintf("%d running", m.summary.Running)),
		statusStyle(model.StatusCompleted).Render(fmt.Sprintf("%d completed", m.summary.Completed)),
		statusStyle(model.StatusFailed).Render(fmt.Sprintf("%d failed", m.summary.Failed)),
		statusStyle(model.StatusScheduled).Render(fmt.Sprintf("%d scheduled", m.summary.Scheduled)),
	)

	body := lipgloss.JoinVertical(lipgloss.Left, summary, m.renderFilterLine(), "", m.renderJobList(m.width))
	panel := managePanelStyle.Width(maxInt(m.width-2, 40)).Render(body)

	search := ""
	if m.mode == manageModeSearch {
		search = m.search.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, search, m.renderStatusLine(m.width))
}

func (m manageModel) renderFilterLine() string {
	status := "all"
	if m.statusFilter > 0 {
		status = string(model.JobStatuses[m.statusFilter-1])
	}
	typ := "all"
	if m.typeFilter > 0 {
		typ = model.JobTypes[m.typeFilter-1].Label
	}
	sortText := "none"
	if m.sort.Column != "" {
		dir := "asc"
		if m.sort.Desc {
			dir = "desc"
		}
		sortText = string(m.sort.Column) + " " + dir
	}
	parts := []string{
		kv("status", status),
		kv("type", typ),
		kv("sort", sortText),
	}
	if q := strings.TrimSpace(m.search.Value()); q != "" {
		parts = append(parts, kv("search", q))
	}
	return manageMutedStyle.Render(strings.Join(parts, " | "))
}

func (m manageModel) renderJobList(width int) string {
	if len(m.rows) == 0 {
		return manageMutedStyle.Render("No jobs match. Press x to clear filters or n to create a job.")
	}
	maxRows := clampInt(m.height-12, 4, 30)
	start, end := listWindow(len(m.rows), m.cursor, maxRows)

	lines := make([]string, 0, maxRows+2)
	if start > 0 {
		lines = append(lines, manageMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		j := m.rows[i]
		line := fmt.Sprintf("%-10s %-30s %-22s %-9s %8s %4d%%",
			truncateRunes(j.ID, 10),
			truncateRunes(j.Name, 30),
			j.Type.Label(),
			j.Status,
			formatCount(j.TargetDeviceCount),
			jobview.ProgressPercent(j.Devices),
		)
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.cursor {
			line = manageSelStyle.Render(line)
		} else {
			line = statusStyle(j.Status).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(m.rows) {
		lines = append(lines, manageMutedStyle.Render("..."))
	}
	return strings.Join(lines, "\n")
}

func (m manageModel) viewDetail() string {
	job, ok := m.app.jobs.FindByID(m.detailID)
	if !ok {
		return manageErrorStyle.Render("job " + m.detailID + " not found")
	}
	now := m.app.clock.Now()
	d := jobview.Derive(job, now)
	width := maxInt(m.width-6, 30)

	header := manageTitleStyle.Render(job.ID+"  "+job.Name) + "  " + jobTypeBadge(job.Type) + "\n" +
		manageMutedStyle.Render("esc: back | c: copy into new job")

	lines := []string{}
	if strings.TrimSpace(job.Description) != "" {
		lines = append(lines, job.Description, "")
	}
	for _, l := range jobSummaryLines(job, d, now) {
		lines = append(lines, wrapOrTrim(l, width))
	}
	lines = append(lines, "", ringBar(d.Segments, clampInt(width, 10, 60)))

	if len(d.Hubs) > 0 {
		lines = append(lines, "", "Hubs")
		for _, h := range d.Hubs {
			bar := ringBar(jobview.Segments(model.DeviceCounts{
				Succeeded: h.Succeeded, Failed: h.Failed, Pending: h.Pending,
			}), 20)
			lines = append(lines, fmt.Sprintf("%-18s %s %4d%%  %s / %s", truncateRunes(h.HubName, 18), bar, h.Progress,
				formatCount(h.Succeeded+h.Failed), formatCount(h.Total)))
		}
	}

	if len(job.Timeline) > 0 {
		lines = append(lines, "", "Timeline")
		for _, ev := range job.Timeline {
			text := fmt.Sprintf("%s  %s", formatTimestamp(ev.Timestamp), ev.Text)
			if ev.Detail != "" {
				text += "  " + manageMutedStyle.Render(ev.Detail)
			}
			lines = append(lines, severityStyle(ev.Severity).Render("●")+" "+wrapOrTrim(text, width-2))
		}
	}

	panel := managePanelStyle.Width(maxInt(m.width-2, 40)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel)
}

func (m manageModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: press n to start the job wizard, or c to copy the selected job."
	}
	style := manageMutedStyle
	if strings.HasPrefix(strings.ToLower(msg), "error:") {
		style = manageErrorStyle
	} else if strings.HasPrefix(strings.ToLower(msg), "job created") || strings.HasPrefix(strings.ToLower(msg), "group saved") {
		style = manageOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}
