package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fleetjobs/internal/estimate"
	"fleetjobs/internal/model"
	"fleetjobs/internal/wizard"
)

const estimatePollInterval = 50 * time.Millisecond

// wizardForm is the terminal state around one wizard run. The engine
// owns the staged job; the form only owns cursors and text inputs.
type wizardForm struct {
	cursor int
	inputs []textinput.Model
	focus  int
	step   wizard.Step
	naming *textinput.Model
	width  int
	err    string
}

type estimateTickMsg struct {
	gen uint64
}

func estimateTickCmd(gen uint64) tea.Cmd {
	return tea.Tick(estimatePollInterval, func(time.Time) tea.Msg {
		return estimateTickMsg{gen: gen}
	})
}

func newWizardInput(placeholder string, limit, width int) textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = clampInt(width-24, 20, 80)
	return in
}

func (f *wizardForm) resize(width int) {
	f.width = width
	for i := range f.inputs {
		f.inputs[i].Width = clampInt(width-24, 20, 80)
	}
}

func (f *wizardForm) focusInput(i int) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	f.focus = clampInt(i, 0, len(f.inputs)-1)
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	return f.inputs[f.focus].Focus()
}

// syncStep rebuilds the inputs when the engine moved to another step.
func (m *manageModel) syncStep() tea.Cmd {
	e := m.app.wizard
	step := e.CurrentStep()
	if m.wiz.step == step {
		return nil
	}
	m.wiz.step = step
	m.wiz.cursor = 0
	m.wiz.focus = 0
	m.wiz.inputs = nil
	m.wiz.naming = nil

	st := e.State()
	w := m.wiz.width
	switch step {
	case wizard.StepBasics:
		name := newWizardInput("job name", 120, w)
		name.SetValue(st.Name)
		desc := newWizardInput("optional description", 240, w)
		desc.SetValue(st.Description)
		m.wiz.inputs = []textinput.Model{name, desc}
	case wizard.StepTarget:
		cond := newWizardInput("e.g. turbines older than 3.2.0 hub:hub-eu-*", 240, w)
		if st.TargetMode == model.TargetCustom {
			cond.SetValue(st.Condition)
		}
		m.wiz.inputs = []textinput.Model{cond}
		m.wiz.cursor = m.groupIndex(st.GroupID)
	case wizard.StepDetails:
		switch st.JobType {
		case model.JobTypeManagementUpdate:
			m.wiz.inputs = []textinput.Model{
				newWizardInput("property field", 120, w),
				newWizardInput("value", 240, w),
			}
		case model.JobTypeManagementAction:
			name := newWizardInput("action name", 120, w)
			payload := newWizardInput(`{"key": "value"}`, 2000, w)
			if st.Action != nil {
				name.SetValue(st.Action.ActionName)
				payload.SetValue(st.Action.JSONPayload)
			}
			m.wiz.inputs = []textinput.Model{name, payload}
		}
	}
	if step == wizard.StepTarget && st.TargetMode != model.TargetCustom {
		return nil
	}
	return m.wiz.focusInput(0)
}

func (m manageModel) groupIndex(id string) int {
	for i, g := range m.app.groups.List() {
		if g.ID == id {
			return i
		}
	}
	return 0
}

// openWizard starts a fresh run. With src set the run is pre-filled
// from that job through the copy picker.
func (m manageModel) openWizard(src *model.JobRecord) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	e.Reset()
	m.wiz = &wizardForm{width: m.width, step: ""}
	if src != nil {
		e.BeginCopy()
		if err := e.PickCopySource(*src); err != nil {
			e.Reset()
			m.statusMessage = "error: " + err.Error()
			m.wiz = nil
			return m, nil
		}
	}
	m.mode = manageModeWizard
	m.statusMessage = ""
	cmd := m.syncStep()
	return m, cmd
}

func (m manageModel) closeWizard(message string) manageModel {
	m.app.wizard.Reset()
	m.wiz = nil
	m.mode = manageModeBrowse
	m.statusMessage = message
	return m
}

func (m manageModel) handleEstimateTick(msg estimateTickMsg) (tea.Model, tea.Cmd) {
	if m.wiz == nil {
		return m, nil
	}
	snap := m.app.wizard.Estimate()
	if snap.Generation != msg.gen || snap.State != estimate.StateEstimating {
		return m, nil
	}
	return m, estimateTickCmd(msg.gen)
}

func (m manageModel) updateWizard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.wiz.naming != nil {
		return m.updateGroupNaming(msg)
	}
	if key == "esc" {
		m.wiz.err = ""
		if !e.Back() {
			return m.closeWizard("wizard cancelled"), nil
		}
		cmd := m.syncStep()
		return m, cmd
	}

	var (
		next tea.Model
		cmd  tea.Cmd
	)
	switch e.CurrentStep() {
	case wizard.StepJobType:
		next, cmd = m.updateJobTypeStep(key)
	case wizard.StepBasics:
		next, cmd = m.updateBasicsStep(msg)
	case wizard.StepTarget:
		next, cmd = m.updateTargetStep(msg)
	case wizard.StepDetails:
		next, cmd = m.updateDetailsStep(msg)
	case wizard.StepReview:
		next, cmd = m.updateReviewStep(key)
	default:
		return m, nil
	}
	mm, ok := next.(manageModel)
	if !ok || mm.wiz == nil {
		return next, cmd
	}
	return mm, tea.Batch(cmd, mm.syncStep())
}

// advance moves forward or reports why the step is incomplete.
func (m *manageModel) advance() {
	e := m.app.wizard
	if e.Advance() {
		m.wiz.err = ""
		return
	}
	m.wiz.err = incompleteReason(e.CurrentStep(), e.State())
}

func incompleteReason(step wizard.Step, st wizard.State) string {
	switch step {
	case wizard.StepJobType:
		return "choose a job type"
	case wizard.StepBasics:
		return "name is required"
	case wizard.StepTarget:
		switch st.TargetMode {
		case model.TargetGroup:
			return "select a saved group"
		case model.TargetCustom:
			if strings.TrimSpace(st.Condition) == "" {
				return "condition is required"
			}
			return "priority is required"
		}
	case wizard.StepDetails:
		if st.JobType == model.JobTypeManagementUpdate {
			return "add at least one property with a value"
		}
		return "action name and payload are required"
	}
	return "step is incomplete"
}

func (m manageModel) updateJobTypeStep(key string) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	if e.Picking() {
		switch key {
		case "up", "k":
			m.wiz.cursor = clampInt(m.wiz.cursor-1, 0, maxInt(len(m.jobs)-1, 0))
		case "down", "j":
			m.wiz.cursor = clampInt(m.wiz.cursor+1, 0, maxInt(len(m.jobs)-1, 0))
		case "enter":
			if m.wiz.cursor >= len(m.jobs) {
				return m, nil
			}
			if err := e.PickCopySource(m.jobs[m.wiz.cursor]); err != nil {
				m.wiz.err = err.Error()
			}
		}
		return m, nil
	}

	options := len(model.JobTypes) + 1
	switch key {
	case "up", "k":
		m.wiz.cursor = clampInt(m.wiz.cursor-1, 0, options-1)
	case "down", "j":
		m.wiz.cursor = clampInt(m.wiz.cursor+1, 0, options-1)
	case "enter":
		if m.wiz.cursor == len(model.JobTypes) {
			e.BeginCopy()
			m.wiz.cursor = 0
			return m, nil
		}
		if err := e.SetJobType(model.JobTypes[m.wiz.cursor].Type); err != nil {
			m.wiz.err = err.Error()
			return m, nil
		}
		m.advance()
	}
	return m, nil
}

func (m manageModel) updateBasicsStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	switch msg.String() {
	case "tab", "down":
		return m, m.wiz.focusInput((m.wiz.focus + 1) % len(m.wiz.inputs))
	case "shift+tab", "up":
		return m, m.wiz.focusInput((m.wiz.focus + len(m.wiz.inputs) - 1) % len(m.wiz.inputs))
	case "enter":
		m.advance()
		return m, nil
	}
	var cmd tea.Cmd
	m.wiz.inputs[m.wiz.focus], cmd = m.wiz.inputs[m.wiz.focus].Update(msg)
	e.SetName(m.wiz.inputs[0].Value())
	e.SetDescription(m.wiz.inputs[1].Value())
	return m, cmd
}

func (m manageModel) updateTargetStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	st := e.State()
	switch msg.String() {
	case "left", "right":
		idx := 0
		for i, mode := range model.TargetModes {
			if mode == st.TargetMode {
				idx = i
			}
		}
		step := 1
		if msg.String() == "left" {
			step = len(model.TargetModes) - 1
		}
		mode := model.TargetModes[(idx+step)%len(model.TargetModes)]
		if err := e.SetTargetMode(mode); err != nil {
			m.wiz.err = err.Error()
			return m, nil
		}
		m.wiz.err = ""
		m.wiz.cursor = 0
		m.wiz.inputs[0].SetValue("")
		if mode == model.TargetCustom {
			return m, m.wiz.focusInput(0)
		}
		m.wiz.inputs[0].Blur()
		return m, nil
	case "enter":
		m.advance()
		return m, nil
	}

	switch st.TargetMode {
	case model.TargetGroup:
		groups := m.app.groups.List()
		switch msg.String() {
		case "up", "k":
			m.wiz.cursor = clampInt(m.wiz.cursor-1, 0, maxInt(len(groups)-1, 0))
		case "down", "j":
			m.wiz.cursor = clampInt(m.wiz.cursor+1, 0, maxInt(len(groups)-1, 0))
		case " ":
		default:
			return m, nil
		}
		if m.wiz.cursor < len(groups) {
			if err := e.SelectGroup(groups[m.wiz.cursor].ID); err != nil {
				m.wiz.err = err.Error()
			}
		}
		return m, nil
	case model.TargetCustom:
		switch msg.String() {
		case "tab":
			if err := e.SetPriority(nextPriority(st.Priority)); err != nil {
				m.wiz.err = err.Error()
			}
			return m, nil
		case "ctrl+g":
			if !e.Estimate().Ready(st.Condition) {
				m.wiz.err = "wait for the estimate before saving the condition as a group"
				return m, nil
			}
			in := newWizardInput("group name", 120, m.wiz.width)
			m.wiz.naming = &in
			m.wiz.err = ""
			return m, m.wiz.naming.Focus()
		}
		var cmd tea.Cmd
		m.wiz.inputs[0], cmd = m.wiz.inputs[0].Update(msg)
		cond := m.wiz.inputs[0].Value()
		if cond == st.Condition {
			return m, cmd
		}
		e.SetCondition(cond)
		gen := e.RequestEstimate()
		if e.Estimate().State != estimate.StateEstimating {
			return m, cmd
		}
		return m, tea.Batch(cmd, estimateTickCmd(gen))
	}
	return m, nil
}

func nextPriority(current string) string {
	for i, p := range model.Priorities {
		if p == current {
			return model.Priorities[(i+1)%len(model.Priorities)]
		}
	}
	return model.Priorities[0]
}

func (m manageModel) updateGroupNaming(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.wiz.naming = nil
		return m, m.wiz.focusInput(0)
	case "enter":
		g, err := m.app.wizard.SaveConditionAsGroup(m.wiz.naming.Value())
		if err != nil {
			m.wiz.err = err.Error()
			return m, nil
		}
		m.wiz.naming = nil
		m.statusMessage = fmt.Sprintf("group saved: %s (%s devices)", g.Name, formatCount(g.DeviceCount))
		return m, m.wiz.focusInput(0)
	}
	var cmd tea.Cmd
	in := *m.wiz.naming
	in, cmd = in.Update(msg)
	m.wiz.naming = &in
	return m, cmd
}

func (m manageModel) updateDetailsStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.app.wizard
	st := e.State()
	switch msg.String() {
	case "tab", "down":
		return m, m.wiz.focusInput((m.wiz.focus + 1) % len(m.wiz.inputs))
	case "shift+tab", "up":
		return m, m.wiz.focusInput((m.wiz.focus + len(m.wiz.inputs) - 1) % len(m.wiz.inputs))
	}

	if st.JobType == model.JobTypeManagementUpdate {
		switch msg.String() {
		case "enter":
			field := strings.TrimSpace(m.wiz.inputs[0].Value())
			if field == "" {
				m.advance()
				return m, nil
			}
			if err := e.SetProperty(field, m.wiz.inputs[1].Value()); err != nil {
				m.wiz.err = err.Error()
				return m, nil
			}
			m.wiz.err = ""
			m.wiz.inputs[0].SetValue("")
			m.wiz.inputs[1].SetValue("")
			return m, m.wiz.focusInput(0)
		case "ctrl+d":
			field := strings.TrimSpace(m.wiz.inputs[0].Value())
			if field == "" && len(st.Properties) > 0 {
				field = st.Properties[len(st.Properties)-1].Field
			}
			e.RemoveProperty(field)
			return m, nil
		}
		var cmd tea.Cmd
		m.wiz.inputs[m.wiz.focus], cmd = m.wiz.inputs[m.wiz.focus].Update(msg)
		return m, cmd
	}

	if msg.String() == "enter" {
		m.advance()
		return m, nil
	}
	var cmd tea.Cmd
	m.wiz.inputs[m.wiz.focus], cmd = m.wiz.inputs[m.wiz.focus].Update(msg)
	if err := e.SetAction(m.wiz.inputs[0].Value()); err != nil {
		m.wiz.err = err.Error()
	}
	if err := e.SetActionPayload(m.wiz.inputs[1].Value()); err != nil {
		m.wiz.err = err.Error()
	}
	return m, cmd
}

func (m manageModel) updateReviewStep(key string) (tea.Model, tea.Cmd) {
	if key != "enter" {
		return m, nil
	}
	job, err := m.app.wizard.Complete()
	if err != nil {
		m.wiz.err = err.Error()
		return m, nil
	}
	if err := m.app.jobs.Upsert(job); err != nil {
		m.wiz.err = err.Error()
		return m, nil
	}
	m = m.closeWizard("job created: " + job.ID)
	m.setJobs(m.app.jobs.List())
	for i, j := range m.rows {
		if j.ID == job.ID {
			m.cursor = i
		}
	}
	return m, nil
}

func (m manageModel) viewWizard() string {
	e := m.app.wizard
	width := maxInt(m.width-6, 30)

	crumbs := make([]string, 0, len(e.Steps()))
	for i, s := range e.Steps() {
		label := fmt.Sprintf("%d %s", i+1, s.Label())
		switch {
		case i == e.Index():
			label = manageSelStyle.Render(label)
		case i < e.Index():
			label = manageOKStyle.Render(label)
		default:
			label = manageMutedStyle.Render(label)
		}
		crumbs = append(crumbs, label)
	}
	header := manageTitleStyle.Render("New job") + "  " + strings.Join(crumbs, manageMutedStyle.Render(" > "))

	var body, help string
	switch e.CurrentStep() {
	case wizard.StepJobType:
		body, help = m.viewJobTypeStep()
	case wizard.StepBasics:
		body = m.viewInputs([]string{"Name", "Description"})
		help = "tab: next field | enter: continue | esc: back"
	case wizard.StepTarget:
		body, help = m.viewTargetStep(width)
	case wizard.StepDetails:
		body, help = m.viewDetailsStep()
	case wizard.StepReview:
		body = m.viewReviewStep(width)
		help = "enter: create job | esc: back"
	}

	lines := []string{body}
	if m.wiz.err != "" {
		lines = append(lines, "", manageErrorStyle.Render("error: "+m.wiz.err))
	}
	panel := managePanelStyle.Width(maxInt(m.width-2, 40)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, manageMutedStyle.Render(help), panel, m.renderStatusLine(m.width))
}

func (m manageModel) viewJobTypeStep() (string, string) {
	e := m.app.wizard
	lines := []string{}
	if e.Picking() {
		lines = append(lines, "Copy an existing job", "")
		if len(m.jobs) == 0 {
			lines = append(lines, manageMutedStyle.Render("No jobs to copy."))
		}
		start, end := listWindow(len(m.jobs), m.wiz.cursor, clampInt(m.height-10, 4, 20))
		for i := start; i < end; i++ {
			j := m.jobs[i]
			line := fmt.Sprintf("%-10s %-30s %s", truncateRunes(j.ID, 10), truncateRunes(j.Name, 30), j.Type.Label())
			if i == m.wiz.cursor {
				line = manageSelStyle.Render(line)
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), "up/down: move | enter: copy job | esc: back to job types"
	}

	for i, info := range model.JobTypes {
		line := fmt.Sprintf("%-24s %s", info.Label, manageMutedStyle.Render(info.Description))
		if i == m.wiz.cursor {
			line = manageSelStyle.Render(info.Label) + strings.Repeat(" ", maxInt(25-len(info.Label), 1)) + manageMutedStyle.Render(info.Description)
		}
		lines = append(lines, line)
	}
	copyLine := "Copy an existing job"
	if m.wiz.cursor == len(model.JobTypes) {
		copyLine = manageSelStyle.Render(copyLine)
	}
	lines = append(lines, "", copyLine)
	return strings.Join(lines, "\n"), "up/down: move | enter: select | esc: cancel"
}

func (m manageModel) viewInputs(labels []string) string {
	lines := make([]string, 0, len(labels))
	for i, label := range labels {
		if i >= len(m.wiz.inputs) {
			break
		}
		prefix := "  "
		if i == m.wiz.focus && m.wiz.inputs[i].Focused() {
			prefix = "> "
		}
		lines = append(lines, fmt.Sprintf("%s%-14s %s", prefix, label, m.wiz.inputs[i].View()))
	}
	return strings.Join(lines, "\n")
}

func (m manageModel) viewTargetStep(width int) (string, string) {
	e := m.app.wizard
	st := e.State()

	modes := make([]string, 0, len(model.TargetModes))
	for _, mode := range model.TargetModes {
		label := string(mode)
		if mode == st.TargetMode {
			label = manageSelStyle.Render(label)
		} else {
			label = manageMutedStyle.Render(label)
		}
		modes = append(modes, label)
	}
	lines := []string{"Target  " + strings.Join(modes, "  "), ""}

	switch st.TargetMode {
	case model.TargetNamespace:
		linked := m.app.fleet.LinkedHubs()
		totals := model.TotalsOf(linked)
		lines = append(lines,
			fmt.Sprintf("Whole namespace %s", m.app.fleet.Namespace()),
			fmt.Sprintf("%s devices across %d linked hubs", formatCount(totals.Devices), len(linked)),
		)
		return strings.Join(lines, "\n"), "left/right: target mode | enter: continue | esc: back"
	case model.TargetGroup:
		groups := m.app.groups.List()
		if len(groups) == 0 {
			lines = append(lines, manageMutedStyle.Render("No saved groups. Switch to custom to define one."))
		}
		for i, g := range groups {
			mark := "  "
			if g.ID == st.GroupID {
				mark = "* "
			}
			line := fmt.Sprintf("%s%-28s %10s  %s", mark, truncateRunes(g.Name, 28), formatCount(g.DeviceCount), truncateRunes(g.ConditionText, maxInt(width-46, 10)))
			if i == m.wiz.cursor {
				line = manageSelStyle.Render(line)
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), "left/right: target mode | up/down: select group | enter: continue | esc: back"
	}

	lines = append(lines,
		m.viewInputs([]string{"Condition"}),
		fmt.Sprintf("  %-14s %s", "Priority", defaultIfEmpty(st.Priority, "(none)")),
		"",
		m.renderEstimate(st.Condition),
	)
	if m.wiz.naming != nil {
		lines = append(lines, "", "Save as group: "+m.wiz.naming.View())
		return strings.Join(lines, "\n"), "enter: save group | esc: cancel"
	}
	return strings.Join(lines, "\n"), "left/right: target mode | tab: priority | ctrl+g: save as group | enter: continue | esc: back"
}

func (m manageModel) renderEstimate(condition string) string {
	snap := m.app.wizard.Estimate()
	switch {
	case strings.TrimSpace(condition) == "":
		return manageMutedStyle.Render("Type a condition to estimate its reach.")
	case snap.State == estimate.StateEstimating:
		return manageWarnStyle.Render("Estimating...")
	case snap.Ready(condition):
		r := snap.Result
		return manageOKStyle.Render(fmt.Sprintf("~%s devices, %s assets", formatCount(r.DeviceCount), formatCount(r.AssetCount))) +
			manageMutedStyle.Render("  hubs: "+strings.Join(r.Hubs, ", "))
	default:
		return manageMutedStyle.Render("No estimate yet.")
	}
}

func (m manageModel) viewDetailsStep() (string, string) {
	st := m.app.wizard.State()
	if st.JobType == model.JobTypeManagementAction {
		return m.viewInputs([]string{"Action", "JSON payload"}), "tab: next field | enter: continue | esc: back"
	}

	lines := []string{}
	if len(st.Properties) == 0 {
		lines = append(lines, manageMutedStyle.Render("No property edits yet."))
	}
	for _, p := range st.Properties {
		value := p.Value
		if strings.TrimSpace(value) == "" {
			value = manageErrorStyle.Render("(empty)")
		}
		lines = append(lines, fmt.Sprintf("  %s = %s", p.Field, value))
	}
	lines = append(lines, "", m.viewInputs([]string{"Field", "Value"}))
	return strings.Join(lines, "\n"), "tab: next field | enter: add edit (empty field continues) | ctrl+d: remove | esc: back"
}

func (m manageModel) viewReviewStep(width int) string {
	st := m.app.wizard.State()
	lines := []string{
		kv("type", st.JobType.Label()),
		kv("name", st.Name),
	}
	if strings.TrimSpace(st.Description) != "" {
		lines = append(lines, kv("description", st.Description))
	}
	if st.CopySource != "" {
		lines = append(lines, kv("copied from", st.CopySource))
	}

	switch st.TargetMode {
	case model.TargetGroup:
		name := st.GroupID
		if g, ok := m.app.groups.FindByID(st.GroupID); ok {
			name = fmt.Sprintf("%s (%s devices)", g.Name, formatCount(g.DeviceCount))
		}
		lines = append(lines, kv("target", "group "+name))
	case model.TargetCustom:
		lines = append(lines, kv("target", "custom "+st.Condition), kv("priority", st.Priority))
		lines = append(lines, m.renderEstimate(st.Condition))
	default:
		lines = append(lines, kv("target", "namespace "+m.app.fleet.Namespace()))
	}

	for _, p := range st.Properties {
		lines = append(lines, kv("set", p.Field+" = "+p.Value))
	}
	if st.Action != nil {
		lines = append(lines, kv("action", st.Action.ActionName), kv("payload", st.Action.JSONPayload))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], width)
	}
	return strings.Join(lines, "\n")
}
