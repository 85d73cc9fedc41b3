package cli

import (
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/model"
	"fleetjobs/internal/wizard"
)

func newTestApp(t *testing.T) (*app, *clock.FakeClock) {
	t.Helper()
	t.Setenv("FLEETJOBS_WIZARD_ESTIMATE_DELAY", "900ms")
	t.Setenv("FLEETJOBS_FLEET_HUB_LINK_DELAY", "3s")
	t.Setenv("FLEETJOBS_OPERATOR", "ops@contoso")

	fake := clock.Fake(time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC))
	a, err := openApp(&commonFlags{}, appOptions{LogFallback: io.Discard, Clock: fake})
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a, fake
}

func keyOf(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m manageModel, keys ...tea.KeyMsg) manageModel {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		mm, ok := next.(manageModel)
		if !ok {
			t.Fatalf("unexpected model type %T", next)
		}
		m = mm
	}
	return m
}

func rowIDs(m manageModel) []string {
	out := make([]string, 0, len(m.rows))
	for _, j := range m.rows {
		out = append(out, j.ID)
	}
	return out
}

func TestManageSortToggle(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, typed("2"))
	want := []string{"job-1040", "job-1038", "job-1043", "job-1036", "job-1042"}
	if got := strings.Join(rowIDs(m), ","); got != strings.Join(want, ",") {
		t.Fatalf("name asc = %s, want %s", got, strings.Join(want, ","))
	}

	m = press(t, m, typed("2"))
	want = []string{"job-1042", "job-1036", "job-1043", "job-1038", "job-1040"}
	if got := strings.Join(rowIDs(m), ","); got != strings.Join(want, ",") {
		t.Fatalf("name desc = %s, want %s", got, strings.Join(want, ","))
	}
	if !strings.Contains(m.View(), "sort: name desc") {
		t.Fatal("expected sort state in view")
	}
}

func TestManageFiltersAndSearch(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, typed("s"))
	if got := rowIDs(m); len(got) != 1 || got[0] != "job-1042" {
		t.Fatalf("running filter rows = %v", got)
	}

	m = press(t, m, typed("x"), typed("/"), typed("pitch"), keyOf(tea.KeyEnter))
	if m.mode != manageModeBrowse {
		t.Fatalf("expected browse mode after search, got %v", m.mode)
	}
	if got := rowIDs(m); len(got) != 1 || got[0] != "job-1040" {
		t.Fatalf("search rows = %v", got)
	}

	m = press(t, m, typed("x"), typed("t"))
	for _, j := range m.rows {
		if j.Type != model.JobTypes[0].Type {
			t.Fatalf("type filter admitted %s (%s)", j.ID, j.Type)
		}
	}
	if len(m.rows) != 2 {
		t.Fatalf("expected 2 software updates, got %v", rowIDs(m))
	}
}

func TestManageDetailView(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, keyOf(tea.KeyDown), keyOf(tea.KeyEnter))
	if m.mode != manageModeDetail || m.detailID != "job-1042" {
		t.Fatalf("expected detail of job-1042, got mode=%v id=%q", m.mode, m.detailID)
	}
	view := m.View()
	for _, want := range []string{"Turbine firmware 3.2.1", "hub-eu-west", "Timeline"} {
		if !strings.Contains(view, want) {
			t.Fatalf("detail view missing %q", want)
		}
	}

	m = press(t, m, keyOf(tea.KeyEsc))
	if m.mode != manageModeBrowse {
		t.Fatalf("expected browse after esc, got %v", m.mode)
	}
}

func TestManageWizardCreatesNamespaceJob(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, typed("n"))
	if m.mode != manageModeWizard {
		t.Fatalf("expected wizard mode, got %v", m.mode)
	}
	m = press(t, m, keyOf(tea.KeyEnter))
	if got := a.wizard.CurrentStep(); got != wizard.StepBasics {
		t.Fatalf("step = %s, want basics", got)
	}

	m = press(t, m, keyOf(tea.KeyEnter))
	if m.wiz.err == "" || a.wizard.CurrentStep() != wizard.StepBasics {
		t.Fatal("expected blank name to block basics")
	}

	m = press(t, m, typed("Firmware 3.3 rollout"), keyOf(tea.KeyEnter), keyOf(tea.KeyEnter))
	if got := a.wizard.CurrentStep(); got != wizard.StepReview {
		t.Fatalf("step = %s, want review", got)
	}
	if !strings.Contains(m.View(), "namespace contoso-wind") {
		t.Fatal("expected namespace target in review")
	}

	m = press(t, m, keyOf(tea.KeyEnter))
	if m.mode != manageModeBrowse || !strings.HasPrefix(m.statusMessage, "job created: ") {
		t.Fatalf("expected browse with created status, got mode=%v status=%q", m.mode, m.statusMessage)
	}
	id := strings.TrimPrefix(m.statusMessage, "job created: ")
	job, ok := a.jobs.FindByID(id)
	if !ok {
		t.Fatalf("created job %s not in store", id)
	}
	if job.Type != model.JobTypeSoftwareUpdate || job.Status != model.StatusRunning {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.TargetDeviceCount != 12847 || job.CreatedBy != "ops@contoso" {
		t.Fatalf("target=%d created_by=%q", job.TargetDeviceCount, job.CreatedBy)
	}
	if len(m.jobs) != 6 || m.rows[m.cursor].ID != id {
		t.Fatal("expected list reloaded with cursor on the new job")
	}
}

func TestManageWizardCustomTargetWithEstimate(t *testing.T) {
	a, fake := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m,
		typed("n"),
		keyOf(tea.KeyDown), keyOf(tea.KeyEnter), // certificate revocation
		typed("Revoke EU turbine certs"), keyOf(tea.KeyEnter),
		keyOf(tea.KeyRight), keyOf(tea.KeyRight),
	)
	if got := a.wizard.State().TargetMode; got != model.TargetCustom {
		t.Fatalf("target mode = %s, want custom", got)
	}

	next, cmd := m.Update(typed("turbines hub:hub-eu-*"))
	m = next.(manageModel)
	if cmd == nil {
		t.Fatal("expected estimate poll command")
	}
	snap := a.wizard.Estimate()
	if !strings.Contains(m.View(), "Estimating") {
		t.Fatal("expected estimating indicator")
	}

	fake.Advance(900 * time.Millisecond)
	next, cmd = m.Update(estimateTickMsg{gen: snap.Generation})
	m = next.(manageModel)
	if cmd != nil {
		t.Fatal("expected polling to stop once the estimate is ready")
	}
	snap = a.wizard.Estimate()
	if !snap.Ready("turbines hub:hub-eu-*") {
		t.Fatalf("estimate state = %s", snap.State)
	}
	if strings.Join(snap.Result.Hubs, ",") != "hub-eu-west,hub-eu-north" {
		t.Fatalf("estimate hubs = %v", snap.Result.Hubs)
	}

	m = press(t, m, keyOf(tea.KeyTab))
	if got := a.wizard.State().Priority; got != model.PriorityHigh {
		t.Fatalf("priority = %q, want high", got)
	}

	m = press(t, m, keyOf(tea.KeyCtrlG), typed("EU turbines"), keyOf(tea.KeyEnter))
	if !strings.HasPrefix(m.statusMessage, "group saved: EU turbines") {
		t.Fatalf("status = %q", m.statusMessage)
	}
	if got := len(a.groups.List()); got != 3 {
		t.Fatalf("groups = %d, want 3", got)
	}

	m = press(t, m, keyOf(tea.KeyEnter), keyOf(tea.KeyEnter))
	id := strings.TrimPrefix(m.statusMessage, "job created: ")
	job, ok := a.jobs.FindByID(id)
	if !ok {
		t.Fatalf("created job missing, status %q", m.statusMessage)
	}
	if job.TargetMode != model.TargetCustom || job.TargetDeviceCount != snap.Result.DeviceCount {
		t.Fatalf("unexpected target %s/%d", job.TargetMode, job.TargetDeviceCount)
	}
	sum := 0
	for _, h := range job.HubProgress {
		sum += h.Total
	}
	if sum != job.TargetDeviceCount || len(job.HubProgress) == 0 {
		t.Fatalf("hub totals %d across %d hubs, want %d", sum, len(job.HubProgress), job.TargetDeviceCount)
	}
}

func TestManageWizardPropertyDetails(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m,
		typed("n"),
		keyOf(tea.KeyDown), keyOf(tea.KeyDown), keyOf(tea.KeyEnter), // property update
		typed("Telemetry 30s"), keyOf(tea.KeyEnter),
		keyOf(tea.KeyEnter), // namespace target
	)
	if got := a.wizard.CurrentStep(); got != wizard.StepDetails {
		t.Fatalf("step = %s, want details", got)
	}

	m = press(t, m, keyOf(tea.KeyEnter))
	if a.wizard.CurrentStep() != wizard.StepDetails || m.wiz.err == "" {
		t.Fatal("expected details to require a property")
	}

	m = press(t, m,
		typed("telemetry.interval"), keyOf(tea.KeyTab), typed("30s"), keyOf(tea.KeyEnter),
		typed("telemetry.batch"), keyOf(tea.KeyTab), typed("64"), keyOf(tea.KeyEnter),
		keyOf(tea.KeyCtrlD),
	)
	props := a.wizard.State().Properties
	if len(props) != 1 || props[0].Field != "telemetry.interval" || props[0].Value != "30s" {
		t.Fatalf("properties = %+v", props)
	}

	m = press(t, m, keyOf(tea.KeyEnter))
	if got := a.wizard.CurrentStep(); got != wizard.StepReview {
		t.Fatalf("step = %s, want review", got)
	}
	if !strings.Contains(m.View(), "telemetry.interval = 30s") {
		t.Fatal("expected property in review")
	}
}

func TestManageCopyFromDetail(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m,
		keyOf(tea.KeyDown), keyOf(tea.KeyDown), keyOf(tea.KeyDown),
		keyOf(tea.KeyEnter), typed("c"),
	)
	if m.mode != manageModeWizard {
		t.Fatalf("expected wizard mode, got %v", m.mode)
	}
	if got := a.wizard.CurrentStep(); got != wizard.StepBasics {
		t.Fatalf("step = %s, want basics", got)
	}
	st := a.wizard.State()
	if st.Name != "Revoke gateway certificates (copy)" || st.CopySource != "job-1038" {
		t.Fatalf("copied state = %+v", st)
	}
	if st.TargetMode != model.TargetGroup || st.GroupID != "grp-eu-gateways" {
		t.Fatalf("copied target = %s/%s", st.TargetMode, st.GroupID)
	}
	if got := m.wiz.inputs[0].Value(); got != st.Name {
		t.Fatalf("name input = %q", got)
	}
}

func TestManageCopyPickerFromJobTypeStep(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, typed("n"))
	for range model.JobTypes {
		m = press(t, m, keyOf(tea.KeyDown))
	}
	m = press(t, m, keyOf(tea.KeyEnter))
	if !a.wizard.Picking() {
		t.Fatal("expected copy picker open")
	}

	m = press(t, m, keyOf(tea.KeyEsc))
	if a.wizard.Picking() || m.mode != manageModeWizard {
		t.Fatal("expected esc to leave the picker only")
	}

	for range model.JobTypes {
		m = press(t, m, keyOf(tea.KeyDown))
	}
	m = press(t, m, keyOf(tea.KeyEnter), keyOf(tea.KeyDown), keyOf(tea.KeyEnter))
	if got := a.wizard.State().CopySource; got != "job-1042" {
		t.Fatalf("copy source = %q, want job-1042", got)
	}
}

func TestManageEscFromFirstStepLeavesWizard(t *testing.T) {
	a, _ := newTestApp(t)
	m := newManageModel(a)

	m = press(t, m, typed("n"), keyOf(tea.KeyEnter), keyOf(tea.KeyEsc))
	if m.mode != manageModeWizard || a.wizard.Index() != 0 {
		t.Fatalf("expected wizard at step 0, got mode=%v index=%d", m.mode, a.wizard.Index())
	}
	m = press(t, m, keyOf(tea.KeyEsc))
	if m.mode != manageModeBrowse || m.wiz != nil {
		t.Fatal("expected esc on first step to close the wizard")
	}
}
