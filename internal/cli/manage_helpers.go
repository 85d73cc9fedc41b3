package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fleetjobs/internal/jobview"
	"fleetjobs/internal/model"
)

var (
	manageTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	manageMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	manageErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	manageOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	manageWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	managePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	manageSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

// Job type colors only matter to the terminal views.
var jobTypeColors = map[model.JobType]lipgloss.Color{
	model.JobTypeSoftwareUpdate:   lipgloss.Color("39"),
	model.JobTypeCertRevocation:   lipgloss.Color("177"),
	model.JobTypeManagementUpdate: lipgloss.Color("80"),
	model.JobTypeManagementAction: lipgloss.Color("214"),
}

func jobTypeBadge(t model.JobType) string {
	c, ok := jobTypeColors[t]
	if !ok {
		return t.Label()
	}
	return lipgloss.NewStyle().Foreground(c).Render(t.Label())
}

func statusStyle(s model.JobStatus) lipgloss.Style {
	switch s {
	case model.StatusRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	case model.StatusCompleted:
		return manageOKStyle
	case model.StatusFailed:
		return manageErrorStyle
	default:
		return manageMutedStyle
	}
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeveritySuccess:
		return manageOKStyle
	case model.SeverityError:
		return manageErrorStyle
	case model.SeverityWarn:
		return manageWarnStyle
	case model.SeverityStart:
		return manageTitleStyle
	default:
		return manageMutedStyle
	}
}

var bucketStyles = map[jobview.Bucket]lipgloss.Style{
	jobview.BucketSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	jobview.BucketFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	jobview.BucketPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
}

// ringBar flattens the progress ring into a bar of width cells. Gaps
// between arcs are dropped.
func ringBar(segments []jobview.Segment, width int) string {
	var arcs float64
	for _, s := range segments {
		arcs += s.Length
	}
	if arcs <= 0 || width <= 0 {
		return manageMutedStyle.Render(strings.Repeat("·", maxInt(width, 0)))
	}

	var b strings.Builder
	used := 0
	for i, s := range segments {
		if s.Length <= 0 {
			continue
		}
		n := int(s.Length / arcs * float64(width))
		if i == len(segments)-1 {
			n = width - used
		}
		n = clampInt(n, 0, width-used)
		used += n
		b.WriteString(bucketStyles[s.Bucket].Render(strings.Repeat("█", n)))
	}
	if used < width {
		b.WriteString(strings.Repeat(" ", width-used))
	}
	return b.String()
}

func listWindow(total, cursor, maxRows int) (int, int) {
	if total <= maxRows {
		return 0, total
	}
	half := maxRows / 2
	start := cursor - half
	if start < 0 {
		start = 0
	}
	end := start + maxRows
	if end > total {
		end = total
		start = end - maxRows
	}
	return start, end
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

func wrapOrTrim(s string, width int) string {
	if width <= 0 {
		return s
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncateRunes(s, width)
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
