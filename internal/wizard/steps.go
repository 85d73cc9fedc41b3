package wizard

import (
	"strings"

	"fleetjobs/internal/model"
)

type Step string

const (
	StepJobType Step = "job_type"
	StepBasics  Step = "basics"
	StepDetails Step = "details"
	StepTarget  Step = "target"
	StepReview  Step = "review"
)

func (s Step) Label() string {
	switch s {
	case StepJobType:
		return "Job type"
	case StepBasics:
		return "Basics"
	case StepDetails:
		return "Details"
	case StepTarget:
		return "Target"
	case StepReview:
		return "Review"
	default:
		return string(s)
	}
}

// StepsFor returns the ordered step sequence for a job type. The zero
// job type gets the short sequence.
func StepsFor(t model.JobType) []Step {
	if t.HasDetails() {
		return []Step{StepJobType, StepBasics, StepTarget, StepDetails, StepReview}
	}
	return []Step{StepJobType, StepBasics, StepTarget, StepReview}
}

// State is the staged input of one wizard run.
type State struct {
	JobType     model.JobType
	Name        string
	Description string

	// Properties is set for management updates, Action for management
	// actions. Other job types carry neither.
	Properties []model.PropertyEdit
	Action     *model.ActionInvocation

	TargetMode model.TargetMode
	GroupID    string
	Condition  string
	Priority   string

	CopySource string
	Picking    bool
}

func (s State) clone() State {
	out := s
	out.Properties = append([]model.PropertyEdit(nil), s.Properties...)
	if s.Action != nil {
		a := *s.Action
		out.Action = &a
	}
	return out
}

var validators = map[Step]func(State) bool{
	StepJobType: validJobType,
	StepBasics:  validBasics,
	StepDetails: validDetails,
	StepTarget:  validTarget,
	StepReview:  func(State) bool { return true },
}

// Validate reports whether step is complete for state. Unknown steps
// never validate.
func Validate(step Step, state State) bool {
	fn, ok := validators[step]
	if !ok {
		return false
	}
	return fn(state)
}

func validJobType(s State) bool {
	if s.Picking {
		return false
	}
	_, err := model.ParseJobType(string(s.JobType))
	return err == nil
}

func validBasics(s State) bool {
	return strings.TrimSpace(s.Name) != ""
}

func validDetails(s State) bool {
	switch s.JobType {
	case model.JobTypeManagementUpdate:
		if len(s.Properties) == 0 {
			return false
		}
		for _, p := range s.Properties {
			if strings.TrimSpace(p.Value) == "" {
				return false
			}
		}
		return true
	case model.JobTypeManagementAction:
		return s.Action != nil &&
			strings.TrimSpace(s.Action.ActionName) != "" &&
			strings.TrimSpace(s.Action.JSONPayload) != ""
	default:
		return false
	}
}

func validTarget(s State) bool {
	switch s.TargetMode {
	case model.TargetNamespace:
		return true
	case model.TargetGroup:
		return strings.TrimSpace(s.GroupID) != ""
	case model.TargetCustom:
		return strings.TrimSpace(s.Condition) != "" && strings.TrimSpace(s.Priority) != ""
	default:
		return false
	}
}
