package agent

import (
	"fmt"

	"github.com/conductor-ai/conductor/internal/skills"
	"github.com/conductor-ai/conductor/internal/tools"
	"github.com/conductor-ai/conductor/pkg/models"
)

// PlanSupervisor validates plans structurally before any step runs. It needs
// no LLM: every check is mechanical.
type PlanSupervisor struct {
	skills *skills.Registry
}

// NewPlanSupervisor creates a validator over the loaded skills.
func NewPlanSupervisor(skillRegistry *skills.Registry) *PlanSupervisor {
	return &PlanSupervisor{skills: skillRegistry}
}

// Validate returns nil for an executable plan, or a PLAN_INVALID error naming
// the first violation. The registry is the request's permission-filtered
// clone: a tool absent from it is invalid here even if it exists globally.
func (s *PlanSupervisor) Validate(plan *models.Plan, registry *tools.Registry) error {
	if plan == nil || len(plan.Steps) == 0 {
		return s.invalid("plan is empty")
	}
	if !plan.CompletionLast() {
		return s.invalid("plan must end with exactly one completion step")
	}

	for _, step := range plan.Steps {
		switch step.Kind {
		case models.StepTool:
			tool, ok := registry.Get(step.Target)
			if !ok {
				return s.invalid(fmt.Sprintf("unknown tool %q in step %d", step.Target, step.Index))
			}
			if err := tools.ValidateArgs(tool.Schema(), step.Args); err != nil {
				return s.invalid(fmt.Sprintf("step %d arguments do not fit %q: %v", step.Index, step.Target, err))
			}
		case models.StepSkill:
			if s.skills == nil {
				return s.invalid(fmt.Sprintf("no skills are loaded; step %d cannot run %q", step.Index, step.Target))
			}
			if _, err := s.skills.Get(step.Target); err != nil {
				return s.invalid(fmt.Sprintf("unknown skill %q in step %d", step.Target, step.Index))
			}
		case models.StepMemory:
			query, ok := step.Args["query"].(string)
			if !ok || query == "" {
				return s.invalid(fmt.Sprintf("memory step %d needs a string \"query\" argument", step.Index))
			}
		case models.StepCompletion:
			// Position already checked by CompletionLast.
		default:
			return s.invalid(fmt.Sprintf("step %d has unknown kind %q", step.Index, step.Kind))
		}
	}
	return nil
}

func (s *PlanSupervisor) invalid(reason string) error {
	return newError(KindValidation, CodePlanInvalid, reason, nil)
}
