package models

// StepKind identifies what a plan step executes.
type StepKind string

const (
	StepTool       StepKind = "tool"
	StepSkill      StepKind = "skill"
	StepMemory     StepKind = "memory"
	StepCompletion StepKind = "completion"
)

// Step is a single unit of execution within a Plan.
type Step struct {
	Index     int            `json:"index"`
	Kind      StepKind       `json:"kind"`
	Target    string         `json:"target,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// Plan is an ordered sequence of steps produced by the planner.
// A valid plan ends with exactly one completion step.
type Plan struct {
	Steps []Step `json:"steps"`
}

// CompletionLast reports whether the final step is a completion step and no
// other step is.
func (p *Plan) CompletionLast() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for i, s := range p.Steps {
		if s.Kind == StepCompletion && i != len(p.Steps)-1 {
			return false
		}
	}
	return p.Steps[len(p.Steps)-1].Kind == StepCompletion
}

// OutcomeKind classifies a step observation.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeRetry   OutcomeKind = "retry"
	OutcomeReplan  OutcomeKind = "replan"
	OutcomeAbort   OutcomeKind = "abort"
)

// StepOutcome is the supervisor's verdict for a non-completion step.
type StepOutcome struct {
	Kind OutcomeKind `json:"kind"`

	// Observation is the final observation for success outcomes.
	Observation string `json:"observation,omitempty"`

	// Feedback explains retry/replan outcomes and is fed back to the
	// planner or the retried step.
	Feedback string `json:"feedback,omitempty"`

	// Reason explains abort outcomes.
	Reason string `json:"reason,omitempty"`
}
