package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CurrentTimeTool reports the current time, optionally in a named zone.
type CurrentTimeTool struct {
	now func() time.Time
}

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Europe/Berlin"`
}

// NewCurrentTimeTool creates the current_time tool.
func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Name() string { return "current_time" }
func (t *CurrentTimeTool) Category() string { return "utility" }
func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific timezone."
}
func (t *CurrentTimeTool) RequiresConfirmation() bool { return false }

func (t *CurrentTimeTool) Schema() json.RawMessage {
	return SchemaOf(currentTimeArgs{})
}

func (t *CurrentTimeTool) Execute(_ context.Context, args json.RawMessage) (*Result, error) {
	var params currentTimeArgs
	if err := DecodeArgs(args, &params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	now := t.now()
	if params.Timezone != "" {
		loc, err := time.LoadLocation(params.Timezone)
		if err != nil {
			return &Result{Content: fmt.Sprintf("unknown timezone %q", params.Timezone), IsError: true}, nil
		}
		now = now.In(loc)
	}
	return &Result{Content: now.Format("Monday, January 2, 2006 15:04:05 MST")}, nil
}
