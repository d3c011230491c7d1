package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// ToolName identifies a tool the chat model may call
type ToolName string

const (
	SetStroke         ToolName = "setStroke"
	SetStrokeWeight   ToolName = "setStrokeWeight"
	SetStrokeBy       ToolName = "setStrokeBy"
	SetFill           ToolName = "setFill"
	SetFillOpacity    ToolName = "setFillOpacity"
	SetFillBy         ToolName = "setFillBy"
	SetSchoolType     ToolName = "setSchoolType"
	SetSchoolCategory ToolName = "setSchoolCategory"
	SetLatLng         ToolName = "setLatLng"
	QueryDatabase     ToolName = "queryDatabase"
)

type mutation func(flags *PendingUIFlags, args map[string]any)

// setWhenPresent copies one argument into a flag. Values are not checked
// beyond presence.
func setWhenPresent(key string, pick func(*PendingUIFlags) *Flag) mutation {
	return func(flags *PendingUIFlags, args map[string]any) {
		if v, ok := args[key]; ok {
			pick(flags).set(v)
		}
	}
}

// mutations maps every UI tool to its flag change. Tools missing here are
// passed through to the tool executor.
var mutations = map[ToolName]mutation{
	SetStroke:         setWhenPresent("color", func(f *PendingUIFlags) *Flag { return &f.StrokeColor }),
	SetStrokeWeight:   setWhenPresent("weight", func(f *PendingUIFlags) *Flag { return &f.StrokeWeight }),
	SetStrokeBy:       setWhenPresent("field", func(f *PendingUIFlags) *Flag { return &f.StrokeBy }),
	SetFill:           setWhenPresent("color", func(f *PendingUIFlags) *Flag { return &f.FillColor }),
	SetFillOpacity:    setWhenPresent("opacity", func(f *PendingUIFlags) *Flag { return &f.FillOpacity }),
	SetFillBy:         setWhenPresent("field", func(f *PendingUIFlags) *Flag { return &f.FillBy }),
	SetSchoolType:     setWhenPresent("schoolType", func(f *PendingUIFlags) *Flag { return &f.SchoolType }),
	SetSchoolCategory: setWhenPresent("schoolCategory", func(f *PendingUIFlags) *Flag { return &f.SchoolCategory }),
	SetLatLng: func(flags *PendingUIFlags, args map[string]any) {
		flags.LatLng.set(map[string]any{"lat": args["lat"], "lng": args["lng"]})
	},
}

func param(t schema.DataType, desc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: t, Desc: desc, Required: true}
}

const dataFields = "One of: enrollment_capacity, school_type, district, opened_on"

// toolInfos declares every tool offered to the chat model
var toolInfos = []*schema.ToolInfo{
	{
		Name: string(SetStroke),
		Desc: "Set the outline color of catchment polygons.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"color": param(schema.String, "CSS color or palette name, e.g. '#1f77b4' or 'viridis'"),
		}),
	},
	{
		Name: string(SetStrokeWeight),
		Desc: "Set the outline width of catchment polygons in pixels.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"weight": param(schema.Number, "Outline width in pixels, usually between 0.5 and 6"),
		}),
	},
	{
		Name: string(SetStrokeBy),
		Desc: "Color polygon outlines by a data field.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"field": param(schema.String, dataFields),
		}),
	},
	{
		Name: string(SetFill),
		Desc: "Set the fill color of catchment polygons.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"color": param(schema.String, "CSS color or palette name"),
		}),
	},
	{
		Name: string(SetFillOpacity),
		Desc: "Set the fill opacity of catchment polygons.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"opacity": param(schema.Number, "Opacity between 0 and 1"),
		}),
	},
	{
		Name: string(SetFillBy),
		Desc: "Fill polygons according to a data field.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"field": param(schema.String, dataFields),
		}),
	},
	{
		Name: string(SetSchoolType),
		Desc: "Show only catchments of one school type.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"schoolType": param(schema.String, "Primary, Secondary, All-through or Special"),
		}),
	},
	{
		Name: string(SetSchoolCategory),
		Desc: "Show only catchments of one school category.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"schoolCategory": param(schema.String, "School category, e.g. Academy or Community"),
		}),
	},
	{
		Name: string(SetLatLng),
		Desc: "Move the map center.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"lat": param(schema.Number, "Latitude in decimal degrees"),
			"lng": param(schema.Number, "Longitude in decimal degrees"),
		}),
	},
	{
		Name: string(QueryDatabase),
		Desc: "Answer a question about schools and catchments by querying the database. Returns rows and a short summary.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": param(schema.String, "The question in plain language"),
		}),
	},
}

// ToolInfos returns the declared tools
func ToolInfos() []*schema.ToolInfo {
	return toolInfos
}

// ToolExecutor runs tools that do not change UI flags
type ToolExecutor interface {
	Execute(ctx context.Context, name ToolName, arguments string) (string, error)
}

// Dispatcher applies tool calls to a turn's flags
type Dispatcher struct {
	Executor ToolExecutor
	Logger   *logrus.Logger
}

// NewDispatcher creates a dispatcher passing unknown tools to executor
func NewDispatcher(executor ToolExecutor, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{Executor: executor, Logger: logger}
}

// Dispatch handles one tool call and returns the text sent back to the model
func (d *Dispatcher) Dispatch(ctx context.Context, flags *PendingUIFlags, call schema.ToolCall) string {
	name := ToolName(call.Function.Name)

	mutate, ok := mutations[name]
	if !ok {
		if d.Executor == nil {
			return toolError(fmt.Errorf("unknown tool %q", name))
		}
		result, err := d.Executor.Execute(ctx, name, call.Function.Arguments)
		if err != nil {
			d.Logger.Warnf("Tool %s failed: %v", name, err)
			return toolError(err)
		}
		return result
	}

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			d.Logger.Warnf("Tool %s sent unreadable arguments: %v", name, err)
			return toolError(fmt.Errorf("arguments must be a JSON object: %w", err))
		}
	}

	mutate(flags, args)
	d.Logger.Debugf("Applied %s %s", name, call.Function.Arguments)
	return `{"status":"applied"}`
}

func toolError(err error) string {
	encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(encoded)
}
