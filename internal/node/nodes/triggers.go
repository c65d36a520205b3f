package nodes

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewManualTriggerNode)
	registry.Register(NewWebhookTriggerNode)
	registry.Register(NewScheduleTriggerNode)
}

// triggerExecute is the shared no-op behavior of every Trigger node:
// surface the caller-provided input, or synthesize a
// record carrying trigger metadata when none was given. A trigger with an
// upstream edge surfaces its main input under "input"; a source trigger
// surfaces the run's input (the "input" variable) as its output.
func triggerExecute(triggerType string, nodeCtx *contract.Context) *contract.Output {
	if input, ok := nodeCtx.MainInput(); ok {
		return contract.Success(map[string]interface{}{"input": input})
	}
	if v, ok := nodeCtx.GetVariable("input"); ok {
		if input, ok := v.(map[string]interface{}); ok {
			return contract.Success(input)
		}
	}
	return contract.Success(map[string]interface{}{
		"trigger_type": triggerType,
		"triggered_at": time.Now().UTC(),
	})
}

// --- Manual ---

type ManualTriggerNode struct{}

func NewManualTriggerNode() contract.Node { return &ManualTriggerNode{} }

func (n *ManualTriggerNode) TypeName() string            { return "manual_trigger" }
func (n *ManualTriggerNode) Category() contract.Category { return contract.CategoryTrigger }
func (n *ManualTriggerNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryGeneral
}
func (n *ManualTriggerNode) RequiredCredentialType() string { return "" }

func (n *ManualTriggerNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Manual Trigger",
		Description: "Starts a workflow run invoked directly by a caller",
		Category:    contract.CategoryTrigger,
		Subcategory: contract.SubcategoryGeneral,
		Version:     "1.0.0",
	}
}

func (n *ManualTriggerNode) ParameterSchema() map[string]interface{}      { return map[string]interface{}{} }
func (n *ManualTriggerNode) ValidateParameters(map[string]interface{}) error { return nil }

func (n *ManualTriggerNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return triggerExecute(n.TypeName(), nodeCtx), nil
}

// --- Webhook ---

type WebhookTriggerNode struct{}

func NewWebhookTriggerNode() contract.Node { return &WebhookTriggerNode{} }

func (n *WebhookTriggerNode) TypeName() string            { return "webhook_trigger" }
func (n *WebhookTriggerNode) Category() contract.Category { return contract.CategoryTrigger }
func (n *WebhookTriggerNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryGeneral
}
func (n *WebhookTriggerNode) RequiredCredentialType() string { return "" }

func (n *WebhookTriggerNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Webhook Trigger",
		Description: "Starts a workflow run from an inbound HTTP delivery",
		Category:    contract.CategoryTrigger,
		Subcategory: contract.SubcategoryGeneral,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "path", Type: "string", Required: true, Description: "HTTP path recorded for this trigger; the engine registers no route for it"},
			{Name: "method", Type: "select", Default: "POST", Options: []contract.PropertyOption{
				{Label: "POST", Value: "POST"}, {Label: "GET", Value: "GET"}, {Label: "PUT", Value: "PUT"},
			}},
		},
	}
}

func (n *WebhookTriggerNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"path":   map[string]interface{}{"type": "string", "required": true},
		"method": map[string]interface{}{"type": "string"},
	}
}

func (n *WebhookTriggerNode) ValidateParameters(params map[string]interface{}) error {
	path, _ := params["path"].(string)
	if path == "" {
		return fmt.Errorf("webhook_trigger: path is required")
	}
	return nil
}

func (n *WebhookTriggerNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return triggerExecute(n.TypeName(), nodeCtx), nil
}

// --- Schedule ---

// ScheduleTriggerNode is a representative integration-stub trigger: it
// validates a cron expression with robfig/cron/v3 but remains a
// structural no-op at
// Execute time, matching every other Trigger node. Nothing in this
// repository dispatches runs on the cron schedule: the node holds no
// scheduling loop, and no scheduler calls NextFire.
type ScheduleTriggerNode struct{}

func NewScheduleTriggerNode() contract.Node { return &ScheduleTriggerNode{} }

func (n *ScheduleTriggerNode) TypeName() string            { return "schedule_trigger" }
func (n *ScheduleTriggerNode) Category() contract.Category { return contract.CategoryTrigger }
func (n *ScheduleTriggerNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryGeneral
}
func (n *ScheduleTriggerNode) RequiredCredentialType() string { return "" }

func (n *ScheduleTriggerNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Schedule Trigger",
		Description: "Starts a workflow run on a cron schedule",
		Category:    contract.CategoryTrigger,
		Subcategory: contract.SubcategoryGeneral,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "cron_expression", Type: "string", Required: true, Description: "Standard 5-field cron expression"},
			{Name: "timezone", Type: "string", Default: "UTC"},
		},
	}
}

func (n *ScheduleTriggerNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"cron_expression": map[string]interface{}{"type": "string", "required": true},
		"timezone":        map[string]interface{}{"type": "string"},
	}
}

func (n *ScheduleTriggerNode) ValidateParameters(params map[string]interface{}) error {
	expr, _ := params["cron_expression"].(string)
	if expr == "" {
		return fmt.Errorf("schedule_trigger: cron_expression is required")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("schedule_trigger: invalid cron_expression: %w", err)
	}
	return nil
}

func (n *ScheduleTriggerNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	return triggerExecute(n.TypeName(), nodeCtx), nil
}

// NextFire computes the next time expr will fire after from. It has no
// caller in this repository.
func NextFire(expr string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
