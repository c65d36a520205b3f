package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/linkflow-ai/workflow-engine/internal/execution/webhookwait"
	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewWaitForWebhookNode)
}

// WaitForWebhookNode suspends a run until a matching inbound webhook
// delivery arrives, or until it times out.
type WaitForWebhookNode struct{}

func NewWaitForWebhookNode() contract.Node { return &WaitForWebhookNode{} }

func (n *WaitForWebhookNode) TypeName() string            { return "wait_for_webhook" }
func (n *WaitForWebhookNode) Category() contract.Category { return contract.CategoryControl }
func (n *WaitForWebhookNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryFlowControl
}
func (n *WaitForWebhookNode) RequiredCredentialType() string { return "" }

func (n *WaitForWebhookNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Wait for Webhook",
		Description: "Suspend the run until an external HTTP delivery resumes it, or it times out",
		Category:    contract.CategoryControl,
		Subcategory: contract.SubcategoryFlowControl,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "wait_id", Type: "string"},
			{Name: "timeout_seconds", Type: "number", Default: 3600},
			{Name: "webhook_path", Type: "string"},
			{Name: "expected_schema", Type: "json"},
		},
	}
}

func (n *WaitForWebhookNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"wait_id":         map[string]interface{}{"type": "string"},
		"timeout_seconds": map[string]interface{}{"type": "number", "min": 1, "max": 86400},
		"webhook_path":    map[string]interface{}{"type": "string"},
		"expected_schema": map[string]interface{}{"type": "any"},
	}
}

func (n *WaitForWebhookNode) ValidateParameters(params map[string]interface{}) error {
	if v, ok := params["timeout_seconds"]; ok {
		sec, ok := asNumber(v)
		if !ok || sec < 1 || sec > 86400 {
			return fmt.Errorf("wait_for_webhook: timeout_seconds must be 1-86400")
		}
	}
	return nil
}

func (n *WaitForWebhookNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	waitID, _ := params["wait_id"].(string)
	if waitID == "" {
		waitID = uuid.New().String()
	}
	timeoutSeconds := intParam(params, "timeout_seconds", 3600)

	webhookPath, _ := params["webhook_path"].(string)
	if webhookPath == "" {
		webhookPath = fmt.Sprintf("/webhook/resume/%s", waitID)
	}

	createdAt := time.Now().UTC()
	expiresAt := createdAt.Add(time.Duration(timeoutSeconds) * time.Second)

	payload, timedOut := webhookwait.Global.Await(waitID, time.Duration(timeoutSeconds)*time.Second)
	if timedOut {
		return nil, fmt.Errorf("WebhookTimeout: wait_id %q exceeded %ds", waitID, timeoutSeconds)
	}

	result := map[string]interface{}{
		"wait_id":         waitID,
		"webhook_url":     webhookPath,
		"timeout_seconds": timeoutSeconds,
		"status":          "resumed",
		"created_at":      createdAt,
		"expires_at":      expiresAt,
		"execution_id":    nodeCtx.ExecutionID,
		"node_id":         nodeCtx.NodeID,
	}
	for k, v := range payload {
		result[k] = v
	}
	return contract.Success(result), nil
}
