package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewSlackNode)
}

// SlackNode posts a message to a Slack incoming webhook.
type SlackNode struct {
	client *http.Client
}

func NewSlackNode() contract.Node {
	return &SlackNode{client: &http.Client{Timeout: 15 * time.Second}}
}

func (n *SlackNode) TypeName() string            { return "slack" }
func (n *SlackNode) Category() contract.Category { return contract.CategoryAction }
func (n *SlackNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryCommunication
}
func (n *SlackNode) RequiredCredentialType() string { return "slack_webhook" }

func (n *SlackNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Slack",
		Description: "Post a message to a Slack channel via an incoming webhook",
		Category:    contract.CategoryAction,
		Subcategory: contract.SubcategoryCommunication,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "webhook_url", Type: "string", Required: true},
			{Name: "text", Type: "string", Required: true},
			{Name: "channel", Type: "string", Description: "Overrides the webhook's default channel"},
		},
		RequiredCredentialType: "slack_webhook",
	}
}

func (n *SlackNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"webhook_url": map[string]interface{}{"type": "string", "required": true},
		"text":        map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *SlackNode) ValidateParameters(params map[string]interface{}) error {
	if url, _ := params["webhook_url"].(string); url == "" {
		return fmt.Errorf("slack: webhook_url is required")
	}
	if text, _ := params["text"].(string); text == "" {
		return fmt.Errorf("slack: text is required")
	}
	return nil
}

func (n *SlackNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	webhookURL, _ := params["webhook_url"].(string)
	text, _ := params["text"].(string)

	payload := map[string]interface{}{"text": text}
	if channel, ok := params["channel"].(string); ok && channel != "" {
		payload["channel"] = channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("slack: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return contract.Failure(fmt.Sprintf("slack: %v", err)), nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return contract.Failure(fmt.Sprintf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))), nil
	}

	return contract.Success(map[string]interface{}{
		"status_code": resp.StatusCode,
	}), nil
}
