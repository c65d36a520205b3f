package nodes

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewEmailNode)
}

// EmailNode sends a plain-text email over SMTP.
type EmailNode struct{}

func NewEmailNode() contract.Node { return &EmailNode{} }

func (n *EmailNode) TypeName() string            { return "email" }
func (n *EmailNode) Category() contract.Category { return contract.CategoryAction }
func (n *EmailNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryCommunication
}
func (n *EmailNode) RequiredCredentialType() string { return "smtp" }

func (n *EmailNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Send Email",
		Description: "Send an email over SMTP",
		Category:    contract.CategoryAction,
		Subcategory: contract.SubcategoryCommunication,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "smtp_host", Type: "string", Required: true},
			{Name: "smtp_port", Type: "number", Default: 587},
			{Name: "username", Type: "string", Required: true},
			{Name: "password", Type: "string", Required: true},
			{Name: "from", Type: "string", Required: true},
			{Name: "to", Type: "string", Required: true, Description: "Comma-separated recipients"},
			{Name: "subject", Type: "string", Required: true},
			{Name: "body", Type: "string", Required: true},
		},
		RequiredCredentialType: "smtp",
	}
}

func (n *EmailNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"smtp_host": map[string]interface{}{"type": "string", "required": true},
		"from":      map[string]interface{}{"type": "string", "required": true},
		"to":        map[string]interface{}{"type": "string", "required": true},
		"subject":   map[string]interface{}{"type": "string", "required": true},
		"body":      map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *EmailNode) ValidateParameters(params map[string]interface{}) error {
	for _, field := range []string{"smtp_host", "username", "password", "from", "to", "subject", "body"} {
		if s, _ := params[field].(string); s == "" {
			return fmt.Errorf("email: %s is required", field)
		}
	}
	return nil
}

func (n *EmailNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	host, _ := params["smtp_host"].(string)
	port, _ := params["smtp_port"].(float64)
	if port == 0 {
		port = 587
	}
	username, _ := params["username"].(string)
	password, _ := params["password"].(string)
	from, _ := params["from"].(string)
	to, _ := params["to"].(string)
	subject, _ := params["subject"].(string)
	body, _ := params["body"].(string)

	recipients := strings.Split(to, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)

	addr := fmt.Sprintf("%s:%d", host, int(port))
	auth := smtp.PlainAuth("", username, password, host)

	if err := smtp.SendMail(addr, auth, from, recipients, []byte(message)); err != nil {
		return contract.Failure(fmt.Sprintf("email: %v", err)), nil
	}

	return contract.Success(map[string]interface{}{
		"sent_to": recipients,
	}), nil
}
