package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewHTTPRequestNode)
}

// HTTPRequestNode calls an external HTTP endpoint and surfaces the
// response (or the error) as its output.
type HTTPRequestNode struct {
	client *http.Client
}

func NewHTTPRequestNode() contract.Node {
	return &HTTPRequestNode{client: &http.Client{Timeout: 30 * time.Second}}
}

func (n *HTTPRequestNode) TypeName() string            { return "http_request" }
func (n *HTTPRequestNode) Category() contract.Category { return contract.CategoryAction }
func (n *HTTPRequestNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryGeneral
}
func (n *HTTPRequestNode) RequiredCredentialType() string { return "" }

func (n *HTTPRequestNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "HTTP Request",
		Description: "Make an HTTP request to an external API",
		Category:    contract.CategoryAction,
		Subcategory: contract.SubcategoryGeneral,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "method", Type: "select", Required: true, Default: "GET", Options: []contract.PropertyOption{
				{Label: "GET", Value: "GET"}, {Label: "POST", Value: "POST"}, {Label: "PUT", Value: "PUT"},
				{Label: "PATCH", Value: "PATCH"}, {Label: "DELETE", Value: "DELETE"},
			}},
			{Name: "url", Type: "string", Required: true},
			{Name: "headers", Type: "json"},
			{Name: "query", Type: "json"},
			{Name: "body", Type: "json"},
			{Name: "timeout_seconds", Type: "number", Default: 30},
		},
	}
}

func (n *HTTPRequestNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"method": map[string]interface{}{"type": "string", "required": true},
		"url":    map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *HTTPRequestNode) ValidateParameters(params map[string]interface{}) error {
	urlStr, _ := params["url"].(string)
	if urlStr == "" {
		return fmt.Errorf("http_request: url is required")
	}
	if _, err := url.Parse(urlStr); err != nil {
		return fmt.Errorf("http_request: invalid url: %w", err)
	}
	method, _ := params["method"].(string)
	switch strings.ToUpper(method) {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "":
	default:
		return fmt.Errorf("http_request: unsupported method %q", method)
	}
	return nil
}

func (n *HTTPRequestNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	method, _ := params["method"].(string)
	if method == "" {
		method = "GET"
	}
	rawURL, _ := params["url"].(string)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	if query, ok := params["query"].(map[string]interface{}); ok {
		q := parsed.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		parsed.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if body, ok := params["body"]; ok && body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("http_request: encoding body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), parsed.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	client := n.client
	if secs, ok := asNumber(params["timeout_seconds"]); ok && secs > 0 {
		client = &http.Client{Timeout: time.Duration(secs * float64(time.Second))}
	}
	resp, err := client.Do(req)
	if err != nil {
		return contract.Failure(fmt.Sprintf("http_request: %v", err)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_request: reading response: %w", err)
	}

	var parsedBody interface{}
	if json.Unmarshal(respBody, &parsedBody) != nil {
		parsedBody = string(respBody)
	}

	return contract.Success(map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     resp.Header,
		"body":        parsedBody,
	}), nil
}
