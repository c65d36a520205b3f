package nodes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
)

func TestHTTPRequestNode_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewHTTPRequestNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", nil, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"method": "GET", "url": server.URL + "/ping",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 200, out.Data["status_code"])
}

func TestHTTPRequestNode_ValidateParameters(t *testing.T) {
	n := NewHTTPRequestNode()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"method": "GET"}))
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"method": "TRACE", "url": "https://example.com"}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{"method": "GET", "url": "https://example.com"}))
}

func TestSlackNode_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNode()
	nodeCtx := contract.NewContext("exec-1", "node-1", nil, nil)

	out, err := n.Execute(context.Background(), nodeCtx, map[string]interface{}{
		"webhook_url": server.URL, "text": "hello",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestSlackNode_ValidateParameters(t *testing.T) {
	n := NewSlackNode()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"text": "hi"}))
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"webhook_url": "https://hooks.slack.com/x"}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{"webhook_url": "https://hooks.slack.com/x", "text": "hi"}))
}

func TestEmailNode_ValidateParameters(t *testing.T) {
	n := NewEmailNode()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{
		"smtp_host": "smtp.example.com", "username": "u", "password": "p",
		"from": "a@example.com", "to": "b@example.com", "subject": "hi", "body": "hello",
	}))
}

func TestDatabaseQueryNode_ValidateParameters(t *testing.T) {
	n := NewDatabaseQueryNode()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"driver": "oracle", "dsn": "x", "query": "select 1"}))
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"driver": "postgres", "query": "select 1"}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{"driver": "postgres", "dsn": "postgres://x", "query": "select 1"}))
}

func TestS3Node_ValidateParameters(t *testing.T) {
	n := NewS3Node()
	assert.Error(t, n.ValidateParameters(map[string]interface{}{"operation": "put", "region": "us-east-1", "bucket": "b", "key": "k"}))
	assert.NoError(t, n.ValidateParameters(map[string]interface{}{
		"operation": "get", "region": "us-east-1", "bucket": "b", "key": "k",
	}))
}
