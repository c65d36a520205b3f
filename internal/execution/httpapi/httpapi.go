// Package httpapi exposes the execution engine over HTTP with gorilla/mux,
// grounded on this codebase's internal/execution/adapters/http/handlers
// package: one handler struct per bounded context, routes registered via
// RegisterRoutes, responses written through internal/platform/response.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/execution/engine"
	"github.com/linkflow-ai/workflow-engine/internal/execution/webhookwait"
	"github.com/linkflow-ai/workflow-engine/internal/platform/response"
	"github.com/linkflow-ai/workflow-engine/internal/store"
)

// Handler serves the execution engine's HTTP surface: run a workflow,
// inspect a run's record and node trail, and deliver webhook resumptions
// to a suspended wait_for_webhook node.
type Handler struct {
	engine *engine.Engine
	store  store.Store
	logger *zap.Logger
}

// New builds a Handler.
func New(e *engine.Engine, s store.Store, logger *zap.Logger) *Handler {
	return &Handler{engine: e, store: s, logger: logger}
}

// RegisterRoutes wires the handler's endpoints onto router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/workflows/{workflowId}/execute", h.Execute).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}", h.GetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/nodes", h.ListNodeExecutions).Methods(http.MethodGet)
	router.HandleFunc("/workflows/{workflowId}/executions", h.ListExecutions).Methods(http.MethodGet)
	router.PathPrefix("/webhook/resume/").HandlerFunc(h.ResumeWebhook).Methods(http.MethodPost)
}

type executeRequest struct {
	Input map[string]interface{} `json:"input"`
}

// Execute runs a workflow synchronously and returns the
// terminal WorkflowExecution record.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["workflowId"]

	var req executeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.ErrorWithMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
	}

	wf, err := h.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		response.ErrorWithMessage(w, http.StatusNotFound, "not_found", "workflow not found")
		return
	}
	if !wf.Active() {
		response.ErrorWithMessage(w, http.StatusConflict, "inactive_workflow", "workflow is not active")
		return
	}

	def := wf.Definition()
	exec, err := h.engine.Run(r.Context(), &def, wf.ID(), req.Input)
	if err != nil {
		h.logger.Error("execute workflow failed", zap.String("workflowId", workflowID), zap.Error(err))
		response.ErrorWithMessage(w, http.StatusInternalServerError, "execution_failed", err.Error())
		return
	}

	response.JSON(w, http.StatusOK, exec)
}

// GetExecution returns a single run's record.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := h.store.GetWorkflowExecution(r.Context(), id)
	if err != nil {
		response.ErrorWithMessage(w, http.StatusNotFound, "not_found", "execution not found")
		return
	}
	response.JSON(w, http.StatusOK, exec)
}

// ListNodeExecutions returns a run's per-node trail.
func (h *Handler) ListNodeExecutions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	nodes, err := h.store.ListNodeExecutions(r.Context(), id)
	if err != nil {
		response.ErrorWithMessage(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	response.JSON(w, http.StatusOK, nodes)
}

// ListExecutions returns a workflow's recent runs.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["workflowId"]
	execs, err := h.store.ListWorkflowExecutions(r.Context(), workflowID, 50)
	if err != nil {
		response.ErrorWithMessage(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	response.JSON(w, http.StatusOK, execs)
}

// ResumeWebhook delivers an inbound payload to a suspended wait_for_webhook
// node. The wait id is the path segment following
// /webhook/resume/.
func (h *Handler) ResumeWebhook(w http.ResponseWriter, r *http.Request) {
	const prefix = "/webhook/resume/"
	waitID := r.URL.Path[len(prefix):]
	if waitID == "" {
		response.ErrorWithMessage(w, http.StatusBadRequest, "missing_wait_id", "wait id is required")
		return
	}

	var payload map[string]interface{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			response.ErrorWithMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
	}

	if err := webhookwait.Global.Resume(waitID, payload); err != nil {
		response.ErrorWithMessage(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{"wait_id": waitID, "status": "resumed"})
}
