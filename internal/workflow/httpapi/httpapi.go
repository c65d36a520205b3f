// Package httpapi exposes workflow definition management over HTTP with
// gorilla/mux, following the same handler-struct-plus-RegisterRoutes shape
// as internal/execution/httpapi: one handler, routes registered onto a
// caller-supplied router, responses written through
// internal/platform/response.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/platform/response"
	"github.com/linkflow-ai/workflow-engine/internal/platform/validation"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/service"
)

// Handler serves workflow definition CRUD and activation endpoints.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// New builds a Handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// RegisterRoutes wires the handler's endpoints onto router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/workflows", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/workflows", h.List).Methods(http.MethodGet)
	router.HandleFunc("/workflows/import", h.Import).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/workflows/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/workflows/{id}", h.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/workflows/{id}/activate", h.Activate).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/deactivate", h.Deactivate).Methods(http.MethodPost)
}

type definitionRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Nodes       []model.NodeDefinition `json:"nodes"`
	Edges       []model.EdgeDefinition `json:"edges"`
}

func (r definitionRequest) toDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		Name:        r.Name,
		Description: r.Description,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
	}
}

// validate runs the request-shape checks that belong at the HTTP
// boundary, ahead of the service layer's graph-structural validation.
func (r definitionRequest) validate() error {
	v := validation.New()
	v.Required(r.Name, "name").MaxLength(r.Name, 200, "name")
	if v.HasErrors() {
		return fmt.Errorf("%w: %s", service.ErrInvalidDefinition, v.Error())
	}
	return nil
}

// Create registers a new workflow definition.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	wf, err := h.service.Create(r.Context(), req.toDefinition())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Created(w, wf)
}

// Import accepts a YAML workflow document in the request body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.ErrorWithMessage(w, http.StatusBadRequest, "invalid_request", "could not read request body")
		return
	}
	wf, err := h.service.ImportYAML(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Created(w, wf)
}

// Get returns a single workflow definition.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wf)
}

// List returns every workflow, or only active ones when ?active=true.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	workflows, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, workflows)
}

// Update replaces a workflow's definition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	wf, err := h.service.Update(r.Context(), id, req.toDefinition())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wf)
}

// Delete removes a workflow definition.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

// Activate marks a workflow eligible to start new runs.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := h.service.Activate(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wf)
}

// Deactivate stops a workflow from starting new runs.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := h.service.Deactivate(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, wf)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.ErrorWithMessage(w, http.StatusNotFound, "not_found", "workflow not found")
	case errors.Is(err, service.ErrInvalidDefinition):
		response.ErrorWithMessage(w, http.StatusUnprocessableEntity, "invalid_definition", err.Error())
	default:
		h.logger.Error("workflow handler error", zap.Error(err))
		response.ErrorWithMessage(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
