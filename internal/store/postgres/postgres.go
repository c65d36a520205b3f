// Package postgres implements store.Store against PostgreSQL, following the
// codebase's internal/workflow/adapters/repository/postgres/
// workflow_repository.go pattern: raw database/sql (not gorm), manual
// transactions via platform/database.DB.Transaction, schema-qualified table
// names, and pq.Error code "23505" handling for unique violations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/platform/database"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// Store is a Postgres-backed store.Store.
type Store struct {
	db     *database.DB
	schema string
}

// New wraps an already-connected database.DB. schema is used to
// schema-qualify table names (e.g. "workflow_engine"); empty means the
// connection's default search_path.
func New(db *database.DB, schema string) *Store {
	return &Store{db: db, schema: schema}
}

func (s *Store) table(name string) string {
	if s.schema == "" {
		return name
	}
	return s.schema + "." + name
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// ---- workflows ----

func (s *Store) CreateWorkflow(ctx context.Context, w *model.Workflow) error {
	nodes, err := marshalJSON(w.Nodes())
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := marshalJSON(w.Edges())
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, description, nodes, edges, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table("workflows"))

	_, err = s.db.ExecContext(ctx, query,
		w.ID(), w.Name(), w.Description(), nodes, edges, w.Active(), w.CreatedAt(), w.UpdatedAt())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workflow name %q already exists: %w", w.Name(), err)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *Store) scanWorkflow(row *sql.Row) (*model.Workflow, error) {
	var (
		id, name, description string
		nodesRaw, edgesRaw     []byte
		active                 bool
		createdAt, updatedAt   time.Time
	)
	if err := row.Scan(&id, &name, &description, &nodesRaw, &edgesRaw, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	var nodes []model.NodeDefinition
	if err := json.Unmarshal(nodesRaw, &nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	var edges []model.EdgeDefinition
	if err := json.Unmarshal(edgesRaw, &edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}

	def := model.WorkflowDefinition{Name: name, Description: description, Nodes: nodes, Edges: edges}
	return model.Reconstruct(id, def, active, createdAt, updatedAt), nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	query := fmt.Sprintf(`SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM %s WHERE id = $1`, s.table("workflows"))
	row := s.db.QueryRowContext(ctx, query, id)
	return s.scanWorkflow(row)
}

func (s *Store) GetWorkflowByName(ctx context.Context, name string) (*model.Workflow, error) {
	query := fmt.Sprintf(`SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM %s WHERE name = $1`, s.table("workflows"))
	row := s.db.QueryRowContext(ctx, query, name)
	return s.scanWorkflow(row)
}

func (s *Store) ListWorkflows(ctx context.Context, activeOnly bool) ([]*model.Workflow, error) {
	query := fmt.Sprintf(`SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM %s`, s.table("workflows"))
	var args []interface{}
	if activeOnly {
		query += " WHERE active = $1"
		args = append(args, true)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*model.Workflow
	for rows.Next() {
		var (
			id, name, description string
			nodesRaw, edgesRaw     []byte
			active                 bool
			createdAt, updatedAt   time.Time
		)
		if err := rows.Scan(&id, &name, &description, &nodesRaw, &edgesRaw, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		var nodes []model.NodeDefinition
		if err := json.Unmarshal(nodesRaw, &nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
		var edges []model.EdgeDefinition
		if err := json.Unmarshal(edgesRaw, &edges); err != nil {
			return nil, fmt.Errorf("unmarshal edges: %w", err)
		}
		def := model.WorkflowDefinition{Name: name, Description: description, Nodes: nodes, Edges: edges}
		out = append(out, model.Reconstruct(id, def, active, createdAt, updatedAt))
	}
	return out, rows.Err()
}

func (s *Store) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	nodes, err := marshalJSON(w.Nodes())
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := marshalJSON(w.Edges())
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s SET name=$2, description=$3, nodes=$4, edges=$5, active=$6, updated_at=$7
		WHERE id=$1
	`, s.table("workflows"))
	res, err := s.db.ExecContext(ctx, query, w.ID(), w.Name(), w.Description(), nodes, edges, w.Active(), w.UpdatedAt())
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE execution_id IN (SELECT id FROM %s WHERE workflow_id = $1)`,
			s.table("node_executions"), s.table("workflow_executions")), id); err != nil {
			return fmt.Errorf("cascade delete node executions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE workflow_id = $1`, s.table("workflow_executions")), id); err != nil {
			return fmt.Errorf("cascade delete workflow executions: %w", err)
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("workflows")), id)
		if err != nil {
			return fmt.Errorf("delete workflow: %w", err)
		}
		return checkRowsAffected(res)
	})
}

func (s *Store) ImportWorkflow(ctx context.Context, def model.WorkflowDefinition) (*model.Workflow, error) {
	w, err := model.New(def)
	if err != nil {
		return nil, err
	}
	if err := s.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ---- workflow executions ----

func (s *Store) CreateWorkflowExecution(ctx context.Context, e *execmodel.WorkflowExecution) error {
	input, err := marshalJSON(e.InputData)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, status, started_at, updated_at, input_data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table("workflow_executions"))
	_, err = s.db.ExecContext(ctx, query, e.ID, e.WorkflowID, e.Status.String(), e.StartedAt, e.UpdatedAt, input)
	if err != nil {
		return fmt.Errorf("insert workflow execution: %w", err)
	}
	return nil
}

func (s *Store) scanExecution(row *sql.Row) (*execmodel.WorkflowExecution, error) {
	var (
		id, workflowID, status string
		startedAt, updatedAt   time.Time
		finishedAt             sql.NullTime
		inputRaw, outputRaw    []byte
		errMsg                 sql.NullString
	)
	if err := row.Scan(&id, &workflowID, &status, &startedAt, &updatedAt, &finishedAt, &inputRaw, &outputRaw, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	st, err := execmodel.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	e := &execmodel.WorkflowExecution{
		ID: id, WorkflowID: workflowID, Status: st,
		StartedAt: startedAt, UpdatedAt: updatedAt, Error: errMsg.String,
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		e.FinishedAt = &t
	}
	if len(inputRaw) > 0 {
		json.Unmarshal(inputRaw, &e.InputData)
	}
	if len(outputRaw) > 0 {
		json.Unmarshal(outputRaw, &e.OutputData)
	}
	return e, nil
}

func (s *Store) GetWorkflowExecution(ctx context.Context, id string) (*execmodel.WorkflowExecution, error) {
	query := fmt.Sprintf(`SELECT id, workflow_id, status, started_at, updated_at, finished_at, input_data, output_data, error FROM %s WHERE id = $1`, s.table("workflow_executions"))
	row := s.db.QueryRowContext(ctx, query, id)
	return s.scanExecution(row)
}

func (s *Store) ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*execmodel.WorkflowExecution, error) {
	query := fmt.Sprintf(`SELECT id, workflow_id, status, started_at, updated_at, finished_at, input_data, output_data, error FROM %s WHERE workflow_id = $1 ORDER BY started_at DESC`, s.table("workflow_executions"))
	args := []interface{}{workflowID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflow executions: %w", err)
	}
	defer rows.Close()

	var out []*execmodel.WorkflowExecution
	for rows.Next() {
		var (
			id, wfID, status     string
			startedAt, updatedAt time.Time
			finishedAt           sql.NullTime
			inputRaw, outputRaw  []byte
			errMsg               sql.NullString
		)
		if err := rows.Scan(&id, &wfID, &status, &startedAt, &updatedAt, &finishedAt, &inputRaw, &outputRaw, &errMsg); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		st, err := execmodel.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		e := &execmodel.WorkflowExecution{ID: id, WorkflowID: wfID, Status: st, StartedAt: startedAt, UpdatedAt: updatedAt, Error: errMsg.String}
		if finishedAt.Valid {
			t := finishedAt.Time
			e.FinishedAt = &t
		}
		if len(inputRaw) > 0 {
			json.Unmarshal(inputRaw, &e.InputData)
		}
		if len(outputRaw) > 0 {
			json.Unmarshal(outputRaw, &e.OutputData)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWorkflowExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.WorkflowExecution, error) {
	outputRaw, err := marshalJSON(output)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s SET status=$2, output_data=$3, error=$4, finished_at=$5, updated_at=$5
		WHERE id=$1
	`, s.table("workflow_executions"))
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, query, id, status.String(), outputRaw, nullIfEmpty(errMsg), now)
	if err != nil {
		return nil, fmt.Errorf("update workflow execution status: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return nil, err
	}
	return s.GetWorkflowExecution(ctx, id)
}

// ---- node executions ----

func (s *Store) CreateNodeExecution(ctx context.Context, n *execmodel.NodeExecution) error {
	input, err := marshalJSON(n.InputData)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, execution_id, node_id, status, started_at, input_data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.table("node_executions"))
	_, err = s.db.ExecContext(ctx, query, n.ID, n.ExecutionID, n.NodeID, n.Status.String(), n.StartedAt, input)
	if err != nil {
		return fmt.Errorf("insert node execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateNodeExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.NodeExecution, error) {
	outputRaw, err := marshalJSON(output)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s SET status=$2, output_data=$3, error=$4, finished_at=$5
		WHERE id=$1
	`, s.table("node_executions"))
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, query, id, status.String(), outputRaw, nullIfEmpty(errMsg), now)
	if err != nil {
		return nil, fmt.Errorf("update node execution status: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return nil, err
	}

	query = fmt.Sprintf(`SELECT id, execution_id, node_id, status, started_at, finished_at, input_data, output_data, error FROM %s WHERE id = $1`, s.table("node_executions"))
	row := s.db.QueryRowContext(ctx, query, id)
	return scanNodeExecution(row)
}

func scanNodeExecution(row *sql.Row) (*execmodel.NodeExecution, error) {
	var (
		id, executionID, nodeID, status string
		startedAt                       time.Time
		finishedAt                      sql.NullTime
		inputRaw, outputRaw             []byte
		errMsg                          sql.NullString
	)
	if err := row.Scan(&id, &executionID, &nodeID, &status, &startedAt, &finishedAt, &inputRaw, &outputRaw, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan node execution: %w", err)
	}
	st, err := execmodel.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	n := &execmodel.NodeExecution{ID: id, ExecutionID: executionID, NodeID: nodeID, Status: st, StartedAt: startedAt, Error: errMsg.String}
	if finishedAt.Valid {
		t := finishedAt.Time
		n.FinishedAt = &t
	}
	if len(inputRaw) > 0 {
		json.Unmarshal(inputRaw, &n.InputData)
	}
	if len(outputRaw) > 0 {
		json.Unmarshal(outputRaw, &n.OutputData)
	}
	return n, nil
}

func (s *Store) ListNodeExecutions(ctx context.Context, executionID string) ([]*execmodel.NodeExecution, error) {
	query := fmt.Sprintf(`SELECT id, execution_id, node_id, status, started_at, finished_at, input_data, output_data, error FROM %s WHERE execution_id = $1 ORDER BY started_at ASC`, s.table("node_executions"))
	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var out []*execmodel.NodeExecution
	for rows.Next() {
		var (
			id, execID, nodeID, status string
			startedAt                  time.Time
			finishedAt                 sql.NullTime
			inputRaw, outputRaw        []byte
			errMsg                     sql.NullString
		)
		if err := rows.Scan(&id, &execID, &nodeID, &status, &startedAt, &finishedAt, &inputRaw, &outputRaw, &errMsg); err != nil {
			return nil, fmt.Errorf("scan node execution row: %w", err)
		}
		st, err := execmodel.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		n := &execmodel.NodeExecution{ID: id, ExecutionID: execID, NodeID: nodeID, Status: st, StartedAt: startedAt, Error: errMsg.String}
		if finishedAt.Valid {
			t := finishedAt.Time
			n.FinishedAt = &t
		}
		if len(inputRaw) > 0 {
			json.Unmarshal(inputRaw, &n.InputData)
		}
		if len(outputRaw) > 0 {
			json.Unmarshal(outputRaw, &n.OutputData)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Schema returns the DDL for the three logical tables (workflows,
// workflow_executions, node_executions), for use by migration tooling or
// integration test setup.
func Schema(schema string) string {
	prefix := ""
	if schema != "" {
		prefix = schema + "."
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]sworkflows (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	nodes JSONB NOT NULL,
	edges JSONB NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]sworkflow_executions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL REFERENCES %[1]sworkflows(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	input_data JSONB,
	output_data JSONB,
	error TEXT
);

CREATE TABLE IF NOT EXISTS %[1]snode_executions (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES %[1]sworkflow_executions(id) ON DELETE CASCADE,
	node_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	input_data JSONB,
	output_data JSONB,
	error TEXT
);
`, prefix)
}
