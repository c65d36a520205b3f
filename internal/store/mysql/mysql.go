// Package mysql implements store.Store against MySQL, demonstrating that
// the Store capability is genuinely storage-agnostic: the relational
// persistence layer's SQL dialect is explicitly out of scope, so a second
// dialect gets the same capability with no changes to
// the engine. Grounded on the same database/sql conventions as the Postgres
// adapter, adjusted for MySQL's placeholder syntax and JSON column type.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	execmodel "github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/store"
	"github.com/linkflow-ai/workflow-engine/internal/workflow/model"
)

// Store is a MySQL-backed store.Store.
type Store struct {
	db *sql.DB
}

// New wraps an already-connected *sql.DB (driver name "mysql").
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const duplicateEntryErrno = 1062

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == duplicateEntryErrno
	}
	return false
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (s *Store) CreateWorkflow(ctx context.Context, w *model.Workflow) error {
	nodes, err := marshalJSON(w.Nodes())
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := marshalJSON(w.Edges())
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, nodes, edges, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID(), w.Name(), w.Description(), nodes, edges, w.Active(), w.CreatedAt(), w.UpdatedAt())
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("workflow name %q already exists: %w", w.Name(), err)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *Store) scanWorkflowRow(row *sql.Row) (*model.Workflow, error) {
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
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM workflows WHERE id = ?`, id)
	return s.scanWorkflowRow(row)
}

func (s *Store) GetWorkflowByName(ctx context.Context, name string) (*model.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM workflows WHERE name = ?`, name)
	return s.scanWorkflowRow(row)
}

func (s *Store) ListWorkflows(ctx context.Context, activeOnly bool) ([]*model.Workflow, error) {
	query := `SELECT id, name, description, nodes, edges, active, created_at, updated_at FROM workflows`
	var args []interface{}
	if activeOnly {
		query += " WHERE active = ?"
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
		json.Unmarshal(nodesRaw, &nodes)
		var edges []model.EdgeDefinition
		json.Unmarshal(edgesRaw, &edges)
		def := model.WorkflowDefinition{Name: name, Description: description, Nodes: nodes, Edges: edges}
		out = append(out, model.Reconstruct(id, def, active, createdAt, updatedAt))
	}
	return out, rows.Err()
}

func (s *Store) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	nodes, err := marshalJSON(w.Nodes())
	if err != nil {
		return err
	}
	edges, err := marshalJSON(w.Edges())
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET name=?, description=?, nodes=?, edges=?, active=?, updated_at=?
		WHERE id=?
	`, w.Name(), w.Description(), nodes, edges, w.Active(), w.UpdatedAt(), w.ID())
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_executions WHERE execution_id IN (SELECT id FROM workflow_executions WHERE workflow_id = ?)`, id); err != nil {
		return fmt.Errorf("cascade delete node executions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_executions WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("cascade delete workflow executions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	return tx.Commit()
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

func (s *Store) CreateWorkflowExecution(ctx context.Context, e *execmodel.WorkflowExecution) error {
	input, err := marshalJSON(e.InputData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, started_at, updated_at, input_data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.WorkflowID, e.Status.String(), e.StartedAt, e.UpdatedAt, input)
	if err != nil {
		return fmt.Errorf("insert workflow execution: %w", err)
	}
	return nil
}

func (s *Store) GetWorkflowExecution(ctx context.Context, id string) (*execmodel.WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, workflow_id, status, started_at, updated_at, finished_at, input_data, output_data, error FROM workflow_executions WHERE id = ?`, id)
	return scanExecutionRow(row)
}

func scanExecutionRow(row *sql.Row) (*execmodel.WorkflowExecution, error) {
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
	e := &execmodel.WorkflowExecution{ID: id, WorkflowID: workflowID, Status: st, StartedAt: startedAt, UpdatedAt: updatedAt, Error: errMsg.String}
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

func (s *Store) ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*execmodel.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, status, started_at, updated_at, finished_at, input_data, output_data, error FROM workflow_executions WHERE workflow_id = ? ORDER BY started_at DESC`
	args := []interface{}{workflowID}
	if limit > 0 {
		query += " LIMIT ?"
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
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_executions SET status=?, output_data=?, error=?, finished_at=?, updated_at=?
		WHERE id=?
	`, status.String(), outputRaw, nullIfEmpty(errMsg), now, now, id)
	if err != nil {
		return nil, fmt.Errorf("update workflow execution status: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return nil, err
	}
	return s.GetWorkflowExecution(ctx, id)
}

func (s *Store) CreateNodeExecution(ctx context.Context, n *execmodel.NodeExecution) error {
	input, err := marshalJSON(n.InputData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO node_executions (id, execution_id, node_id, status, started_at, input_data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.ExecutionID, n.NodeID, n.Status.String(), n.StartedAt, input)
	if err != nil {
		return fmt.Errorf("insert node execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateNodeExecutionStatus(ctx context.Context, id string, status execmodel.Status, output map[string]interface{}, errMsg string) (*execmodel.NodeExecution, error) {
	outputRaw, err := marshalJSON(output)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE node_executions SET status=?, output_data=?, error=?, finished_at=?
		WHERE id=?
	`, status.String(), outputRaw, nullIfEmpty(errMsg), now, id)
	if err != nil {
		return nil, fmt.Errorf("update node execution status: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, execution_id, node_id, status, started_at, finished_at, input_data, output_data, error FROM node_executions WHERE id = ?`, id)
	return scanNodeExecutionRow(row)
}

func scanNodeExecutionRow(row *sql.Row) (*execmodel.NodeExecution, error) {
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
	rows, err := s.db.QueryContext(ctx, `SELECT id, execution_id, node_id, status, started_at, finished_at, input_data, output_data, error FROM node_executions WHERE execution_id = ? ORDER BY started_at ASC`, executionID)
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

// Schema is the DDL for the three logical tables, MySQL dialect.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id CHAR(36) PRIMARY KEY,
	name VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	nodes JSON NOT NULL,
	edges JSON NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id CHAR(36) PRIMARY KEY,
	workflow_id CHAR(36) NOT NULL,
	status VARCHAR(16) NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	finished_at DATETIME NULL,
	input_data JSON,
	output_data JSON,
	error TEXT,
	FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS node_executions (
	id CHAR(36) PRIMARY KEY,
	execution_id CHAR(36) NOT NULL,
	node_id VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NULL,
	input_data JSON,
	output_data JSON,
	error TEXT,
	FOREIGN KEY (execution_id) REFERENCES workflow_executions(id) ON DELETE CASCADE
);
`
