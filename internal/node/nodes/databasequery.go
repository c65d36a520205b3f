package nodes

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewDatabaseQueryNode)
}

// DatabaseQueryNode runs a parameterized SQL statement against a
// postgres or mysql database, opening a short-lived connection per
// invocation the way a stateless workflow step should.
type DatabaseQueryNode struct{}

func NewDatabaseQueryNode() contract.Node { return &DatabaseQueryNode{} }

func (n *DatabaseQueryNode) TypeName() string            { return "database_query" }
func (n *DatabaseQueryNode) Category() contract.Category { return contract.CategoryAction }
func (n *DatabaseQueryNode) Subcategory() contract.Subcategory {
	return contract.SubcategoryDatabase
}
func (n *DatabaseQueryNode) RequiredCredentialType() string { return "database" }

func (n *DatabaseQueryNode) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "Database Query",
		Description: "Execute a SQL query against a Postgres or MySQL database",
		Category:    contract.CategoryAction,
		Subcategory: contract.SubcategoryDatabase,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "driver", Type: "select", Required: true, Default: "postgres", Options: []contract.PropertyOption{
				{Label: "PostgreSQL", Value: "postgres"}, {Label: "MySQL", Value: "mysql"},
			}},
			{Name: "dsn", Type: "string", Required: true, Description: "Driver-specific connection string"},
			{Name: "query", Type: "code", Required: true},
			{Name: "args", Type: "json", Description: "Positional query arguments"},
		},
		RequiredCredentialType: "database",
	}
}

func (n *DatabaseQueryNode) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"driver": map[string]interface{}{"type": "string", "enum": []string{"postgres", "mysql"}},
		"dsn":    map[string]interface{}{"type": "string", "required": true},
		"query":  map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *DatabaseQueryNode) ValidateParameters(params map[string]interface{}) error {
	driver, _ := params["driver"].(string)
	switch driver {
	case "postgres", "mysql", "":
	default:
		return fmt.Errorf("database_query: unsupported driver %q", driver)
	}
	if dsn, _ := params["dsn"].(string); dsn == "" {
		return fmt.Errorf("database_query: dsn is required")
	}
	if query, _ := params["query"].(string); query == "" {
		return fmt.Errorf("database_query: query is required")
	}
	return nil
}

func (n *DatabaseQueryNode) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	driver, _ := params["driver"].(string)
	if driver == "" {
		driver = "postgres"
	}
	dsn, _ := params["dsn"].(string)
	query, _ := params["query"].(string)

	var args []interface{}
	if raw, ok := params["args"].([]interface{}); ok {
		args = raw
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database_query: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return contract.Failure(fmt.Sprintf("database_query: %v", err)), nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("database_query: %w", err)
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("database_query: scanning row: %w", err)
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database_query: %w", err)
	}

	return contract.Success(map[string]interface{}{
		"rows":  records,
		"count": len(records),
	}), nil
}
