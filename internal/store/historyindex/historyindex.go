// Package historyindex mirrors completed executions into MongoDB as a
// denormalized, query-friendly secondary index. It supplements the
// relational Store (system of record) with the kind of
// free-form filtering MongoDB's document model is good at — by
// workflow, by status, by date range — without forcing that shape onto
// the relational schema. Mirroring is best-effort: a Mongo write failure
// is logged and swallowed, never surfaced to the caller, since losing
// the secondary index never invalidates an execution result.
//
// Grounded on this codebase's MongoDB integration node
// (internal/node/runtime/nodes/mongodb_node.go) for the mongo-driver
// client and collection usage patterns.
package historyindex

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linkflow-ai/workflow-engine/internal/execution/model"
	"github.com/linkflow-ai/workflow-engine/internal/platform/config"
)

// Index mirrors WorkflowExecution records (with their NodeExecution
// children embedded) into a MongoDB collection.
type Index struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// ExecutionDocument is the denormalized document stored per execution.
type ExecutionDocument struct {
	ExecutionID string                 `bson:"executionId"`
	WorkflowID  string                 `bson:"workflowId"`
	Status      string                 `bson:"status"`
	StartedAt   time.Time              `bson:"startedAt"`
	FinishedAt  *time.Time             `bson:"finishedAt,omitempty"`
	InputData   map[string]interface{} `bson:"inputData,omitempty"`
	OutputData  map[string]interface{} `bson:"outputData,omitempty"`
	Error       string                 `bson:"error,omitempty"`
	Nodes       []NodeDocument         `bson:"nodes,omitempty"`
	IndexedAt   time.Time              `bson:"indexedAt"`
}

// NodeDocument is the embedded per-node trail entry.
type NodeDocument struct {
	NodeID     string                 `bson:"nodeId"`
	Status     string                 `bson:"status"`
	StartedAt  time.Time              `bson:"startedAt"`
	FinishedAt *time.Time             `bson:"finishedAt,omitempty"`
	OutputData map[string]interface{} `bson:"outputData,omitempty"`
	Error      string                 `bson:"error,omitempty"`
}

// New connects to MongoDB and ensures supporting indexes exist. Returns
// nil, nil if Mongo is disabled — callers treat a nil *Index as "mirroring
// is not available."
func New(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Index, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	clientOpts.SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	idx := &Index{client: client, collection: coll, logger: logger}
	if err := idx.ensureIndexes(ctx); err != nil {
		logger.Warn("historyindex: failed to ensure indexes", zap.Error(err))
	}
	return idx, nil
}

func (i *Index) ensureIndexes(ctx context.Context) error {
	_, err := i.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "executionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "workflowId", Value: 1}, {Key: "startedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

// Upsert mirrors a single execution and its node trail. Errors are
// logged, not returned, so a mirroring outage never fails the caller.
func (i *Index) Upsert(ctx context.Context, exec *model.WorkflowExecution, nodes []*model.NodeExecution) {
	if i == nil {
		return
	}

	doc := ExecutionDocument{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status.String(),
		StartedAt:   exec.StartedAt,
		FinishedAt:  exec.FinishedAt,
		InputData:   exec.InputData,
		OutputData:  exec.OutputData,
		Error:       exec.Error,
		IndexedAt:   time.Now().UTC(),
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, NodeDocument{
			NodeID:     n.NodeID,
			Status:     n.Status.String(),
			StartedAt:  n.StartedAt,
			FinishedAt: n.FinishedAt,
			OutputData: n.OutputData,
			Error:      n.Error,
		})
	}

	_, err := i.collection.ReplaceOne(ctx,
		bson.M{"executionId": exec.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		i.logger.Warn("historyindex: upsert failed",
			zap.String("executionId", exec.ID), zap.Error(err))
	}
}

// ByWorkflow returns the most recent executions for a workflow, newest
// first, for ad-hoc history queries the relational Store doesn't need to
// serve efficiently.
func (i *Index) ByWorkflow(ctx context.Context, workflowID string, limit int64) ([]ExecutionDocument, error) {
	if i == nil {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}}).SetLimit(limit)
	cursor, err := i.collection.Find(ctx, bson.M{"workflowId": workflowID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ExecutionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Close disconnects the underlying Mongo client.
func (i *Index) Close(ctx context.Context) error {
	if i == nil {
		return nil
	}
	return i.client.Disconnect(ctx)
}
