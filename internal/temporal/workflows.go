// Package temporal runs document ingestion as durable workflows. Using
// the document id as the workflow id serializes re-ingestions of the
// same document while letting distinct documents index in parallel.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestInput holds the ingestion workflow parameters.
type IngestInput struct {
	Path string // source file to index
}

// IngestOutput holds the ingestion workflow result.
type IngestOutput struct {
	DocumentID string
	ChunkCount int
	DurationMS int64
}

// WorkflowID returns the workflow id for a document, which doubles as
// the per-document serialization key.
func WorkflowID(documentID string) string {
	return "ingest-" + documentID
}

// IngestDocumentWorkflow runs one document through the indexing
// pipeline as a single activity. The pipeline's own rollback keeps the
// document atomic; Temporal adds durable retries for transient store
// and model failures.
func IngestDocumentWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
			// Bad input or config never heals by retrying.
			NonRetryableErrorTypes: []string{ErrTypeInvalidConfig, ErrTypeUnsupportedFile},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out IngestOutput
	if err := workflow.ExecuteActivity(ctx, IngestDocumentActivity, input).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", input.Path, err)
	}
	return &out, nil
}

// DeleteDocumentWorkflow removes one document from the index.
func DeleteDocumentWorkflow(ctx workflow.Context, documentID string) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, DeleteDocumentActivity, documentID).Get(ctx, nil); err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}
	return nil
}
