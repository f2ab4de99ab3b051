package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/chunker"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/index"
)

// Error types surfaced to the workflow retry policy.
const (
	ErrTypeInvalidConfig   = "InvalidConfig"
	ErrTypeUnsupportedFile = "UnsupportedFile"
)

// Dependencies holds the shared pipeline injected into activities at
// worker setup.
type Dependencies struct {
	Pipeline *index.Pipeline
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// IngestDocumentActivity indexes one file.
func IngestDocumentActivity(ctx context.Context, input IngestInput) (IngestOutput, error) {
	res, err := deps.Pipeline.IngestFile(ctx, input.Path)
	if err != nil {
		if errors.Is(err, chunker.ErrInvalidConfig) {
			return IngestOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidConfig, err)
		}
		if res != nil && res.FailedStage == index.StageExtract {
			return IngestOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupportedFile, err)
		}
		return IngestOutput{}, err
	}
	return IngestOutput{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
		DurationMS: res.Duration.Milliseconds(),
	}, nil
}

// DeleteDocumentActivity removes one document from the index.
func DeleteDocumentActivity(ctx context.Context, documentID string) error {
	return deps.Pipeline.DeleteDocument(ctx, documentID)
}
