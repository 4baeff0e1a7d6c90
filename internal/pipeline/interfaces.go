package pipeline

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-processor/internal/domain"
)

// ErrDuplicateReference is returned by InsertAccepted when the storage-wide
// unique constraint on the transaction reference is violated. The processor
// demotes the record to the failed set instead of failing the job.
var ErrDuplicateReference = errors.New("duplicate transaction reference")

// StatementRepository is the persistence boundary consumed by the processor.
// Uniqueness is enforced on the transaction reference for accepted rows only.
type StatementRepository interface {
	// InsertAccepted writes a single accepted statement, surfacing
	// ErrDuplicateReference on a unique-key conflict.
	InsertAccepted(ctx context.Context, stmt domain.AcceptedStatement) error

	// InsertFailedBatch writes the full failed set in one batch.
	InsertFailedBatch(ctx context.Context, stmts []domain.FailedStatement) error

	// ListAccepted returns accepted statements, optionally filtered by id.
	ListAccepted(ctx context.Context, id *int64) ([]domain.AcceptedStatement, error)

	// ListFailed returns failed statements, optionally filtered by id.
	ListFailed(ctx context.Context, id *int64) ([]domain.FailedStatement, error)
}
