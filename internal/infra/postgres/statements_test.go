package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-processor/internal/pipeline"
)

func TestMapInsertError_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           uniqueViolation,
		ConstraintName: "accepted_statements_txn_reference_key",
	}

	err := mapInsertError(pgErr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrDuplicateReference))
	assert.Contains(t, err.Error(), "accepted_statements_txn_reference_key")
}

func TestMapInsertError_WrappedUniqueViolation(t *testing.T) {
	wrapped := &pgconn.PgError{Code: uniqueViolation}
	err := mapInsertError(wrapped)
	assert.True(t, errors.Is(err, pipeline.ErrDuplicateReference))
}

func TestMapInsertError_OtherPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23502"} // not-null violation
	err := mapInsertError(pgErr)
	require.Error(t, err)
	assert.False(t, errors.Is(err, pipeline.ErrDuplicateReference))
}

func TestMapInsertError_PlainError(t *testing.T) {
	err := mapInsertError(errors.New("connection reset"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, pipeline.ErrDuplicateReference))
	assert.Contains(t, err.Error(), "connection reset")
}
