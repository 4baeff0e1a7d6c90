package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-processor/internal/domain"
	"github.com/dvloznov/statement-processor/internal/pipeline"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint error.
const uniqueViolation = "23505"

// StatementRepository is the Postgres implementation of the persistence
// boundary. Accepted statements carry a unique index on txn_reference;
// failed statements are an append-only log.
type StatementRepository struct {
	pool *pgxpool.Pool
}

// NewStatementRepository creates a repository backed by the given pool.
func NewStatementRepository(pool *pgxpool.Pool) *StatementRepository {
	return &StatementRepository{pool: pool}
}

// Connect opens a pgx pool for the given DATABASE_URL and verifies the
// connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// InsertAccepted writes one accepted statement. A unique violation on the
// transaction reference is reported as pipeline.ErrDuplicateReference so
// the processor can demote the record instead of aborting the job.
func (r *StatementRepository) InsertAccepted(ctx context.Context, stmt domain.AcceptedStatement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accepted_statements
			(txn_reference, account_number, mutation, start_balance, end_balance, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stmt.TxnReference,
		stmt.AccountNumber,
		stmt.Mutation,
		stmt.StartBalance,
		stmt.EndBalance,
		stmt.Description,
		stmt.CreatedAt,
		stmt.UpdatedAt,
	)
	if err != nil {
		return mapInsertError(err)
	}
	return nil
}

// mapInsertError translates a unique-violation SQLSTATE into the pipeline's
// duplicate-reference sentinel; everything else passes through.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", pipeline.ErrDuplicateReference, pgErr.ConstraintName)
	}
	return fmt.Errorf("inserting accepted statement: %w", err)
}

// InsertFailedBatch writes the whole failed set in one CopyFrom batch.
func (r *StatementRepository) InsertFailedBatch(ctx context.Context, stmts []domain.FailedStatement) error {
	if len(stmts) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"failed_statements"},
		[]string{"txn_reference", "description", "created_at", "updated_at"},
		pgx.CopyFromSlice(len(stmts), func(i int) ([]any, error) {
			s := stmts[i]
			return []any{s.TxnReference, s.Description, s.CreatedAt, s.UpdatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("batch inserting failed statements: %w", err)
	}
	return nil
}

// ListAccepted returns accepted statements ordered by id, optionally
// filtered to a single id.
func (r *StatementRepository) ListAccepted(ctx context.Context, id *int64) ([]domain.AcceptedStatement, error) {
	query := `
		SELECT id, txn_reference, account_number, mutation, start_balance, end_balance, description, created_at, updated_at
		FROM accepted_statements`
	args := []any{}
	if id != nil {
		query += ` WHERE id = $1`
		args = append(args, *id)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accepted statements: %w", err)
	}
	defer rows.Close()

	var result []domain.AcceptedStatement
	for rows.Next() {
		var s domain.AcceptedStatement
		if err := rows.Scan(
			&s.ID,
			&s.TxnReference,
			&s.AccountNumber,
			&s.Mutation,
			&s.StartBalance,
			&s.EndBalance,
			&s.Description,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning accepted statement: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading accepted statements: %w", err)
	}
	return result, nil
}

// ListFailed returns failed statements ordered by id, optionally filtered
// to a single id.
func (r *StatementRepository) ListFailed(ctx context.Context, id *int64) ([]domain.FailedStatement, error) {
	query := `
		SELECT id, txn_reference, description, created_at, updated_at
		FROM failed_statements`
	args := []any{}
	if id != nil {
		query += ` WHERE id = $1`
		args = append(args, *id)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying failed statements: %w", err)
	}
	defer rows.Close()

	var result []domain.FailedStatement
	for rows.Next() {
		var s domain.FailedStatement
		if err := rows.Scan(&s.ID, &s.TxnReference, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning failed statement: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading failed statements: %w", err)
	}
	return result, nil
}

// Ensure the repository satisfies the pipeline boundary.
var _ pipeline.StatementRepository = (*StatementRepository)(nil)
