package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/statement-processor/internal/domain"
	"github.com/dvloznov/statement-processor/internal/logger"
)

// ErrMissingFile indicates a job payload without a file name. The job fails
// fast; no retry is attempted here.
var ErrMissingFile = errors.New("statement file name is required")

// MsgDuplicateReference is appended to a record demoted on an insert
// conflict.
const MsgDuplicateReference = "Duplicate transaction reference."

// Processor drives one uploaded statement file through parsing, validation
// and persistence. Collaborators are passed in explicitly.
type Processor struct {
	repo      StatementRepository
	validator *Validator
}

// NewProcessor creates a processor backed by the given repository and
// validator.
func NewProcessor(repo StatementRepository, validator *Validator) *Processor {
	return &Processor{repo: repo, validator: validator}
}

// ProcessStatementFile is the job entry point. It parses the file into
// candidates, validates them, persists accepted records one at a time so a
// duplicate-reference conflict demotes only that record, and finally writes
// the full failed set in a single batch.
//
// There is no atomicity guarantee across the two sinks: a crash between the
// accepted loop and the failed batch write can leave accepted rows committed
// without their demoted siblings' failure rows. Stricter deployments can
// wrap both writes in one transaction at the repository level.
func (p *Processor) ProcessStatementFile(ctx context.Context, filename string, data []byte) error {
	log := logger.FromContext(ctx)

	if filename == "" {
		return ErrMissingFile
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	records, err := Parse(data, ext)
	if err != nil {
		return err
	}

	candidates := make([]domain.Candidate, 0, len(records))
	for _, r := range records {
		candidates = append(candidates, candidateFromRaw(r))
	}

	split := p.validator.Validate(candidates)

	failed := split.Failed
	inserted := 0
	for _, c := range split.Accepted {
		err := p.repo.InsertAccepted(ctx, acceptedFromCandidate(c))
		if errors.Is(err, ErrDuplicateReference) {
			log.Warn().
				Str("reference", c.Reference).
				Msg("Duplicate transaction reference, demoting to failed")
			failed = append(failed, c.WithError(MsgDuplicateReference))
			continue
		}
		if err != nil {
			return fmt.Errorf("inserting statement %q: %w", c.Reference, err)
		}
		inserted++
	}

	if len(failed) > 0 {
		rows := make([]domain.FailedStatement, 0, len(failed))
		for _, c := range failed {
			rows = append(rows, failedFromCandidate(c))
		}
		if err := p.repo.InsertFailedBatch(ctx, rows); err != nil {
			return fmt.Errorf("inserting failed statements: %w", err)
		}
	}

	log.Info().
		Str("filename", filename).
		Int("records", len(candidates)).
		Int("accepted", inserted).
		Int("failed", len(failed)).
		Msg("Statement file processed")

	return nil
}

// acceptedFromCandidate maps a fully validated candidate onto the persisted
// accepted entity.
func acceptedFromCandidate(c domain.Candidate) domain.AcceptedStatement {
	var description *string
	if c.Description != "" {
		d := c.Description
		description = &d
	}
	now := time.Now()
	return domain.AcceptedStatement{
		TxnReference:  c.Reference,
		AccountNumber: c.AccountNumber,
		Mutation:      c.Mutation,
		StartBalance:  c.StartBalance,
		EndBalance:    c.EndBalance,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// failedFromCandidate maps a failed candidate onto the failure log entity,
// joining the accumulated error reasons.
func failedFromCandidate(c domain.Candidate) domain.FailedStatement {
	now := time.Now()
	return domain.FailedStatement{
		TxnReference: c.Reference,
		Description:  strings.Join(c.Errors, ", "),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
