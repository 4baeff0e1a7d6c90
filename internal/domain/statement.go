package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is one parsed, not-yet-validated statement record.
// Balances arrive as floats from the parser; validation converts them to
// exact decimals once the structural checks pass. Errors is append-only and
// drives the accepted/failed routing: an empty list means the record is
// currently considered valid.
type Candidate struct {
	Reference     string
	AccountNumber string
	Description   string

	RawStartBalance float64
	RawEndBalance   float64

	// Set by structural validation from the raw balances.
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal

	// Signed decimal string, e.g. "+50.00" or "-20.25".
	Mutation string

	Errors []string
}

// WithError returns a copy of the candidate with msg appended to its error
// list. Candidates are shared between the validator's output slices, so
// stages never mutate a candidate in place.
func (c Candidate) WithError(msg string) Candidate {
	errs := make([]string, 0, len(c.Errors)+1)
	errs = append(errs, c.Errors...)
	errs = append(errs, msg)
	c.Errors = errs
	return c
}

// WithErrors appends every message in msgs, preserving order.
func (c Candidate) WithErrors(msgs []string) Candidate {
	errs := make([]string, 0, len(c.Errors)+len(msgs))
	errs = append(errs, c.Errors...)
	errs = append(errs, msgs...)
	c.Errors = errs
	return c
}

// AcceptedStatement is a statement record persisted after passing both
// validation stages. TxnReference is unique storage-wide; an insert conflict
// demotes the record to the failed set rather than failing the job.
type AcceptedStatement struct {
	ID            int64
	TxnReference  string
	AccountNumber string
	Mutation      string
	StartBalance  decimal.Decimal
	EndBalance    decimal.Decimal
	Description   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FailedStatement is the append-only failure log row. Description carries
// the concatenated error reasons. No uniqueness constraint applies.
type FailedStatement struct {
	ID           int64
	TxnReference string
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
