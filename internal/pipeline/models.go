package pipeline

import (
	"math"

	"github.com/dvloznov/statement-processor/internal/domain"
)

// Field names shared by the CSV and XML parsers. CSV binds them positionally,
// XML reads them from record attributes.
const (
	fieldReference     = "reference"
	fieldAccountNumber = "accountNumber"
	fieldDescription   = "description"
	fieldStartBalance  = "startBalance"
	fieldMutation      = "mutation"
	fieldEndBalance    = "endBalance"
)

// RawRecord is the loosely-typed field map produced by the format parsers,
// one per input row or element. Values are either string or float64. It is
// transient; candidateFromRaw maps it onto the canonical record and it is
// discarded.
type RawRecord map[string]interface{}

// Split is the validator's output: a stable partition of its input.
type Split struct {
	Accepted []domain.Candidate
	Failed   []domain.Candidate
}

// candidateFromRaw maps a parsed field map onto a canonical candidate.
// A balance field that is missing or non-numeric becomes NaN, which the
// structural stage reports as a violation on that record alone.
func candidateFromRaw(r RawRecord) domain.Candidate {
	return domain.Candidate{
		Reference:       stringField(r, fieldReference),
		AccountNumber:   stringField(r, fieldAccountNumber),
		Description:     stringField(r, fieldDescription),
		RawStartBalance: floatField(r, fieldStartBalance),
		RawEndBalance:   floatField(r, fieldEndBalance),
		Mutation:        stringField(r, fieldMutation),
	}
}

func stringField(r RawRecord, name string) string {
	if s, ok := r[name].(string); ok {
		return s
	}
	return ""
}

func floatField(r RawRecord, name string) float64 {
	if f, ok := r[name].(float64); ok {
		return f
	}
	return math.NaN()
}
