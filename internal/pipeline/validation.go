package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-processor/internal/domain"
)

// Limits controls the decimal constraints applied to the balance fields.
type Limits struct {
	// MaxDecimalPlaces is the largest allowed scale.
	MaxDecimalPlaces int32
	// Min and Max bound the inclusive numeric range.
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultLimits returns the default balance constraints: two decimal places,
// range [1, 10000].
func DefaultLimits() Limits {
	return Limits{
		MaxDecimalPlaces: 2,
		Min:              decimal.NewFromInt(1),
		Max:              decimal.NewFromInt(10_000),
	}
}

// StatementLimits returns the constraints used by the statement ingestion
// flow: three decimal places, range [1, 10000].
func StatementLimits() Limits {
	l := DefaultLimits()
	l.MaxDecimalPlaces = 3
	return l
}

// MsgBalanceMismatch is appended when the computed end balance does not
// equal the declared one.
const MsgBalanceMismatch = "The final balance value does not match the transaction data."

// mutationPattern anchors an optional sign followed by a decimal number.
var mutationPattern = regexp.MustCompile(`^[+-]?\d*\.?\d+$`)

// Validator classifies candidates as accepted or failed. It is a pure
// function of its input and performs no I/O.
type Validator struct {
	limits Limits
}

// NewValidator creates a validator with the given balance limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Validate partitions candidates into accepted and failed sequences, each
// preserving the original input order. Every candidate lands in exactly one
// of the two; none are dropped. The evaluation is two-staged per candidate:
// structural field checks first (all violations collected), then balance
// reconciliation only for structurally clean records.
func (v *Validator) Validate(candidates []domain.Candidate) Split {
	var split Split
	for _, c := range candidates {
		c, violations := v.structural(c)
		if len(violations) > 0 {
			split.Failed = append(split.Failed, c.WithErrors(violations))
			continue
		}

		if !v.reconciles(c) {
			split.Failed = append(split.Failed, c.WithError(MsgBalanceMismatch))
			continue
		}

		split.Accepted = append(split.Accepted, c)
	}
	return split
}

// structural runs the independent field checks and collects every violation.
// On success the raw balances are converted to exact decimals on the
// returned candidate for downstream arithmetic.
func (v *Validator) structural(c domain.Candidate) (domain.Candidate, []string) {
	var violations []string

	if strings.TrimSpace(c.Reference) == "" {
		violations = append(violations, "reference must be a non-empty string.")
	}

	if !validIBAN(c.AccountNumber) {
		violations = append(violations, "accountNumber must be a valid IBAN.")
	}

	startBalance, err := v.balance(c.RawStartBalance)
	if err != nil {
		violations = append(violations, fmt.Sprintf("startBalance %s", err))
	} else {
		c.StartBalance = startBalance
	}

	endBalance, err := v.balance(c.RawEndBalance)
	if err != nil {
		violations = append(violations, fmt.Sprintf("endBalance %s", err))
	} else {
		c.EndBalance = endBalance
	}

	if c.Mutation == "" || !mutationPattern.MatchString(c.Mutation) {
		violations = append(violations, "mutation must be a non-empty signed decimal string.")
	}

	return c, violations
}

// balance converts a raw parsed number into an exact decimal, enforcing the
// configured scale and range.
func (v *Validator) balance(raw float64) (decimal.Decimal, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return decimal.Decimal{}, v.balanceViolation()
	}

	d := decimal.NewFromFloat(raw)
	if !d.Equal(d.Round(v.limits.MaxDecimalPlaces)) {
		return decimal.Decimal{}, v.balanceViolation()
	}
	if d.LessThan(v.limits.Min) || d.GreaterThan(v.limits.Max) {
		return decimal.Decimal{}, v.balanceViolation()
	}
	return d, nil
}

func (v *Validator) balanceViolation() error {
	return fmt.Errorf("must be a valid decimal number (min: %s, max: %s) with maximum %d decimal places.",
		v.limits.Min, v.limits.Max, v.limits.MaxDecimalPlaces)
}

// reconciles checks that startBalance adjusted by the mutation magnitude
// equals endBalance exactly. The sign character selects the operation; a
// mutation without an explicit sign leaves no operation determinable and
// fails reconciliation. The comparison is exact decimal equality, never an
// epsilon.
func (v *Validator) reconciles(c domain.Candidate) bool {
	magnitude, err := decimal.NewFromString(c.Mutation)
	if err != nil {
		return false
	}
	magnitude = magnitude.Abs()

	var expected decimal.Decimal
	switch c.Mutation[0] {
	case '+':
		expected = c.StartBalance.Add(magnitude)
	case '-':
		expected = c.StartBalance.Sub(magnitude)
	default:
		return false
	}

	return expected.Equal(c.EndBalance)
}
