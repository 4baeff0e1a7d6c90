package pipeline

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-processor/internal/domain"
)

func validCandidate() domain.Candidate {
	return domain.Candidate{
		Reference:       "REF1",
		AccountNumber:   "NL91ABNA0417164300",
		Description:     "desc",
		RawStartBalance: 100.0,
		RawEndBalance:   150.0,
		Mutation:        "+50.00",
	}
}

func statementValidator() *Validator {
	return NewValidator(StatementLimits())
}

func TestValidate_HappyPath(t *testing.T) {
	split := statementValidator().Validate([]domain.Candidate{validCandidate()})

	require.Len(t, split.Accepted, 1)
	require.Empty(t, split.Failed)

	c := split.Accepted[0]
	assert.Empty(t, c.Errors)
	assert.True(t, c.StartBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.EndBalance.Equal(decimal.NewFromInt(150)))
}

func TestValidate_BalanceMismatch(t *testing.T) {
	c := validCandidate()
	c.RawEndBalance = 160.0

	split := statementValidator().Validate([]domain.Candidate{c})

	require.Empty(t, split.Accepted)
	require.Len(t, split.Failed, 1)
	assert.Equal(t, []string{MsgBalanceMismatch}, split.Failed[0].Errors)
}

func TestValidate_NegativeMutation(t *testing.T) {
	c := validCandidate()
	c.RawStartBalance = 100.0
	c.Mutation = "-20.00"
	c.RawEndBalance = 80.0

	split := statementValidator().Validate([]domain.Candidate{c})
	assert.Len(t, split.Accepted, 1)
	assert.Empty(t, split.Failed)
}

func TestValidate_UnsignedMutationFailsReconciliation(t *testing.T) {
	// Without an explicit sign no operation is determinable.
	c := validCandidate()
	c.Mutation = "50.00"

	split := statementValidator().Validate([]domain.Candidate{c})
	require.Len(t, split.Failed, 1)
	assert.Equal(t, []string{MsgBalanceMismatch}, split.Failed[0].Errors)
}

func TestValidate_StructuralFailureSkipsBusinessRule(t *testing.T) {
	c := validCandidate()
	c.AccountNumber = "not-an-iban"
	c.RawEndBalance = 160.0 // would also fail reconciliation

	split := statementValidator().Validate([]domain.Candidate{c})

	require.Len(t, split.Failed, 1)
	errs := split.Failed[0].Errors
	// Exactly one IBAN message and no balance-mismatch message: the second
	// stage never ran.
	require.Len(t, errs, 1)
	assert.Equal(t, "accountNumber must be a valid IBAN.", errs[0])
}

func TestValidate_CollectsAllStructuralViolations(t *testing.T) {
	c := domain.Candidate{
		Reference:       "",
		AccountNumber:   "not-an-iban",
		RawStartBalance: math.NaN(),
		RawEndBalance:   20_000.0, // out of range
		Mutation:        "abc",
	}

	split := statementValidator().Validate([]domain.Candidate{c})

	require.Len(t, split.Failed, 1)
	assert.Len(t, split.Failed[0].Errors, 5)
}

func TestValidate_BalanceDecimalPlaces(t *testing.T) {
	v := statementValidator() // 3 decimal places

	t.Run("three places accepted", func(t *testing.T) {
		c := validCandidate()
		c.RawStartBalance = 100.125
		c.Mutation = "+49.875"
		c.RawEndBalance = 150.0

		split := v.Validate([]domain.Candidate{c})
		assert.Len(t, split.Accepted, 1)
	})

	t.Run("four places rejected", func(t *testing.T) {
		c := validCandidate()
		c.RawStartBalance = 100.1234

		split := v.Validate([]domain.Candidate{c})
		require.Len(t, split.Failed, 1)
		assert.Contains(t, split.Failed[0].Errors[0], "startBalance")
	})

	t.Run("default limits allow only two places", func(t *testing.T) {
		c := validCandidate()
		c.RawStartBalance = 100.125
		c.Mutation = "+49.875"
		c.RawEndBalance = 150.0

		split := NewValidator(DefaultLimits()).Validate([]domain.Candidate{c})
		assert.Len(t, split.Failed, 1)
	})
}

func TestValidate_BalanceRange(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		mutation string
		end      float64
		accepted bool
	}{
		{"at lower bound", 1.0, "+1.00", 2.0, true},
		{"below lower bound", 0.5, "+1.00", 1.5, false},
		{"at upper bound", 9_999.0, "+1.00", 10_000.0, true},
		{"above upper bound", 9_999.5, "+1.00", 10_000.5, false},
		{"zero start", 0.0, "+1.00", 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			c.RawStartBalance = tt.start
			c.Mutation = tt.mutation
			c.RawEndBalance = tt.end

			split := statementValidator().Validate([]domain.Candidate{c})
			if tt.accepted {
				assert.Len(t, split.Accepted, 1, "expected accepted")
			} else {
				assert.Len(t, split.Failed, 1, "expected failed")
			}
		})
	}
}

func TestValidate_MutationPattern(t *testing.T) {
	tests := []struct {
		mutation string
		valid    bool
	}{
		{"+50.00", true},
		{"-0.125", true},
		{"+.5", true},
		{"-5", true},
		{"", false},
		{"+", false},
		{"abc", false},
		{"+5,00", false},
		{"5.00.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.mutation, func(t *testing.T) {
			c := validCandidate()
			c.Mutation = tt.mutation

			_, violations := statementValidator().structural(c)
			if tt.valid {
				assert.Empty(t, violations)
			} else {
				require.Len(t, violations, 1)
				assert.Contains(t, violations[0], "mutation")
			}
		})
	}
}

func TestValidate_ExactDecimalComparison(t *testing.T) {
	// 0.1 + 0.2 style cases must reconcile exactly; float arithmetic would
	// drift here.
	c := validCandidate()
	c.RawStartBalance = 100.1
	c.Mutation = "+50.2"
	c.RawEndBalance = 150.3

	split := statementValidator().Validate([]domain.Candidate{c})
	require.Len(t, split.Accepted, 1)
	require.Empty(t, split.Failed)
}

func TestValidate_IsStablePartition(t *testing.T) {
	good1 := validCandidate()
	good1.Reference = "REF1"
	bad := validCandidate()
	bad.Reference = "REF2"
	bad.RawEndBalance = 999.0
	good2 := validCandidate()
	good2.Reference = "REF3"

	input := []domain.Candidate{good1, bad, good2}
	split := statementValidator().Validate(input)

	// True partition: every input ends up in exactly one output.
	assert.Equal(t, len(input), len(split.Accepted)+len(split.Failed))

	// Input order preserved within each sequence.
	require.Len(t, split.Accepted, 2)
	assert.Equal(t, "REF1", split.Accepted[0].Reference)
	assert.Equal(t, "REF3", split.Accepted[1].Reference)
	require.Len(t, split.Failed, 1)
	assert.Equal(t, "REF2", split.Failed[0].Reference)
}

func TestValidate_Idempotent(t *testing.T) {
	candidates := []domain.Candidate{validCandidate()}
	bad := validCandidate()
	bad.AccountNumber = "nope"
	candidates = append(candidates, bad)

	v := statementValidator()
	first := v.Validate(candidates)
	second := v.Validate(candidates)

	require.Equal(t, len(first.Accepted), len(second.Accepted))
	require.Equal(t, len(first.Failed), len(second.Failed))
	for i := range first.Failed {
		assert.Equal(t, first.Failed[i].Errors, second.Failed[i].Errors)
	}

	// The input candidates themselves were not mutated.
	assert.Empty(t, candidates[0].Errors)
	assert.Empty(t, candidates[1].Errors)
}
