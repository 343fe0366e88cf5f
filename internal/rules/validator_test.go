package rules

import (
	"math"
	"testing"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(v float64, deduct bool) domain.Rule {
	return domain.Rule{Base: domain.BaseNet, DeductProductCost: deduct, Formula: domain.Percentage{Value: v}}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		rule  domain.Rule
		valid bool
	}{
		{"PercentageZero", pct(0, false), true},
		{"PercentageHundred", pct(100, false), true},
		{"PercentageNegative", pct(-1, false), false},
		{"PercentageOverHundred", pct(100.5, false), false},
		{"PercentageNaN", pct(math.NaN(), false), false},
		{"TieredValid", domain.Rule{Base: domain.BaseGross, Formula: domain.Tiered{Threshold: 50, Percent: 60}}, true},
		{"TieredZeroThreshold", domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 0, Percent: 30}}, true},
		{"TieredNegativeThreshold", domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: -5, Percent: 30}}, false},
		{"TieredZeroPercent", domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 0, Percent: 0}}, false},
		{"TieredThresholdAbovePercent", domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 50, Percent: 30}}, true},
		{"TieredInfinitePercent", domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 50, Percent: math.Inf(1)}}, false},
		{"FixedFlat", domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 15}}, true},
		{"FixedWithPercent", domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 20, Percent: 10}}, true},
		{"FixedNegativeAmount", domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: -1}}, false},
		{"FixedNegativePercent", domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 1, Percent: -3}}, false},
		{"NoFormula", domain.Rule{Base: domain.BaseNet}, false},
		{"UnknownBase", domain.Rule{Base: "list", Formula: domain.Percentage{Value: 10}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValid(tt.rule))
			if !tt.valid {
				assert.ErrorIs(t, Validate(tt.rule), domain.ErrInvalidRule)
			}
		})
	}
}

func kinds(warnings []domain.Warning) []domain.WarningKind {
	out := make([]domain.WarningKind, len(warnings))
	for i, w := range warnings {
		out[i] = w.Kind
	}
	return out
}

func TestValidateCoherenceClean(t *testing.T) {
	base := pct(50, false)
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: pct(40, false)},
		{ID: 2, Treatment: "Laser", Rule: domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 50, Percent: 60}}},
	}

	warnings := ValidateCoherence(base, exceptions, nil)
	assert.Empty(t, warnings)
	assert.NotNil(t, warnings)
	assert.False(t, HasErrors(warnings))
}

func TestValidateCoherencePerException(t *testing.T) {
	base := pct(50, true)
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Peeling", Rule: pct(50, true)},
		{ID: 2, Treatment: "Botox", Rule: pct(60, false)},
		{ID: 3, Treatment: "Filler", Rule: pct(120, false)},
	}

	warnings := ValidateCoherence(base, exceptions, nil)
	require.Len(t, warnings, 4)

	assert.Equal(t, domain.WarningIdentical, warnings[0].Kind)
	assert.Equal(t, domain.SeverityWarning, warnings[0].Severity)
	assert.Equal(t, 1, *warnings[0].RelatedException)

	assert.Equal(t, domain.WarningMoreGenerous, warnings[1].Kind)
	assert.Equal(t, domain.SeverityInfo, warnings[1].Severity)
	assert.Equal(t, 2, *warnings[1].RelatedException)

	// An out-of-range percentage is both more generous and invalid.
	assert.Equal(t, domain.WarningMoreGenerous, warnings[2].Kind)
	assert.Equal(t, domain.WarningConflict, warnings[3].Kind)
	assert.Equal(t, domain.SeverityError, warnings[3].Severity)
	assert.Equal(t, 3, *warnings[3].RelatedException)
	assert.True(t, HasErrors(warnings))
}

func TestValidateCoherenceIdenticalRequiresSameFlags(t *testing.T) {
	base := pct(50, true)
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Peeling", Rule: pct(50, false)},
		{ID: 2, Treatment: "Laser", Rule: domain.Rule{Base: domain.BaseGross, DeductProductCost: true, Formula: domain.Percentage{Value: 50}}},
	}

	assert.Empty(t, ValidateCoherence(base, exceptions, nil))
}

func TestValidateCoherenceCrossConflicts(t *testing.T) {
	base := pct(50, false)
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Laser", Rule: pct(30, false)},
		{ID: 2, Treatment: "Laser", Rule: pct(35, false)},
		{ID: 3, Treatment: "Laser", Product: "GelA", Rule: pct(20, false)},
		{ID: 4, Treatment: "Laser", Product: "GelA", Rule: pct(25, false)},
		{ID: 5, Treatment: "Laser", Product: "GelB", Rule: pct(25, false)},
	}

	warnings := ValidateCoherence(base, exceptions, nil)
	require.Len(t, warnings, 2)
	assert.Equal(t, []domain.WarningKind{domain.WarningConflict, domain.WarningConflict}, kinds(warnings))
	assert.Equal(t, 2, *warnings[0].RelatedException)
	assert.Equal(t, 4, *warnings[1].RelatedException)
}

func TestValidateCoherenceCosts(t *testing.T) {
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: pct(40, true)},
		{ID: 2, Treatment: "Peeling", Product: "SerumY", Rule: pct(40, true)},
		{ID: 3, Treatment: "Botox", Product: "Vial", Rule: pct(40, false)},
	}
	costs := []domain.ProductCost{
		{ID: 1, Name: "SerumY", Cost: 0},
		{ID: 2, Name: "Vial", Cost: 12},
		{ID: 3, Name: "Cream", Cost: 8},
		{ID: 4, Name: "Patch", Cost: 0, ExcludeFromDeduction: true},
	}

	t.Run("BaseRuleDeducts", func(t *testing.T) {
		warnings := ValidateCoherence(pct(50, true), exceptions, costs)
		require.Len(t, warnings, 3)
		assert.Equal(t, []domain.WarningKind{
			domain.WarningMissingProductCost,
			domain.WarningZeroCost,
			domain.WarningUnusedCost,
		}, kinds(warnings))
		assert.Equal(t, domain.SeverityError, warnings[0].Severity)
		assert.Contains(t, warnings[0].Message, "SerumX")
		assert.Equal(t, domain.SeverityWarning, warnings[1].Severity)
		assert.Contains(t, warnings[2].Message, "Cream")
	})

	t.Run("BaseRuleDoesNotDeduct", func(t *testing.T) {
		warnings := ValidateCoherence(pct(50, false), exceptions, costs)
		assert.Equal(t, []domain.WarningKind{
			domain.WarningMissingProductCost,
			domain.WarningZeroCost,
		}, kinds(warnings))
	})

	t.Run("ZeroCostExcludedIsFine", func(t *testing.T) {
		excs := []domain.Exception{{ID: 1, Treatment: "Peeling", Product: "Patch", Rule: pct(40, true)}}
		assert.Empty(t, ValidateCoherence(pct(50, false), excs, costs))
	})
}

func TestValidateCoherenceTrimsCostNames(t *testing.T) {
	excs := []domain.Exception{{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: pct(40, true)}}
	costs := []domain.ProductCost{{ID: 1, Name: " SerumX ", Cost: 15}}

	assert.Empty(t, ValidateCoherence(pct(50, true), excs, costs))
}

func TestValidateCoherenceIsPure(t *testing.T) {
	base := pct(50, true)
	exceptions := []domain.Exception{
		{ID: 1, Treatment: "Peeling", Rule: pct(50, true)},
		{ID: 2, Treatment: "Peeling", Rule: pct(70, false)},
		{ID: 3, Treatment: "Laser", Product: "GelA", Rule: pct(70, true)},
	}
	costs := []domain.ProductCost{{ID: 1, Name: "Cream", Cost: 3}}

	first := ValidateCoherence(base, exceptions, costs)
	second := ValidateCoherence(base, exceptions, costs)

	assert.ElementsMatch(t, first, second)
	assert.Equal(t, 50.0, exceptions[0].Rule.Formula.(domain.Percentage).Value)
}
