package compensation

import (
	"testing"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator()
	require.NoError(t, err)
	return calc
}

func pct(v float64, deduct bool) domain.Rule {
	return domain.Rule{Base: domain.BaseNet, DeductProductCost: deduct, Formula: domain.Percentage{Value: v}}
}

func TestCalculatePeelingScenario(t *testing.T) {
	calc := newCalculator(t)

	res, err := calc.Calculate(domain.CalculationInput{
		InvoiceAmount: 122,
		VATIncluded:   true,
		Treatment:     "Peeling",
		Product:       "SerumX",
		Quantity:      2,
		BaseRule:      pct(50, true),
		Exceptions: []domain.Exception{
			{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: pct(60, true)},
		},
		ProductCosts: []domain.ProductCost{{ID: 1, Name: "SerumX", Cost: 10, Unit: "ml"}},
	})
	require.NoError(t, err)

	assert.InDelta(t, 122, res.GrossAmount, tolerance)
	assert.InDelta(t, 100, res.NetAmount, tolerance)
	assert.InDelta(t, 60, res.BaseCompensation, tolerance)
	assert.InDelta(t, 20, res.DeductedCost, tolerance)
	assert.InDelta(t, 40, res.NetCompensation, tolerance)
	assert.Equal(t, domain.SourceProductException, res.RuleSource)
	assert.Equal(t, 1, res.ExceptionID)
	assert.Equal(t, "exception for Peeling / SerumX", res.RuleSourceDescription)
	assert.Equal(t, "60% of €100.00", res.Formula)
	assert.Contains(t, res.Explanation, "Deducted 2 × €10.00 for SerumX = €20.00")
	assert.Contains(t, res.Explanation, "Net compensation €40.00")
}

func TestCalculateLaserScenario(t *testing.T) {
	calc := newCalculator(t)

	res, err := calc.Calculate(domain.CalculationInput{
		InvoiceAmount: 200,
		Treatment:     "Laser",
		BaseRule:      pct(50, true),
		Exceptions: []domain.Exception{
			{ID: 4, Treatment: "Laser", Rule: domain.Rule{Base: domain.BaseNet, Formula: domain.Tiered{Threshold: 50, Percent: 30}}},
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 95, res.BaseCompensation, tolerance)
	assert.Zero(t, res.DeductedCost)
	assert.Equal(t, domain.SourceGenericException, res.RuleSource)
	assert.Equal(t, "exception for Laser (all products)", res.RuleSourceDescription)
	assert.Equal(t, "100% up to €50.00, then 30% on the excess", res.Formula)
}

func TestCalculateFixedScenario(t *testing.T) {
	calc := newCalculator(t)

	res, err := calc.Calculate(domain.CalculationInput{
		InvoiceAmount: 150,
		Treatment:     "Consult",
		BaseRule:      domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 20, Percent: 10}},
	})
	require.NoError(t, err)

	assert.InDelta(t, 20, res.BaseCompensation, tolerance)
	assert.Equal(t, domain.SourceBaseRule, res.RuleSource)
	assert.Equal(t, "base rule", res.RuleSourceDescription)
	assert.Equal(t, "greater of €20.00 and 10% (€15.00)", res.Formula)
	assert.Zero(t, res.ExceptionID)
}

func TestCalculateResolutionPriority(t *testing.T) {
	calc := newCalculator(t)

	input := domain.CalculationInput{
		InvoiceAmount: 100,
		BaseRule:      pct(50, false),
		Exceptions: []domain.Exception{
			{ID: 1, Treatment: "T", Rule: pct(30, false)},
			{ID: 2, Treatment: "T", Product: "P", Rule: pct(70, false)},
		},
	}

	tests := []struct {
		name      string
		treatment string
		product   string
		want      float64
		source    domain.RuleSource
	}{
		{"ExactPair", "T", "P", 70, domain.SourceProductException},
		{"OtherProduct", "T", "Q", 30, domain.SourceGenericException},
		{"NoProduct", "T", "", 30, domain.SourceGenericException},
		{"UnrelatedTreatment", "U", "P", 50, domain.SourceBaseRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input
			in.Treatment, in.Product = tt.treatment, tt.product
			res, err := calc.Calculate(in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.BaseCompensation, tolerance)
			assert.Equal(t, tt.source, res.RuleSource)
		})
	}
}

func TestCalculateBaseSelection(t *testing.T) {
	calc := newCalculator(t)

	gross := domain.Rule{Base: domain.BaseGross, Formula: domain.Percentage{Value: 50}}
	res, err := calc.Calculate(domain.CalculationInput{InvoiceAmount: 122, VATIncluded: true, Treatment: "X", BaseRule: gross})
	require.NoError(t, err)
	assert.InDelta(t, 61, res.BaseCompensation, tolerance)

	res, err = calc.Calculate(domain.CalculationInput{InvoiceAmount: 122, VATIncluded: true, Treatment: "X", BaseRule: pct(50, false)})
	require.NoError(t, err)
	assert.InDelta(t, 50, res.BaseCompensation, tolerance)
}

func TestCalculateDeduction(t *testing.T) {
	calc := newCalculator(t)
	costs := []domain.ProductCost{
		{ID: 1, Name: "SerumX", Cost: 10},
		{ID: 2, Name: "Cream", Cost: 8, ExcludeFromDeduction: true},
	}

	tests := []struct {
		name     string
		rule     domain.Rule
		product  string
		quantity float64
		want     float64
	}{
		{"RuleDoesNotDeduct", pct(50, false), "SerumX", 1, 0},
		{"NoProduct", pct(50, true), "", 1, 0},
		{"UnknownProduct", pct(50, true), "Other", 1, 0},
		{"ExcludedProduct", pct(50, true), "Cream", 3, 0},
		{"DefaultQuantity", pct(50, true), "SerumX", 0, 10},
		{"NegativeQuantity", pct(50, true), "SerumX", -2, 10},
		{"Quantity", pct(50, true), "SerumX", 3, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Calculate(domain.CalculationInput{
				InvoiceAmount: 100,
				Treatment:     "Peeling",
				Product:       tt.product,
				Quantity:      tt.quantity,
				BaseRule:      tt.rule,
				ProductCosts:  costs,
			})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.DeductedCost, tolerance)
			assert.InDelta(t, 50-tt.want, res.NetCompensation, tolerance)
		})
	}
}

func TestCalculateNegativeNetCompensation(t *testing.T) {
	calc := newCalculator(t)

	res, err := calc.Calculate(domain.CalculationInput{
		InvoiceAmount: 20,
		Treatment:     "Peeling",
		Product:       "SerumX",
		Quantity:      5,
		BaseRule:      pct(50, true),
		ProductCosts:  []domain.ProductCost{{ID: 1, Name: "SerumX", Cost: 10}},
	})
	require.NoError(t, err)
	assert.InDelta(t, -40, res.NetCompensation, tolerance)
	assert.Contains(t, res.Explanation, "Net compensation -€40.00")
}

func TestCalculateRejectsInvalidResolvedRule(t *testing.T) {
	calc := newCalculator(t)

	input := domain.CalculationInput{
		InvoiceAmount: 100,
		Treatment:     "Peeling",
		BaseRule:      pct(50, false),
		Exceptions:    []domain.Exception{{ID: 1, Treatment: "Peeling", Rule: pct(120, false)}},
	}

	_, err := calc.Calculate(input)
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	// The invalid exception does not affect other treatments.
	input.Treatment = "Laser"
	res, err := calc.Calculate(input)
	require.NoError(t, err)
	assert.InDelta(t, 50, res.BaseCompensation, tolerance)
}

func TestCalculateFlatFixed(t *testing.T) {
	calc := newCalculator(t)

	for _, amount := range []float64{0, 10, 5000} {
		res, err := calc.Calculate(domain.CalculationInput{
			InvoiceAmount: amount,
			Treatment:     "Consult",
			BaseRule:      domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 15}},
		})
		require.NoError(t, err)
		assert.InDelta(t, 15, res.BaseCompensation, tolerance)
		assert.Equal(t, "flat €15.00", res.Formula)
	}
}

func TestCalculateBatch(t *testing.T) {
	calc := newCalculator(t)
	base := pct(50, false)

	results, err := calc.CalculateBatch([]domain.CalculationInput{
		{InvoiceAmount: 100, Treatment: "A", BaseRule: base},
		{InvoiceAmount: 200, Treatment: "B", BaseRule: base},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 100, results[1].BaseCompensation, tolerance)

	_, err = calc.CalculateBatch([]domain.CalculationInput{
		{InvoiceAmount: 100, Treatment: "A", BaseRule: base},
		{InvoiceAmount: 100, Treatment: "A", BaseRule: pct(-5, false)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
	assert.Contains(t, err.Error(), "line 1")
}
