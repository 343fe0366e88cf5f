package compensation

import (
	"testing"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioBase() domain.CalculationInput {
	return domain.CalculationInput{
		InvoiceAmount: 122,
		VATIncluded:   true,
		Treatment:     "Peeling",
		Product:       "SerumX",
		Quantity:      2,
		BaseRule:      pct(50, true),
		Exceptions: []domain.Exception{
			{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: pct(60, true)},
		},
		ProductCosts: []domain.ProductCost{{ID: 1, Name: "SerumX", Cost: 10}},
	}
}

func TestAnalyzeScenarios(t *testing.T) {
	calc := newCalculator(t)
	base := scenarioBase()

	results, err := calc.AnalyzeScenarios(base, []Variation{
		VaryInvoiceAmount(244),
		VaryVATIncluded(false),
		VaryTreatment("Laser"),
		VaryProduct("SerumY"),
		VaryQuantity(1),
		VaryRuleValue(70),
		VaryBaseRule(pct(40, false)),
	})
	require.NoError(t, err)
	require.Len(t, results, 7)

	tests := []struct {
		label string
		net   float64
	}{
		{"invoiceAmount = €244.00", 120 - 20},
		{"vatIncluded = false", 73.2 - 20},
		{`treatment = "Laser"`, 50 - 20},
		{`product = "SerumY"`, 50},
		{"quantity = 1", 60 - 10},
		{"ruleValue = 70%", 70 - 20},
		{"baseRule = 40% of net amount", 60 - 20},
	}

	for i, tt := range tests {
		assert.Equal(t, tt.label, results[i].Label)
		assert.InDelta(t, tt.net, results[i].Result.NetCompensation, tolerance, tt.label)
	}

	// The base input is untouched.
	assert.Equal(t, scenarioBase(), base)
}

func TestVaryRuleValueOnBaseRule(t *testing.T) {
	calc := newCalculator(t)
	base := scenarioBase()
	base.Treatment = "Botox"

	results, err := calc.AnalyzeScenarios(base, []Variation{VaryRuleValue(25)})
	require.NoError(t, err)
	assert.InDelta(t, 25-20, results[0].Result.NetCompensation, tolerance)
	assert.Equal(t, domain.SourceBaseRule, results[0].Result.RuleSource)
}

func TestAnalyzeScenariosErrors(t *testing.T) {
	calc := newCalculator(t)

	_, err := calc.AnalyzeScenarios(scenarioBase(), []Variation{{Field: "discount"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = calc.AnalyzeScenarios(scenarioBase(), []Variation{VaryQuantity(3), VaryRuleValue(140)})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
	assert.Contains(t, err.Error(), "variation 1")
}
