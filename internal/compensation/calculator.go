// Package compensation computes a doctor's compensation for invoiced
// treatments from a base rule, its exceptions and the product costs.
package compensation

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/exceptions"
	"github.com/opensource-finance/compenso/internal/rules"
)

// Calculator turns invoice lines into compensation breakdowns.
// It holds no per-doctor state and is safe for concurrent use.
type Calculator struct {
	engine *rules.FormulaEngine
}

// NewCalculator creates a calculator with compiled rule formulas.
func NewCalculator() (*Calculator, error) {
	engine, err := rules.NewFormulaEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create formula engine: %w", err)
	}
	return &Calculator{engine: engine}, nil
}

// Calculate computes the compensation for one invoice line.
// It fails with domain.ErrInvalidRule when the resolved rule is invalid.
func (c *Calculator) Calculate(in domain.CalculationInput) (domain.CalculationResult, error) {
	if math.IsNaN(in.InvoiceAmount) || math.IsInf(in.InvoiceAmount, 0) {
		return domain.CalculationResult{}, fmt.Errorf("%w: invoice amount is not a number", domain.ErrInvalidInput)
	}

	gross := in.InvoiceAmount
	net := gross
	if in.VATIncluded {
		net = gross / (1 + domain.VATRate)
	}

	rule, source, exc := resolve(in)

	amount := net
	if rule.Base == domain.BaseGross {
		amount = gross
	}

	base, err := c.engine.Apply(rule, amount)
	if err != nil {
		return domain.CalculationResult{}, fmt.Errorf("%s: %w", describeSource(source, exc), err)
	}

	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}

	product := strings.TrimSpace(in.Product)
	var deducted float64
	var cost domain.ProductCost
	if rule.DeductProductCost && product != "" {
		if pc, ok := findCost(in.ProductCosts, product); ok && !pc.ExcludeFromDeduction {
			cost = pc
			deducted = pc.Cost * qty
		}
	}

	result := domain.CalculationResult{
		GrossAmount:           gross,
		NetAmount:             net,
		BaseCompensation:      base,
		DeductedCost:          deducted,
		NetCompensation:       base - deducted,
		RuleSource:            source,
		RuleSourceDescription: describeSource(source, exc),
		AppliedRule:           rule,
		Formula:               describeFormula(rule, amount),
	}
	if source != domain.SourceBaseRule {
		result.ExceptionID = exc.ID
	}
	result.Explanation = explain(in, result, cost, qty)

	return result, nil
}

// CalculateBatch computes every input in order. It stops at the first failure
// and reports its position.
func (c *Calculator) CalculateBatch(inputs []domain.CalculationInput) ([]domain.CalculationResult, error) {
	results := make([]domain.CalculationResult, 0, len(inputs))
	for i, in := range inputs {
		res, err := c.Calculate(in)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func resolve(in domain.CalculationInput) (domain.Rule, domain.RuleSource, domain.Exception) {
	exc, ok := exceptions.FindApplicable(in.Exceptions, in.Treatment, in.Product)
	if !ok {
		return in.BaseRule, domain.SourceBaseRule, domain.Exception{}
	}
	if exc.IsGeneric() {
		return exc.Rule, domain.SourceGenericException, exc
	}
	return exc.Rule, domain.SourceProductException, exc
}

func findCost(list []domain.ProductCost, name string) (domain.ProductCost, bool) {
	for _, pc := range list {
		if strings.TrimSpace(pc.Name) == name {
			return pc, true
		}
	}
	return domain.ProductCost{}, false
}

func explain(in domain.CalculationInput, res domain.CalculationResult, cost domain.ProductCost, qty float64) string {
	var b strings.Builder

	if in.VATIncluded {
		fmt.Fprintf(&b, "Invoice %s including %s VAT, net %s. ", money(res.GrossAmount), percent(domain.VATRate*100), money(res.NetAmount))
	} else {
		fmt.Fprintf(&b, "Invoice %s. ", money(res.GrossAmount))
	}

	fmt.Fprintf(&b, "Applied %s on the %s amount: %s = %s.",
		res.RuleSourceDescription, res.AppliedRule.Base, res.Formula, money(res.BaseCompensation))

	if res.DeductedCost != 0 {
		fmt.Fprintf(&b, " Deducted %s × %s for %s = %s.", quantity(qty), money(cost.Cost), cost.Name, money(res.DeductedCost))
	}

	fmt.Fprintf(&b, " Net compensation %s.", money(res.NetCompensation))
	return b.String()
}
