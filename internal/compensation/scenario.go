package compensation

import (
	"fmt"
	"strconv"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/exceptions"
)

// VariationField names the input field a what-if scenario overrides.
type VariationField string

const (
	FieldInvoiceAmount VariationField = "invoiceAmount"
	FieldVATIncluded   VariationField = "vatIncluded"
	FieldTreatment     VariationField = "treatment"
	FieldProduct       VariationField = "product"
	FieldQuantity      VariationField = "quantity"
	FieldRuleValue     VariationField = "ruleValue"
	FieldBaseRule      VariationField = "baseRule"
)

// Variation overrides a single field of a base input. Only the value matching
// the field is read: Number for invoiceAmount, quantity and ruleValue, Flag for
// vatIncluded, Text for treatment and product, Rule for baseRule.
type Variation struct {
	Field  VariationField `json:"field"`
	Number float64        `json:"number,omitempty"`
	Flag   bool           `json:"flag,omitempty"`
	Text   string         `json:"text,omitempty"`
	Rule   *domain.Rule   `json:"rule,omitempty"`
}

func VaryInvoiceAmount(v float64) Variation {
	return Variation{Field: FieldInvoiceAmount, Number: v}
}

func VaryVATIncluded(v bool) Variation {
	return Variation{Field: FieldVATIncluded, Flag: v}
}

func VaryTreatment(v string) Variation {
	return Variation{Field: FieldTreatment, Text: v}
}

func VaryProduct(v string) Variation {
	return Variation{Field: FieldProduct, Text: v}
}

func VaryQuantity(v float64) Variation {
	return Variation{Field: FieldQuantity, Number: v}
}

// VaryRuleValue turns the rule that resolves for the input into a percentage
// rule paying v percent, keeping its base and deduction flag.
func VaryRuleValue(v float64) Variation {
	return Variation{Field: FieldRuleValue, Number: v}
}

func VaryBaseRule(rule domain.Rule) Variation {
	return Variation{Field: FieldBaseRule, Rule: &rule}
}

// Label describes the override, e.g. "ruleValue = 70%".
func (v Variation) Label() string {
	switch v.Field {
	case FieldInvoiceAmount:
		return fmt.Sprintf("%s = %s", v.Field, money(v.Number))
	case FieldVATIncluded:
		return fmt.Sprintf("%s = %s", v.Field, strconv.FormatBool(v.Flag))
	case FieldTreatment, FieldProduct:
		return fmt.Sprintf("%s = %q", v.Field, v.Text)
	case FieldQuantity:
		return fmt.Sprintf("%s = %s", v.Field, quantity(v.Number))
	case FieldRuleValue:
		return fmt.Sprintf("%s = %s", v.Field, percent(v.Number))
	case FieldBaseRule:
		if v.Rule == nil {
			return string(v.Field)
		}
		return fmt.Sprintf("%s = %s", v.Field, describeRule(*v.Rule))
	default:
		return string(v.Field)
	}
}

// Apply returns a copy of in with the field overridden. The input's slices are
// never modified.
func (v Variation) Apply(in domain.CalculationInput) (domain.CalculationInput, error) {
	out := in

	switch v.Field {
	case FieldInvoiceAmount:
		out.InvoiceAmount = v.Number
	case FieldVATIncluded:
		out.VATIncluded = v.Flag
	case FieldTreatment:
		out.Treatment = v.Text
	case FieldProduct:
		out.Product = v.Text
	case FieldQuantity:
		out.Quantity = v.Number
	case FieldRuleValue:
		out = withRuleValue(in, v.Number)
	case FieldBaseRule:
		if v.Rule == nil {
			return domain.CalculationInput{}, fmt.Errorf("%w: baseRule variation requires a rule", domain.ErrInvalidInput)
		}
		out.BaseRule = *v.Rule
	default:
		return domain.CalculationInput{}, fmt.Errorf("%w: unknown variation field %q", domain.ErrInvalidInput, v.Field)
	}

	return out, nil
}

func withRuleValue(in domain.CalculationInput, value float64) domain.CalculationInput {
	out := in

	exc, ok := exceptions.FindApplicable(in.Exceptions, in.Treatment, in.Product)
	if !ok {
		out.BaseRule = asPercentage(in.BaseRule, value)
		return out
	}

	out.Exceptions = make([]domain.Exception, len(in.Exceptions))
	copy(out.Exceptions, in.Exceptions)
	for i := range out.Exceptions {
		if out.Exceptions[i].ID == exc.ID && out.Exceptions[i].Key() == exc.Key() {
			out.Exceptions[i].Rule = asPercentage(exc.Rule, value)
			break
		}
	}
	return out
}

func asPercentage(rule domain.Rule, value float64) domain.Rule {
	return domain.Rule{
		Base:              rule.Base,
		DeductProductCost: rule.DeductProductCost,
		Formula:           domain.Percentage{Value: value},
	}
}

// AnalyzeScenarios computes one result per variation, each applied alone to
// base. It stops at the first failing variation.
func (c *Calculator) AnalyzeScenarios(base domain.CalculationInput, variations []Variation) ([]domain.ScenarioResult, error) {
	results := make([]domain.ScenarioResult, 0, len(variations))
	for i, v := range variations {
		in, err := v.Apply(base)
		if err != nil {
			return nil, fmt.Errorf("variation %d: %w", i, err)
		}
		res, err := c.Calculate(in)
		if err != nil {
			return nil, fmt.Errorf("variation %d (%s): %w", i, v.Label(), err)
		}
		results = append(results, domain.ScenarioResult{Label: v.Label(), Result: res})
	}
	return results, nil
}
