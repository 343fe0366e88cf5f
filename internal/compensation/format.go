package compensation

import (
	"fmt"
	"strconv"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/shopspring/decimal"
)

// money renders an amount in euros rounded to cents, e.g. "€1.50" or "-€1.50".
func money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return "-€" + d.Neg().StringFixed(2)
	}
	return "€" + d.StringFixed(2)
}

// percent renders a percentage without trailing zeros, e.g. "12.5%".
func percent(v float64) string {
	return decimal.NewFromFloat(v).String() + "%"
}

func quantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// describeFormula renders the formula applied to amount.
func describeFormula(rule domain.Rule, amount float64) string {
	switch f := rule.Formula.(type) {
	case domain.Percentage:
		return fmt.Sprintf("%s of %s", percent(f.Value), money(amount))
	case domain.Tiered:
		return fmt.Sprintf("100%% up to %s, then %s on the excess", money(f.Threshold), percent(f.Percent))
	case domain.Fixed:
		if f.Percent > 0 {
			return fmt.Sprintf("greater of %s and %s (%s)", money(f.Amount), percent(f.Percent), money(amount*f.Percent/100))
		}
		return "flat " + money(f.Amount)
	default:
		return "no formula"
	}
}

// describeRule renders a rule independently of any amount, e.g.
// "60% of net amount, product cost deducted".
func describeRule(rule domain.Rule) string {
	var s string
	switch f := rule.Formula.(type) {
	case domain.Percentage:
		s = fmt.Sprintf("%s of %s amount", percent(f.Value), rule.Base)
	case domain.Tiered:
		s = fmt.Sprintf("100%% of %s amount up to %s, then %s on the excess", rule.Base, money(f.Threshold), percent(f.Percent))
	case domain.Fixed:
		if f.Percent > 0 {
			s = fmt.Sprintf("greater of %s and %s of %s amount", money(f.Amount), percent(f.Percent), rule.Base)
		} else {
			s = "flat " + money(f.Amount)
		}
	default:
		s = "no formula"
	}
	if rule.DeductProductCost {
		s += ", product cost deducted"
	}
	return s
}

func describeSource(source domain.RuleSource, exc domain.Exception) string {
	switch source {
	case domain.SourceProductException, domain.SourceGenericException:
		return "exception for " + exc.Key().String()
	default:
		return "base rule"
	}
}
