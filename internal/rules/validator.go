package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/compenso/internal/domain"
)

// Validate checks a single rule against the bounds of its kind.
// The returned error wraps domain.ErrInvalidRule.
func Validate(rule domain.Rule) error {
	switch rule.Base {
	case domain.BaseNet, domain.BaseGross:
	default:
		return fmt.Errorf("%w: unknown base %q", domain.ErrInvalidRule, rule.Base)
	}

	switch f := rule.Formula.(type) {
	case domain.Percentage:
		if !finite(f.Value) || f.Value < 0 || f.Value > 100 {
			return fmt.Errorf("%w: percentage value must be between 0 and 100, got %v", domain.ErrInvalidRule, f.Value)
		}

	case domain.Tiered:
		if !finite(f.Threshold) || f.Threshold < 0 {
			return fmt.Errorf("%w: tiered thresholdX must be >= 0, got %v", domain.ErrInvalidRule, f.Threshold)
		}
		if !finite(f.Percent) || f.Percent <= 0 {
			return fmt.Errorf("%w: tiered thresholdY must be > 0, got %v", domain.ErrInvalidRule, f.Percent)
		}

	case domain.Fixed:
		if !finite(f.Amount) || f.Amount < 0 {
			return fmt.Errorf("%w: fixed thresholdX must be >= 0, got %v", domain.ErrInvalidRule, f.Amount)
		}
		// Zero means "no percentage".
		if !finite(f.Percent) || f.Percent < 0 {
			return fmt.Errorf("%w: fixed thresholdY must be > 0 when set, got %v", domain.ErrInvalidRule, f.Percent)
		}

	case nil:
		return fmt.Errorf("%w: rule has no formula", domain.ErrInvalidRule)

	default:
		return fmt.Errorf("%w: unsupported formula %T", domain.ErrInvalidRule, f)
	}

	return nil
}

// IsValid reports whether a rule can be used to compute a payment.
func IsValid(rule domain.Rule) bool {
	return Validate(rule) == nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateCoherence inspects a whole rule set and returns advisory warnings.
// It never fails and does not modify its inputs. Findings are ordered:
// per-exception checks, cross-exception conflicts, cost configuration.
func ValidateCoherence(baseRule domain.Rule, exceptions []domain.Exception, productCosts []domain.ProductCost) []domain.Warning {
	warnings := make([]domain.Warning, 0)
	warnings = append(warnings, checkExceptions(baseRule, exceptions)...)
	warnings = append(warnings, checkConflicts(exceptions)...)
	warnings = append(warnings, checkCosts(baseRule, exceptions, productCosts)...)
	return warnings
}

// HasErrors reports whether any warning has error severity.
func HasErrors(warnings []domain.Warning) bool {
	for _, w := range warnings {
		if w.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

func checkExceptions(baseRule domain.Rule, exceptions []domain.Exception) []domain.Warning {
	var warnings []domain.Warning

	for _, exc := range exceptions {
		key := exc.Key()

		if exc.Rule.Equal(baseRule) {
			warnings = append(warnings, newWarning(domain.WarningIdentical, domain.SeverityWarning, exc.ID,
				fmt.Sprintf("exception for %s is identical to the base rule", key)))
		}

		excPct, excOK := exc.Rule.Formula.(domain.Percentage)
		basePct, baseOK := baseRule.Formula.(domain.Percentage)
		if excOK && baseOK && excPct.Value > basePct.Value {
			warnings = append(warnings, newWarning(domain.WarningMoreGenerous, domain.SeverityInfo, exc.ID,
				fmt.Sprintf("exception for %s pays %s%%, more than the base rule's %s%%",
					key, formatNumber(excPct.Value), formatNumber(basePct.Value))))
		}

		if err := Validate(exc.Rule); err != nil {
			warnings = append(warnings, newWarning(domain.WarningConflict, domain.SeverityError, exc.ID,
				fmt.Sprintf("exception for %s has an invalid rule: %v", key, err)))
		}
	}

	return warnings
}

func checkConflicts(exceptions []domain.Exception) []domain.Warning {
	var warnings []domain.Warning

	// Group by treatment, keeping first-appearance order.
	var treatments []string
	byTreatment := make(map[string][]domain.Exception)
	for _, exc := range exceptions {
		key := exc.Key()
		if _, ok := byTreatment[key.Treatment]; !ok {
			treatments = append(treatments, key.Treatment)
		}
		byTreatment[key.Treatment] = append(byTreatment[key.Treatment], exc)
	}

	for _, treatment := range treatments {
		group := byTreatment[treatment]

		var generic []domain.Exception
		var products []string
		byProduct := make(map[string][]domain.Exception)

		for _, exc := range group {
			key := exc.Key()
			if key.Product == "" {
				generic = append(generic, exc)
				continue
			}
			if _, ok := byProduct[key.Product]; !ok {
				products = append(products, key.Product)
			}
			byProduct[key.Product] = append(byProduct[key.Product], exc)
		}

		if len(generic) > 1 {
			warnings = append(warnings, newWarning(domain.WarningConflict, domain.SeverityError, generic[1].ID,
				fmt.Sprintf("treatment %s has %d generic exceptions", treatment, len(generic))))
		}

		for _, product := range products {
			dups := byProduct[product]
			if len(dups) > 1 {
				warnings = append(warnings, newWarning(domain.WarningConflict, domain.SeverityError, dups[1].ID,
					fmt.Sprintf("%d exceptions share %s", len(dups), domain.NewExceptionKey(treatment, product))))
			}
		}
	}

	return warnings
}

func checkCosts(baseRule domain.Rule, exceptions []domain.Exception, productCosts []domain.ProductCost) []domain.Warning {
	var warnings []domain.Warning

	costs := make(map[string]domain.ProductCost, len(productCosts))
	for _, pc := range productCosts {
		costs[strings.TrimSpace(pc.Name)] = pc
	}

	referenced := make(map[string]bool)
	var deducting []string
	deductingSeen := make(map[string]bool)

	for _, exc := range exceptions {
		key := exc.Key()
		if key.Product == "" {
			continue
		}
		referenced[key.Product] = true
		if exc.Rule.DeductProductCost && !deductingSeen[key.Product] {
			deductingSeen[key.Product] = true
			deducting = append(deducting, key.Product)
		}
	}

	for _, product := range deducting {
		pc, ok := costs[product]
		if !ok {
			warnings = append(warnings, domain.Warning{
				Kind:     domain.WarningMissingProductCost,
				Severity: domain.SeverityError,
				Message:  fmt.Sprintf("product %s is deducted by an exception but has no configured cost", product),
			})
			continue
		}
		if pc.Cost == 0 && !pc.ExcludeFromDeduction {
			warnings = append(warnings, domain.Warning{
				Kind:     domain.WarningZeroCost,
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("product %s has a zero cost but is not excluded from deduction", product),
			})
		}
	}

	if baseRule.DeductProductCost {
		for _, pc := range productCosts {
			name := strings.TrimSpace(pc.Name)
			if pc.Cost > 0 && !referenced[name] {
				warnings = append(warnings, domain.Warning{
					Kind:     domain.WarningUnusedCost,
					Severity: domain.SeverityInfo,
					Message:  fmt.Sprintf("cost for product %s is not referenced by any exception", name),
				})
			}
		}
	}

	return warnings
}

func newWarning(kind domain.WarningKind, severity domain.Severity, exceptionID int, message string) domain.Warning {
	id := exceptionID
	return domain.Warning{
		Kind:             kind,
		Message:          message,
		Severity:         severity,
		RelatedException: &id,
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
