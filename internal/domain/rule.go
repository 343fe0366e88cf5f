package domain

import (
	"encoding/json"
	"fmt"
)

// RuleKind identifies the compensation formula of a rule.
type RuleKind string

const (
	// KindPercentage pays value% of the base amount.
	KindPercentage RuleKind = "percentage"

	// KindTiered pays 100% up to a threshold, then a percentage of the excess.
	KindTiered RuleKind = "tiered"

	// KindFixed pays a flat amount, or the greater of the flat amount and a percentage.
	KindFixed RuleKind = "fixed"
)

// AmountBase selects which invoice amount a rule is applied to.
type AmountBase string

const (
	BaseNet   AmountBase = "net"
	BaseGross AmountBase = "gross"
)

// Formula is the kind-specific payload of a Rule.
// It is a closed set: Percentage, Tiered and Fixed.
type Formula interface {
	Kind() RuleKind
	isFormula()
}

// Percentage pays Value percent (0-100) of the base amount.
type Percentage struct {
	Value float64
}

// Tiered pays the full base amount up to Threshold and Percent percent of the excess.
type Tiered struct {
	Threshold float64
	Percent   float64
}

// Fixed pays Amount. When Percent is positive it pays the greater of Amount
// and Percent percent of the base amount.
type Fixed struct {
	Amount  float64
	Percent float64
}

func (Percentage) Kind() RuleKind { return KindPercentage }
func (Tiered) Kind() RuleKind     { return KindTiered }
func (Fixed) Kind() RuleKind      { return KindFixed }

func (Percentage) isFormula() {}
func (Tiered) isFormula()     {}
func (Fixed) isFormula()      {}

// Rule is a compensation rule: a formula plus the amount it applies to and
// whether product costs are deducted from the result.
type Rule struct {
	Base              AmountBase
	DeductProductCost bool
	Formula           Formula
}

// Kind returns the kind of the rule's formula, or "" when it has none.
func (r Rule) Kind() RuleKind {
	if r.Formula == nil {
		return ""
	}
	return r.Formula.Kind()
}

// Equal reports whether two rules are value-for-value identical.
func (r Rule) Equal(other Rule) bool {
	return r.Base == other.Base &&
		r.DeductProductCost == other.DeductProductCost &&
		r.Formula == other.Formula
}

// RuleSpec is the flat, persisted shape of a Rule:
//
//	{kind, base, deductProductCost, value?, thresholdX?, thresholdY?}
//
// For tiered and fixed rules thresholdX/thresholdY carry the threshold (or flat
// amount) and the percentage respectively.
type RuleSpec struct {
	Kind              RuleKind   `json:"kind" yaml:"kind"`
	Base              AmountBase `json:"base,omitempty" yaml:"base"`
	DeductProductCost bool       `json:"deductProductCost" yaml:"deductProductCost"`
	Value             *float64   `json:"value,omitempty" yaml:"value"`
	ThresholdX        *float64   `json:"thresholdX,omitempty" yaml:"thresholdX"`
	ThresholdY        *float64   `json:"thresholdY,omitempty" yaml:"thresholdY"`
}

// Rule normalizes the persisted shape into a Rule. It is the single place where defaults
// are filled in: a missing base means net, a missing optional thresholdY on a
// fixed rule means no percentage. Missing required fields and unknown kinds are
// rejected; out-of-range values are kept and left to the validator.
func (s RuleSpec) Rule() (Rule, error) {
	base := s.Base
	switch base {
	case "":
		base = BaseNet
	case BaseNet, BaseGross:
	default:
		return Rule{}, fmt.Errorf("%w: unknown base %q", ErrInvalidRule, s.Base)
	}

	rule := Rule{Base: base, DeductProductCost: s.DeductProductCost}

	switch s.Kind {
	case KindPercentage:
		if s.Value == nil {
			return Rule{}, fmt.Errorf("%w: percentage rule requires value", ErrInvalidRule)
		}
		rule.Formula = Percentage{Value: *s.Value}

	case KindTiered:
		if s.ThresholdX == nil || s.ThresholdY == nil {
			return Rule{}, fmt.Errorf("%w: tiered rule requires thresholdX and thresholdY", ErrInvalidRule)
		}
		rule.Formula = Tiered{Threshold: *s.ThresholdX, Percent: *s.ThresholdY}

	case KindFixed:
		if s.ThresholdX == nil {
			return Rule{}, fmt.Errorf("%w: fixed rule requires thresholdX", ErrInvalidRule)
		}
		f := Fixed{Amount: *s.ThresholdX}
		if s.ThresholdY != nil {
			f.Percent = *s.ThresholdY
		}
		rule.Formula = f

	default:
		return Rule{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, s.Kind)
	}

	return rule, nil
}

// Spec returns the persisted shape of the rule.
func (r Rule) Spec() RuleSpec {
	spec := RuleSpec{
		Kind:              r.Kind(),
		Base:              r.Base,
		DeductProductCost: r.DeductProductCost,
	}

	switch f := r.Formula.(type) {
	case Percentage:
		spec.Value = float64Ptr(f.Value)
	case Tiered:
		spec.ThresholdX = float64Ptr(f.Threshold)
		spec.ThresholdY = float64Ptr(f.Percent)
	case Fixed:
		spec.ThresholdX = float64Ptr(f.Amount)
		if f.Percent != 0 {
			spec.ThresholdY = float64Ptr(f.Percent)
		}
	}

	return spec
}

// MarshalJSON encodes the rule in its persisted shape.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Spec())
}

// UnmarshalJSON decodes and normalizes a persisted rule.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var spec RuleSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	rule, err := spec.Rule()
	if err != nil {
		return err
	}
	*r = rule
	return nil
}

// RulePatch is a partial rule update. Non-nil fields overwrite the
// corresponding fields of the rule's persisted shape.
type RulePatch struct {
	Kind              *RuleKind   `json:"kind,omitempty"`
	Base              *AmountBase `json:"base,omitempty"`
	DeductProductCost *bool       `json:"deductProductCost,omitempty"`
	Value             *float64    `json:"value,omitempty"`
	ThresholdX        *float64    `json:"thresholdX,omitempty"`
	ThresholdY        *float64    `json:"thresholdY,omitempty"`
}

// ApplyTo merges the patch into rule and normalizes the result.
// The original rule is never modified.
func (p RulePatch) ApplyTo(rule Rule) (Rule, error) {
	spec := rule.Spec()

	if p.Kind != nil {
		spec.Kind = *p.Kind
	}
	if p.Base != nil {
		spec.Base = *p.Base
	}
	if p.DeductProductCost != nil {
		spec.DeductProductCost = *p.DeductProductCost
	}
	if p.Value != nil {
		spec.Value = float64Ptr(*p.Value)
	}
	if p.ThresholdX != nil {
		spec.ThresholdX = float64Ptr(*p.ThresholdX)
	}
	if p.ThresholdY != nil {
		spec.ThresholdY = float64Ptr(*p.ThresholdY)
	}

	return spec.Rule()
}

func float64Ptr(v float64) *float64 {
	return &v
}
