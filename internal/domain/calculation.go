package domain

import "time"

// VATRate is the fixed VAT rate extracted from VAT-inclusive invoice amounts.
const VATRate = 0.22

// CalculationInput holds one treated invoice line and the doctor's rule set.
type CalculationInput struct {
	InvoiceAmount float64       `json:"invoiceAmount"`
	VATIncluded   bool          `json:"vatIncluded"`
	Treatment     string        `json:"treatment"`
	Product       string        `json:"product,omitempty"`
	Quantity      float64       `json:"quantity,omitempty"` // defaults to 1
	BaseRule      Rule          `json:"baseRule"`
	Exceptions    []Exception   `json:"exceptions,omitempty"`
	ProductCosts  []ProductCost `json:"productCosts,omitempty"`
}

// RuleSource identifies which resolution step produced the applied rule.
type RuleSource string

const (
	SourceProductException RuleSource = "product-exception"
	SourceGenericException RuleSource = "generic-exception"
	SourceBaseRule         RuleSource = "base-rule"
)

// CalculationResult is the full compensation breakdown for one line.
// NetCompensation may be negative; it is never clamped.
type CalculationResult struct {
	GrossAmount           float64    `json:"grossAmount"`
	NetAmount             float64    `json:"netAmount"`
	BaseCompensation      float64    `json:"baseCompensation"`
	DeductedCost          float64    `json:"deductedCost"`
	NetCompensation       float64    `json:"netCompensation"`
	RuleSource            RuleSource `json:"ruleSource"`
	RuleSourceDescription string     `json:"ruleSourceDescription"`
	ExceptionID           int        `json:"exceptionId,omitempty"`
	AppliedRule           Rule       `json:"appliedRule"`
	Formula               string     `json:"formula"`
	Explanation           string     `json:"explanation"`
}

// ScenarioResult is the outcome of one what-if variation.
type ScenarioResult struct {
	Label  string            `json:"label"`
	Result CalculationResult `json:"result"`
}

// Calculation is the stored audit record of a computed line.
type Calculation struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	DoctorID  string            `json:"doctorId"`
	Line      InvoiceLine       `json:"line"`
	Result    CalculationResult `json:"result"`
	CreatedAt time.Time         `json:"createdAt"`
}

// InvoiceLine is the invoice-side part of a CalculationInput, used when the
// rule set comes from a stored doctor configuration.
type InvoiceLine struct {
	InvoiceAmount float64 `json:"invoiceAmount"`
	VATIncluded   bool    `json:"vatIncluded"`
	Treatment     string  `json:"treatment"`
	Product       string  `json:"product,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
}

// Input combines the line with a doctor configuration.
func (l InvoiceLine) Input(cfg *DoctorConfig) CalculationInput {
	return CalculationInput{
		InvoiceAmount: l.InvoiceAmount,
		VATIncluded:   l.VATIncluded,
		Treatment:     l.Treatment,
		Product:       l.Product,
		Quantity:      l.Quantity,
		BaseRule:      cfg.BaseRule,
		Exceptions:    cfg.Exceptions,
		ProductCosts:  cfg.ProductCosts,
	}
}
