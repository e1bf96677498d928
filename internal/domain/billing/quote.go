// Package billing computes quotes over a prescription's line items and turns
// them into immutable transactions, driving the prescription to completed.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

// taxRate is the flat demonstrative 8% rate applied after discount.
var taxRate = decimal.New(8, -2)

var hundred = decimal.New(100, 0)

// PaymentMethod enumerates how a transaction is settled.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentInsurance PaymentMethod = "insurance"
)

// ParsePaymentMethod validates a wire value.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentCard, PaymentInsurance:
		return PaymentMethod(s), nil
	}
	return "", fault.Errorf(fault.Validation, "unknown payment method %q", s)
}

// Quote is the computed, not-yet-committed billing breakdown. All fields are
// final; the rendering layer does no further arithmetic.
//
// Rounding policy: subtotal is an exact sum of cent-denominated prices;
// DiscountAmount and Tax are rounded half-up to cents; Total is the exact
// identity Subtotal - DiscountAmount + Tax.
type Quote struct {
	PrescriptionID  string          `json:"prescription_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
}

// ComputeQuote derives the billing breakdown for a prescription. A zero-line
// prescription yields a degenerate but legal all-zero quote.
func ComputeQuote(p *prescription.Prescription, discountPercent decimal.Decimal, method PaymentMethod) (*Quote, error) {
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return nil, fault.Errorf(fault.Validation, "discount percent %s is outside [0, 100]", discountPercent)
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, l := range p.Lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	discountAmount := subtotal.Mul(discountPercent).Div(hundred).Round(2)
	taxable := subtotal.Sub(discountAmount)
	tax := taxable.Mul(taxRate).Round(2)
	total := taxable.Add(tax)

	return &Quote{
		PrescriptionID:  p.ID,
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		DiscountAmount:  discountAmount,
		Tax:             tax,
		Total:           total,
		PaymentMethod:   method,
	}, nil
}
