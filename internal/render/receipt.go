// Package render formats committed billing results for display or print. It
// consumes final quote fields only; no arithmetic happens here.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

const receiptWidth = 42

// Receipt writes a plain-text invoice for a committed transaction.
func Receipt(w io.Writer, t *billing.Transaction, p *prescription.Prescription, pat *patient.Patient) error {
	rule := strings.Repeat("-", receiptWidth)

	fmt.Fprintf(w, "%s\n", center("CAREPOINT PHARMACY"))
	fmt.Fprintf(w, "%s\n", center("Invoice "+t.InvoiceNumber))
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "Date:    %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
	if pat != nil {
		fmt.Fprintf(w, "Patient: %s (%s)\n", pat.Name, pat.MedicalID)
	}
	fmt.Fprintf(w, "Rx:      %s\n", t.PrescriptionID)
	fmt.Fprintf(w, "%s\n", rule)

	for _, l := range p.Lines {
		lineTotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		fmt.Fprintf(w, "%s\n", l.MedicineName)
		fmt.Fprintf(w, "  %d x %s%s\n", l.Quantity, l.UnitPrice.StringFixed(2),
			pad(lineTotal.StringFixed(2), l.Quantity, l.UnitPrice.StringFixed(2)))
	}

	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "%-28s%14s\n", "Subtotal:", t.Subtotal.StringFixed(2))
	if t.Discount.IsPositive() {
		fmt.Fprintf(w, "%-28s%14s\n", "Discount:", "-"+t.Discount.StringFixed(2))
	}
	fmt.Fprintf(w, "%-28s%14s\n", "Tax (8%):", t.Tax.StringFixed(2))
	fmt.Fprintf(w, "%-28s%14s\n", "TOTAL:", t.Total.StringFixed(2))
	fmt.Fprintf(w, "%s\n", rule)
	fmt.Fprintf(w, "Paid by %s\n", t.PaymentMethod)
	_, err := fmt.Fprintf(w, "%s\n", center("Thank you for your visit"))
	return err
}

func center(s string) string {
	if len(s) >= receiptWidth {
		return s
	}
	left := (receiptWidth - len(s)) / 2
	return strings.Repeat(" ", left) + s
}

func pad(total string, qty int, unit string) string {
	used := 2 + lenInt(qty) + 3 + len(unit)
	width := receiptWidth - used
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%*s", width, total)
}

func lenInt(n int) int {
	return len(fmt.Sprintf("%d", n))
}
