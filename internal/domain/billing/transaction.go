package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a completed payment against exactly
// one prescription. Transactions are never updated or deleted.
type Transaction struct {
	ID             string          `json:"id"`
	PrescriptionID string          `json:"prescription_id"`
	CashierID      string          `json:"cashier_id"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	InvoiceNumber  string          `json:"invoice_number"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Clone returns a copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// NewInvoiceNumber derives a unique human-readable invoice number from the
// billing date and the transaction id.
func NewInvoiceNumber(now time.Time, transactionID string) string {
	frag := strings.ToUpper(strings.ReplaceAll(transactionID, "-", ""))
	if len(frag) > 8 {
		frag = frag[:8]
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), frag)
}
