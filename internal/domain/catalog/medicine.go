// Package catalog holds the medicine catalog: priced, stock-counted reference
// data read by the pharmacist review step and snapshotted into prescriptions.
package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

// Medicine is a catalog entry. Price is in currency units; Stock is a unit count.
type Medicine struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	GenericName  string          `json:"generic_name,omitempty"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Category     string          `json:"category,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	DosageForm   string          `json:"dosage_form,omitempty"`
	Strength     string          `json:"strength,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

// Validate checks the catalog invariants: price >= 0, stock >= 0, name set.
func (m *Medicine) Validate() error {
	if m.ID == "" {
		return fault.New(fault.Validation, "medicine id is required")
	}
	if m.Name == "" {
		return fault.New(fault.Validation, "medicine name is required")
	}
	if m.Price.IsNegative() {
		return fault.Errorf(fault.Validation, "medicine %s: price must not be negative", m.ID)
	}
	if m.Stock < 0 {
		return fault.Errorf(fault.Validation, "medicine %s: stock must not be negative", m.ID)
	}
	return nil
}

// AdjustStock applies a stock delta. No adjustment may drive stock negative.
func (m *Medicine) AdjustStock(delta int) error {
	if m.Stock+delta < 0 {
		return fault.Errorf(fault.Validation, "medicine %s: stock %d cannot absorb delta %d", m.ID, m.Stock, delta)
	}
	m.Stock += delta
	return nil
}

// Clone returns a deep copy.
func (m *Medicine) Clone() *Medicine {
	c := *m
	return &c
}

// StockLevel classifies a stock count for the pharmacist's availability check.
type StockLevel string

const (
	StockOut       StockLevel = "out_of_stock"
	StockLow       StockLevel = "low_stock"
	StockAvailable StockLevel = "available"
)

// lowStockThreshold is the count below which a medicine is flagged low.
const lowStockThreshold = 50

// LevelForStock classifies a stock count.
func LevelForStock(stock int) StockLevel {
	switch {
	case stock <= 0:
		return StockOut
	case stock < lowStockThreshold:
		return StockLow
	default:
		return StockAvailable
	}
}
