package catalog

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/fault"
)

func TestLevelForStock(t *testing.T) {
	cases := []struct {
		stock int
		want  StockLevel
	}{
		{0, StockOut},
		{-3, StockOut},
		{1, StockLow},
		{49, StockLow},
		{50, StockAvailable},
		{1000, StockAvailable},
	}
	for _, tc := range cases {
		if got := LevelForStock(tc.stock); got != tc.want {
			t.Errorf("LevelForStock(%d) = %s, want %s", tc.stock, got, tc.want)
		}
	}
}

func TestAdjustStock(t *testing.T) {
	m := &Medicine{ID: "med-1", Name: "Amoxicillin", Price: decimal.RequireFromString("12.99"), Stock: 10}

	if err := m.AdjustStock(-10); err != nil {
		t.Fatalf("AdjustStock(-10): %v", err)
	}
	if m.Stock != 0 {
		t.Errorf("stock = %d, want 0", m.Stock)
	}

	if err := m.AdjustStock(-1); !fault.Is(err, fault.Validation) {
		t.Errorf("AdjustStock below zero: err = %v, want Validation", err)
	}
	if m.Stock != 0 {
		t.Errorf("stock mutated to %d on failed adjust", m.Stock)
	}

	if err := m.AdjustStock(25); err != nil {
		t.Fatalf("AdjustStock(25): %v", err)
	}
	if m.Stock != 25 {
		t.Errorf("stock = %d, want 25", m.Stock)
	}
}

func TestMedicineValidate(t *testing.T) {
	valid := Medicine{ID: "med-1", Name: "Amoxicillin", Price: decimal.RequireFromString("12.99"), Stock: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid medicine: %v", err)
	}

	cases := []struct {
		name string
		mod  func(*Medicine)
	}{
		{"missing id", func(m *Medicine) { m.ID = "" }},
		{"missing name", func(m *Medicine) { m.Name = "" }},
		{"negative price", func(m *Medicine) { m.Price = decimal.RequireFromString("-0.01") }},
		{"negative stock", func(m *Medicine) { m.Stock = -1 }},
	}
	for _, tc := range cases {
		m := valid
		tc.mod(&m)
		if err := m.Validate(); !fault.Is(err, fault.Validation) {
			t.Errorf("%s: err = %v, want Validation", tc.name, err)
		}
	}
}
