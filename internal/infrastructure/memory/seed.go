package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
	"github.com/carepoint/pharmacy-core/internal/identity"
)

// Seed loads the development fixtures: a small catalog, two patients and the
// demo actor directory.
func Seed(s *Store) (*identity.Directory, error) {
	ctx := context.Background()

	medicines := []*catalog.Medicine{
		{ID: "med-001", Name: "Paracetamol 500mg", GenericName: "Acetaminophen", Manufacturer: "PharmaCorp", Category: "Analgesic", Price: decimal.RequireFromString("5.99"), Stock: 150, DosageForm: "Tablet", Strength: "500mg"},
		{ID: "med-002", Name: "Amoxicillin 250mg", GenericName: "Amoxicillin", Manufacturer: "MediLab", Category: "Antibiotic", Price: decimal.RequireFromString("12.99"), Stock: 200, DosageForm: "Capsule", Strength: "250mg"},
		{ID: "med-003", Name: "Lisinopril 10mg", GenericName: "Lisinopril", Manufacturer: "CardioMed", Category: "ACE Inhibitor", Price: decimal.RequireFromString("8.50"), Stock: 35, DosageForm: "Tablet", Strength: "10mg"},
		{ID: "med-004", Name: "Metformin 850mg", GenericName: "Metformin", Manufacturer: "GlucoPharm", Category: "Antidiabetic", Price: decimal.RequireFromString("6.75"), Stock: 0, DosageForm: "Tablet", Strength: "850mg"},
	}
	for _, m := range medicines {
		if err := s.Medicines().Save(ctx, m); err != nil {
			return nil, err
		}
	}

	patients := []*patient.Patient{
		{ID: "pat-001", Name: "John Doe", Age: 45, Gender: "male", Phone: "555-0101", MedicalID: "MRN-1001", BloodType: "O+", Allergies: []string{"penicillin"}},
		{ID: "pat-002", Name: "Jane Smith", Age: 32, Gender: "female", Phone: "555-0102", MedicalID: "MRN-1002", BloodType: "A-"},
	}
	for _, p := range patients {
		if err := s.Patients().Create(ctx, p); err != nil {
			return nil, err
		}
	}

	return identity.DemoDirectory(), nil
}
