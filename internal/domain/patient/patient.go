// Package patient holds static patient reference records attached to
// prescriptions. Records are immutable once created.
package patient

import "github.com/carepoint/pharmacy-core/internal/domain/fault"

// Patient is a reference record.
type Patient struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Age              int      `json:"age"`
	Gender           string   `json:"gender"`
	Phone            string   `json:"phone,omitempty"`
	Email            string   `json:"email,omitempty"`
	Address          string   `json:"address,omitempty"`
	MedicalID        string   `json:"medical_id,omitempty"`
	BloodType        string   `json:"blood_type,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	EmergencyContact string   `json:"emergency_contact,omitempty"`
}

// Validate checks the record is usable as prescription reference data.
func (p *Patient) Validate() error {
	if p.ID == "" {
		return fault.New(fault.Validation, "patient id is required")
	}
	if p.Name == "" {
		return fault.New(fault.Validation, "patient name is required")
	}
	if p.Age < 0 {
		return fault.Errorf(fault.Validation, "patient %s: age must not be negative", p.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Patient) Clone() *Patient {
	c := *p
	if p.Allergies != nil {
		c.Allergies = append([]string(nil), p.Allergies...)
	}
	return &c
}
