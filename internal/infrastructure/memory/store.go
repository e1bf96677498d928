// Package memory provides in-memory repositories for the single-process
// deployment and for tests. All mutations are atomic read-modify-writes
// guarded by one mutex; reads return deep copies.
package memory

import (
	"context"
	"sync"

	"github.com/carepoint/pharmacy-core/internal/domain/billing"
	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/patient"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
)

// Store holds every entity collection behind a single lock.
type Store struct {
	mu               sync.RWMutex
	prescriptions    map[string]*prescription.Prescription
	order            []string
	medicines        map[string]*catalog.Medicine
	patients         map[string]*patient.Patient
	transactions     map[string]*billing.Transaction
	txByPrescription map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		prescriptions:    make(map[string]*prescription.Prescription),
		medicines:        make(map[string]*catalog.Medicine),
		patients:         make(map[string]*patient.Patient),
		transactions:     make(map[string]*billing.Transaction),
		txByPrescription: make(map[string]string),
	}
}

// Prescriptions returns the prescription repository view.
func (s *Store) Prescriptions() prescription.Repository { return &prescriptionRepo{s} }

// Medicines returns the catalog repository view.
func (s *Store) Medicines() catalog.Repository { return &medicineRepo{s} }

// Patients returns the patient repository view.
func (s *Store) Patients() patient.Repository { return &patientRepo{s} }

// Transactions returns the billing repository view.
func (s *Store) Transactions() billing.Repository { return &transactionRepo{s} }

type prescriptionRepo struct{ s *Store }

func (r *prescriptionRepo) Create(_ context.Context, p *prescription.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.prescriptions[p.ID]; ok {
		return fault.Errorf(fault.Conflict, "prescription %s already exists", p.ID)
	}
	r.s.prescriptions[p.ID] = p.Clone()
	r.s.order = append(r.s.order, p.ID)
	return nil
}

func (r *prescriptionRepo) Update(_ context.Context, p *prescription.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.prescriptions[p.ID]
	if !ok {
		return fault.Errorf(fault.NotFound, "prescription %s not found", p.ID)
	}
	if stored.Version != p.Version {
		return fault.Errorf(fault.Conflict, "prescription %s: version %d is stale (stored %d)", p.ID, p.Version, stored.Version)
	}
	next := p.Clone()
	next.Version = stored.Version + 1
	r.s.prescriptions[p.ID] = next
	p.Version = next.Version
	return nil
}

func (r *prescriptionRepo) ByID(_ context.Context, id string) (*prescription.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "prescription %s not found", id)
	}
	return p.Clone(), nil
}

func (r *prescriptionRepo) ByDoctor(_ context.Context, doctorID string) ([]*prescription.Prescription, error) {
	return r.filter(func(p *prescription.Prescription) bool { return p.DoctorID == doctorID })
}

func (r *prescriptionRepo) ByStatus(_ context.Context, status prescription.Status) ([]*prescription.Prescription, error) {
	return r.filter(func(p *prescription.Prescription) bool { return p.Status == status })
}

func (r *prescriptionRepo) List(_ context.Context) ([]*prescription.Prescription, error) {
	return r.filter(func(*prescription.Prescription) bool { return true })
}

// filter re-evaluates over current state in insertion order.
func (r *prescriptionRepo) filter(keep func(*prescription.Prescription) bool) ([]*prescription.Prescription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*prescription.Prescription
	for _, id := range r.s.order {
		if p := r.s.prescriptions[id]; keep(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

type medicineRepo struct{ s *Store }

func (r *medicineRepo) ByID(_ context.Context, id string) (*catalog.Medicine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "medicine %s not found", id)
	}
	return m.Clone(), nil
}

func (r *medicineRepo) List(_ context.Context) ([]*catalog.Medicine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*catalog.Medicine, 0, len(r.s.medicines))
	for _, m := range r.s.medicines {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (r *medicineRepo) Save(_ context.Context, m *catalog.Medicine) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.medicines[m.ID] = m.Clone()
	return nil
}

func (r *medicineRepo) AdjustStock(_ context.Context, id string, delta int) (*catalog.Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "medicine %s not found", id)
	}
	next := m.Clone()
	if err := next.AdjustStock(delta); err != nil {
		return nil, err
	}
	r.s.medicines[id] = next
	return next.Clone(), nil
}

type patientRepo struct{ s *Store }

func (r *patientRepo) ByID(_ context.Context, id string) (*patient.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "patient %s not found", id)
	}
	return p.Clone(), nil
}

func (r *patientRepo) List(_ context.Context) ([]*patient.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*patient.Patient, 0, len(r.s.patients))
	for _, p := range r.s.patients {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r *patientRepo) Create(_ context.Context, p *patient.Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[p.ID]; ok {
		return fault.Errorf(fault.Conflict, "patient %s already exists", p.ID)
	}
	r.s.patients[p.ID] = p.Clone()
	return nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Commit(_ context.Context, t *billing.Transaction, p *prescription.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.txByPrescription[t.PrescriptionID]; ok {
		return fault.Errorf(fault.Conflict, "prescription %s is already billed", t.PrescriptionID)
	}
	stored, ok := r.s.prescriptions[p.ID]
	if !ok {
		return fault.Errorf(fault.NotFound, "prescription %s not found", p.ID)
	}
	if stored.Version != p.Version {
		return fault.Errorf(fault.Conflict, "prescription %s: version %d is stale (stored %d)", p.ID, p.Version, stored.Version)
	}

	next := p.Clone()
	next.Version = stored.Version + 1
	r.s.prescriptions[p.ID] = next
	p.Version = next.Version
	r.s.transactions[t.ID] = t.Clone()
	r.s.txByPrescription[t.PrescriptionID] = t.ID
	return nil
}

func (r *transactionRepo) ByPrescription(_ context.Context, prescriptionID string) (*billing.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.txByPrescription[prescriptionID]
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "no transaction for prescription %s", prescriptionID)
	}
	return r.s.transactions[id].Clone(), nil
}

func (r *transactionRepo) List(_ context.Context) ([]*billing.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*billing.Transaction, 0, len(r.s.transactions))
	for _, t := range r.s.transactions {
		out = append(out, t.Clone())
	}
	return out, nil
}
