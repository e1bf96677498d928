// Package event defines the discrete workflow events emitted across the
// notification boundary. Delivery is best-effort; consumers must tolerate
// duplicates.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the workflow engines.
const (
	PrescriptionCreated       = "prescription.created"
	PrescriptionStatusChanged = "prescription.status_changed"
	TransactionCreated        = "transaction.created"
)

// Event is a discrete workflow notification.
type Event struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// New builds an event with the payload marshaled to JSON.
func New(name, aggregateID string, payload interface{}) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}
	return Event{
		ID:          uuid.New().String(),
		Name:        name,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     raw,
	}, nil
}

// PrescriptionCreatedPayload describes a prescription.created event.
type PrescriptionCreatedPayload struct {
	PrescriptionID string `json:"prescription_id"`
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	LineCount      int    `json:"line_count"`
}

// StatusChangedPayload describes a prescription.status_changed event.
type StatusChangedPayload struct {
	PrescriptionID string `json:"prescription_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	ActorID        string `json:"actor_id"`
	Reason         string `json:"reason,omitempty"`
}

// TransactionCreatedPayload describes a transaction.created event.
type TransactionCreatedPayload struct {
	TransactionID  string `json:"transaction_id"`
	PrescriptionID string `json:"prescription_id"`
	CashierID      string `json:"cashier_id"`
	InvoiceNumber  string `json:"invoice_number"`
	Total          string `json:"total"`
	PaymentMethod  string `json:"payment_method"`
}

// Publisher delivers events to the notification boundary.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
