package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/domain/fault"
	"github.com/carepoint/pharmacy-core/internal/domain/prescription"
	"github.com/carepoint/pharmacy-core/internal/identity"
)

// Engine turns quotes into committed transactions. Commit is the only path to
// the completed status.
type Engine struct {
	prescriptions prescription.Repository
	transactions  Repository
	publisher     event.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewEngine creates a billing engine.
func NewEngine(prescriptions prescription.Repository, transactions Repository, publisher event.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		prescriptions: prescriptions,
		transactions:  transactions,
		publisher:     publisher,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Quote computes the billing breakdown for a prescription without committing
// anything. The prescription must be ready for billing.
func (e *Engine) Quote(ctx context.Context, id string, discountPercent decimal.Decimal, method PaymentMethod) (*Quote, error) {
	p, err := e.prescriptions.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != prescription.StatusReadyForBilling {
		return nil, fault.Errorf(fault.InvalidTransition, "prescription %s is %s, not ready for billing", p.ID, p.Status)
	}
	return ComputeQuote(p, discountPercent, method)
}

// Commit bills a prescription: it generates an invoice number, stores the
// immutable transaction and drives the prescription to completed, atomically.
// A prescription not in ready_for_billing fails with InvalidTransition and no
// transaction is created; at most one transaction ever exists per prescription.
func (e *Engine) Commit(ctx context.Context, actor identity.Actor, id string, discountPercent decimal.Decimal, method PaymentMethod) (*Transaction, error) {
	p, err := e.prescriptions.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != prescription.StatusReadyForBilling {
		return nil, fault.Errorf(fault.InvalidTransition, "prescription %s is %s, not ready for billing", p.ID, p.Status)
	}

	quote, err := ComputeQuote(p, discountPercent, method)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if err := p.Complete(actor, now); err != nil {
		return nil, err
	}

	txID := uuid.New().String()
	t := &Transaction{
		ID:             txID,
		PrescriptionID: p.ID,
		CashierID:      actor.ID,
		Subtotal:       quote.Subtotal,
		Discount:       quote.DiscountAmount,
		Tax:            quote.Tax,
		Total:          quote.Total,
		PaymentMethod:  method,
		InvoiceNumber:  NewInvoiceNumber(now, txID),
		CreatedAt:      now,
	}

	if err := e.transactions.Commit(ctx, t, p); err != nil {
		return nil, err
	}

	e.emit(ctx, event.TransactionCreated, t.ID, event.TransactionCreatedPayload{
		TransactionID:  t.ID,
		PrescriptionID: t.PrescriptionID,
		CashierID:      t.CashierID,
		InvoiceNumber:  t.InvoiceNumber,
		Total:          t.Total.StringFixed(2),
		PaymentMethod:  string(t.PaymentMethod),
	})
	e.emit(ctx, event.PrescriptionStatusChanged, p.ID, event.StatusChangedPayload{
		PrescriptionID: p.ID,
		From:           string(prescription.StatusReadyForBilling),
		To:             string(prescription.StatusCompleted),
		ActorID:        actor.ID,
	})
	e.logger.Info("transaction committed",
		zap.String("transaction_id", t.ID),
		zap.String("prescription_id", t.PrescriptionID),
		zap.String("invoice", t.InvoiceNumber),
		zap.String("total", t.Total.StringFixed(2)))
	return t, nil
}

func (e *Engine) emit(ctx context.Context, name, aggregateID string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	ev, err := event.New(name, aggregateID, payload)
	if err != nil {
		e.logger.Error("event marshal failed", zap.String("event", name), zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Error("event publish failed", zap.String("event", name), zap.Error(err))
	}
}
