package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carepoint/pharmacy-core/internal/domain/catalog"
	"github.com/carepoint/pharmacy-core/internal/domain/event"
	"github.com/carepoint/pharmacy-core/internal/identity"
)

// Engine owns the prescription lifecycle: it validates transitions, stamps
// actors and timestamps, persists the result atomically and emits workflow
// events. Every command either fully applies or leaves the stored entity
// exactly as it was.
type Engine struct {
	repo      Repository
	catalog   catalog.Repository
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates a lifecycle engine.
func NewEngine(repo Repository, cat catalog.Repository, publisher event.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:      repo,
		catalog:   cat,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a new pending prescription for a doctor actor. Line unit
// prices are snapshotted from the catalog.
func (e *Engine) Create(ctx context.Context, actor identity.Actor, cmd CreateCommand) (*Prescription, error) {
	// Stamp a copy; the caller's line slice stays untouched.
	lines := append([]Line(nil), cmd.Lines...)
	for i := range lines {
		m, err := e.catalog.ByID(ctx, lines[i].MedicineID)
		if err != nil {
			return nil, err
		}
		lines[i].MedicineName = m.Name
		lines[i].UnitPrice = m.Price
	}
	cmd.Lines = lines

	p, err := New(uuid.New().String(), actor, cmd, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	e.emit(ctx, event.PrescriptionCreated, p.ID, event.PrescriptionCreatedPayload{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		DoctorID:       p.DoctorID,
		LineCount:      len(p.Lines),
	})
	e.logger.Info("prescription created",
		zap.String("id", p.ID),
		zap.String("doctor_id", p.DoctorID),
		zap.Int("lines", len(p.Lines)))
	return p, nil
}

// Submit sends a pending prescription to pharmacy review.
func (e *Engine) Submit(ctx context.Context, actor identity.Actor, id string) (*Prescription, error) {
	return e.transition(ctx, actor, id, "", (*Prescription).Submit)
}

// Approve marks a reviewed prescription ready for billing.
func (e *Engine) Approve(ctx context.Context, actor identity.Actor, id string) (*Prescription, error) {
	return e.transition(ctx, actor, id, "", (*Prescription).Approve)
}

// Reject returns a prescription under review to the doctor with a reason.
func (e *Engine) Reject(ctx context.Context, actor identity.Actor, id, reason string) (*Prescription, error) {
	return e.transition(ctx, actor, id, reason, func(p *Prescription, a identity.Actor, now time.Time) error {
		return p.Reject(a, reason, now)
	})
}

// Cancel moves a non-terminal prescription to cancelled.
func (e *Engine) Cancel(ctx context.Context, actor identity.Actor, id string) (*Prescription, error) {
	return e.transition(ctx, actor, id, "", func(p *Prescription, _ identity.Actor, now time.Time) error {
		return p.Cancel(now)
	})
}

// transition runs the shared load -> mutate -> save -> emit sequence. The
// mutation happens on a copy, so a failed guard or a stale-version save leaves
// the stored entity byte-for-byte unchanged.
func (e *Engine) transition(ctx context.Context, actor identity.Actor, id, reason string, mutate func(*Prescription, identity.Actor, time.Time) error) (*Prescription, error) {
	p, err := e.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := p.Status

	if err := mutate(p, actor, e.now()); err != nil {
		return nil, err
	}
	if err := e.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	e.emit(ctx, event.PrescriptionStatusChanged, p.ID, event.StatusChangedPayload{
		PrescriptionID: p.ID,
		From:           string(from),
		To:             string(p.Status),
		ActorID:        actor.ID,
		Reason:         reason,
	})
	e.logger.Info("prescription status changed",
		zap.String("id", p.ID),
		zap.String("from", string(from)),
		zap.String("to", string(p.Status)),
		zap.String("actor_id", actor.ID))
	return p, nil
}

// LineAvailability is the advisory stock classification for one line.
type LineAvailability struct {
	MedicineID   string             `json:"medicine_id"`
	MedicineName string             `json:"medicine_name"`
	Quantity     int                `json:"quantity"`
	Stock        int                `json:"stock"`
	Level        catalog.StockLevel `json:"level"`
}

// ReviewAvailability classifies current stock for each line. The result is
// advisory to the pharmacist; it never blocks the approve transition.
func (e *Engine) ReviewAvailability(ctx context.Context, id string) ([]LineAvailability, error) {
	p, err := e.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := make([]LineAvailability, 0, len(p.Lines))
	for _, l := range p.Lines {
		m, err := e.catalog.ByID(ctx, l.MedicineID)
		if err != nil {
			return nil, err
		}
		result = append(result, LineAvailability{
			MedicineID:   l.MedicineID,
			MedicineName: m.Name,
			Quantity:     l.Quantity,
			Stock:        m.Stock,
			Level:        catalog.LevelForStock(m.Stock),
		})
	}
	return result, nil
}

// emit publishes a workflow event. Delivery is best-effort: a publish failure
// is logged, never surfaced to the caller.
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
