package prescription

import "github.com/carepoint/pharmacy-core/internal/identity"

// allowed is the transition table. Anything not listed here is an
// InvalidTransition regardless of who attempts it.
func allowed(from, to Status) bool {
	if to == StatusCancelled {
		return !from.Terminal()
	}
	switch from {
	case StatusPending:
		return to == StatusPharmacyReview
	case StatusPharmacyReview:
		return to == StatusReadyForBilling || to == StatusPending
	case StatusReadyForBilling:
		return to == StatusCompleted
	}
	return false
}

// CanTransition is the single authorization policy consumed by every
// transition entry point. It answers only the role/ownership question; edge
// legality is the transition table's job.
func CanTransition(role identity.Role, actorID string, p *Prescription, target Status) bool {
	switch target {
	case StatusPharmacyReview:
		// Only the prescribing doctor sends their own prescription for review.
		return role == identity.RoleDoctor && actorID == p.DoctorID
	case StatusReadyForBilling:
		return role == identity.RolePharmacist
	case StatusPending:
		// The rejection edge back to pending.
		return role == identity.RolePharmacist
	case StatusCompleted:
		return role == identity.RoleCashier
	case StatusCancelled:
		// Any authenticated actor may cancel a non-terminal prescription.
		return true
	}
	return false
}
