package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events that change who is an affiliate.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers failed proofs and refused credentials.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine workflow activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the registration session the event belongs to.
	Subject     string
	AffiliateID string
	Action      string
	Decision    string
	Reason      string
	Email       string
	RequestID   string
	// ActorID is the reviewer when a reviewer acted.
	ActorID   string
	ClientIP  string
	UserAgent string
}

type AuditEvent string

const (
	EventRegistrationStaged   AuditEvent = "registration_staged"
	EventVerificationResent   AuditEvent = "verification_resent"
	EventVerificationFailed   AuditEvent = "verification_failed"
	EventAttemptsExhausted    AuditEvent = "verification_attempts_exhausted"
	EventEmailVerified        AuditEvent = "email_verified"
	EventRegistrationApproved AuditEvent = "registration_approved"
	EventRegistrationRejected AuditEvent = "registration_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEmailVerified:        CategoryCompliance,
	EventRegistrationApproved: CategoryCompliance,
	EventRegistrationRejected: CategoryCompliance,

	EventVerificationFailed: CategorySecurity,
	EventAttemptsExhausted:  CategorySecurity,

	EventRegistrationStaged: CategoryOperations,
	EventVerificationResent: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
