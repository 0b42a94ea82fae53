package models

import (
	"crypto/subtle"
	"time"

	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

// DefaultMaxVerificationAttempts bounds wrong-token submissions per session.
const DefaultMaxVerificationAttempts = 5

// Session is the transient coordination record for one registration attempt.
//
// Invariants:
//   - ID is minted once at stage time and never reused
//   - Status advances only along the edges in allowedTransitions; the one way
//     back to staged is ReleaseVerificationClaim, used when durable creation fails
//   - AffiliateID is set iff Status.HasAffiliate()
//   - VerificationAttempts >= MaxVerificationAttempts permanently blocks verification
//   - ExpiresAt is fixed at construction and reapplied on every store write
//   - Decision is written at most once; only its FinishBy lease moves afterwards
type Session struct {
	ID                      id.SessionID      `json:"session_id"`
	Status                  Status            `json:"status"`
	Application             Application       `json:"application"`
	VerificationToken       string            `json:"verification_token"`
	VerificationAttempts    int               `json:"verification_attempts"`
	MaxVerificationAttempts int               `json:"max_verification_attempts"`
	EmailVerifiedAt         *time.Time        `json:"email_verified_at,omitempty"`
	AffiliateID             *id.AffiliateID   `json:"affiliate_id,omitempty"`
	ApprovalToken           string            `json:"approval_token,omitempty"`
	RejectionToken          string            `json:"rejection_token,omitempty"`
	Notifications           NotificationFlags `json:"notifications"`
	Decision                *Decision         `json:"decision,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
	ExpiresAt               time.Time         `json:"expires_at"`
}

// NotificationFlags record what was delivered. They are never consulted to
// decide a transition.
type NotificationFlags struct {
	VerificationSent bool   `json:"verification_sent"`
	ReviewerNotified bool   `json:"reviewer_notified"`
	PendingAckSent   bool   `json:"pending_ack_sent"`
	OutcomeSent      bool   `json:"outcome_sent"`
	LastFailure      string `json:"last_failure,omitempty"`
}

// Decision is the reviewer's recorded verdict.
type Decision struct {
	Action     Action        `json:"action"`
	ReviewerID id.ReviewerID `json:"reviewer_id,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`
	// FinishBy is when the request that holds the decision loses the right
	// to finish it. Zero means nobody holds it.
	FinishBy time.Time `json:"finish_by,omitzero"`
}

func NewSession(
	sessionID id.SessionID,
	app Application,
	verificationToken string,
	maxAttempts int,
	now time.Time,
	ttl time.Duration,
) (*Session, error) {
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session id cannot be empty")
	}
	if verificationToken == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification token cannot be empty")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session ttl must be positive")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxVerificationAttempts
	}
	return &Session{
		ID:                      sessionID,
		Status:                  StatusStaged,
		Application:             app,
		VerificationToken:       verificationToken,
		MaxVerificationAttempts: maxAttempts,
		CreatedAt:               now,
		UpdatedAt:               now,
		ExpiresAt:               now.Add(ttl),
	}, nil
}

// StatusAt is the status an observer at now should see.
func (s *Session) StatusAt(now time.Time) Status {
	if s.IsExpired(now) {
		return StatusExpired
	}
	return s.Status
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) ContactEmail() string {
	return s.Application.ContactEmail
}

func (s *Session) AttemptsExhausted() bool {
	return s.VerificationAttempts >= s.MaxVerificationAttempts
}

// CanVerify checks that the session is still waiting for its address to be confirmed.
func (s *Session) CanVerify() error {
	if s.Status != StatusStaged {
		return dErrors.New(dErrors.CodeInvalidState, "session is not awaiting email verification")
	}
	if s.AttemptsExhausted() {
		return dErrors.New(dErrors.CodeAttemptsExhausted, "maximum verification attempts reached")
	}
	return nil
}

// VerificationMatches compares the presented token in constant time.
func (s *Session) VerificationMatches(token string) bool {
	if token == "" || s.VerificationToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.VerificationToken), []byte(token)) == 1
}

// ApplyFailedAttempt counts a wrong token. Must only be called after CanVerify returns nil.
func (s *Session) ApplyFailedAttempt(now time.Time) {
	s.VerificationAttempts++
	s.UpdatedAt = now
}

// ApplyEmailVerified claims the session for durable record creation.
// Must only be called after CanVerify returns nil.
func (s *Session) ApplyEmailVerified(now time.Time) {
	verifiedAt := now
	s.Status = StatusEmailVerified
	s.EmailVerifiedAt = &verifiedAt
	s.UpdatedAt = now
}

// CanReleaseVerificationClaim checks the session is still held by an
// in-flight verification that has not produced a durable record.
func (s *Session) CanReleaseVerificationClaim() error {
	if s.Status != StatusEmailVerified || s.AffiliateID != nil {
		return dErrors.New(dErrors.CodeInvalidState, "session has no verification claim to release")
	}
	return nil
}

// ApplyReleaseVerificationClaim returns a claimed session to staged so the
// applicant can retry. The attempt counter is left untouched.
func (s *Session) ApplyReleaseVerificationClaim(now time.Time) {
	s.Status = StatusStaged
	s.EmailVerifiedAt = nil
	s.UpdatedAt = now
}

// CanMarkAffiliatePending checks the email_verified to affiliate_pending edge.
func (s *Session) CanMarkAffiliatePending() error {
	if !s.Status.CanTransitionTo(StatusAffiliatePending) {
		return dErrors.New(dErrors.CodeInvalidState, "session is not in email_verified state")
	}
	if s.AffiliateID != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "session already has an affiliate record")
	}
	return nil
}

// ApplyAffiliatePending attaches the durable record and the decision tokens.
// Must only be called after CanMarkAffiliatePending returns nil.
func (s *Session) ApplyAffiliatePending(affiliateID id.AffiliateID, approvalToken, rejectionToken string, now time.Time) {
	s.Status = StatusAffiliatePending
	s.AffiliateID = &affiliateID
	s.ApprovalToken = approvalToken
	s.RejectionToken = rejectionToken
	s.UpdatedAt = now
}

// DecisionTokenFor returns the stored token that authorizes action.
func (s *Session) DecisionTokenFor(action Action) string {
	if action == ActionApprove {
		return s.ApprovalToken
	}
	return s.RejectionToken
}

// AlreadyDecided reports whether the same action has already been recorded.
func (s *Session) AlreadyDecided(action Action) bool {
	return s.Decision != nil && s.Decision.Action == action
}

// CanDecide checks the affiliate_pending to decided edge.
func (s *Session) CanDecide(action Action) error {
	if s.Decision != nil && s.Decision.Action != action {
		return dErrors.New(dErrors.CodeInvalidState, "session was already "+string(s.Decision.Action)+"d")
	}
	if !s.Status.CanTransitionTo(action.TargetStatus()) {
		return dErrors.New(dErrors.CodeInvalidState, "session is not awaiting a review decision")
	}
	return nil
}

// ApplyDecision records the verdict. Must only be called after CanDecide returns nil.
func (s *Session) ApplyDecision(action Action, reviewer id.ReviewerID, reason string, now time.Time) {
	s.Status = action.TargetStatus()
	s.Decision = &Decision{
		Action:     action,
		ReviewerID: reviewer,
		Reason:     reason,
		DecidedAt:  now,
	}
	s.UpdatedAt = now
}

// DecisionInFlight reports whether some request still holds the lease to
// finish the recorded decision.
func (s *Session) DecisionInFlight(now time.Time) bool {
	return s.Decision != nil && now.Before(s.Decision.FinishBy)
}

// CanTakeOverDecision checks that action is recorded, not yet completed, and
// that nobody holds its lease.
func (s *Session) CanTakeOverDecision(action Action, now time.Time) error {
	if !s.AlreadyDecided(action) || s.Status != action.TargetStatus() {
		return dErrors.New(dErrors.CodeInvalidState, "decision is not awaiting completion")
	}
	if s.DecisionInFlight(now) {
		return dErrors.New(dErrors.CodeConflict, "decision is being finished by another request")
	}
	return nil
}

// CanReleaseDecisionLease checks that the lease expiring at until is still the
// one recorded.
func (s *Session) CanReleaseDecisionLease(until time.Time) error {
	if s.Decision == nil || !s.Decision.FinishBy.Equal(until) {
		return dErrors.New(dErrors.CodeConflict, "decision lease is held by another request")
	}
	return nil
}

// ApplyDecisionLease hands the right to finish the decision to the caller
// until the given time. A zero time releases it.
func (s *Session) ApplyDecisionLease(until, now time.Time) {
	s.Decision.FinishBy = until
	s.UpdatedAt = now
}

func (s *Session) CanComplete() error {
	if !s.Status.CanTransitionTo(StatusCompleted) {
		return dErrors.New(dErrors.CodeInvalidState, "session has no decision to complete")
	}
	return nil
}

func (s *Session) ApplyCompleted(now time.Time) {
	s.Status = StatusCompleted
	s.UpdatedAt = now
}

// Snapshot returns a copy safe to hand to callers: every token is stripped.
func (s *Session) Snapshot(now time.Time) *Session {
	out := *s
	out.Status = s.StatusAt(now)
	out.VerificationToken = ""
	out.ApprovalToken = ""
	out.RejectionToken = ""
	out.Application.Attributes = cloneAttributes(s.Application.Attributes)
	if s.EmailVerifiedAt != nil {
		t := *s.EmailVerifiedAt
		out.EmailVerifiedAt = &t
	}
	if s.AffiliateID != nil {
		a := *s.AffiliateID
		out.AffiliateID = &a
	}
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	return &out
}

func cloneAttributes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
