package models

import (
	dErrors "onboard/pkg/domain-errors"
)

// Status is the lifecycle position of a registration session.
//
//	staged ──verify──▶ email_verified ──record created──▶ affiliate_pending
//	affiliate_pending ──approve──▶ admin_approved ──outcome sent──▶ completed
//	affiliate_pending ──reject───▶ admin_rejected ──outcome sent──▶ completed
//
// expired is never written. It is what a record read past its absolute
// expiry reports; the store normally hides such records entirely.
type Status string

const (
	StatusStaged           Status = "staged"
	StatusEmailVerified    Status = "email_verified"
	StatusAffiliatePending Status = "affiliate_pending"
	StatusAdminApproved    Status = "admin_approved"
	StatusAdminRejected    Status = "admin_rejected"
	StatusCompleted        Status = "completed"
	StatusExpired          Status = "expired"
)

var allowedTransitions = map[Status][]Status{
	StatusStaged:           {StatusEmailVerified},
	StatusEmailVerified:    {StatusAffiliatePending},
	StatusAffiliatePending: {StatusAdminApproved, StatusAdminRejected},
	StatusAdminApproved:    {StatusCompleted},
	StatusAdminRejected:    {StatusCompleted},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown registration status")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusStaged, StatusEmailVerified, StatusAffiliatePending,
		StatusAdminApproved, StatusAdminRejected, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// IsActive reports whether a session in this status still blocks a new
// registration for the same contact address.
func (s Status) IsActive() bool {
	return s == StatusStaged || s == StatusEmailVerified || s == StatusAffiliatePending
}

// IsDecided reports whether a reviewer decision has been recorded.
func (s Status) IsDecided() bool {
	return s == StatusAdminApproved || s == StatusAdminRejected || s == StatusCompleted
}

// HasAffiliate reports whether a session in this status must carry a durable record id.
func (s Status) HasAffiliate() bool {
	return s == StatusAffiliatePending || s.IsDecided()
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStep tells the client what the workflow is waiting for.
func (s Status) NextStep() string {
	switch s {
	case StatusStaged:
		return "verify_email"
	case StatusEmailVerified:
		return "finish_verification"
	case StatusAffiliatePending:
		return "await_review"
	case StatusAdminApproved, StatusAdminRejected:
		return "notify_applicant"
	default:
		return "none"
	}
}

// Action is a reviewer decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction validates a reviewer action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject:
		return Action(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "action must be approve or reject")
}

// TargetStatus is the session status a decision moves to.
func (a Action) TargetStatus() Status {
	if a == ActionApprove {
		return StatusAdminApproved
	}
	return StatusAdminRejected
}
