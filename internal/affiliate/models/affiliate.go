package models

import (
	"time"

	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusActive || s == StatusRejected
}

// Privilege is the affiliate's standing in the organization. New records
// always start at the lowest level.
type Privilege string

const (
	PrivilegeMember  Privilege = "member"
	PrivilegeManager Privilege = "manager"
	PrivilegeOwner   Privilege = "owner"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Profile is the applicant-supplied part of an affiliate.
type Profile struct {
	OrganizationName string `json:"organization_name"`
	ContactName      string `json:"contact_name,omitempty"`
	ContactEmail     string `json:"contact_email"`
	Phone            string `json:"phone,omitempty"`
	Website          string `json:"website,omitempty"`
	Country          string `json:"country,omitempty"`
	Description      string `json:"description,omitempty"`
}

// Affiliate is the durable organization record.
//
// Invariants:
//   - Status, Privilege and Visibility are system-assigned; a new record is
//     pending, member and private regardless of what the applicant sent
//   - SourceSessionID is unique: one record per registration session
//   - Status transitions: pending → active | rejected only
type Affiliate struct {
	ID              id.AffiliateID `json:"id"`
	SourceSessionID id.SessionID   `json:"source_session_id"`
	Profile
	Status       Status        `json:"status"`
	Privilege    Privilege     `json:"privilege"`
	Visibility   Visibility    `json:"visibility"`
	ReviewedBy   id.ReviewerID `json:"reviewed_by,omitempty"`
	ReviewReason string        `json:"review_reason,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func NewAffiliate(affiliateID id.AffiliateID, sessionID id.SessionID, profile Profile, now time.Time) (*Affiliate, error) {
	if affiliateID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "affiliate id cannot be empty")
	}
	if sessionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "source session id cannot be empty")
	}
	if profile.OrganizationName == "" || profile.ContactEmail == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name and contact email are required")
	}
	return &Affiliate{
		ID:              affiliateID,
		SourceSessionID: sessionID,
		Profile:         profile,
		Status:          StatusPending,
		Privilege:       PrivilegeMember,
		Visibility:      VisibilityPrivate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Review is the set of fields a reviewer decision writes.
type Review struct {
	Status     Status
	ReviewedBy id.ReviewerID
	Reason     string
	ReviewedAt time.Time
}

// CanApplyReview checks the pending → decided edge. Re-applying the status
// the record already has is allowed and changes nothing.
func (a *Affiliate) CanApplyReview(r Review) error {
	if r.Status != StatusActive && r.Status != StatusRejected {
		return dErrors.New(dErrors.CodeInvariantViolation, "review must activate or reject")
	}
	if a.Status == r.Status {
		return nil
	}
	if a.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "affiliate was already "+string(a.Status))
	}
	return nil
}

// ApplyReview must only be called after CanApplyReview returns nil.
func (a *Affiliate) ApplyReview(r Review) {
	if a.Status == r.Status {
		return
	}
	reviewedAt := r.ReviewedAt
	a.Status = r.Status
	a.ReviewedBy = r.ReviewedBy
	a.ReviewReason = r.Reason
	a.ReviewedAt = &reviewedAt
	a.UpdatedAt = r.ReviewedAt
}
