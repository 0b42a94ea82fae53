package handler

import (
	"time"

	"onboard/internal/registration/models"
)

// StatusResponse is the public view of a registration session. It carries no
// token material.
type StatusResponse struct {
	SessionID       string                   `json:"session_id"`
	Status          models.Status            `json:"status"`
	NextStep        string                   `json:"next_step"`
	Application     models.Application       `json:"application"`
	AttemptsLeft    int                      `json:"verification_attempts_remaining"`
	EmailVerifiedAt *time.Time               `json:"email_verified_at,omitempty"`
	AffiliateID     string                   `json:"affiliate_id,omitempty"`
	Decision        *DecisionResponse        `json:"decision,omitempty"`
	Notifications   models.NotificationFlags `json:"notifications"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	ExpiresAt       time.Time                `json:"expires_at"`
}

type DecisionResponse struct {
	Action     models.Action `json:"action"`
	ReviewerID string        `json:"reviewer_id,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`
}

// FromSession maps a session snapshot to its response.
func FromSession(s *models.Session) *StatusResponse {
	resp := &StatusResponse{
		SessionID:       s.ID.String(),
		Status:          s.Status,
		NextStep:        s.Status.NextStep(),
		Application:     s.Application,
		AttemptsLeft:    max(s.MaxVerificationAttempts-s.VerificationAttempts, 0),
		EmailVerifiedAt: s.EmailVerifiedAt,
		Notifications:   s.Notifications,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		ExpiresAt:       s.ExpiresAt,
	}
	if s.AffiliateID != nil {
		resp.AffiliateID = s.AffiliateID.String()
	}
	if s.Decision != nil {
		resp.Decision = &DecisionResponse{
			Action:     s.Decision.Action,
			ReviewerID: s.Decision.ReviewerID.String(),
			Reason:     s.Decision.Reason,
			DecidedAt:  s.Decision.DecidedAt,
		}
	}
	return resp
}
