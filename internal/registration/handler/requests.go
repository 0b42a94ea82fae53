package handler

import (
	"strings"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

const (
	maxFieldLength       = 256
	maxDescriptionLength = 4000
	maxAttributes        = 32
	maxTokenLength       = 256
	maxReasonLength      = 1000
)

// StageRequest is the HTTP request body for POST /registrations. The
// application fields are accepted at the top level.
type StageRequest struct {
	models.Application
}

// Validate implements httputil.Validatable.
func (r *StageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	// Size validation (fail fast)
	for name, v := range map[string]string{
		"organization_name": r.OrganizationName,
		"contact_name":      r.ContactName,
		"contact_email":     r.ContactEmail,
		"phone":             r.Phone,
		"website":           r.Website,
		"country":           r.Country,
	} {
		if len(v) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, name+" is too long")
		}
	}
	if len(r.Description) > maxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description is too long")
	}
	if len(r.Attributes) > maxAttributes {
		return dErrors.New(dErrors.CodeValidation, "too many attributes")
	}

	r.Normalize()
	return r.Application.Validate()
}

// VerifyRequest is the HTTP request body for POST /registrations/verify-email.
type VerifyRequest struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`

	parsedSessionID id.SessionID
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Token) > maxTokenLength {
		return dErrors.New(dErrors.CodeValidation, "token is too long")
	}

	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	sessionID, err := id.ParseSessionID(strings.TrimSpace(r.SessionID))
	if err != nil {
		return err
	}
	r.parsedSessionID = sessionID
	return nil
}

func (r *VerifyRequest) ParsedSessionID() id.SessionID {
	return r.parsedSessionID
}

// DecisionRequest is the optional body of POST /registrations/approve/{token}.
// The action may instead arrive as the ?action= query parameter that the
// reviewer links carry.
type DecisionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1000 characters")
	}
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}
