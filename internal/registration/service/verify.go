package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	affiliatemodels "onboard/internal/affiliate/models"
	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
)

// VerifyEmail confirms the applicant's address and opens the review.
//
// Callers see one step from staged to affiliate_pending. Internally the
// session is first claimed (staged to email_verified) so that of N
// concurrent calls with the right token exactly one creates the durable
// record. If that creation fails the claim is released back to staged.
func (s *Service) VerifyEmail(ctx context.Context, sessionID id.SessionID, token string) (_ *models.VerifyResult, err error) {
	ctx, end := s.begin(ctx, operationVerify, attribute.String("session_id", sessionID.String()))
	defer end(&err)
	now := s.now(ctx)

	session, err := s.loadSession(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if err := session.CanVerify(); err != nil {
		s.incVerification(string(dErrors.CodeOf(err)))
		return nil, err
	}
	if !session.VerificationMatches(token) {
		return nil, s.recordFailedAttempt(ctx, sessionID, now)
	}

	claimed, err := s.sessions.Execute(ctx, sessionID,
		live(now, func(cur *models.Session) error {
			return cur.CanVerify()
		}),
		func(cur *models.Session) {
			cur.ApplyEmailVerified(now)
		},
	)
	if err != nil {
		s.incConflict(operationVerify, err)
		s.incVerification("lost_claim")
		return nil, s.storeError(err, "failed to claim registration session")
	}

	approve, reject, err := s.tokens.DecisionTokens(sessionID)
	if err != nil {
		s.releaseClaim(ctx, sessionID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint decision tokens")
	}

	affiliate, err := affiliatemodels.NewAffiliate(id.NewAffiliateID(), sessionID, profileOf(claimed.Application), now)
	if err != nil {
		s.releaseClaim(ctx, sessionID)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build affiliate record")
	}
	if err := s.affiliates.Create(ctx, affiliate); err != nil {
		s.releaseClaim(ctx, sessionID)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "an affiliate is already registered for this contact email")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create affiliate record")
	}

	pending, err := s.sessions.Execute(ctx, sessionID,
		live(now, func(cur *models.Session) error {
			return cur.CanMarkAffiliatePending()
		}),
		func(cur *models.Session) {
			cur.ApplyAffiliatePending(affiliate.ID, approve, reject, now)
		},
	)
	if err != nil {
		// The durable record exists but no session points at it. It stays
		// pending and is never surfaced for review.
		s.incConflict(operationMarkPending, err)
		s.logger.ErrorContext(ctx, "affiliate record created but session not advanced",
			"session_id", sessionID.String(),
			"affiliate_id", affiliate.ID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance registration session")
	}

	s.incVerification("verified")
	s.logAudit(ctx, audit.EventEmailVerified,
		"session_id", sessionID,
		"affiliate_id", affiliate.ID,
		"email", pending.ContactEmail(),
	)

	s.recordDeliveries(ctx, sessionID, s.notifyPending(ctx, pending)...)

	affiliateID := affiliate.ID
	return &models.VerifyResult{
		Status:      pending.Status,
		AffiliateID: &affiliateID,
		NextStep:    pending.Status.NextStep(),
	}, nil
}

// recordFailedAttempt counts a wrong token and returns the error the caller
// sees: invalid_token, or attempts_exhausted once the limit is reached.
func (s *Service) recordFailedAttempt(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	updated, err := s.sessions.Execute(ctx, sessionID,
		live(now, func(cur *models.Session) error {
			return cur.CanVerify()
		}),
		func(cur *models.Session) {
			cur.ApplyFailedAttempt(now)
		},
	)
	if err != nil {
		s.incConflict(operationVerify, err)
		return s.storeError(err, "failed to record verification attempt")
	}

	if updated.AttemptsExhausted() {
		s.incVerification(string(dErrors.CodeAttemptsExhausted))
		s.logAudit(ctx, audit.EventAttemptsExhausted,
			"session_id", sessionID,
			"email", updated.ContactEmail(),
		)
		return dErrors.New(dErrors.CodeAttemptsExhausted, "maximum verification attempts reached")
	}

	s.incVerification("mismatch")
	s.logAudit(ctx, audit.EventVerificationFailed,
		"session_id", sessionID,
		"email", updated.ContactEmail(),
	)
	return dErrors.New(dErrors.CodeInvalidToken, "verification token does not match")
}

// releaseClaim undoes a staged to email_verified claim whose durable record
// could not be created, so the applicant can try again.
func (s *Service) releaseClaim(ctx context.Context, sessionID id.SessionID) {
	now := s.now(ctx)
	_, err := s.sessions.Execute(ctx, sessionID,
		live(now, func(cur *models.Session) error {
			return cur.CanReleaseVerificationClaim()
		}),
		func(cur *models.Session) {
			cur.ApplyReleaseVerificationClaim(now)
		},
	)
	if err != nil {
		s.incConflict(operationReleaseClaim, err)
		s.logger.ErrorContext(ctx, "failed to release verification claim",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
}
