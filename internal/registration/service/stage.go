package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
)

// StageRegistration records an application and asks the applicant to confirm
// their address. An address that already has a session waiting on
// verification gets that session back, with the verification email resent.
//
// The existence check and the create are not atomic: two concurrent stages
// for one address can both create a session. Only one of them can ever
// produce a durable record, since the durable store is unique on the address.
func (s *Service) StageRegistration(ctx context.Context, app models.Application) (_ *models.StageResult, err error) {
	ctx, end := s.begin(ctx, operationStage)
	defer end(&err)

	app.Normalize()
	if err := app.Validate(); err != nil {
		s.incStaged("invalid")
		return nil, err
	}
	if s.validator != nil {
		if err := s.validator.Validate(ctx, profileOf(app)); err != nil {
			s.incStaged("invalid")
			if _, ok := dErrors.From(err); ok {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate application")
		}
	}

	existing, err := s.resolver.FindActiveByEmail(ctx, app.ContactEmail)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up existing registrations")
	}
	// A session awaiting review owns the durable record for this address;
	// report it rather than refusing.
	if existing != nil && existing.Status == models.StatusAffiliatePending {
		s.incStaged("pending")
		return stageResult(existing, true), nil
	}

	exists, err := s.affiliates.ExistsByContactEmail(ctx, app.ContactEmail)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing affiliates")
	}
	if exists {
		s.incStaged("duplicate")
		return nil, dErrors.New(dErrors.CodeConflict, "an affiliate is already registered for this contact email")
	}

	if existing != nil && existing.Status == models.StatusStaged {
		s.incStaged("resumed")
		return s.resumeStaged(ctx, existing)
	}
	// An email_verified session is mid-flight in another call; start afresh.
	return s.createSession(ctx, app)
}

// ResendVerification sends the verification email again for a session that
// is still waiting on it.
func (s *Service) ResendVerification(ctx context.Context, sessionID id.SessionID) (_ *models.StageResult, err error) {
	ctx, end := s.begin(ctx, operationResend, attribute.String("session_id", sessionID.String()))
	defer end(&err)

	session, err := s.loadSession(ctx, sessionID, s.now(ctx))
	if err != nil {
		return nil, err
	}
	if err := session.CanVerify(); err != nil {
		return nil, err
	}
	return s.resumeStaged(ctx, session)
}

func (s *Service) createSession(ctx context.Context, app models.Application) (*models.StageResult, error) {
	now := s.now(ctx)

	token, err := s.tokens.VerificationToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification token")
	}
	session, err := models.NewSession(id.NewSessionID(now), app, token, s.cfg.MaxVerificationAttempts, now, s.cfg.SessionTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build registration session")
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, s.storeError(err, "failed to save registration session")
	}
	s.incStaged("created")
	s.logAudit(ctx, audit.EventRegistrationStaged,
		"session_id", session.ID,
		"email", session.ContactEmail(),
	)

	s.recordDeliveries(ctx, session.ID, s.sendVerification(ctx, session))
	return stageResult(session, false), nil
}

func (s *Service) resumeStaged(ctx context.Context, session *models.Session) (*models.StageResult, error) {
	s.logAudit(ctx, audit.EventVerificationResent,
		"session_id", session.ID,
		"email", session.ContactEmail(),
	)
	s.recordDeliveries(ctx, session.ID, s.sendVerification(ctx, session))
	return stageResult(session, true), nil
}

func stageResult(session *models.Session, resumed bool) *models.StageResult {
	return &models.StageResult{
		SessionID: session.ID,
		Status:    session.Status,
		NextStep:  session.Status.NextStep(),
		ExpiresAt: session.ExpiresAt,
		Resumed:   resumed,
	}
}
