package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	affiliatemodels "onboard/internal/affiliate/models"
	"onboard/internal/registration/models"
	"onboard/internal/registration/tokens"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
)

const maxReasonLength = 1000

var errDecisionNotFound = dErrors.New(dErrors.CodeNotFound, "decision token not recognized")

// ProcessApproval applies a reviewer's decision to the session a decision
// token belongs to.
//
// Repeating a decision that already took effect succeeds without touching
// anything or notifying anyone. The opposite decision is refused. The request
// that records the decision holds a lease on finishing it; a repeat only
// finishes the work once that lease has lapsed.
func (s *Service) ProcessApproval(ctx context.Context, token, action string, reviewerID id.ReviewerID, reason string) (_ *models.ApprovalResult, err error) {
	ctx, end := s.begin(ctx, operationDecide, attribute.String("action", action))
	defer end(&err)
	now := s.now(ctx)

	act, err := models.ParseAction(action)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	parsed, err := tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if parsed.Action != "" && parsed.Action != act {
		return nil, errDecisionNotFound
	}

	session, err := s.loadSession(ctx, parsed.SessionID, now)
	if err != nil {
		return nil, err
	}
	if !tokens.Matches(session.DecisionTokenFor(act), token) {
		return nil, errDecisionNotFound
	}

	if session.AlreadyDecided(act) {
		return s.repeatDecision(ctx, session, act)
	}
	if err := session.CanDecide(act); err != nil {
		return nil, err
	}

	decided, err := s.sessions.Execute(ctx, session.ID,
		live(now, func(cur *models.Session) error {
			return cur.CanDecide(act)
		}),
		func(cur *models.Session) {
			cur.ApplyDecision(act, reviewerID, reason, now)
			cur.ApplyDecisionLease(now.Add(s.cfg.DecisionLease), now)
		},
	)
	if err != nil {
		s.incConflict(operationDecide, err)
		// Lost the race. If the winner made the same call, so did we.
		if current, loadErr := s.sessions.FindByID(ctx, session.ID); loadErr == nil && current.AlreadyDecided(act) {
			s.incDecision(act, true)
			return approvalResult(current, act, now, true), nil
		}
		return nil, s.storeError(err, "failed to record decision")
	}

	return s.finishDecision(ctx, decided, act)
}

// repeatDecision handles a token presented for a decision the session already
// carries. If the durable record does not reflect it yet and nobody holds the
// lease, the previous call stopped partway: this call takes the lease and
// runs the remaining steps.
func (s *Service) repeatDecision(ctx context.Context, session *models.Session, act models.Action) (*models.ApprovalResult, error) {
	now := s.now(ctx)
	affiliate, err := s.loadAffiliate(ctx, session)
	if err != nil {
		return nil, err
	}
	if affiliate.Status == affiliateStatusFor(act) || session.DecisionInFlight(now) {
		s.incDecision(act, true)
		return approvalResult(session, act, now, true), nil
	}

	taken, err := s.sessions.Execute(ctx, session.ID,
		live(now, func(cur *models.Session) error {
			return cur.CanTakeOverDecision(act, now)
		}),
		func(cur *models.Session) {
			cur.ApplyDecisionLease(now.Add(s.cfg.DecisionLease), now)
		},
	)
	if err != nil {
		s.incConflict(operationDecide, err)
		// Someone else took over or finished first.
		if current, loadErr := s.sessions.FindByID(ctx, session.ID); loadErr == nil && current.AlreadyDecided(act) {
			s.incDecision(act, true)
			return approvalResult(current, act, now, true), nil
		}
		return nil, s.storeError(err, "failed to resume decision")
	}

	s.logger.WarnContext(ctx, "resuming interrupted decision",
		"session_id", session.ID.String(),
		"decision", string(act),
	)
	return s.finishDecision(ctx, taken, act)
}

// finishDecision writes the verdict to the durable record, tells the
// applicant, and completes the session. The notification is best-effort.
func (s *Service) finishDecision(ctx context.Context, session *models.Session, act models.Action) (*models.ApprovalResult, error) {
	decision := session.Decision
	if session.AffiliateID == nil || decision == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "decided session has no affiliate record")
	}

	_, err := s.affiliates.Update(ctx, *session.AffiliateID, affiliatemodels.Review{
		Status:     affiliateStatusFor(act),
		ReviewedBy: decision.ReviewerID,
		Reason:     decision.Reason,
		ReviewedAt: decision.DecidedAt,
	})
	if err != nil {
		s.releaseDecisionLease(ctx, session.ID, decision.FinishBy)
		if _, ok := dErrors.From(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update affiliate record")
	}

	event := audit.EventRegistrationApproved
	if act == models.ActionReject {
		event = audit.EventRegistrationRejected
	}
	s.incDecision(act, false)
	s.logAudit(ctx, event,
		"session_id", session.ID,
		"affiliate_id", *session.AffiliateID,
		"decision", string(act),
		"reason", decision.Reason,
		"reviewer_id", decision.ReviewerID,
		"email", session.ContactEmail(),
	)

	outcome := s.sendOutcome(ctx, session, act)
	s.countFailures([]sent{outcome})

	now := s.now(ctx)
	completed, err := s.sessions.Execute(ctx, session.ID,
		live(now, func(cur *models.Session) error {
			return cur.CanComplete()
		}),
		func(cur *models.Session) {
			applyDeliveries(cur, []sent{outcome})
			cur.ApplyCompleted(now)
		},
	)
	if err != nil {
		// The decision has taken effect; completion is bookkeeping.
		s.incConflict(operationCompleteStage, err)
		s.logger.WarnContext(ctx, "failed to complete decided session",
			"session_id", session.ID.String(),
			"error", err,
		)
		return approvalResult(session, act, now, false), nil
	}
	return approvalResult(completed, act, now, false), nil
}

// releaseDecisionLease gives up the right to finish a decision whose durable
// update failed, so the reviewer's retry resumes at once.
func (s *Service) releaseDecisionLease(ctx context.Context, sessionID id.SessionID, until time.Time) {
	if until.IsZero() {
		return
	}
	now := s.now(ctx)
	_, err := s.sessions.Execute(ctx, sessionID,
		live(now, func(cur *models.Session) error {
			return cur.CanReleaseDecisionLease(until)
		}),
		func(cur *models.Session) {
			cur.ApplyDecisionLease(time.Time{}, now)
		},
	)
	if err != nil {
		s.incConflict(operationReleaseLease, err)
		s.logger.WarnContext(ctx, "failed to release decision lease",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
}

func (s *Service) loadAffiliate(ctx context.Context, session *models.Session) (*affiliatemodels.Affiliate, error) {
	if session.AffiliateID == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "decided session has no affiliate record")
	}
	affiliate, err := s.affiliates.FindByID(ctx, *session.AffiliateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "affiliate record missing for decided session")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load affiliate record")
	}
	return affiliate, nil
}

func affiliateStatusFor(act models.Action) affiliatemodels.Status {
	if act == models.ActionApprove {
		return affiliatemodels.StatusActive
	}
	return affiliatemodels.StatusRejected
}

func approvalResult(session *models.Session, act models.Action, now time.Time, repeat bool) *models.ApprovalResult {
	processedAt := now
	if session.Decision != nil {
		processedAt = session.Decision.DecidedAt
	}
	return &models.ApprovalResult{
		Status:           session.StatusAt(now),
		Action:           act,
		ProcessedAt:      processedAt,
		AlreadyProcessed: repeat,
	}
}
