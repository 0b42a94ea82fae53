package service

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"onboard/internal/notification"
	"onboard/internal/registration/models"
	"onboard/internal/registration/tokens"
	id "onboard/pkg/domain"
)

// sent pairs a template with what happened when it was delivered.
type sent struct {
	template notification.Template
	delivery notification.Delivery
}

func (s *Service) sendVerification(ctx context.Context, session *models.Session) sent {
	data := notification.VerificationData{
		Name:         session.Application.GreetingName(),
		Organization: session.Application.OrganizationName,
		SessionID:    session.ID.String(),
		Token:        session.VerificationToken,
		VerifyURL: s.link(verifyPath, url.Values{
			"session_id": {session.ID.String()},
			"token":      {session.VerificationToken},
		}),
		ExpiresAt: session.ExpiresAt,
	}
	tmpl := notification.TemplateVerification
	return sent{template: tmpl, delivery: s.notifier.Send(ctx, applicant(session), tmpl, data)}
}

// notifyPending sends the reviewer requests and the applicant acknowledgement
// concurrently. Neither waits on the other and neither can fail the caller.
func (s *Service) notifyPending(ctx context.Context, session *models.Session) []sent {
	app := session.Application
	reviewerData := notification.ReviewerData{
		Organization: app.OrganizationName,
		ContactName:  app.ContactName,
		ContactEmail: app.ContactEmail,
		Country:      app.Country,
		Website:      app.Website,
		Description:  app.Description,
		ApproveURL:   s.decisionLink(session.ApprovalToken, models.ActionApprove),
		RejectURL:    s.decisionLink(session.RejectionToken, models.ActionReject),
		ExpiresAt:    session.ExpiresAt,
	}
	ackData := notification.PendingAckData{
		Name:         app.GreetingName(),
		Organization: app.OrganizationName,
	}

	reviewers := s.reviewers
	if len(reviewers) == 0 {
		// Sending to nobody still yields a skipped delivery worth recording.
		reviewers = []string{""}
	}

	var (
		mu      sync.Mutex
		results []sent
	)
	collect := func(r sent) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, addr := range reviewers {
		g.Go(func() error {
			tmpl := notification.TemplateReviewerRequest
			to := notification.Recipient{Email: addr}
			collect(sent{template: tmpl, delivery: s.notifier.Send(gctx, to, tmpl, reviewerData)})
			return nil
		})
	}
	g.Go(func() error {
		tmpl := notification.TemplatePendingAck
		collect(sent{template: tmpl, delivery: s.notifier.Send(gctx, applicant(session), tmpl, ackData)})
		return nil
	})
	_ = g.Wait()

	return results
}

func (s *Service) sendOutcome(ctx context.Context, session *models.Session, action models.Action) sent {
	tmpl := notification.TemplateApproved
	if action == models.ActionReject {
		tmpl = notification.TemplateRejected
	}
	data := notification.OutcomeData{
		Name:         session.Application.GreetingName(),
		Organization: session.Application.OrganizationName,
	}
	if session.Decision != nil {
		data.Reason = session.Decision.Reason
	}
	return sent{template: tmpl, delivery: s.notifier.Send(ctx, applicant(session), tmpl, data)}
}

// decisionLink points at the reviewer frontend, which signs the reviewer in
// and submits the decision to POST /registrations/approve/{token}.
func (s *Service) decisionLink(token string, action models.Action) string {
	return s.link(reviewPath, url.Values{
		"token":  {tokens.Short(token)},
		"action": {string(action)},
	})
}

// applyDeliveries folds delivery outcomes into the session's flags.
func applyDeliveries(session *models.Session, results []sent) {
	for _, r := range results {
		if !r.delivery.Sent() {
			msg := string(r.template)
			if r.delivery.Err != nil {
				msg += ": " + r.delivery.Err.Error()
			}
			session.Notifications.LastFailure = msg
			continue
		}
		switch r.template {
		case notification.TemplateVerification:
			session.Notifications.VerificationSent = true
		case notification.TemplateReviewerRequest:
			session.Notifications.ReviewerNotified = true
		case notification.TemplatePendingAck:
			session.Notifications.PendingAckSent = true
		case notification.TemplateApproved, notification.TemplateRejected:
			session.Notifications.OutcomeSent = true
		}
	}
}

func (s *Service) countFailures(results []sent) {
	if s.metrics == nil {
		return
	}
	for _, r := range results {
		if !r.delivery.Sent() {
			s.metrics.IncNotificationFailure(string(r.template))
		}
	}
}

// recordDeliveries writes delivery flags back to the session. The flags are
// observability only, so a failed write is logged and dropped.
func (s *Service) recordDeliveries(ctx context.Context, sessionID id.SessionID, results ...sent) {
	if len(results) == 0 {
		return
	}
	s.countFailures(results)
	now := s.now(ctx)
	_, err := s.sessions.Execute(ctx, sessionID, live(now, nil), func(session *models.Session) {
		applyDeliveries(session, results)
		session.UpdatedAt = now
	})
	if err != nil {
		s.incConflict(operationRecordFlags, err)
		s.logger.WarnContext(ctx, "failed to record notification outcome",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
}
