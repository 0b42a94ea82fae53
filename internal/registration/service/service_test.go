package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SessionStore,AffiliateStore,Notifier,ProfileValidator,AuditPublisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	affiliatemodels "onboard/internal/affiliate/models"
	affiliatestore "onboard/internal/affiliate/store"
	"onboard/internal/affiliate/validation"
	"onboard/internal/notification"
	"onboard/internal/registration/models"
	"onboard/internal/registration/resolver"
	"onboard/internal/registration/service/mocks"
	"onboard/internal/registration/store"
	"onboard/internal/registration/tokens"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/audit/publisher"
	auditmemory "onboard/pkg/platform/audit/store/memory"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

// =============================================================================
// Registration Service Test Suite
// =============================================================================
// Justification for unit tests: the orchestrator owns every state transition
// and the compensations between the session store and the durable store.
// Real in-memory stores are used so compare-and-swap behaviour is exercised;
// the notifier is mocked so exact send counts can be asserted.

var delivered = notification.Delivery{Status: notification.DeliverySent}

type RegistrationServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	notifier   *mocks.MockNotifier
	sessions   *store.InMemoryStore
	affiliates *affiliatestore.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	service    *Service

	mu  sync.RWMutex
	now time.Time
}

func TestRegistrationServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistrationServiceSuite))
}

func (s *RegistrationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.sessions = store.NewInMemory(store.WithClock(s.clock))
	s.affiliates = affiliatestore.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = s.newService(s.affiliates)
}

func (s *RegistrationServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RegistrationServiceSuite) newService(affiliates AffiliateStore) *Service {
	svc, err := New(
		s.sessions,
		resolver.New(s.sessions, resolver.WithClock(s.clock)),
		tokens.New(tokens.WithClock(s.clock)),
		affiliates,
		s.notifier,
		Config{
			SessionTTL:              time.Hour,
			MaxVerificationAttempts: 3,
			PublicBaseURL:           "https://onboard.example.org",
			ReviewerEmails:          []string{"review@example.org", "Review@Example.org", "ops@example.org"},
		},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(s.clock),
		WithValidator(validation.New()),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
	return svc
}

func (s *RegistrationServiceSuite) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

func (s *RegistrationServiceSuite) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func application(address string) models.Application {
	return models.Application{
		OrganizationName: "Acme Research",
		ContactName:      "Ada Lovelace",
		ContactEmail:     address,
		Website:          "https://acme.example.org",
		Country:          "gb",
	}
}

func (s *RegistrationServiceSuite) expectSend(tmpl notification.Template, times int) *gomock.Call {
	return s.notifier.EXPECT().
		Send(gomock.Any(), gomock.Any(), tmpl, gomock.Any()).
		Return(delivered).
		Times(times)
}

func (s *RegistrationServiceSuite) stored(sessionID id.SessionID) *models.Session {
	session, err := s.sessions.FindByID(s.ctx, sessionID)
	s.Require().NoError(err)
	return session
}

func (s *RegistrationServiceSuite) stage(address string) *models.StageResult {
	s.expectSend(notification.TemplateVerification, 1)
	result, err := s.service.StageRegistration(s.ctx, application(address))
	s.Require().NoError(err)
	return result
}

// pending stages and verifies a registration, returning the session as stored.
func (s *RegistrationServiceSuite) pending(address string) *models.Session {
	staged := s.stage(address)
	s.expectSend(notification.TemplateReviewerRequest, 2)
	s.expectSend(notification.TemplatePendingAck, 1)
	_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, s.stored(staged.SessionID).VerificationToken)
	s.Require().NoError(err)
	return s.stored(staged.SessionID)
}

func (s *RegistrationServiceSuite) auditActions(sessionID id.SessionID) []string {
	events, err := s.auditStore.ListBySubject(s.ctx, sessionID.String())
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *RegistrationServiceSuite) TestNew() {
	sessions := store.NewInMemory()
	res := resolver.New(sessions)
	gen := tokens.New()
	affiliates := affiliatestore.NewInMemory()

	cases := []struct {
		name    string
		build   func() (*Service, error)
		message string
	}{
		{"nil session store", func() (*Service, error) { return New(nil, res, gen, affiliates, s.notifier, Config{}) }, "session store is required"},
		{"nil resolver", func() (*Service, error) { return New(sessions, nil, gen, affiliates, s.notifier, Config{}) }, "session resolver is required"},
		{"nil token generator", func() (*Service, error) { return New(sessions, res, nil, affiliates, s.notifier, Config{}) }, "token generator is required"},
		{"nil affiliate store", func() (*Service, error) { return New(sessions, res, gen, nil, s.notifier, Config{}) }, "affiliate store is required"},
		{"nil notifier", func() (*Service, error) { return New(sessions, res, gen, affiliates, nil, Config{}) }, "notifier is required"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := tc.build()
			s.Require().Error(err)
			s.Contains(err.Error(), tc.message)
		})
	}

	s.Run("zero config falls back to defaults", func() {
		svc, err := New(sessions, res, gen, affiliates, s.notifier, Config{})
		s.Require().NoError(err)
		s.Equal(defaultSessionTTL, svc.cfg.SessionTTL)
		s.Equal(models.DefaultMaxVerificationAttempts, svc.cfg.MaxVerificationAttempts)
		s.Equal(defaultDecisionLease, svc.cfg.DecisionLease)
	})

	s.Run("reviewer addresses are deduplicated", func() {
		s.Equal([]string{"review@example.org", "ops@example.org"}, s.service.reviewers)
	})
}

// =============================================================================
// StageRegistration
// =============================================================================

func (s *RegistrationServiceSuite) TestStageRegistration() {
	s.Run("creates a staged session and sends one verification email", func() {
		var got notification.VerificationData
		var to notification.Recipient
		s.notifier.EXPECT().
			Send(gomock.Any(), gomock.Any(), notification.TemplateVerification, gomock.Any()).
			DoAndReturn(func(_ context.Context, r notification.Recipient, _ notification.Template, data any) notification.Delivery {
				to = r
				got = data.(notification.VerificationData)
				return delivered
			})

		result, err := s.service.StageRegistration(s.ctx, application(" Ada@Acme.org "))
		s.Require().NoError(err)

		s.Equal(models.StatusStaged, result.Status)
		s.Equal("verify_email", result.NextStep)
		s.False(result.Resumed)
		s.Equal(s.clock().Add(time.Hour), result.ExpiresAt)

		session := s.stored(result.SessionID)
		s.Equal("ada@acme.org", session.ContactEmail())
		s.Equal("GB", session.Application.Country)
		s.Len(session.VerificationToken, 32)
		s.True(session.Notifications.VerificationSent)

		s.Equal("ada@acme.org", to.Email)
		s.Equal("Ada Lovelace", to.Name)
		s.Equal(session.VerificationToken, got.Token)
		s.Contains(got.VerifyURL, "https://onboard.example.org/verify-email?")
		s.Contains(got.VerifyURL, "token="+session.VerificationToken)

		s.Equal([]string{string(audit.EventRegistrationStaged)}, s.auditActions(result.SessionID))
	})

	s.Run("structural validation failure is surfaced", func() {
		_, err := s.service.StageRegistration(s.ctx, application("not-an-address"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("business rule failure is surfaced verbatim", func() {
		_, err := s.service.StageRegistration(s.ctx, application("someone@mailinator.com"))
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Contains(err.Error(), "mailinator.com")
	})

	s.Run("contact email with a durable record conflicts", func() {
		existing, err := affiliatemodels.NewAffiliate(id.NewAffiliateID(), id.NewSessionID(s.clock()),
			affiliatemodels.Profile{OrganizationName: "Taken", ContactEmail: "taken@acme.org"}, s.clock())
		s.Require().NoError(err)
		s.Require().NoError(s.affiliates.Create(s.ctx, existing))

		_, err = s.service.StageRegistration(s.ctx, application("TAKEN@acme.org"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("restaging while staged returns the same session and resends", func() {
		first := s.stage("grace@acme.org")
		second := s.stage("grace@acme.org")

		s.Equal(first.SessionID, second.SessionID)
		s.True(second.Resumed)
		s.Equal(models.StatusStaged, second.Status)
	})

	s.Run("restaging after attempts run out starts a fresh session", func() {
		first := s.stage("lovelace@acme.org")
		for range 3 {
			_, err := s.service.VerifyEmail(s.ctx, first.SessionID, "0000")
			s.Require().Error(err)
		}
		s.Require().True(s.stored(first.SessionID).AttemptsExhausted())

		second := s.stage("lovelace@acme.org")
		s.NotEqual(first.SessionID, second.SessionID)
		s.False(second.Resumed)
		s.Equal(0, s.stored(second.SessionID).VerificationAttempts)
	})

	s.Run("notification failure is recorded, not returned", func() {
		s.notifier.EXPECT().
			Send(gomock.Any(), gomock.Any(), notification.TemplateVerification, gomock.Any()).
			Return(notification.Delivery{Status: notification.DeliveryFailed, Err: errors.New("smtp down")})

		result, err := s.service.StageRegistration(s.ctx, application("hopper@acme.org"))
		s.Require().NoError(err)

		flags := s.stored(result.SessionID).Notifications
		s.False(flags.VerificationSent)
		s.Contains(flags.LastFailure, "smtp down")
	})
}

func (s *RegistrationServiceSuite) TestStageRegistrationValidatorPort() {
	validator := mocks.NewMockProfileValidator(s.ctrl)
	s.service.validator = validator

	s.Run("unclassified validator error becomes internal", func() {
		validator.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(errors.New("rules unavailable"))
		_, err := s.service.StageRegistration(s.ctx, application("ada@acme.org"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("validator sees the normalized profile", func() {
		validator.EXPECT().Validate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p affiliatemodels.Profile) error {
				s.Equal("ada@acme.org", p.ContactEmail)
				s.Equal("GB", p.Country)
				return nil
			})
		s.expectSend(notification.TemplateVerification, 1)
		_, err := s.service.StageRegistration(s.ctx, application(" ADA@acme.org"))
		s.NoError(err)
	})
}

// =============================================================================
// VerifyEmail
// =============================================================================

func (s *RegistrationServiceSuite) TestVerifyEmail() {
	s.Run("correct token creates one durable record and notifies", func() {
		staged := s.stage("ada@acme.org")
		token := s.stored(staged.SessionID).VerificationToken

		var approveURL string
		s.notifier.EXPECT().
			Send(gomock.Any(), gomock.Any(), notification.TemplateReviewerRequest, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ notification.Recipient, _ notification.Template, data any) notification.Delivery {
				approveURL = data.(notification.ReviewerData).ApproveURL
				return delivered
			}).
			Times(2)
		s.expectSend(notification.TemplatePendingAck, 1)

		result, err := s.service.VerifyEmail(s.ctx, staged.SessionID, token)
		s.Require().NoError(err)

		s.Equal(models.StatusAffiliatePending, result.Status)
		s.Equal("await_review", result.NextStep)
		s.Require().NotNil(result.AffiliateID)

		affiliate, err := s.affiliates.FindByID(s.ctx, *result.AffiliateID)
		s.Require().NoError(err)
		s.Equal(affiliatemodels.StatusPending, affiliate.Status)
		s.Equal(affiliatemodels.PrivilegeMember, affiliate.Privilege)
		s.Equal(affiliatemodels.VisibilityPrivate, affiliate.Visibility)
		s.Equal(staged.SessionID, affiliate.SourceSessionID)

		session := s.stored(staged.SessionID)
		s.Equal(*result.AffiliateID, *session.AffiliateID)
		s.NotNil(session.EmailVerifiedAt)
		s.NotEmpty(session.ApprovalToken)
		s.NotEmpty(session.RejectionToken)
		s.True(session.Notifications.ReviewerNotified)
		s.True(session.Notifications.PendingAckSent)

		link, err := url.Parse(approveURL)
		s.Require().NoError(err)
		s.Equal("/review-registration", link.Path)
		s.Equal(tokens.Short(session.ApprovalToken), link.Query().Get("token"))
		s.Equal("approve", link.Query().Get("action"))
		s.NotContains(approveURL, "/registrations/approve", "the API route needs a bearer token a mail client cannot send")
		s.Contains(s.auditActions(staged.SessionID), string(audit.EventEmailVerified))
	})

	s.Run("wrong token counts an attempt", func() {
		staged := s.stage("grace@acme.org")

		_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, "0000")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))

		session := s.stored(staged.SessionID)
		s.Equal(1, session.VerificationAttempts)
		s.Equal(models.StatusStaged, session.Status)
	})

	s.Run("attempt limit blocks even the correct token", func() {
		staged := s.stage("hopper@acme.org")
		token := s.stored(staged.SessionID).VerificationToken

		_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, "bad-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
		_, err = s.service.VerifyEmail(s.ctx, staged.SessionID, "bad-2")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
		_, err = s.service.VerifyEmail(s.ctx, staged.SessionID, "bad-3")
		s.True(dErrors.HasCode(err, dErrors.CodeAttemptsExhausted))

		_, err = s.service.VerifyEmail(s.ctx, staged.SessionID, token)
		s.True(dErrors.HasCode(err, dErrors.CodeAttemptsExhausted))
		s.Equal(models.StatusStaged, s.stored(staged.SessionID).Status)
		s.Contains(s.auditActions(staged.SessionID), string(audit.EventAttemptsExhausted))
	})

	s.Run("unknown session is not found", func() {
		_, err := s.service.VerifyEmail(s.ctx, id.NewSessionID(s.clock()), "token")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("verified session cannot be verified again", func() {
		session := s.pending("lamarr@acme.org")
		_, err := s.service.VerifyEmail(s.ctx, session.ID, "whatever")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Equal(2, s.affiliates.Count())
}

func (s *RegistrationServiceSuite) TestVerifyEmailDurableFailure() {
	affiliates := mocks.NewMockAffiliateStore(s.ctrl)
	s.service = s.newService(affiliates)
	affiliates.EXPECT().ExistsByContactEmail(gomock.Any(), "ada@acme.org").Return(false, nil)

	staged := s.stage("ada@acme.org")
	token := s.stored(staged.SessionID).VerificationToken

	s.Run("failed create releases the claim", func() {
		affiliates.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

		_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, token)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		session := s.stored(staged.SessionID)
		s.Equal(models.StatusStaged, session.Status)
		s.Nil(session.EmailVerifiedAt)
		s.Nil(session.AffiliateID)
	})

	s.Run("durable duplicate is a conflict and releases the claim", func() {
		affiliates.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("create affiliate: %w", sentinel.ErrConflict))

		_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, token)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(models.StatusStaged, s.stored(staged.SessionID).Status)
	})

	s.Run("retry after release succeeds", func() {
		var created *affiliatemodels.Affiliate
		affiliates.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *affiliatemodels.Affiliate) error {
				created = a
				return nil
			})
		s.expectSend(notification.TemplateReviewerRequest, 2)
		s.expectSend(notification.TemplatePendingAck, 1)

		result, err := s.service.VerifyEmail(s.ctx, staged.SessionID, token)
		s.Require().NoError(err)
		s.Equal(created.ID, *result.AffiliateID)
	})
}

func (s *RegistrationServiceSuite) TestConcurrentVerifyCreatesOneRecord() {
	staged := s.stage("ada@acme.org")
	token := s.stored(staged.SessionID).VerificationToken
	s.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(delivered).AnyTimes()

	const callers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.VerifyEmail(s.ctx, staged.SessionID, token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(1, s.affiliates.Count())
	for _, err := range failures {
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState) || dErrors.HasCode(err, dErrors.CodeConflict), err.Error())
	}
	s.Equal(models.StatusAffiliatePending, s.stored(staged.SessionID).Status)
}

// =============================================================================
// ProcessApproval
// =============================================================================

func (s *RegistrationServiceSuite) TestProcessApproval() {
	reviewer := id.ReviewerID("reviewer-7")

	s.Run("approve activates the record and completes the session", func() {
		session := s.pending("ada@acme.org")
		s.expectSend(notification.TemplateApproved, 1)

		result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", reviewer, "")
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, result.Status)
		s.Equal(models.ActionApprove, result.Action)
		s.False(result.AlreadyProcessed)
		s.Equal(s.clock(), result.ProcessedAt)

		affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
		s.Require().NoError(err)
		s.Equal(affiliatemodels.StatusActive, affiliate.Status)
		s.Equal(reviewer, affiliate.ReviewedBy)

		stored := s.stored(session.ID)
		s.True(stored.Notifications.OutcomeSent)
		s.Equal(reviewer, stored.Decision.ReviewerID)
		s.Contains(s.auditActions(session.ID), string(audit.EventRegistrationApproved))

		s.Run("repeating the decision changes nothing and sends nothing", func() {
			again, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", reviewer, "")
			s.Require().NoError(err)
			s.True(again.AlreadyProcessed)
			s.Equal(models.StatusCompleted, again.Status)
			s.Equal(result.ProcessedAt, again.ProcessedAt)

			affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
			s.Require().NoError(err)
			s.Equal(affiliatemodels.StatusActive, affiliate.Status)
		})

		s.Run("the opposite decision is refused", func() {
			_, err := s.service.ProcessApproval(s.ctx, session.RejectionToken, "reject", reviewer, "")
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		})
	})

	s.Run("reject with the short token records the reason", func() {
		session := s.pending("grace@acme.org")
		var outcome notification.OutcomeData
		s.notifier.EXPECT().
			Send(gomock.Any(), gomock.Any(), notification.TemplateRejected, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ notification.Recipient, _ notification.Template, data any) notification.Delivery {
				outcome = data.(notification.OutcomeData)
				return delivered
			})

		result, err := s.service.ProcessApproval(s.ctx, tokens.Short(session.RejectionToken), "reject", reviewer, "  incomplete details ")
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, result.Status)
		s.Equal(models.ActionReject, result.Action)
		s.Equal("incomplete details", outcome.Reason)

		affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
		s.Require().NoError(err)
		s.Equal(affiliatemodels.StatusRejected, affiliate.Status)
		s.Equal("incomplete details", affiliate.ReviewReason)
	})

	s.Run("token refusals", func() {
		session := s.pending("hopper@acme.org")
		forged := tokens.DecisionToken(models.ActionApprove, session.ID, 42, "0123456789abcdef")

		cases := []struct {
			name   string
			token  string
			action string
			code   dErrors.Code
		}{
			{"unknown action", session.ApprovalToken, "escalate", dErrors.CodeValidation},
			{"malformed token", "not-a-token", "approve", dErrors.CodeInvalidToken},
			{"approval token presented as reject", session.ApprovalToken, "reject", dErrors.CodeNotFound},
			{"short approval token presented as reject", tokens.Short(session.ApprovalToken), "reject", dErrors.CodeNotFound},
			{"short rejection token presented as approve", tokens.Short(session.RejectionToken), "approve", dErrors.CodeNotFound},
			{"forged timestamp", forged, "approve", dErrors.CodeNotFound},
			{"unknown session", tokens.DecisionToken(models.ActionApprove, id.NewSessionID(s.clock()), 42, "0123456789abcdef"), "approve", dErrors.CodeNotFound},
		}
		for _, tc := range cases {
			s.Run(tc.name, func() {
				_, err := s.service.ProcessApproval(s.ctx, tc.token, tc.action, reviewer, "")
				s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			})
		}
		s.Equal(models.StatusAffiliatePending, s.stored(session.ID).Status)
	})

	s.Run("staged session has no decision token", func() {
		staged := s.stage("lamarr@acme.org")
		_, err := s.service.ProcessApproval(s.ctx, tokens.DecisionToken(models.ActionApprove, staged.SessionID, 42, "0123456789abcdef"), "approve", reviewer, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrationServiceSuite) TestConcurrentApprovalsAgree() {
	session := s.pending("barbara@acme.org")
	s.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), notification.TemplateApproved, gomock.Any()).Return(delivered).Times(1)

	const reviewers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*models.ApprovalResult
		errs    []error
	)
	for i := range reviewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", id.ReviewerID(fmt.Sprintf("reviewer-%d", i)), "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, result)
		}()
	}
	wg.Wait()

	s.Empty(errs)
	s.Len(results, reviewers)
	firstHand := 0
	for _, r := range results {
		s.Equal(models.ActionApprove, r.Action)
		if !r.AlreadyProcessed {
			firstHand++
		}
	}
	s.Equal(1, firstHand, "only the call that recorded the decision finishes it")

	affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
	s.Require().NoError(err)
	s.Equal(affiliatemodels.StatusActive, affiliate.Status)
	s.Equal(s.stored(session.ID).Decision.ReviewerID, affiliate.ReviewedBy, "the record names the reviewer whose claim won")
}

func (s *RegistrationServiceSuite) TestProcessApprovalResumesInterruptedDecision() {
	session := s.pending("ada@acme.org")
	reviewer := id.ReviewerID("reviewer-7")

	// A previous call recorded the decision and stopped before the durable write.
	_, err := s.sessions.Execute(s.ctx, session.ID, func(cur *models.Session) error {
		return cur.CanDecide(models.ActionApprove)
	}, func(cur *models.Session) {
		cur.ApplyDecision(models.ActionApprove, reviewer, "", s.clock())
	})
	s.Require().NoError(err)

	s.expectSend(notification.TemplateApproved, 1)
	result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", reviewer, "")
	s.Require().NoError(err)
	s.False(result.AlreadyProcessed)
	s.Equal(models.StatusCompleted, result.Status)

	affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
	s.Require().NoError(err)
	s.Equal(affiliatemodels.StatusActive, affiliate.Status)
}

func (s *RegistrationServiceSuite) TestProcessApprovalWaitsOutLiveLease() {
	session := s.pending("ada@acme.org")
	reviewer := id.ReviewerID("reviewer-7")
	finishBy := s.clock().Add(time.Minute)

	// Another request recorded the decision and is still finishing it.
	_, err := s.sessions.Execute(s.ctx, session.ID, func(cur *models.Session) error {
		return cur.CanDecide(models.ActionApprove)
	}, func(cur *models.Session) {
		cur.ApplyDecision(models.ActionApprove, reviewer, "", s.clock())
		cur.ApplyDecisionLease(finishBy, s.clock())
	})
	s.Require().NoError(err)

	s.Run("repeat inside the lease reports the decision without acting", func() {
		result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", reviewer, "")
		s.Require().NoError(err)
		s.True(result.AlreadyProcessed)
		s.Equal(models.StatusAdminApproved, result.Status)

		affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
		s.Require().NoError(err)
		s.Equal(affiliatemodels.StatusPending, affiliate.Status)
		s.Equal(finishBy, s.stored(session.ID).Decision.FinishBy)
	})

	s.Run("repeat after the lease lapses finishes the decision", func() {
		s.advance(time.Minute)
		s.expectSend(notification.TemplateApproved, 1)

		result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", reviewer, "")
		s.Require().NoError(err)
		s.False(result.AlreadyProcessed)
		s.Equal(models.StatusCompleted, result.Status)

		affiliate, err := s.affiliates.FindByID(s.ctx, *session.AffiliateID)
		s.Require().NoError(err)
		s.Equal(affiliatemodels.StatusActive, affiliate.Status)
	})
}

func (s *RegistrationServiceSuite) TestProcessApprovalDurableFailureReleasesLease() {
	flaky := &failingUpdates{AffiliateStore: s.affiliates, remaining: 1}
	s.service = s.newService(flaky)
	session := s.pending("ada@acme.org")

	_, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", "reviewer-7", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)

	stored := s.stored(session.ID)
	s.Equal(models.StatusAdminApproved, stored.Status)
	s.False(stored.DecisionInFlight(s.clock()), "the lease is handed back")

	s.expectSend(notification.TemplateApproved, 1)
	result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", "reviewer-7", "")
	s.Require().NoError(err)
	s.False(result.AlreadyProcessed)
	s.Equal(models.StatusCompleted, result.Status)
}

// failingUpdates fails the next remaining Update calls.
type failingUpdates struct {
	AffiliateStore
	mu        sync.Mutex
	remaining int
}

func (f *failingUpdates) Update(ctx context.Context, affiliateID id.AffiliateID, review affiliatemodels.Review) (*affiliatemodels.Affiliate, error) {
	f.mu.Lock()
	if f.remaining > 0 {
		f.remaining--
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.AffiliateStore.Update(ctx, affiliateID, review)
}

func (s *RegistrationServiceSuite) TestProcessApprovalOutcomeFailureStillCompletes() {
	session := s.pending("ada@acme.org")
	s.notifier.EXPECT().
		Send(gomock.Any(), gomock.Any(), notification.TemplateApproved, gomock.Any()).
		Return(notification.Delivery{Status: notification.DeliverySkipped, Err: notification.ErrCircuitOpen})

	result, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", "reviewer-7", "")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, result.Status)

	stored := s.stored(session.ID)
	s.False(stored.Notifications.OutcomeSent)
	s.Contains(stored.Notifications.LastFailure, "circuit open")
}

// =============================================================================
// Expiry
// =============================================================================

func (s *RegistrationServiceSuite) TestExpiredSessionIsNotFound() {
	staged := s.stage("ada@acme.org")
	token := s.stored(staged.SessionID).VerificationToken
	pending := s.pending("grace@acme.org")

	s.advance(time.Hour)

	_, err := s.service.GetRegistrationStatus(s.ctx, staged.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.VerifyEmail(s.ctx, staged.SessionID, token)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.ProcessApproval(s.ctx, pending.ApprovalToken, "approve", "reviewer-7", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Run("an expired staged session does not block a new one", func() {
		fresh := s.stage("ada@acme.org")
		s.NotEqual(staged.SessionID, fresh.SessionID)
		s.False(fresh.Resumed)
	})
}

// =============================================================================
// Status and resend
// =============================================================================

func (s *RegistrationServiceSuite) TestGetRegistrationStatus() {
	session := s.pending("ada@acme.org")

	snapshot, err := s.service.GetRegistrationStatus(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAffiliatePending, snapshot.Status)
	s.Empty(snapshot.VerificationToken)
	s.Empty(snapshot.ApprovalToken)
	s.Empty(snapshot.RejectionToken)
	s.Equal(*session.AffiliateID, *snapshot.AffiliateID)

	s.NotEmpty(s.stored(session.ID).ApprovalToken, "snapshot must not strip the stored record")
}

func (s *RegistrationServiceSuite) TestResendVerification() {
	staged := s.stage("ada@acme.org")

	s.expectSend(notification.TemplateVerification, 1)
	result, err := s.service.ResendVerification(s.ctx, staged.SessionID)
	s.Require().NoError(err)
	s.True(result.Resumed)
	s.Equal(staged.SessionID, result.SessionID)

	pending := s.pending("grace@acme.org")
	_, err = s.service.ResendVerification(s.ctx, pending.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func (s *RegistrationServiceSuite) TestScenarioPendingRegistrationIsNotDuplicated() {
	session := s.pending("ada@acme.org")

	// No notification expectations: restaging must send nothing.
	result, err := s.service.StageRegistration(s.ctx, application("ada@acme.org"))
	s.Require().NoError(err)
	s.Equal(session.ID, result.SessionID)
	s.Equal(models.StatusAffiliatePending, result.Status)
	s.True(result.Resumed)
	s.Equal(1, s.affiliates.Count())
}

func (s *RegistrationServiceSuite) TestScenarioApprovedRegistrationBlocksRestaging() {
	session := s.pending("ada@acme.org")
	s.expectSend(notification.TemplateApproved, 1)
	_, err := s.service.ProcessApproval(s.ctx, session.ApprovalToken, "approve", "reviewer-7", "")
	s.Require().NoError(err)

	_, err = s.service.StageRegistration(s.ctx, application("ada@acme.org"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RegistrationServiceSuite) TestAuditCarriesClientMetadata() {
	ctx := requestcontext.WithClientMetadata(s.ctx, "198.51.100.4", "onboard-test/1.0")
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	s.expectSend(notification.TemplateVerification, 1)

	staged, err := s.service.StageRegistration(ctx, application("hedy@acme.org"))
	s.Require().NoError(err)

	events, err := s.auditStore.ListBySubject(s.ctx, staged.SessionID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventRegistrationStaged), events[0].Action)
	s.Equal("198.51.100.4", events[0].ClientIP)
	s.Equal("onboard-test/1.0", events[0].UserAgent)
	s.Equal("req-42", events[0].RequestID)
	s.Equal(audit.CategoryOperations, events[0].Category)
}
