// Package service orchestrates affiliate registration: staging an
// application, confirming the contact address, and recording the reviewer's
// decision. The session store is the only coordination point between
// overlapping calls; every transition is a compare-and-swap through Execute.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	affiliatemodels "onboard/internal/affiliate/models"
	"onboard/internal/notification"
	"onboard/internal/registration/metrics"
	"onboard/internal/registration/models"
	"onboard/internal/registration/store"
	"onboard/pkg/attrs"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/email"
	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

const (
	defaultSessionTTL      = 72 * time.Hour
	defaultDecisionLease   = 2 * time.Minute
	defaultNotifyFanOut    = 4
	verifyPath             = "/verify-email"
	reviewPath             = "/review-registration"
	operationStage         = "stage"
	operationVerify        = "verify"
	operationDecide        = "decide"
	operationResend        = "resend"
	operationStatus        = "status"
	operationRecordFlags   = "record_notifications"
	operationReleaseClaim  = "release_claim"
	operationReleaseLease  = "release_lease"
	operationMarkPending   = "mark_pending"
	operationCompleteStage = "complete"
)

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.Session, error)
}

type SessionResolver interface {
	FindActiveByEmail(ctx context.Context, address string) (*models.Session, error)
}

type TokenGenerator interface {
	VerificationToken() (string, error)
	DecisionTokens(sessionID id.SessionID) (approve, reject string, err error)
}

type AffiliateStore interface {
	Create(ctx context.Context, affiliate *affiliatemodels.Affiliate) error
	FindByID(ctx context.Context, affiliateID id.AffiliateID) (*affiliatemodels.Affiliate, error)
	ExistsByContactEmail(ctx context.Context, address string) (bool, error)
	Update(ctx context.Context, affiliateID id.AffiliateID, review affiliatemodels.Review) (*affiliatemodels.Affiliate, error)
}

type Notifier interface {
	Send(ctx context.Context, to notification.Recipient, tmpl notification.Template, data any) notification.Delivery
}

type ProfileValidator interface {
	Validate(ctx context.Context, profile affiliatemodels.Profile) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the workflow knobs.
type Config struct {
	SessionTTL              time.Duration
	MaxVerificationAttempts int
	// DecisionLease is how long the request that recorded a decision has to
	// finish it before a repeat of the same decision may take over.
	DecisionLease time.Duration
	// PublicBaseURL prefixes the links placed in notifications.
	PublicBaseURL string
	// ReviewerEmails receive every reviewer request. Duplicates are dropped.
	ReviewerEmails []string
}

// Service drives a registration session through its lifecycle.
type Service struct {
	sessions       SessionStore
	resolver       SessionResolver
	tokens         TokenGenerator
	affiliates     AffiliateStore
	notifier       Notifier
	validator      ProfileValidator
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	clock          func() time.Time
	cfg            Config
	reviewers      []string
	fanOut         int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithValidator installs the business-rule check run at stage time.
func WithValidator(v ProfileValidator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithClock overrides the request-scoped clock. Tests only.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithNotifyFanOut bounds concurrent sends after verification.
func WithNotifyFanOut(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

func New(
	sessions SessionStore,
	resolver SessionResolver,
	tokens TokenGenerator,
	affiliates AffiliateStore,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if resolver == nil {
		return nil, errors.New("session resolver is required")
	}
	if tokens == nil {
		return nil, errors.New("token generator is required")
	}
	if affiliates == nil {
		return nil, errors.New("affiliate store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxVerificationAttempts <= 0 {
		cfg.MaxVerificationAttempts = models.DefaultMaxVerificationAttempts
	}
	if cfg.DecisionLease <= 0 {
		cfg.DecisionLease = defaultDecisionLease
	}

	s := &Service{
		sessions:   sessions,
		resolver:   resolver,
		tokens:     tokens,
		affiliates: affiliates,
		notifier:   notifier,
		cfg:        cfg,
		reviewers:  email.NormalizeList(cfg.ReviewerEmails),
		fanOut:     defaultNotifyFanOut,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// loadSession reads a live session. A lapsed TTL is indistinguishable from a
// session that never existed.
func (s *Service) loadSession(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.storeError(err, "failed to load registration session")
	}
	if session.StatusAt(now) == models.StatusExpired {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration session not found")
	}
	return session, nil
}

// storeError translates session store failures. Classified errors from a
// validate func pass through untouched.
func (s *Service) storeError(err error, msg string) error {
	if _, ok := dErrors.From(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeNotFound, "registration session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "registration session was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// live rejects a record read past its expiry inside a compare-and-swap.
func live(now time.Time, next store.ValidateFunc) store.ValidateFunc {
	return func(session *models.Session) error {
		if session.IsExpired(now) {
			return sentinel.ErrExpired
		}
		if next == nil {
			return nil
		}
		return next(session)
	}
}

func (s *Service) link(path string, query url.Values) string {
	u, err := url.Parse(s.cfg.PublicBaseURL)
	if err != nil || s.cfg.PublicBaseURL == "" {
		u = &url.URL{}
	}
	u = u.JoinPath(path)
	u.RawQuery = query.Encode()
	return u.String()
}

func profileOf(app models.Application) affiliatemodels.Profile {
	return affiliatemodels.Profile{
		OrganizationName: app.OrganizationName,
		ContactName:      app.ContactName,
		ContactEmail:     app.ContactEmail,
		Phone:            app.Phone,
		Website:          app.Website,
		Country:          app.Country,
		Description:      app.Description,
	}
}

func applicant(session *models.Session) notification.Recipient {
	return notification.Recipient{
		Email: session.ContactEmail(),
		Name:  session.Application.GreetingName(),
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:     attrs.ExtractString(attributes, "session_id"),
		AffiliateID: attrs.ExtractString(attributes, "affiliate_id"),
		Action:      string(event),
		Decision:    attrs.ExtractString(attributes, "decision"),
		Reason:      attrs.ExtractString(attributes, "reason"),
		Email:       attrs.ExtractString(attributes, "email"),
		RequestID:   attrs.ExtractString(attributes, "request_id"),
		ActorID:     attrs.ExtractString(attributes, "reviewer_id"),
		ClientIP:    requestcontext.ClientIP(ctx),
		UserAgent:   requestcontext.UserAgent(ctx),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

var tracer = otel.Tracer("onboard/internal/registration/service")

// begin opens the span and timer for one public operation. The returned func
// must be deferred with a pointer to the operation's named error.
func (s *Service) begin(ctx context.Context, operation string, attributes ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "registration."+operation, trace.WithAttributes(attributes...))
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, start)
		}
	}
}

func (s *Service) incStaged(outcome string) {
	if s.metrics != nil {
		s.metrics.IncStaged(outcome)
	}
}

func (s *Service) incVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncVerification(outcome)
	}
}

func (s *Service) incDecision(action models.Action, repeat bool) {
	if s.metrics != nil {
		s.metrics.IncDecision(string(action), repeat)
	}
}

func (s *Service) incConflict(operation string, err error) {
	if s.metrics != nil && errors.Is(err, sentinel.ErrConflict) {
		s.metrics.IncStoreConflict(operation)
	}
}
