package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/httputil"
	"onboard/pkg/requestcontext"
)

// Service defines the registration operations exposed over HTTP.
type Service interface {
	StageRegistration(ctx context.Context, app models.Application) (*models.StageResult, error)
	VerifyEmail(ctx context.Context, sessionID id.SessionID, token string) (*models.VerifyResult, error)
	ProcessApproval(ctx context.Context, token, action string, reviewerID id.ReviewerID, reason string) (*models.ApprovalResult, error)
	GetRegistrationStatus(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ResendVerification(ctx context.Context, sessionID id.SessionID) (*models.StageResult, error)
}

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

func passthrough(next http.Handler) http.Handler { return next }

// Handler wires registration endpoints to the registration service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	reviewerAuth Middleware
	throttle     Middleware
}

// New constructs a registration handler. reviewerAuth guards the decision
// endpoint; throttle, when non-nil, guards the unauthenticated writes.
func New(service Service, logger *slog.Logger, reviewerAuth, throttle Middleware) *Handler {
	if throttle == nil {
		throttle = passthrough
	}
	// Without an authenticator HandleDecision still refuses requests, since no
	// reviewer ever reaches the context.
	if reviewerAuth == nil {
		reviewerAuth = passthrough
	}
	return &Handler{
		service:      service,
		logger:       logger,
		reviewerAuth: reviewerAuth,
		throttle:     throttle,
	}
}

// Register mounts registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.With(h.throttle).Post("/", h.HandleStage)
		r.With(h.throttle).Post("/verify-email", h.HandleVerifyEmail)
		r.With(h.reviewerAuth).Post("/approve/{token}", h.HandleDecision)
		r.Get("/status/{sessionID}", h.HandleStatus)
		r.With(h.throttle).Post("/{sessionID}/resend", h.HandleResend)
	})
}

// HandleStage handles POST /registrations.
func (h *Handler) HandleStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[StageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.StageRegistration(ctx, req.Application)
	if err != nil {
		h.logFailure(ctx, "stage registration failed", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration staged",
		"request_id", requestID,
		"session_id", result.SessionID,
		"status", result.Status,
		"resumed", result.Resumed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, result)
}

// HandleVerifyEmail handles POST /registrations/verify-email.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.VerifyEmail(ctx, req.ParsedSessionID(), req.Token)
	if err != nil {
		h.logFailure(ctx, "email verification failed", err,
			"request_id", requestID,
			"session_id", req.ParsedSessionID(),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "email verified",
		"request_id", requestID,
		"session_id", req.ParsedSessionID(),
		"status", result.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleDecision handles POST /registrations/approve/{token}.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reviewerID := requestcontext.ReviewerID(ctx)
	if reviewerID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	action := req.Action
	if action == "" {
		action = r.URL.Query().Get("action")
	}

	result, err := h.service.ProcessApproval(ctx, chi.URLParam(r, "token"), action, reviewerID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "registration decision failed", err,
			"request_id", requestID,
			"reviewer_id", reviewerID,
			"action", action,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration decided",
		"request_id", requestID,
		"reviewer_id", reviewerID,
		"action", result.Action,
		"status", result.Status,
		"already_processed", result.AlreadyProcessed,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleStatus handles GET /registrations/status/{sessionID}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.GetRegistrationStatus(ctx, sessionID)
	if err != nil {
		h.logFailure(ctx, "registration status lookup failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleResend handles POST /registrations/{sessionID}/resend.
func (h *Handler) HandleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ResendVerification(ctx, sessionID)
	if err != nil {
		h.logFailure(ctx, "verification resend failed", err,
			"request_id", requestID,
			"session_id", sessionID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, result)
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if de, ok := dErrors.From(err); ok && httputil.StatusFor(de.Code) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, args...)
		return
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
