package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
)

// GetRegistrationStatus returns a snapshot of the session with every secret
// stripped. It never mutates.
func (s *Service) GetRegistrationStatus(ctx context.Context, sessionID id.SessionID) (_ *models.Session, err error) {
	ctx, end := s.begin(ctx, operationStatus, attribute.String("session_id", sessionID.String()))
	defer end(&err)
	now := s.now(ctx)

	session, err := s.loadSession(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	return session.Snapshot(now), nil
}
