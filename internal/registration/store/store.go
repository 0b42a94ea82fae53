// Package store keeps registration sessions in an expiring key-value store.
//
// Every write replaces the whole record and reapplies the absolute expiry
// fixed at creation, so no amount of activity extends a session's lifetime.
package store

import (
	"encoding/json"
	"fmt"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
)

// KeyPrefix namespaces session keys. Duplicate detection scans this prefix.
const KeyPrefix = "registration:session:"

// ValidateFunc inspects the freshly read record. A non-nil error aborts the
// write and is returned unchanged.
type ValidateFunc func(*models.Session) error

// MutateFunc changes the record in memory before it is written back.
// Changes to ExpiresAt are discarded.
type MutateFunc func(*models.Session)

func sessionKey(sessionID id.SessionID) string {
	return KeyPrefix + sessionID.String()
}

func encode(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
