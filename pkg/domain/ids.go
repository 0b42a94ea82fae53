// Package domain holds the typed identifiers shared across registration and
// affiliate packages. Distinct types keep a session id from ever being passed
// where a durable affiliate id is expected.
package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	dErrors "onboard/pkg/domain-errors"
)

// maxIDLength bounds raw input before any parsing work is done.
const maxIDLength = 64

// SessionID identifies a registration session. It is a ULID: a millisecond
// timestamp followed by 80 random bits, so ids sort by creation time.
type SessionID ulid.ULID

// AffiliateID identifies the durable affiliate record.
type AffiliateID uuid.UUID

// ReviewerID identifies the reviewer who decided a registration. Reviewers
// come from the identity provider, so the value is opaque.
type ReviewerID string

var (
	sessionEntropyOnce sync.Once
	sessionEntropyMu   sync.Mutex
	sessionEntropy     *ulid.MonotonicEntropy
)

// NewSessionID mints a session id for the given instant. Ids minted in the
// same millisecond stay strictly increasing.
func NewSessionID(t time.Time) SessionID {
	sessionEntropyOnce.Do(func() {
		sessionEntropy = ulid.Monotonic(rand.Reader, 0)
	})
	sessionEntropyMu.Lock()
	defer sessionEntropyMu.Unlock()
	return SessionID(ulid.MustNew(ulid.Timestamp(t.UTC()), sessionEntropy))
}

// ParseSessionID validates a session id at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" || len(s) > maxIDLength {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	if u.Compare(ulid.ULID{}) == 0 {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	return SessionID(u), nil
}

func (id SessionID) String() string {
	return ulid.ULID(id).String()
}

// Time returns the creation instant encoded in the id.
func (id SessionID) Time() time.Time {
	return ulid.Time(ulid.ULID(id).Time())
}

func (id SessionID) IsNil() bool {
	return id == SessionID{}
}

func (id SessionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewAffiliateID mints a random durable record id.
func NewAffiliateID() AffiliateID {
	return AffiliateID(uuid.New())
}

// ParseAffiliateID validates an affiliate id at a trust boundary.
func ParseAffiliateID(s string) (AffiliateID, error) {
	if s == "" || len(s) > maxIDLength {
		return AffiliateID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid affiliate id")
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return AffiliateID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid affiliate id")
	}
	return AffiliateID(u), nil
}

func (id AffiliateID) String() string {
	return uuid.UUID(id).String()
}

func (id AffiliateID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id AffiliateID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AffiliateID) UnmarshalText(b []byte) error {
	parsed, err := ParseAffiliateID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseReviewerID trims and bounds a reviewer identifier.
func ParseReviewerID(s string) (ReviewerID, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid reviewer id")
	}
	return ReviewerID(s), nil
}

func (id ReviewerID) String() string {
	return string(id)
}
