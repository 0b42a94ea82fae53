// Package resolver finds the live session that already owns a contact address.
package resolver

import (
	"context"
	"time"

	"onboard/internal/registration/models"
	"onboard/pkg/email"
	"onboard/pkg/platform/sentinel"
)

// Scanner enumerates every live session.
type Scanner interface {
	ScanAll(ctx context.Context, fn func(*models.Session) error) error
}

// Resolver walks the whole session namespace on every lookup. Cost is linear
// in the number of live sessions, which TTL keeps bounded.
// TODO: maintain a contact-address index alongside session writes once volume warrants it.
type Resolver struct {
	sessions Scanner
	clock    func() time.Time
}

type Option func(*Resolver)

func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(sessions Scanner, opts ...Option) *Resolver {
	r := &Resolver{
		sessions: sessions,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindActiveByEmail returns the most recently created session for address
// whose status is staged, email_verified or affiliate_pending. A staged
// session that has used up its verification attempts can never advance, so
// it is passed over and the applicant starts afresh.
func (r *Resolver) FindActiveByEmail(ctx context.Context, address string) (*models.Session, error) {
	want := email.Normalize(address)
	if want == "" {
		return nil, sentinel.ErrNotFound
	}
	now := r.clock()

	var latest *models.Session
	err := r.sessions.ScanAll(ctx, func(s *models.Session) error {
		if email.Normalize(s.ContactEmail()) != want {
			return nil
		}
		status := s.StatusAt(now)
		if !status.IsActive() {
			return nil
		}
		if status == models.StatusStaged && s.AttemptsExhausted() {
			return nil
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}
