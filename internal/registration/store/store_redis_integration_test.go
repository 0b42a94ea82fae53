//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"onboard/internal/registration/models"
	"onboard/internal/registration/store"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client, store.WithScanCount(2))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func makeSession(email string, ttl time.Duration) *models.Session {
	now := time.Now()
	sess, err := models.NewSession(id.NewSessionID(now), models.Application{
		OrganizationName: "Acme",
		ContactEmail:     email,
	}, "verify-token", 5, now, ttl)
	if err != nil {
		panic(err)
	}
	return sess
}

func (s *RedisStoreSuite) TestCreateSetsAbsoluteExpiry() {
	ctx := context.Background()
	sess := makeSession("ttl@x.org", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	expireAt, err := s.redis.Client.ExpireTime(ctx, store.KeyPrefix+sess.ID.String()).Result()
	s.Require().NoError(err)
	s.Equal(sess.ExpiresAt.Unix(), int64(expireAt/time.Second))

	s.ErrorIs(s.store.Create(ctx, sess), sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestExecuteReappliesOriginalExpiry() {
	ctx := context.Background()
	sess := makeSession("rmw@x.org", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	_, err := s.store.Execute(ctx, sess.ID,
		func(cur *models.Session) error { return cur.CanVerify() },
		func(cur *models.Session) { cur.ApplyFailedAttempt(time.Now()) },
	)
	s.Require().NoError(err)

	expireAt, err := s.redis.Client.ExpireTime(ctx, store.KeyPrefix+sess.ID.String()).Result()
	s.Require().NoError(err)
	s.Equal(sess.ExpiresAt.Unix(), int64(expireAt/time.Second))

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(1, found.VerificationAttempts)
}

func (s *RedisStoreSuite) TestMissingAndExpired() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewSessionID(time.Now()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	sess := makeSession("short@x.org", 1500*time.Millisecond)
	s.Require().NoError(s.store.Create(ctx, sess))
	s.Eventually(func() bool {
		_, err := s.store.FindByID(ctx, sess.ID)
		return errors.Is(err, sentinel.ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)
}

// TestWATCHConflictDetection races many claims on one session. Exactly one
// wins; every loser sees either the WATCH abort or the winner's state.
func (s *RedisStoreSuite) TestWATCHConflictDetection() {
	ctx := context.Background()
	sess := makeSession("race@x.org", time.Hour)
	s.Require().NoError(s.store.Create(ctx, sess))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, conflictCount, stateCount, otherErrors atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, sess.ID,
				func(cur *models.Session) error {
					time.Sleep(5 * time.Millisecond)
					return cur.CanVerify()
				},
				func(cur *models.Session) { cur.ApplyEmailVerified(time.Now()) },
			)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				s.True(errors.Is(err, redis.TxFailedErr))
				conflictCount.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInvalidState):
				stateCount.Add(1)
			default:
				otherErrors.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one claim should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load()+stateCount.Load())
	s.Equal(int32(0), otherErrors.Load())

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusEmailVerified, found.Status)
}

func (s *RedisStoreSuite) TestScanAllVisitsEverySession() {
	ctx := context.Background()
	for _, email := range []string{"a@x.org", "b@x.org", "c@x.org", "d@x.org", "e@x.org"} {
		s.Require().NoError(s.store.Create(ctx, makeSession(email, time.Hour)))
	}
	s.Require().NoError(s.redis.Client.Set(ctx, "unrelated:key", "x", 0).Err())
	s.Require().NoError(s.redis.Client.Set(ctx, store.KeyPrefix+"garbage", "{not json", time.Hour).Err())

	seen := map[string]bool{}
	s.Require().NoError(s.store.ScanAll(ctx, func(sess *models.Session) error {
		seen[sess.ContactEmail()] = true
		return nil
	}))
	s.Len(seen, 5)
}
