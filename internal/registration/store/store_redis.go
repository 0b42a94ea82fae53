package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"onboard/internal/registration/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

const defaultScanCount = 100

// RedisStore persists sessions as JSON values under KeyPrefix.
//
// Execute is an optimistic compare-and-swap: the key is WATCHed across the
// read, validate and write, and the MULTI is discarded if anyone else wrote
// the key in between.
type RedisStore struct {
	client    *redis.Client
	logger    *slog.Logger
	scanCount int64
	clock     func() time.Time
}

type RedisOption func(*RedisStore)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScanCount sets the COUNT hint for each SCAN step.
func WithScanCount(n int64) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.scanCount = n
		}
	}
}

func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		logger:    slog.Default(),
		scanCount: defaultScanCount,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a new session with SET NX EXAT. An existing key is a conflict.
func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	if !session.ExpiresAt.After(s.clock()) {
		return sentinel.ErrExpired
	}
	data, err := encode(session)
	if err != nil {
		return err
	}
	err = s.client.SetArgs(ctx, sessionKey(session.ID), data, redis.SetArgs{
		Mode:     "NX",
		ExpireAt: session.ExpiresAt,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(data)
}

// Execute reads, validates, mutates and writes back one session atomically.
// A concurrent write to the same key yields an error matching both
// sentinel.ErrConflict and redis.TxFailedErr.
func (s *RedisStore) Execute(ctx context.Context, sessionID id.SessionID, validate ValidateFunc, mutate MutateFunc) (*models.Session, error) {
	key := sessionKey(sessionID)
	var result *models.Session

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		session, err := decode(data)
		if err != nil {
			return err
		}
		if err := validate(session); err != nil {
			return err
		}

		expiresAt := session.ExpiresAt
		mutate(session)
		session.ExpiresAt = expiresAt

		encoded, err := encode(session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, encoded, redis.SetArgs{ExpireAt: expiresAt})
			return nil
		})
		if err != nil {
			return err
		}
		result = session
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScanAll visits every live session. Records that fail to decode are logged
// and skipped. Iteration stops at the first error returned by fn.
func (s *RedisStore) ScanAll(ctx context.Context, fn func(*models.Session) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, KeyPrefix+"*", s.scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan sessions: %w", err)
		}
		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("load sessions: %w", err)
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					// expired between SCAN and MGET
					continue
				}
				session, err := decode([]byte(raw))
				if err != nil {
					s.logger.WarnContext(ctx, "skipping undecodable session", "key", keys[i], "error", err)
					continue
				}
				if err := fn(session); err != nil {
					return err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
