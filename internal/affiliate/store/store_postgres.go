package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"onboard/internal/affiliate/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/platform/tx"
)

const uniqueViolation = "23505"

const selectColumns = `
	id, source_session_id, organization_name, contact_name, contact_email,
	phone, website, country, description, status, privilege, visibility,
	reviewed_by, review_reason, reviewed_at, created_at, updated_at`

// PostgresStore persists affiliates in PostgreSQL. Unique indexes on the
// lower-cased contact address and on the source session surface as
// sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Affiliate) error {
	query := `
		INSERT INTO affiliates (
			id, source_session_id, organization_name, contact_name, contact_email,
			phone, website, country, description, status, privilege, visibility,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID), a.SourceSessionID.String(), a.OrganizationName, a.ContactName, a.ContactEmail,
		a.Phone, a.Website, a.Country, a.Description,
		string(a.Status), string(a.Privilege), string(a.Visibility),
		a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create affiliate: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create affiliate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, affiliateID id.AffiliateID) (*models.Affiliate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM affiliates WHERE id = $1`, uuid.UUID(affiliateID))
	a, err := scanAffiliate(row)
	if err != nil {
		return nil, fmt.Errorf("find affiliate: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ExistsByContactEmail(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM affiliates WHERE lower(contact_email) = lower($1))`, address,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check affiliate email: %w", err)
	}
	return exists, nil
}

// Update applies a review under a row lock so two reviewers cannot record
// opposite decisions.
func (s *PostgresStore) Update(ctx context.Context, affiliateID id.AffiliateID, review models.Review) (*models.Affiliate, error) {
	var updated *models.Affiliate
	err := tx.Run(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		row := sqlTx.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM affiliates WHERE id = $1 FOR UPDATE`, uuid.UUID(affiliateID))
		a, err := scanAffiliate(row)
		if err != nil {
			return err
		}
		if err := a.CanApplyReview(review); err != nil {
			return err
		}
		if a.Status == review.Status {
			updated = a
			return nil
		}
		a.ApplyReview(review)

		_, err = sqlTx.ExecContext(ctx, `
			UPDATE affiliates
			SET status = $2, reviewed_by = $3, review_reason = $4, reviewed_at = $5, updated_at = $6
			WHERE id = $1
		`, uuid.UUID(a.ID), string(a.Status), a.ReviewedBy.String(), a.ReviewReason, a.ReviewedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update affiliate: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAffiliate(row rowScanner) (*models.Affiliate, error) {
	var (
		a          models.Affiliate
		rawID      uuid.UUID
		rawSession string
		status     string
		privilege  string
		visibility string
		reviewedBy string
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawSession, &a.OrganizationName, &a.ContactName, &a.ContactEmail,
		&a.Phone, &a.Website, &a.Country, &a.Description, &status, &privilege, &visibility,
		&reviewedBy, &a.ReviewReason, &reviewedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sessionID, err := id.ParseSessionID(rawSession)
	if err != nil {
		return nil, fmt.Errorf("stored source_session_id %q: %w", rawSession, err)
	}
	a.ID = id.AffiliateID(rawID)
	a.SourceSessionID = sessionID
	a.Status = models.Status(status)
	a.Privilege = models.Privilege(privilege)
	a.Visibility = models.Visibility(visibility)
	a.ReviewedBy = id.ReviewerID(reviewedBy)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
