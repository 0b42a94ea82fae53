package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/affiliate/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/sentinel"
)

var affiliateColumns = []string{
	"id", "source_session_id", "organization_name", "contact_name", "contact_email",
	"phone", "website", "country", "description", "status", "privilege", "visibility",
	"reviewed_by", "review_reason", "reviewed_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func pendingRow(a *models.Affiliate) *sqlmock.Rows {
	return sqlmock.NewRows(affiliateColumns).AddRow(
		a.ID.String(), a.SourceSessionID.String(), a.OrganizationName, a.ContactName, a.ContactEmail,
		a.Phone, a.Website, a.Country, a.Description, string(a.Status), string(a.Privilege), string(a.Visibility),
		"", "", nil, a.CreatedAt, a.UpdatedAt,
	)
}

func testAffiliate(t *testing.T) *models.Affiliate {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := models.NewAffiliate(id.NewAffiliateID(), id.NewSessionID(now), models.Profile{
		OrganizationName: "Acme",
		ContactEmail:     "ops@acme.io",
	}, now)
	require.NoError(t, err)
	return a
}

func TestPostgresStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts system defaults", func(t *testing.T) {
		st, mock := newMockStore(t)
		a := testAffiliate(t)
		args := make([]any, 14)
		for i := range args {
			args[i] = sqlmock.AnyArg()
		}
		args[9], args[10], args[11] = "pending", "member", "private"
		mock.ExpectExec("INSERT INTO affiliates").
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, st.Create(ctx, a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		st, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO affiliates").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "affiliates_contact_email_key"})

		err := st.Create(ctx, testAffiliate(t))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestPostgresStore_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("maps the row", func(t *testing.T) {
		st, mock := newMockStore(t)
		a := testAffiliate(t)
		mock.ExpectQuery("SELECT .* FROM affiliates WHERE id = \\$1").
			WillReturnRows(pendingRow(a))

		found, err := st.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, found.ID)
		assert.Equal(t, a.SourceSessionID, found.SourceSessionID)
		assert.Equal(t, models.StatusPending, found.Status)
		assert.Nil(t, found.ReviewedAt)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		st, mock := newMockStore(t)
		mock.ExpectQuery("SELECT .* FROM affiliates").WillReturnError(sql.ErrNoRows)

		_, err := st.FindByID(ctx, id.NewAffiliateID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresStore_ExistsByContactEmail(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ops@acme.io").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := st.ExistsByContactEmail(context.Background(), "ops@acme.io")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresStore_Update(t *testing.T) {
	ctx := context.Background()
	reviewedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("applies review under row lock", func(t *testing.T) {
		st, mock := newMockStore(t)
		a := testAffiliate(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .* FOR UPDATE").WillReturnRows(pendingRow(a))
		mock.ExpectExec("UPDATE affiliates").
			WithArgs(sqlmock.AnyArg(), "active", "rev-1", "looks good", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		updated, err := st.Update(ctx, a.ID, models.Review{
			Status:     models.StatusActive,
			ReviewedBy: "rev-1",
			Reason:     "looks good",
			ReviewedAt: reviewedAt,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, updated.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflicting decision rolls back", func(t *testing.T) {
		st, mock := newMockStore(t)
		a := testAffiliate(t)
		a.Status = models.StatusRejected
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .* FOR UPDATE").WillReturnRows(pendingRow(a))
		mock.ExpectRollback()

		_, err := st.Update(ctx, a.ID, models.Review{Status: models.StatusActive, ReviewedAt: reviewedAt})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
