package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_sync/internal/domain"
)

var cols = []string{
	"id", "external_id", "title", "description", "booking_url", "bedrooms", "bathrooms",
	"featured_image", "status", "retired_at", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestFindByExternalID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	retired := now.Add(time.Hour)

	mock.ExpectQuery(findByExternalIDSQL).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "p1", "Villa A", "<p>x</p>", "https://book.example/p1", 3, 2,
				"assets/properties/a.jpg", "retired", retired, now, now))

	rec, err := repo.FindByExternalID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, 3, rec.Bedrooms)
	assert.Equal(t, domain.StatusRetired, rec.Status)
	require.NotNil(t, rec.FeaturedImage)
	assert.Equal(t, domain.AssetRef("assets/properties/a.jpg"), *rec.FeaturedImage)
	require.NotNil(t, rec.RetiredAt)
	assert.True(t, rec.RetiredAt.Equal(retired))
}

func TestFindByExternalID_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(findByExternalIDSQL).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByExternalID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate(t *testing.T) {
	repo, mock := newMock(t)
	img := domain.AssetRef("bucket/properties/x.jpg")
	f := domain.RecordFields{
		ExternalID: "p1", Title: "Villa A", Description: "d", BookingURL: "https://b.example",
		Bedrooms: 3, Bathrooms: 2, FeaturedImage: &img,
	}
	mock.ExpectExec(insertPropertySQL).
		WithArgs("p1", "Villa A", "d", "https://b.example", 3, 2, "bucket/properties/x.jpg").
		WillReturnResult(sqlmock.NewResult(42, 1))

	rec, err := repo.Create(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, domain.StatusActive, rec.Status)
	require.NotNil(t, rec.FeaturedImage)
	assert.Equal(t, img, *rec.FeaturedImage)
}

func TestCreate_WithoutImageWritesNull(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(insertPropertySQL).
		WithArgs("p2", "", "", "", 0, 0, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec, err := repo.Create(context.Background(), domain.RecordFields{ExternalID: "p2"})
	require.NoError(t, err)
	assert.Nil(t, rec.FeaturedImage)
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(insertPropertySQL).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'p1'"})

	_, err := repo.Create(context.Background(), domain.RecordFields{ExternalID: "p1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestUpdateReactivateRetire(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	f := domain.RecordFields{ExternalID: "p1", Title: "T", Description: "D", BookingURL: "U", Bedrooms: 4, Bathrooms: 1}

	mock.ExpectExec(updatePropertySQL).
		WithArgs("T", "D", "U", 4, 1, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(reactivatePropertySQL).
		WithArgs("T", "D", "U", 4, 1, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(retirePropertySQL).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(ctx, 7, f))
	require.NoError(t, repo.Reactivate(ctx, 8, f))
	require.NoError(t, repo.Retire(ctx, 9))
}

func TestUpdate_Error(t *testing.T) {
	repo, mock := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(updatePropertySQL).WillReturnError(boom)

	err := repo.Update(context.Background(), 7, domain.RecordFields{})
	assert.ErrorIs(t, err, boom)
}

func TestListActive(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(listActiveSQL).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "p1", "A", "", "", 1, 1, nil, "active", nil, now, now).
			AddRow(2, "p2", "B", "", "", 2, 1, "k", "active", nil, now, now))

	out, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ExternalID)
	assert.Nil(t, out[0].FeaturedImage)
	assert.Nil(t, out[0].RetiredAt)
	assert.NotNil(t, out[1].FeaturedImage)
}

func TestListActive_Empty(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(listActiveSQL).WillReturnRows(sqlmock.NewRows(cols))

	out, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestRecordRun(t *testing.T) {
	repo, mock := newMock(t)
	rep := domain.SyncReport{
		RunID:      "run-1",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Fetched:    3,
		Created:    1,
		Updated:    1,
		Retired:    1,
	}
	rep.AddProblem(domain.ProblemAssetCache, "p1", "timeout")

	mock.ExpectExec(insertRunSQL).
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, false, nil,
			3, 1, 1, 0, 0, 1, 0, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordRun(context.Background(), rep))
}
