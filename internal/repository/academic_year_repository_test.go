package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func academicYearRows(id, name string, isCurrent bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "start_date", "end_date", "is_current", "status", "created_at", "updated_at"}).
		AddRow(id, name, now, now.AddDate(0, 10, 0), isCurrent, "ONGOING", now, now)
}

func TestAcademicYearRepositoryFindCurrent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, start_date, end_date, is_current, status, created_at, updated_at FROM academic_years WHERE is_current = TRUE")).
		WillReturnRows(academicYearRows("ay-1", "2026-2027", true))

	year, err := repo.FindCurrent(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ay-1", year.ID)
	require.True(t, year.IsCurrent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryFindCurrentNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectQuery("SELECT .* FROM academic_years WHERE is_current = TRUE").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindCurrent(context.Background())
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAcademicYearRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO academic_years")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	year := &models.AcademicYear{Name: "2026-2027", StartDate: time.Now(), EndDate: time.Now().AddDate(0, 10, 0), Status: models.AcademicYearStatusUpcoming}
	require.NoError(t, repo.Create(context.Background(), year))
	require.NotEmpty(t, year.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySetCurrent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = TRUE")).
		WithArgs("ay-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetCurrent(context.Background(), "ay-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySetCurrentMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_years SET is_current = TRUE")).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SetCurrent(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryUpdateSemesterStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAcademicYearRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE semesters SET status =")).
		WithArgs("sem-1", models.SemesterStatusOngoing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateSemesterStatus(context.Background(), "sem-1", models.SemesterStatusOngoing))
	require.NoError(t, mock.ExpectationsWereMet())
}
