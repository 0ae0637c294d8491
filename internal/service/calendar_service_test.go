package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

type mockCalendarRepo struct {
	years        map[string]*models.AcademicYear
	semesters    map[string]*models.Semester
	currentID    string
	createdYears []string
}

func (m *mockCalendarRepo) FindCurrent(ctx context.Context) (*models.AcademicYear, error) {
	if y, ok := m.years[m.currentID]; ok {
		copied := *y
		copied.IsCurrent = true
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCalendarRepo) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := m.years[id]; ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCalendarRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	for _, y := range m.years {
		if y.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCalendarRepo) Create(ctx context.Context, year *models.AcademicYear) error {
	if m.years == nil {
		m.years = make(map[string]*models.AcademicYear)
	}
	if year.ID == "" {
		year.ID = "new-year"
	}
	m.years[year.ID] = year
	m.createdYears = append(m.createdYears, year.ID)
	return nil
}

func (m *mockCalendarRepo) SetCurrent(ctx context.Context, id string) error {
	if _, ok := m.years[id]; !ok {
		return sql.ErrNoRows
	}
	m.currentID = id
	return nil
}

func (m *mockCalendarRepo) CreateSemester(ctx context.Context, semester *models.Semester) error {
	if m.semesters == nil {
		m.semesters = make(map[string]*models.Semester)
	}
	if semester.ID == "" {
		semester.ID = "new-sem"
	}
	m.semesters[semester.ID] = semester
	return nil
}

func (m *mockCalendarRepo) FindSemesterByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCalendarRepo) FindOngoingSemester(ctx context.Context, academicYearID string) (*models.Semester, error) {
	for _, s := range m.semesters {
		if s.AcademicYearID == academicYearID && s.Status == models.SemesterStatusOngoing {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCalendarRepo) ListSemesters(ctx context.Context, academicYearID string) ([]models.Semester, error) {
	var list []models.Semester
	for _, s := range m.semesters {
		if s.AcademicYearID == academicYearID {
			list = append(list, *s)
		}
	}
	return list, nil
}

func (m *mockCalendarRepo) UpdateSemesterStatus(ctx context.Context, id string, status models.SemesterStatus) error {
	s, ok := m.semesters[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	return nil
}

func newCalendarService(repo *mockCalendarRepo) *CalendarService {
	cache := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	return NewCalendarService(repo, cache, time.Minute, validator.New(), zap.NewNop())
}

func testSemester() *models.Semester {
	return &models.Semester{
		ID:                  "sem1",
		AcademicYearID:      "ay1",
		Name:                "First Semester",
		EnrollmentStart:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EnrollmentEnd:       time.Date(2026, 8, 15, 23, 59, 59, 0, time.UTC),
		LateEnrollmentStart: time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC),
		LateEnrollmentEnd:   time.Date(2026, 8, 22, 23, 59, 59, 0, time.UTC),
		LatePenaltyFee:      decimal.NewFromInt(250),
		AddDropStart:        time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		AddDropEnd:          time.Date(2026, 9, 5, 23, 59, 59, 0, time.UTC),
		Status:              models.SemesterStatusOngoing,
	}
}

func TestEnrollmentWindowRegular(t *testing.T) {
	sem := testSemester()

	window := EnrollmentWindowAt(sem, time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	assert.True(t, window.Open)
	assert.False(t, window.IsLate)
}

func TestEnrollmentWindowBoundsInclusive(t *testing.T) {
	sem := testSemester()

	atStart := EnrollmentWindowAt(sem, sem.EnrollmentStart)
	assert.True(t, atStart.Open)
	assert.False(t, atStart.IsLate)

	atEnd := EnrollmentWindowAt(sem, sem.EnrollmentEnd)
	assert.True(t, atEnd.Open)
	assert.False(t, atEnd.IsLate)

	atLateEnd := EnrollmentWindowAt(sem, sem.LateEnrollmentEnd)
	assert.True(t, atLateEnd.Open)
	assert.True(t, atLateEnd.IsLate)
}

func TestEnrollmentWindowLateCarriesPenalty(t *testing.T) {
	sem := testSemester()

	window := EnrollmentWindowAt(sem, time.Date(2026, 8, 18, 12, 0, 0, 0, time.UTC))
	assert.True(t, window.Open)
	assert.True(t, window.IsLate)
	assert.True(t, window.PenaltyFee.Equal(decimal.NewFromInt(250)))
}

func TestEnrollmentWindowClosed(t *testing.T) {
	sem := testSemester()

	before := EnrollmentWindowAt(sem, time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC))
	assert.False(t, before.Open)

	after := EnrollmentWindowAt(sem, time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC))
	assert.False(t, after.Open)
}

func TestAddDropOpenStaffBypass(t *testing.T) {
	sem := testSemester()
	outside := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, AddDropOpenAt(sem, outside, false))
	assert.True(t, AddDropOpenAt(sem, outside, true))
	assert.True(t, AddDropOpenAt(sem, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), false))
}

func TestCalendarServiceCurrentSnapshot(t *testing.T) {
	repo := &mockCalendarRepo{
		years:     map[string]*models.AcademicYear{"ay1": {ID: "ay1", Name: "2026-2027"}},
		semesters: map[string]*models.Semester{"sem1": testSemester()},
		currentID: "ay1",
	}
	svc := newCalendarService(repo)

	snapshot, err := svc.Current(context.Background(), time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, snapshot.AcademicYear)
	require.NotNil(t, snapshot.CurrentSemester)
	assert.Equal(t, "2026-2027", snapshot.AcademicYear.Name)
	assert.True(t, snapshot.EnrollmentWindow.Open)
	assert.False(t, snapshot.AddDropOpen)
}

func TestCalendarServiceCurrentNoYear(t *testing.T) {
	svc := newCalendarService(&mockCalendarRepo{})

	_, err := svc.Current(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestCalendarServiceCreateAcademicYearDuplicateName(t *testing.T) {
	repo := &mockCalendarRepo{years: map[string]*models.AcademicYear{"ay1": {ID: "ay1", Name: "2026-2027"}}}
	svc := newCalendarService(repo)

	_, err := svc.CreateAcademicYear(context.Background(), CreateAcademicYearRequest{
		Name:      "2026-2027",
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestCalendarServiceCreateAcademicYearMarksCurrent(t *testing.T) {
	repo := &mockCalendarRepo{}
	svc := newCalendarService(repo)

	year, err := svc.CreateAcademicYear(context.Background(), CreateAcademicYearRequest{
		Name:      "2026-2027",
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	})
	require.NoError(t, err)
	assert.True(t, year.IsCurrent)
	assert.Equal(t, year.ID, repo.currentID)
}

func TestCalendarServiceCreateSemesterValidatesOrder(t *testing.T) {
	repo := &mockCalendarRepo{years: map[string]*models.AcademicYear{"ay1": {ID: "ay1", Name: "2026-2027"}}}
	svc := newCalendarService(repo)

	sem := testSemester()
	_, err := svc.CreateSemester(context.Background(), "ay1", CreateSemesterRequest{
		Name:                    sem.Name,
		StartDate:               time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                 time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EnrollmentStart:         sem.EnrollmentStart,
		EnrollmentEnd:           sem.EnrollmentEnd,
		LateEnrollmentStart:     sem.LateEnrollmentStart,
		LateEnrollmentEnd:       sem.LateEnrollmentEnd,
		AddDropStart:            sem.AddDropStart,
		AddDropEnd:              sem.AddDropEnd,
		MidtermStart:            time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		MidtermEnd:              time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC),
		FinalsStart:             time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC),
		FinalsEnd:               time.Date(2026, 12, 17, 0, 0, 0, 0, time.UTC),
		GradeSubmissionDeadline: time.Date(2026, 12, 22, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestCalendarServiceSetCurrentYear(t *testing.T) {
	repo := &mockCalendarRepo{years: map[string]*models.AcademicYear{
		"ay1": {ID: "ay1", Name: "2025-2026"},
		"ay2": {ID: "ay2", Name: "2026-2027"},
	}, currentID: "ay1"}
	svc := newCalendarService(repo)

	_, err := svc.SetCurrentYear(context.Background(), "ay2")
	require.NoError(t, err)
	assert.Equal(t, "ay2", repo.currentID)

	_, err = svc.SetCurrentYear(context.Background(), "missing")
	assert.Error(t, err)
}
