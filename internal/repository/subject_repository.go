package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const subjectColumns = `id, code, name, lecture_units, lab_units, total_units, department, created_at, updated_at`

// SubjectRepository reads course-catalog subjects. The catalog is owned by
// another service; this repository never writes to it.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID loads a subject by identifier.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE id = $1`, subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindByIDs loads the given subjects keyed by ID. Missing IDs are simply
// absent from the result; the caller decides whether that is an error.
func (r *SubjectRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error) {
	if len(ids) == 0 {
		return map[string]models.Subject{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM subjects WHERE id IN (%s)", subjectColumns, strings.Join(placeholders, ","))
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("find subjects: %w", err)
	}

	result := make(map[string]models.Subject, len(subjects))
	for _, subject := range subjects {
		result[subject.ID] = subject
	}
	return result, nil
}
