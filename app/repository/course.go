package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
)

type CourseRepository struct {
	db DBTX
}

func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint64) (*entity.Course, error) {
	query := `
		SELECT id, title, price, currency, is_published, created_at, updated_at
		FROM courses
		WHERE id = ?
	`

	course := &entity.Course{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID,
		&course.Title,
		&course.Price,
		&course.Currency,
		&course.IsPublished,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return course, nil
}
