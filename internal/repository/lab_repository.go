package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository/base"
)

type LabRepository struct {
	*base.Repository
}

func NewLabRepository(db base.DBTX) *LabRepository {
	return &LabRepository{Repository: base.NewRepository(db)}
}

const labColumns = `id, name, capacity, status, created_at, updated_at`

// Create создаёт лабораторию
func (r *LabRepository) Create(ctx context.Context, lab *model.Lab) error {
	query := `
		INSERT INTO labs (name, capacity, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(ctx, query, lab.Name, lab.Capacity, lab.Status).
		Scan(&lab.ID, &lab.CreatedAt, &lab.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create lab: %w", ErrDuplicate)
		}
		return fmt.Errorf("create lab: %w", err)
	}

	return nil
}

// GetByID получает лабораторию по ID
func (r *LabRepository) GetByID(ctx context.Context, id int64) (*model.Lab, error) {
	query := `SELECT ` + labColumns + ` FROM labs WHERE id = $1`

	var lab model.Lab
	err := r.DB().QueryRow(ctx, query, id).Scan(
		&lab.ID,
		&lab.Name,
		&lab.Capacity,
		&lab.Status,
		&lab.CreatedAt,
		&lab.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lab by id: %w", err)
	}

	return &lab, nil
}

// List возвращает все лаборатории по имени
func (r *LabRepository) List(ctx context.Context) ([]*model.Lab, error) {
	query := `SELECT ` + labColumns + ` FROM labs ORDER BY name`

	rows, err := r.DB().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list labs: %w", err)
	}
	defer rows.Close()

	var labs []*model.Lab
	for rows.Next() {
		var lab model.Lab
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.Capacity, &lab.Status, &lab.CreatedAt, &lab.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lab: %w", err)
		}
		labs = append(labs, &lab)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labs: %w", err)
	}

	return labs, nil
}

// Update обновляет имя, вместимость и статус
func (r *LabRepository) Update(ctx context.Context, lab *model.Lab) error {
	query := `
		UPDATE labs
		SET name = $1, capacity = $2, status = $3, updated_at = now()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.DB().QueryRow(ctx, query, lab.Name, lab.Capacity, lab.Status, lab.ID).Scan(&lab.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("lab not found")
		}
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("update lab: %w", ErrDuplicate)
		}
		return fmt.Errorf("update lab: %w", err)
	}

	return nil
}

// Delete удаляет лабораторию
func (r *LabRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM labs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lab: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lab not found")
	}

	return nil
}
