package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"go.uber.org/zap"
)

type LabInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Capacity *int   `json:"capacity" validate:"omitempty,gt=0"`
	Status   string `json:"status" validate:"omitempty,oneof=available maintenance"`
}

type LabService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewLabService(store repository.Store, logger *zap.Logger) *LabService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabService{store: store, logger: logger}
}

func (in LabInput) status() model.LabStatus {
	if in.Status == "" {
		return model.LabStatusAvailable
	}
	return model.LabStatus(in.Status)
}

// Create создаёт лабораторию
func (s *LabService) Create(ctx context.Context, actor Actor, in LabInput) (*model.Lab, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in).orNil(); err != nil {
		return nil, err
	}

	lab := &model.Lab{Name: in.Name, Capacity: in.Capacity, Status: in.status()}
	if err := s.store.Labs().Create(ctx, lab); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrLabNameTaken
		}
		return nil, err
	}

	s.logger.Info("Lab created", zap.Int64("lab_id", lab.ID), zap.String("name", lab.Name))
	return lab, nil
}

// Update меняет имя, вместимость и статус
func (s *LabService) Update(ctx context.Context, actor Actor, id int64, in LabInput) (*model.Lab, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in).orNil(); err != nil {
		return nil, err
	}

	lab, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lab.Name, lab.Capacity, lab.Status = in.Name, in.Capacity, in.status()

	if err := s.store.Labs().Update(ctx, lab); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrLabNameTaken
		}
		return nil, err
	}

	s.logger.Info("Lab updated",
		zap.Int64("lab_id", lab.ID),
		zap.String("status", string(lab.Status)),
	)
	return lab, nil
}

func (s *LabService) Get(ctx context.Context, id int64) (*model.Lab, error) {
	lab, err := s.store.Labs().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lab: %w", err)
	}
	if lab == nil {
		return nil, ErrLabNotFound
	}
	return lab, nil
}

func (s *LabService) List(ctx context.Context) ([]*model.Lab, error) {
	return s.store.Labs().List(ctx)
}

// Delete удаляет лабораторию без занятий; заявки удаляются каскадно
func (s *LabService) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		lab, err := tx.Labs().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get lab: %w", err)
		}
		if lab == nil {
			return ErrLabNotFound
		}

		count, err := tx.Schedules().CountByLab(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%d schedules: %w", count, ErrLabInUse)
		}
		return tx.Labs().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Lab deleted", zap.Int64("lab_id", id))
	return nil
}
