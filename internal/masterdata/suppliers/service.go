package suppliers

import (
	"context"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.Validation("invalid %s", "id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, form SupplierForm) (Supplier, error) {
	sup := Supplier{
		Code:        form.Code,
		Name:        form.Name,
		ContactName: form.ContactName,
		Email:       form.Email,
		Phone:       form.Phone,
		Address:     form.Address,
		IsActive:    true,
	}
	if err := s.validate(&sup); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, sup)
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (Supplier, error) {
	sup, err := s.Get(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	upd.Apply(&sup)
	if err := s.validate(&sup); err != nil {
		return Supplier{}, err
	}
	if err := s.repo.Update(ctx, sup); err != nil {
		return Supplier{}, err
	}
	return sup, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validation("invalid %s", "id")
	}
	return s.repo.Delete(ctx, id)
}
