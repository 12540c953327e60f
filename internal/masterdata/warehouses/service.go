package warehouses

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

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.Validation("invalid %s", "id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, form WarehouseForm) (Warehouse, error) {
	w := Warehouse{Code: form.Code, Name: form.Name, Address: form.Address, IsActive: true}
	if form.IsActive != nil {
		w.IsActive = *form.IsActive
	}
	if err := s.validate(&w); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, w)
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (Warehouse, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	upd.Apply(&w)
	if err := s.validate(&w); err != nil {
		return Warehouse{}, err
	}
	if err := s.repo.Update(ctx, w); err != nil {
		return Warehouse{}, err
	}
	return w, nil
}

// Delete removes a warehouse that no inventory record references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	held, err := s.repo.HasInventory(ctx, id)
	if err != nil {
		return shared.Internal("check warehouse inventory", err)
	}
	if held {
		return shared.Conflict("warehouse %d still holds inventory", id)
	}
	return s.repo.Delete(ctx, id)
}
