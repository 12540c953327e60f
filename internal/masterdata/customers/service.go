package customers

import (
	"context"
	"strings"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Service manages customers.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Customer, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.Validation("invalid %s", "id")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, form CustomerForm) (Customer, error) {
	c := Customer{
		CompanyName: form.CompanyName,
		ContactName: form.ContactName,
		Email:       form.Email,
		Phone:       form.Phone,
		Address:     form.Address,
		City:        form.City,
		Country:     form.Country,
		Notes:       form.Notes,
		IsActive:    true,
		CreatedBy:   shared.ActorID(ctx),
	}
	if err := validate(&c); err != nil {
		return Customer{}, err
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (Customer, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	upd.Apply(&c)
	if err := validate(&c); err != nil {
		return Customer{}, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validation("invalid %s", "id")
	}
	return s.repo.Delete(ctx, id)
}

func validate(c *Customer) error {
	c.CompanyName = strings.TrimSpace(c.CompanyName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.CompanyName == "" {
		return shared.Validation("field %s failed %s validation", "company_name", "required")
	}
	return nil
}
