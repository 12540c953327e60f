package leads

import (
	"context"
	"strings"

	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Service manages leads.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Lead, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, shared.Validation("invalid lead status %q", string(filter.Status))
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Lead, error) {
	if id <= 0 {
		return Lead{}, shared.Validation("invalid %s", "id")
	}
	return s.repo.Get(ctx, id)
}

// Create stores a lead, defaulting the status to new, the priority to medium and
// the assignee to the current user.
func (s *Service) Create(ctx context.Context, form LeadForm) (Lead, error) {
	l := Lead{
		CustomerID:     form.CustomerID,
		Source:         form.Source,
		Status:         form.Status,
		Priority:       form.Priority,
		EstimatedValue: form.EstimatedValue,
		Notes:          form.Notes,
		AssignedTo:     form.AssignedTo,
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	if l.Priority == "" {
		l.Priority = PriorityMedium
	}
	if l.AssignedTo == 0 {
		l.AssignedTo = shared.ActorID(ctx)
	}
	if err := validate(&l); err != nil {
		return Lead{}, err
	}
	return s.repo.Create(ctx, l)
}

func (s *Service) Update(ctx context.Context, id int64, upd Update) (Lead, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	upd.Apply(&l)
	if err := validate(&l); err != nil {
		return Lead{}, err
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validation("invalid %s", "id")
	}
	return s.repo.Delete(ctx, id)
}

func validate(l *Lead) error {
	l.Source = strings.TrimSpace(l.Source)
	l.Notes = strings.TrimSpace(l.Notes)
	if !l.Status.Valid() {
		return shared.Validation("invalid lead status %q", string(l.Status))
	}
	if !l.Priority.Valid() {
		return shared.Validation("invalid lead priority %q", string(l.Priority))
	}
	if l.CustomerID < 0 {
		return shared.Validation("invalid %s", "customer_id")
	}
	if l.EstimatedValue.IsNegative() {
		return shared.Validation("estimated value must not be negative")
	}
	if !pricing.FitsMoney(l.EstimatedValue) {
		return shared.Validation("price allows at most %d decimal places", pricing.MoneyPlaces)
	}
	return nil
}
