package suppliers

import (
	"strings"

	"github.com/crm-ims/crm-ims/internal/shared"
)

func (s *Service) validate(sup *Supplier) error {
	sup.Code = strings.TrimSpace(sup.Code)
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.ToLower(strings.TrimSpace(sup.Email))
	if sup.Code == "" {
		return shared.Validation("field %s failed %s validation", "code", "required")
	}
	if sup.Name == "" {
		return shared.Validation("field %s failed %s validation", "name", "required")
	}
	return nil
}
