package warehouses

import (
	"strings"

	"github.com/crm-ims/crm-ims/internal/shared"
)

func (s *Service) validate(w *Warehouse) error {
	w.Code = strings.ToUpper(strings.TrimSpace(w.Code))
	w.Name = strings.TrimSpace(w.Name)
	if w.Code == "" {
		return shared.Validation("field %s failed %s validation", "code", "required")
	}
	if w.Name == "" {
		return shared.Validation("field %s failed %s validation", "name", "required")
	}
	return nil
}
