package suppliers

import (
	"time"
)

// Supplier represents a vendor that purchase orders are placed with.
type Supplier struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SupplierForm is the create payload.
type SupplierForm struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=200"`
	ContactName string `json:"contact_name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=50"`
	Address     string `json:"address" validate:"max=500"`
}

// Update lists the mutable supplier fields.
type Update struct {
	Code        *string `json:"code" validate:"omitempty,min=1,max=32"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	ContactName *string `json:"contact_name" validate:"omitempty,max=200"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active"`
}

// Apply copies the set fields onto s.
func (u Update) Apply(s *Supplier) {
	if u.Code != nil {
		s.Code = *u.Code
	}
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.ContactName != nil {
		s.ContactName = *u.ContactName
	}
	if u.Email != nil {
		s.Email = *u.Email
	}
	if u.Phone != nil {
		s.Phone = *u.Phone
	}
	if u.Address != nil {
		s.Address = *u.Address
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
}
