package customers

import "time"

// Customer is a company or person that sales orders are placed for.
type Customer struct {
	ID          int64     `json:"id"`
	CompanyName string    `json:"company_name"`
	ContactName string    `json:"contact_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Notes       string    `json:"notes"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomerForm is the create payload.
type CustomerForm struct {
	CompanyName string `json:"company_name" validate:"required,max=200"`
	ContactName string `json:"contact_name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=50"`
	Address     string `json:"address" validate:"max=500"`
	City        string `json:"city" validate:"max=100"`
	Country     string `json:"country" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=2000"`
}

// Update lists the mutable customer fields.
type Update struct {
	CompanyName *string `json:"company_name" validate:"omitempty,min=1,max=200"`
	ContactName *string `json:"contact_name" validate:"omitempty,max=200"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
	IsActive    *bool   `json:"is_active"`
}

// Apply copies the set fields onto c.
func (u Update) Apply(c *Customer) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.CompanyName, u.CompanyName)
	set(&c.ContactName, u.ContactName)
	set(&c.Email, u.Email)
	set(&c.Phone, u.Phone)
	set(&c.Address, u.Address)
	set(&c.City, u.City)
	set(&c.Country, u.Country)
	set(&c.Notes, u.Notes)
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
}
