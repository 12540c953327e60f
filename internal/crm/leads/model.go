package leads

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle stage of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return true
	}
	return false
}

// Priority ranks leads for follow-up.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Lead is a sales opportunity in its early stage, optionally tied to a customer.
type Lead struct {
	ID             int64           `json:"id"`
	CustomerID     int64           `json:"customer_id,omitempty"`
	Source         string          `json:"source"`
	Status         Status          `json:"status"`
	Priority       Priority        `json:"priority"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Notes          string          `json:"notes"`
	AssignedTo     int64           `json:"assigned_to,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LeadForm is the create payload. AssignedTo defaults to the creating user.
type LeadForm struct {
	CustomerID     int64           `json:"customer_id" validate:"omitempty,gt=0"`
	Source         string          `json:"source" validate:"max=100"`
	Status         Status          `json:"status" validate:"omitempty,oneof=new contacted qualified converted lost"`
	Priority       Priority        `json:"priority" validate:"omitempty,oneof=low medium high"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Notes          string          `json:"notes" validate:"max=2000"`
	AssignedTo     int64           `json:"assigned_to" validate:"omitempty,gt=0"`
}

// Update lists the mutable lead fields. A CustomerID of 0 detaches the customer.
type Update struct {
	CustomerID     *int64           `json:"customer_id" validate:"omitempty,gte=0"`
	Source         *string          `json:"source" validate:"omitempty,max=100"`
	Status         *Status          `json:"status" validate:"omitempty,oneof=new contacted qualified converted lost"`
	Priority       *Priority        `json:"priority" validate:"omitempty,oneof=low medium high"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	Notes          *string          `json:"notes" validate:"omitempty,max=2000"`
	AssignedTo     *int64           `json:"assigned_to" validate:"omitempty,gt=0"`
}

// Apply copies the set fields onto l.
func (u Update) Apply(l *Lead) {
	if u.CustomerID != nil {
		l.CustomerID = *u.CustomerID
	}
	if u.Source != nil {
		l.Source = *u.Source
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.Priority != nil {
		l.Priority = *u.Priority
	}
	if u.EstimatedValue != nil {
		l.EstimatedValue = *u.EstimatedValue
	}
	if u.Notes != nil {
		l.Notes = *u.Notes
	}
	if u.AssignedTo != nil {
		l.AssignedTo = *u.AssignedTo
	}
}

// ListFilter narrows lead listings.
type ListFilter struct {
	Page       int
	Limit      int
	Search     string
	Status     Status
	AssignedTo int64
}

// Offset returns the SQL offset for the current page.
func (f ListFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
