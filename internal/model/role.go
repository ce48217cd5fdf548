package model

import "time"

// Role is a named tier in the admin hierarchy. Includes lists the junior
// roles this role implicitly authorizes; Rank orders roles by seniority
// (1 is the most senior) for display and error reporting.
type Role struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name" yaml:"name"`
	Description string    `json:"description" db:"description" yaml:"description"`
	Rank        int       `json:"rank" db:"rank_order" yaml:"rank"`
	Includes    []string  `json:"includes" yaml:"includes"`
	Permissions []string  `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at" yaml:"-"`
}
