package template

import (
	"errors"
	"time"
)

// Category selects the visual theme of generated documents
type Category string

const (
	CategoryOfferLetter       Category = "offer_letter"
	CategoryAppointmentLetter Category = "appointment_letter"
	CategoryExperienceLetter  Category = "experience_letter"
	CategoryCertificate       Category = "certificate"
	CategoryDefault           Category = ""
)

// Categories lists the known non-default categories
var Categories = []Category{
	CategoryOfferLetter,
	CategoryAppointmentLetter,
	CategoryExperienceLetter,
	CategoryCertificate,
}

// IsValidCategory reports whether c is a known category or the default
func IsValidCategory(c Category) bool {
	if c == CategoryDefault {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ValueType constrains the values accepted for a placeholder
type ValueType string

const (
	TypeText   ValueType = "text"
	TypeNumber ValueType = "number"
	TypeDate   ValueType = "date"
	TypeEmail  ValueType = "email"
)

var (
	// ErrNotFound is returned when a template does not exist
	ErrNotFound = errors.New("template not found")
	// ErrInactive is returned when a template exists but is disabled
	ErrInactive = errors.New("template is not active")
	// ErrNameTaken is returned when another template already uses the name
	ErrNameTaken = errors.New("template name already exists")
)

// Template is a named document blueprint
type Template struct {
	ID           string        `json:"id"`
	Name         string        `json:"name" validate:"required,min=2,max=100"`
	Description  string        `json:"description,omitempty" validate:"max=500"`
	Category     Category      `json:"category" validate:"category"`
	Body         string        `json:"body"`
	Placeholders []Placeholder `json:"placeholders,omitempty" validate:"unique=Name,dive"`
	Active       bool          `json:"active"`
	FileName     string        `json:"file_name,omitempty"`
	FileSize     int64         `json:"file_size,omitempty"`
	Version      int           `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Placeholder declares one schema field addressable as {{name}}
type Placeholder struct {
	Name        string    `json:"name" validate:"required,max=100,excludesall={}"`
	Type        ValueType `json:"type,omitempty" validate:"omitempty,oneof=text number date email"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	Example     string    `json:"example,omitempty"`
}

// ValueType returns the declared type, defaulting to text
func (p Placeholder) ValueType() ValueType {
	if p.Type == "" {
		return TypeText
	}
	return p.Type
}

// HasMergeDocument reports whether a DOCX merge document is attached
func (t *Template) HasMergeDocument() bool {
	return t.FileName != ""
}

// RequiredFields returns the names of required placeholders in declaration order
func (t *Template) RequiredFields() []string {
	var names []string
	for _, p := range t.Placeholders {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// ListFilter contains filters for listing templates
type ListFilter struct {
	Limit    int
	Offset   int
	Search   string
	Category string
	Active   *bool
}

// Stats contains template statistics
type Stats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}
