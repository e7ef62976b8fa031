package model

import (
	"errors"
	"time"
)

// Milestone is a dated, completable unit of project progress.
// Completed is true exactly when both CompletedBy and CompletedAt are set.
type Milestone struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     Date       `json:"due_date"`
	Completed   bool       `json:"completed"`
	CompletedBy *string    `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Seq is the creation order inside the project; it breaks due date ties.
	Seq int `json:"seq"`
}

// NewMilestone contains information needed to add a Milestone to a project.
type NewMilestone struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
	DueDate     Date   `json:"due_date" validate:"required"`
}

func (nm NewMilestone) Validate() error {
	return validateStruct(nm)
}

// BuildMilestone creates a pending milestone from validated input.
func BuildMilestone(id string, nm NewMilestone) (Milestone, error) {
	if err := nm.Validate(); err != nil {
		return Milestone{}, err
	}
	m := Milestone{
		ID:          id,
		Title:       nm.Title,
		Description: nm.Description,
		DueDate:     nm.DueDate,
	}
	if err := m.Validate(); err != nil {
		return Milestone{}, err
	}
	return m, nil
}

// RestoreMilestone rebuilds a milestone read back from storage, rejecting broken completion state.
func RestoreMilestone(m Milestone) (Milestone, error) {
	if err := m.Validate(); err != nil {
		return Milestone{}, err
	}
	return m, nil
}

// Validate checks shape and the completion invariant.
func (m Milestone) Validate() error {
	var fields []FieldError
	if m.ID == "" {
		fields = append(fields, FieldError{Field: "id", Error: "this field is required"})
	}
	if m.Title == "" {
		fields = append(fields, FieldError{Field: "title", Error: "this field is required"})
	}
	if m.DueDate.IsZero() {
		fields = append(fields, FieldError{Field: "due_date", Error: "this field is required"})
	}
	hasBy := m.CompletedBy != nil && *m.CompletedBy != ""
	hasAt := m.CompletedAt != nil && !m.CompletedAt.IsZero()
	switch {
	case m.Completed && !hasBy:
		fields = append(fields, FieldError{Field: "completed_by", Error: "required when completed"})
	case !m.Completed && m.CompletedBy != nil:
		fields = append(fields, FieldError{Field: "completed_by", Error: "must be empty while pending"})
	}
	switch {
	case m.Completed && !hasAt:
		fields = append(fields, FieldError{Field: "completed_at", Error: "required when completed"})
	case !m.Completed && m.CompletedAt != nil:
		fields = append(fields, FieldError{Field: "completed_at", Error: "must be empty while pending"})
	}
	if len(fields) > 0 {
		return NewValidationError(errors.New("invalid milestone "+m.ID), fields...)
	}
	return nil
}

// MarkCompleted records who completed the milestone and when.
func (m *Milestone) MarkCompleted(by string, at time.Time) {
	m.Completed = true
	m.CompletedBy = &by
	m.CompletedAt = &at
}

// MarkPending clears completion state.
func (m *Milestone) MarkPending() {
	m.Completed = false
	m.CompletedBy = nil
	m.CompletedAt = nil
}

func (m Milestone) clone() Milestone {
	c := m
	if m.CompletedBy != nil {
		by := *m.CompletedBy
		c.CompletedBy = &by
	}
	if m.CompletedAt != nil {
		at := *m.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

// milestoneLess orders by due date, then creation order.
func milestoneLess(a, b Milestone) bool {
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}
