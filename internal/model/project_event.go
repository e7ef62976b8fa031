package model

import "sort"

// ProjectEventType is the kind of a dated project event.
type ProjectEventType string

const (
	ProjectEventDeadline     ProjectEventType = "deadline"
	ProjectEventMeeting      ProjectEventType = "meeting"
	ProjectEventPresentation ProjectEventType = "presentation"
)

func (t ProjectEventType) Valid() bool {
	switch t {
	case ProjectEventDeadline, ProjectEventMeeting, ProjectEventPresentation:
		return true
	}
	return false
}

// ProjectEvent is a dated entry on a project's calendar that is not a milestone: a submission
// deadline, a meeting or a presentation. It has no completion state.
type ProjectEvent struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Type        ProjectEventType `json:"type"`
	Date        Date             `json:"date"`
	Description string           `json:"description"`
}

// NewProjectEventInput contains information needed to schedule a ProjectEvent.
type NewProjectEventInput struct {
	Title       string           `json:"title" validate:"notblank,max=200"`
	Type        ProjectEventType `json:"type" validate:"required,oneof=deadline meeting presentation"`
	Date        Date             `json:"date" validate:"required"`
	Description string           `json:"description" validate:"max=2000"`
}

func (in NewProjectEventInput) Validate() error {
	return validateStruct(in)
}

// BuildProjectEvent creates a ProjectEvent from validated input.
func BuildProjectEvent(id string, in NewProjectEventInput) (ProjectEvent, error) {
	if err := in.Validate(); err != nil {
		return ProjectEvent{}, err
	}
	e := ProjectEvent{ID: id, Title: in.Title, Type: in.Type, Date: in.Date, Description: in.Description}
	if err := e.Validate(); err != nil {
		return ProjectEvent{}, err
	}
	return e, nil
}

func (e ProjectEvent) Validate() error {
	var fields []FieldError
	if e.ID == "" {
		fields = append(fields, FieldError{Field: "id", Error: "this field is required"})
	}
	if e.Title == "" {
		fields = append(fields, FieldError{Field: "title", Error: "this field is required"})
	}
	if !e.Type.Valid() {
		fields = append(fields, FieldError{Field: "type", Error: "must be one of deadline, meeting, presentation"})
	}
	if e.Date.IsZero() {
		fields = append(fields, FieldError{Field: "date", Error: "this field is required"})
	}
	if len(fields) > 0 {
		return NewValidationError(nil, fields...)
	}
	return nil
}

// ProjectEvent returns the scheduled event with id.
func (p *Project) ProjectEvent(id string) (ProjectEvent, bool) {
	for _, e := range p.Events {
		if e.ID == id {
			return e, true
		}
	}
	return ProjectEvent{}, false
}

// AddProjectEvent inserts e keeping Events sorted by date; same-day events keep insertion order.
func (p *Project) AddProjectEvent(e ProjectEvent) {
	p.Events = append(p.Events, e)
	p.SortProjectEvents()
}

// RemoveProjectEvent deletes the event with id and reports whether it was present.
func (p *Project) RemoveProjectEvent(id string) bool {
	for i, e := range p.Events {
		if e.ID == id {
			p.Events = append(p.Events[:i], p.Events[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Project) SortProjectEvents() {
	sort.SliceStable(p.Events, func(i, j int) bool {
		return p.Events[i].Date.Before(p.Events[j].Date)
	})
}
