package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// Project is the aggregate root. Milestones are kept sorted by due date, then creation order;
// Events by date.
type Project struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       Status         `json:"status"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	Milestones   []Milestone    `json:"milestones"`
	Participants []Participant  `json:"participants"`
	Events       []ProjectEvent `json:"events"`
	// Version is the optimistic concurrency counter; 0 means never persisted.
	Version int64 `json:"version"`

	pending []Event
}

// NewProject contains information needed to create a Project.
type NewProject struct {
	Title        string                `json:"title" validate:"notblank,max=200"`
	Description  string                `json:"description" validate:"notblank,max=5000"`
	Milestones   []NewMilestone        `json:"milestones" validate:"dive"`
	Participants []NewParticipantInput `json:"participants" validate:"dive"`
}

func (np NewProject) Validate() error {
	if err := validateStruct(np); err != nil {
		return err
	}
	seen := make(map[string]bool, len(np.Participants))
	for i, p := range np.Participants {
		if seen[p.ID] {
			return NewValidationError(nil, FieldError{
				Field: fmt.Sprintf("participants[%d].id", i),
				Error: "duplicate participant",
			})
		}
		seen[p.ID] = true
	}
	return nil
}

// BuildProject creates an in-progress project whose only participant is its primary supervisor.
func BuildProject(id string, title, description string, primary Participant, createdAt time.Time) (*Project, error) {
	if primary.Role != RolePrimarySupervisor {
		return nil, NewValidationError(nil, FieldError{Field: "created_by", Error: "creator must be the primary supervisor"})
	}
	p := &Project{
		ID:           id,
		Title:        strings.TrimSpace(title),
		Description:  strings.TrimSpace(description),
		Status:       StatusInProgress,
		CreatedBy:    primary.ID,
		CreatedAt:    createdAt,
		Milestones:   []Milestone{},
		Participants: []Participant{primary},
		Events:       []ProjectEvent{},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks every aggregate invariant.
func (p *Project) Validate() error {
	var fields []FieldError
	if p.ID == "" {
		fields = append(fields, FieldError{Field: "id", Error: "this field is required"})
	}
	if p.Title == "" {
		fields = append(fields, FieldError{Field: "title", Error: "this field is required"})
	}
	if !p.Status.Valid() {
		fields = append(fields, FieldError{Field: "status", Error: "invalid status"})
	}

	primaries := 0
	seen := make(map[string]bool, len(p.Participants))
	for i, part := range p.Participants {
		if err := validateStruct(part); err != nil {
			fields = append(fields, FieldError{Field: fmt.Sprintf("participants[%d]", i), Error: err.Error()})
		}
		if seen[part.ID] {
			fields = append(fields, FieldError{Field: fmt.Sprintf("participants[%d].id", i), Error: "duplicate participant"})
		}
		seen[part.ID] = true
		if part.Role == RolePrimarySupervisor {
			primaries++
			if part.ID != p.CreatedBy {
				fields = append(fields, FieldError{Field: "created_by", Error: "must be the primary supervisor"})
			}
		}
	}
	if primaries != 1 {
		fields = append(fields, FieldError{Field: "participants", Error: "exactly one primary supervisor is required"})
	}

	ids := make(map[string]bool, len(p.Milestones))
	for i, m := range p.Milestones {
		if err := m.Validate(); err != nil {
			fields = append(fields, FieldError{Field: fmt.Sprintf("milestones[%d]", i), Error: err.Error()})
		}
		if ids[m.ID] {
			fields = append(fields, FieldError{Field: fmt.Sprintf("milestones[%d].id", i), Error: "duplicate milestone"})
		}
		ids[m.ID] = true
		if p.Status == StatusCompleted && !m.Completed {
			fields = append(fields, FieldError{Field: fmt.Sprintf("milestones[%d].completed", i), Error: "completed project has a pending milestone"})
		}
	}

	eventIDs := make(map[string]bool, len(p.Events))
	for i, e := range p.Events {
		if err := e.Validate(); err != nil {
			fields = append(fields, FieldError{Field: fmt.Sprintf("events[%d]", i), Error: err.Error()})
		}
		if eventIDs[e.ID] {
			fields = append(fields, FieldError{Field: fmt.Sprintf("events[%d].id", i), Error: "duplicate event"})
		}
		eventIDs[e.ID] = true
	}

	if len(fields) > 0 {
		return NewValidationError(errors.New("invalid project "+p.ID), fields...)
	}
	return nil
}

func (p *Project) IsCompleted() bool { return p.Status == StatusCompleted }

func (p *Project) Participant(id string) (Participant, bool) {
	for _, part := range p.Participants {
		if part.ID == id {
			return part, true
		}
	}
	return Participant{}, false
}

func (p *Project) IsParticipant(id string) bool {
	_, ok := p.Participant(id)
	return ok
}

func (p *Project) PrimarySupervisor() Participant {
	for _, part := range p.Participants {
		if part.Role == RolePrimarySupervisor {
			return part
		}
	}
	return Participant{}
}

// AddParticipant attaches a secondary supervisor or trainee.
func (p *Project) AddParticipant(part Participant) error {
	if err := validateStruct(part); err != nil {
		return err
	}
	if part.Role == RolePrimarySupervisor {
		return NewValidationError(nil, FieldError{Field: "role", Error: "a project has exactly one primary supervisor"})
	}
	if p.IsParticipant(part.ID) {
		return NewValidationError(nil, FieldError{Field: "id", Error: "participant already attached to project"})
	}
	p.Participants = append(p.Participants, part)
	return nil
}

// RemoveParticipant detaches a participant and reports whether it was present.
func (p *Project) RemoveParticipant(id string) bool {
	for i, part := range p.Participants {
		if part.ID == id {
			p.Participants = append(p.Participants[:i], p.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Milestone returns a pointer into the project's milestone slice.
func (p *Project) Milestone(id string) (*Milestone, bool) {
	for i := range p.Milestones {
		if p.Milestones[i].ID == id {
			return &p.Milestones[i], true
		}
	}
	return nil, false
}

// AppendMilestone assigns the next creation sequence and inserts m in due date order.
func (p *Project) AppendMilestone(m Milestone) Milestone {
	m.Seq = p.nextSeq()
	p.Milestones = append(p.Milestones, m)
	p.SortMilestones()
	return m
}

// SortMilestones restores due date / creation order, e.g. after loading from storage.
func (p *Project) SortMilestones() {
	sort.SliceStable(p.Milestones, func(i, j int) bool {
		return milestoneLess(p.Milestones[i], p.Milestones[j])
	})
}

func (p *Project) nextSeq() int {
	next := 1
	for _, m := range p.Milestones {
		if m.Seq >= next {
			next = m.Seq + 1
		}
	}
	return next
}

// FirstIncomplete returns the earliest pending milestone in project order.
func (p *Project) FirstIncomplete() (Milestone, bool) {
	for _, m := range p.Milestones {
		if !m.Completed {
			return m, true
		}
	}
	return Milestone{}, false
}

// Record queues an event to be persisted with the next save.
func (p *Project) Record(e Event) {
	p.pending = append(p.pending, e)
}

func (p *Project) PendingEvents() []Event {
	out := make([]Event, len(p.pending))
	copy(out, p.pending)
	return out
}

func (p *Project) ClearPendingEvents() {
	p.pending = nil
}

// Clone returns a deep copy, pending events included.
func (p *Project) Clone() *Project {
	c := *p
	c.Milestones = make([]Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		c.Milestones[i] = m.clone()
	}
	c.Participants = make([]Participant, len(p.Participants))
	copy(c.Participants, p.Participants)
	c.Events = make([]ProjectEvent, len(p.Events))
	copy(c.Events, p.Events)
	c.pending = p.PendingEvents()
	return &c
}
