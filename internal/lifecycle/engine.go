package lifecycle

import (
	"fmt"
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/rbac"
)

// Engine applies state transitions to a Project aggregate. It assumes single-writer access;
// persisting and serialising writers is the repository's job.
type Engine struct {
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: model.NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateProject builds a new in-progress project owned by actor as primary supervisor.
func (e *Engine) CreateProject(actor model.Actor, np model.NewProject) (*model.Project, error) {
	if err := rbac.Authorize(actor, rbac.ActionCreateProject, nil); err != nil {
		return nil, err
	}
	if err := np.Validate(); err != nil {
		return nil, err
	}

	primary, err := model.NewParticipant(actor.ID, actor.DisplayName(), model.RolePrimarySupervisor)
	if err != nil {
		return nil, err
	}
	p, err := model.BuildProject(e.newID(), np.Title, np.Description, primary, e.now().UTC())
	if err != nil {
		return nil, err
	}

	for i, in := range np.Participants {
		if err := p.AddParticipant(model.Participant{ID: in.ID, Name: in.Name, Role: in.Role}); err != nil {
			return nil, model.NewValidationError(err, model.FieldError{
				Field: fmt.Sprintf("participants[%d]", i),
				Error: err.Error(),
			})
		}
	}
	for _, nm := range np.Milestones {
		m, err := model.BuildMilestone(e.newID(), nm)
		if err != nil {
			return nil, err
		}
		p.AppendMilestone(m)
	}

	p.Record(e.event(model.EventProjectCreated, actor, p))
	return p, nil
}

// AddParticipant attaches a secondary supervisor or trainee to p.
func (e *Engine) AddParticipant(actor model.Actor, p *model.Project, in model.NewParticipantInput) (model.Participant, error) {
	if err := rbac.Authorize(actor, rbac.ActionAddParticipant, p); err != nil {
		return model.Participant{}, err
	}
	if err := in.Validate(); err != nil {
		return model.Participant{}, err
	}
	part := model.Participant{ID: in.ID, Name: in.Name, Role: in.Role}
	if err := p.AddParticipant(part); err != nil {
		return model.Participant{}, err
	}

	ev := e.event(model.EventParticipantAdded, actor, p)
	ev.ParticipantID, ev.ParticipantName = part.ID, part.Name
	p.Record(ev)
	return part, nil
}

// RemoveParticipant detaches a participant. The primary supervisor can never be removed.
func (e *Engine) RemoveParticipant(actor model.Actor, p *model.Project, participantID string) error {
	if err := rbac.Authorize(actor, rbac.ActionRemoveParticipant, p); err != nil {
		return err
	}
	part, ok := p.Participant(participantID)
	if !ok {
		return model.NewNotFoundError("participant", participantID)
	}
	if part.Role == model.RolePrimarySupervisor {
		return &PreconditionError{
			Action:    rbac.ActionRemoveParticipant,
			ProjectID: p.ID,
			Reason:    "the primary supervisor cannot be removed",
		}
	}
	p.RemoveParticipant(participantID)

	ev := e.event(model.EventParticipantRemoved, actor, p)
	ev.ParticipantID, ev.ParticipantName = part.ID, part.Name
	p.Record(ev)
	return nil
}

// AddMilestone appends a pending milestone. Completed projects are frozen.
func (e *Engine) AddMilestone(actor model.Actor, p *model.Project, nm model.NewMilestone) (model.Milestone, error) {
	if err := rbac.AuthorizeMembership(actor, rbac.ActionAddMilestone, p); err != nil {
		return model.Milestone{}, err
	}
	if p.IsCompleted() {
		return model.Milestone{}, &InvalidTransitionError{
			Action:    rbac.ActionAddMilestone,
			ProjectID: p.ID,
			Reason:    "project is completed",
		}
	}
	m, err := model.BuildMilestone(e.newID(), nm)
	if err != nil {
		return model.Milestone{}, err
	}
	m = p.AppendMilestone(m)

	ev := e.event(model.EventMilestoneAdded, actor, p)
	ev.MilestoneID, ev.MilestoneTitle = m.ID, m.Title
	p.Record(ev)
	return m, nil
}

// CompleteMilestone moves a milestone from pending to completed, attributing it to actor.
// Completing an already completed milestone returns it unchanged with changed == false.
func (e *Engine) CompleteMilestone(actor model.Actor, p *model.Project, milestoneID string) (m model.Milestone, changed bool, err error) {
	if err := rbac.Authorize(actor, rbac.ActionCompleteMilestone, p); err != nil {
		return model.Milestone{}, false, err
	}
	target, ok := p.Milestone(milestoneID)
	if !ok {
		return model.Milestone{}, false, model.NewNotFoundError("milestone", milestoneID)
	}
	if target.Completed {
		return *target, false, nil
	}
	target.MarkCompleted(actor.ID, e.now().UTC())

	ev := e.event(model.EventMilestoneCompleted, actor, p)
	ev.MilestoneID, ev.MilestoneTitle = target.ID, target.Title
	p.Record(ev)
	return *target, true, nil
}

// ReopenMilestone moves a milestone back to pending. Milestones of a completed project are frozen.
// Reopening a pending milestone returns it unchanged with changed == false.
func (e *Engine) ReopenMilestone(actor model.Actor, p *model.Project, milestoneID string) (m model.Milestone, changed bool, err error) {
	if err := rbac.AuthorizeMembership(actor, rbac.ActionReopenMilestone, p); err != nil {
		return model.Milestone{}, false, err
	}
	if p.IsCompleted() {
		return model.Milestone{}, false, &InvalidTransitionError{
			Action:      rbac.ActionReopenMilestone,
			ProjectID:   p.ID,
			MilestoneID: milestoneID,
			Reason:      "milestones of a completed project are frozen",
		}
	}
	target, ok := p.Milestone(milestoneID)
	if !ok {
		return model.Milestone{}, false, model.NewNotFoundError("milestone", milestoneID)
	}
	if !target.Completed {
		return *target, false, nil
	}
	target.MarkPending()

	ev := e.event(model.EventMilestoneReopened, actor, p)
	ev.MilestoneID, ev.MilestoneTitle = target.ID, target.Title
	p.Record(ev)
	return *target, true, nil
}

// CompleteProject moves p to completed once every milestone is completed. It is one-way;
// completing an already completed project reports changed == false.
func (e *Engine) CompleteProject(actor model.Actor, p *model.Project) (changed bool, err error) {
	if err := rbac.AuthorizeMembership(actor, rbac.ActionCompleteProject, p); err != nil {
		return false, err
	}
	if p.IsCompleted() {
		return false, nil
	}
	if m, ok := p.FirstIncomplete(); ok {
		return false, &PreconditionError{
			Action:         rbac.ActionCompleteProject,
			ProjectID:      p.ID,
			MilestoneID:    m.ID,
			MilestoneTitle: m.Title,
			Reason:         "milestone is not completed",
		}
	}
	p.Status = model.StatusCompleted
	p.Record(e.event(model.EventProjectCompleted, actor, p))
	return true, nil
}

// AddProjectEvent schedules a deadline, meeting or presentation on p. Completed projects are frozen.
func (e *Engine) AddProjectEvent(actor model.Actor, p *model.Project, in model.NewProjectEventInput) (model.ProjectEvent, error) {
	if err := rbac.AuthorizeMembership(actor, rbac.ActionAddEvent, p); err != nil {
		return model.ProjectEvent{}, err
	}
	if p.IsCompleted() {
		return model.ProjectEvent{}, &InvalidTransitionError{
			Action:    rbac.ActionAddEvent,
			ProjectID: p.ID,
			Reason:    "project is completed",
		}
	}
	pe, err := model.BuildProjectEvent(e.newID(), in)
	if err != nil {
		return model.ProjectEvent{}, err
	}
	p.AddProjectEvent(pe)

	ev := e.event(model.EventProjectEventAdded, actor, p)
	ev.ScheduledID, ev.ScheduledTitle, ev.ScheduledDate = pe.ID, pe.Title, pe.Date.String()
	p.Record(ev)
	return pe, nil
}

// RemoveProjectEvent cancels a scheduled event. Completed projects are frozen.
func (e *Engine) RemoveProjectEvent(actor model.Actor, p *model.Project, eventID string) error {
	if err := rbac.AuthorizeMembership(actor, rbac.ActionRemoveEvent, p); err != nil {
		return err
	}
	if p.IsCompleted() {
		return &InvalidTransitionError{
			Action:    rbac.ActionRemoveEvent,
			ProjectID: p.ID,
			Reason:    "project is completed",
		}
	}
	pe, ok := p.ProjectEvent(eventID)
	if !ok {
		return model.NewNotFoundError("event", eventID)
	}
	p.RemoveProjectEvent(eventID)

	ev := e.event(model.EventProjectEventRemoved, actor, p)
	ev.ScheduledID, ev.ScheduledTitle, ev.ScheduledDate = pe.ID, pe.Title, pe.Date.String()
	p.Record(ev)
	return nil
}

// DeleteProject authorizes deletion and records the fact; removal itself belongs to the repository.
func (e *Engine) DeleteProject(actor model.Actor, p *model.Project) error {
	if err := rbac.Authorize(actor, rbac.ActionDeleteProject, p); err != nil {
		return err
	}
	p.Record(e.event(model.EventProjectDeleted, actor, p))
	return nil
}

func (e *Engine) event(t model.EventType, actor model.Actor, p *model.Project) model.Event {
	return model.Event{
		ID:           e.newID(),
		Type:         t,
		ProjectID:    p.ID,
		ProjectTitle: p.Title,
		ActorID:      actor.ID,
		ActorName:    actor.DisplayName(),
		OccurredAt:   e.now().UTC(),
	}
}
