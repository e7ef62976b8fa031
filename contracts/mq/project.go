package mq

import (
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// Routing keys on the events exchange. They equal the domain event types.
const (
	RoutingKeyProjectCreated     = string(model.EventProjectCreated)
	RoutingKeyProjectCompleted   = string(model.EventProjectCompleted)
	RoutingKeyProjectDeleted     = string(model.EventProjectDeleted)
	RoutingKeyMilestoneAdded     = string(model.EventMilestoneAdded)
	RoutingKeyMilestoneCompleted = string(model.EventMilestoneCompleted)
	RoutingKeyMilestoneReopened  = string(model.EventMilestoneReopened)
	RoutingKeyParticipantAdded   = string(model.EventParticipantAdded)
	RoutingKeyParticipantRemoved = string(model.EventParticipantRemoved)

	RoutingKeyProjectEventAdded   = string(model.EventProjectEventAdded)
	RoutingKeyProjectEventRemoved = string(model.EventProjectEventRemoved)
)

// ActivityBindings are the patterns the activity feed queue listens on.
var ActivityBindings = []string{"project.#", "milestone.#", "participant.#"}

const AggregateProject = "project"

// ProjectEventPayload is the message body of every project domain event.
type ProjectEventPayload struct {
	EventID         string    `json:"event_id"`
	Type            string    `json:"type"`
	ProjectID       string    `json:"project_id"`
	ProjectTitle    string    `json:"project_title"`
	MilestoneID     string    `json:"milestone_id,omitempty"`
	MilestoneTitle  string    `json:"milestone_title,omitempty"`
	ParticipantID   string    `json:"participant_id,omitempty"`
	ParticipantName string    `json:"participant_name,omitempty"`
	ScheduledID     string    `json:"scheduled_id,omitempty"`
	ScheduledTitle  string    `json:"scheduled_title,omitempty"`
	ScheduledDate   string    `json:"scheduled_date,omitempty"`
	ActorID         string    `json:"actor_id"`
	ActorName       string    `json:"actor_name,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
	TraceID         string    `json:"trace_id,omitempty"`
}

func NewProjectEventPayload(ev model.Event, traceID string) ProjectEventPayload {
	return ProjectEventPayload{
		EventID:         ev.ID,
		Type:            string(ev.Type),
		ProjectID:       ev.ProjectID,
		ProjectTitle:    ev.ProjectTitle,
		MilestoneID:     ev.MilestoneID,
		MilestoneTitle:  ev.MilestoneTitle,
		ParticipantID:   ev.ParticipantID,
		ParticipantName: ev.ParticipantName,
		ScheduledID:     ev.ScheduledID,
		ScheduledTitle:  ev.ScheduledTitle,
		ScheduledDate:   ev.ScheduledDate,
		ActorID:         ev.ActorID,
		ActorName:       ev.ActorName,
		OccurredAt:      ev.OccurredAt,
		TraceID:         traceID,
	}
}

// Event converts the payload back into a domain event.
func (p ProjectEventPayload) Event() model.Event {
	return model.Event{
		ID:              p.EventID,
		Type:            model.EventType(p.Type),
		ProjectID:       p.ProjectID,
		ProjectTitle:    p.ProjectTitle,
		MilestoneID:     p.MilestoneID,
		MilestoneTitle:  p.MilestoneTitle,
		ParticipantID:   p.ParticipantID,
		ParticipantName: p.ParticipantName,
		ScheduledID:     p.ScheduledID,
		ScheduledTitle:  p.ScheduledTitle,
		ScheduledDate:   p.ScheduledDate,
		ActorID:         p.ActorID,
		ActorName:       p.ActorName,
		OccurredAt:      p.OccurredAt,
	}
}
