package model

import "time"

// EventType doubles as the message routing key.
type EventType string

const (
	EventProjectCreated     EventType = "project.created"
	EventProjectCompleted   EventType = "project.completed"
	EventProjectDeleted     EventType = "project.deleted"
	EventMilestoneAdded     EventType = "milestone.added"
	EventMilestoneCompleted EventType = "milestone.completed"
	EventMilestoneReopened  EventType = "milestone.reopened"
	EventParticipantAdded   EventType = "participant.added"
	EventParticipantRemoved EventType = "participant.removed"
	// Dated project events ride the project.# routing keys.
	EventProjectEventAdded   EventType = "project.event_added"
	EventProjectEventRemoved EventType = "project.event_removed"
)

// Event is a fact about a project recorded by a state change and persisted with it.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
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
}
