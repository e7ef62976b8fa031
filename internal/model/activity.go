package model

import (
	"fmt"
	"time"
)

// Activity is one line of a project's activity feed.
type Activity struct {
	EventID    string    `json:"event_id"`
	ProjectID  string    `json:"project_id"`
	Type       EventType `json:"type"`
	ActorID    string    `json:"actor_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	// Unread is computed per reader and never stored.
	Unread bool `json:"unread"`
}

// NewActivity renders ev as a feed entry.
func NewActivity(ev Event) Activity {
	return Activity{
		EventID:    ev.ID,
		ProjectID:  ev.ProjectID,
		Type:       ev.Type,
		ActorID:    ev.ActorID,
		Message:    Describe(ev),
		OccurredAt: ev.OccurredAt,
	}
}

// Describe returns a human readable sentence for ev.
func Describe(ev Event) string {
	who := ev.ActorName
	if who == "" {
		who = ev.ActorID
	}
	switch ev.Type {
	case EventProjectCreated:
		return fmt.Sprintf("%s created project %q", who, ev.ProjectTitle)
	case EventProjectCompleted:
		return fmt.Sprintf("%s marked project %q as completed", who, ev.ProjectTitle)
	case EventProjectDeleted:
		return fmt.Sprintf("%s deleted project %q", who, ev.ProjectTitle)
	case EventMilestoneAdded:
		return fmt.Sprintf("%s added milestone %q to project %q", who, ev.MilestoneTitle, ev.ProjectTitle)
	case EventMilestoneCompleted:
		return fmt.Sprintf("%s completed milestone %q in project %q", who, ev.MilestoneTitle, ev.ProjectTitle)
	case EventMilestoneReopened:
		return fmt.Sprintf("%s reopened milestone %q in project %q", who, ev.MilestoneTitle, ev.ProjectTitle)
	case EventParticipantAdded:
		return fmt.Sprintf("%s added %s to project %q", who, ev.ParticipantName, ev.ProjectTitle)
	case EventParticipantRemoved:
		return fmt.Sprintf("%s removed %s from project %q", who, ev.ParticipantName, ev.ProjectTitle)
	case EventProjectEventAdded:
		return fmt.Sprintf("%s scheduled %q on %s in project %q", who, ev.ScheduledTitle, ev.ScheduledDate, ev.ProjectTitle)
	case EventProjectEventRemoved:
		return fmt.Sprintf("%s cancelled %q in project %q", who, ev.ScheduledTitle, ev.ProjectTitle)
	}
	return fmt.Sprintf("%s: %s on project %q", who, ev.Type, ev.ProjectTitle)
}
