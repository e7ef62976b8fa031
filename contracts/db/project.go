package db

import "time"

// ProjectRow is one row of the projects table.
type ProjectRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	Version     int64     `json:"version"`
}

// ParticipantRow is one row of project_participants.
type ParticipantRow struct {
	ProjectID     string `json:"project_id"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Position      int    `json:"position"`
}

// MilestoneRow is one row of milestones. DueDate is a DATE column.
type MilestoneRow struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Seq         int        `json:"seq"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     time.Time  `json:"due_date"`
	Completed   bool       `json:"completed"`
	CompletedBy *string    `json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
}

// ActivityRow is one row of activity_log.
type ActivityRow struct {
	EventID    string    `json:"event_id"`
	ProjectID  string    `json:"project_id"`
	Type       string    `json:"type"`
	ActorID    string    `json:"actor_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProjectEventRow is one row of project_events. EventDate is a DATE column.
type ProjectEventRow struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	EventDate   time.Time `json:"event_date"`
	Description string    `json:"description"`
}

// ActivityReadRow is one row of activity_reads: how far an actor has read a project's feed.
type ActivityReadRow struct {
	ActorID    string    `json:"actor_id"`
	ProjectID  string    `json:"project_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
