package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// ProjectRepository persists Project aggregates with optimistic concurrency on Version.
//
// Save inserts when Version is 0 and otherwise replaces the stored aggregate only if the stored
// version still equals p.Version. On success p.Version is incremented and the project's pending
// events are handed on (outbox or in-memory log) and cleared. A stale write fails with
// *ConflictError and leaves p untouched.
type ProjectRepository interface {
	Load(ctx context.Context, id string) (*model.Project, error)
	Save(ctx context.Context, p *model.Project) error
	ListForParticipant(ctx context.Context, participantID string) ([]*model.Project, error)
	// Delete removes p if its stored version equals p.Version, persisting p's pending events.
	Delete(ctx context.Context, p *model.Project) error
}

// ActivityRepository stores the rendered activity feed.
type ActivityRepository interface {
	// Append stores a unless an entry for the same event already exists; inserted reports which.
	Append(ctx context.Context, a model.Activity) (inserted bool, err error)
	// ListByProject returns the newest entries first.
	ListByProject(ctx context.Context, projectID string, limit int) ([]model.Activity, error)
	// LastRead returns how far actorID has read projectID's feed; the zero time means never.
	LastRead(ctx context.Context, actorID, projectID string) (time.Time, error)
	// MarkRead moves the read marker forward to at. It never moves backwards.
	MarkRead(ctx context.Context, actorID, projectID string, at time.Time) error
	// CountUnread counts entries newer than the marker that actorID did not cause.
	CountUnread(ctx context.Context, actorID, projectID string) (int, error)
}

// ConflictError reports a concurrent write to the same project.
type ConflictError struct {
	ProjectID       string
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	if e.ExpectedVersion == 0 {
		return fmt.Sprintf("project %s already exists", e.ProjectID)
	}
	return fmt.Sprintf("project %s was modified concurrently (expected version %d)", e.ProjectID, e.ExpectedVersion)
}

func projectNotFound(id string) error {
	return model.NewNotFoundError("project", id)
}
