package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// MemoryProjectRepository keeps deep copies of projects in a map. Saved events are kept in order
// and can be read with Events.
type MemoryProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
	events   []model.Event
}

var _ ProjectRepository = (*MemoryProjectRepository)(nil)

func NewMemoryProjectRepository() *MemoryProjectRepository {
	return &MemoryProjectRepository{projects: make(map[string]*model.Project)}
}

func (r *MemoryProjectRepository) Load(_ context.Context, id string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, projectNotFound(id)
	}
	return p.Clone(), nil
}

func (r *MemoryProjectRepository) Save(_ context.Context, p *model.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.projects[p.ID]
	switch {
	case p.Version == 0 && exists:
		return &ConflictError{ProjectID: p.ID}
	case p.Version != 0 && !exists:
		return projectNotFound(p.ID)
	case p.Version != 0 && stored.Version != p.Version:
		return &ConflictError{ProjectID: p.ID, ExpectedVersion: p.Version}
	}

	r.events = append(r.events, p.PendingEvents()...)
	p.ClearPendingEvents()
	p.Version++
	r.projects[p.ID] = p.Clone()
	return nil
}

func (r *MemoryProjectRepository) ListForParticipant(_ context.Context, participantID string) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Project{}
	for _, p := range r.projects {
		if p.IsParticipant(participantID) {
			out = append(out, p.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryProjectRepository) Delete(_ context.Context, p *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.projects[p.ID]
	if !ok {
		return projectNotFound(p.ID)
	}
	if stored.Version != p.Version {
		return &ConflictError{ProjectID: p.ID, ExpectedVersion: p.Version}
	}
	delete(r.projects, p.ID)
	r.events = append(r.events, p.PendingEvents()...)
	p.ClearPendingEvents()
	return nil
}

// Events returns every event persisted so far, oldest first.
func (r *MemoryProjectRepository) Events() []model.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

func sortNewestFirst(projects []*model.Project) {
	sort.Slice(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// MemoryActivityRepository is the in-memory activity feed.
type MemoryActivityRepository struct {
	mu      sync.RWMutex
	entries []model.Activity
	seen    map[string]bool
	reads   map[readKey]time.Time
}

type readKey struct{ actorID, projectID string }

var _ ActivityRepository = (*MemoryActivityRepository)(nil)

func NewMemoryActivityRepository() *MemoryActivityRepository {
	return &MemoryActivityRepository{seen: make(map[string]bool), reads: make(map[readKey]time.Time)}
}

func (r *MemoryActivityRepository) LastRead(_ context.Context, actorID, projectID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reads[readKey{actorID, projectID}], nil
}

func (r *MemoryActivityRepository) MarkRead(_ context.Context, actorID, projectID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := readKey{actorID, projectID}
	if at.After(r.reads[key]) {
		r.reads[key] = at
	}
	return nil
}

func (r *MemoryActivityRepository) CountUnread(_ context.Context, actorID, projectID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	since := r.reads[readKey{actorID, projectID}]
	n := 0
	for _, a := range r.entries {
		if a.ProjectID == projectID && a.ActorID != actorID && a.OccurredAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryActivityRepository) Append(_ context.Context, a model.Activity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[a.EventID] {
		return false, nil
	}
	r.seen[a.EventID] = true
	r.entries = append(r.entries, a)
	return true, nil
}

func (r *MemoryActivityRepository) ListByProject(_ context.Context, projectID string, limit int) ([]model.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Activity{}
	for _, a := range r.entries {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
