package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/calendar"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/lifecycle"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/progress"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/rbac"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/metrics"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
)

// ActorProvider resolves who is invoking an operation.
type ActorProvider interface {
	CurrentActor(ctx context.Context) (model.Actor, error)
}

// ListFilter narrows ListProjects. Query matches title or description, case-insensitively.
type ListFilter struct {
	Status model.Status
	Query  string
}

// ProjectService runs every operation as load, authorize and mutate through the engine, then save.
// Conflicting concurrent writes surface as *repository.ConflictError; nothing is retried.
type ProjectService struct {
	projects  repository.ProjectRepository
	activity  repository.ActivityRepository
	actors    ActorProvider
	engine    *lifecycle.Engine
	projector *calendar.Projector
	logger    *zap.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	activity repository.ActivityRepository,
	actors ActorProvider,
	engine *lifecycle.Engine,
	projector *calendar.Projector,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projects:  projects,
		activity:  activity,
		actors:    actors,
		engine:    engine,
		projector: projector,
		logger:    logger,
	}
}

func (s *ProjectService) CreateProject(ctx context.Context, np model.NewProject) (p *model.Project, err error) {
	ctx, actor, done, err := s.begin(ctx, "create_project", "")
	if err != nil {
		return nil, err
	}
	defer func() { done(p, err) }()

	p, err = s.engine.CreateProject(actor, np)
	if err != nil {
		return nil, err
	}
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) AddParticipant(ctx context.Context, projectID string, in model.NewParticipantInput) (*model.Project, error) {
	return s.mutate(ctx, "add_participant", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		_, err := s.engine.AddParticipant(actor, p, in)
		return true, err
	})
}

func (s *ProjectService) RemoveParticipant(ctx context.Context, projectID, participantID string) (*model.Project, error) {
	return s.mutate(ctx, "remove_participant", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		return true, s.engine.RemoveParticipant(actor, p, participantID)
	})
}

func (s *ProjectService) AddMilestone(ctx context.Context, projectID string, nm model.NewMilestone) (*model.Project, error) {
	return s.mutate(ctx, "add_milestone", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		_, err := s.engine.AddMilestone(actor, p, nm)
		return true, err
	})
}

func (s *ProjectService) CompleteMilestone(ctx context.Context, projectID, milestoneID string) (*model.Project, error) {
	return s.mutate(ctx, "complete_milestone", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		_, changed, err := s.engine.CompleteMilestone(actor, p, milestoneID)
		return changed, err
	})
}

func (s *ProjectService) ReopenMilestone(ctx context.Context, projectID, milestoneID string) (*model.Project, error) {
	return s.mutate(ctx, "reopen_milestone", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		_, changed, err := s.engine.ReopenMilestone(actor, p, milestoneID)
		return changed, err
	})
}

func (s *ProjectService) AddProjectEvent(ctx context.Context, projectID string, in model.NewProjectEventInput) (*model.Project, error) {
	return s.mutate(ctx, "add_event", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		_, err := s.engine.AddProjectEvent(actor, p, in)
		return true, err
	})
}

func (s *ProjectService) RemoveProjectEvent(ctx context.Context, projectID, eventID string) (*model.Project, error) {
	return s.mutate(ctx, "remove_event", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		return true, s.engine.RemoveProjectEvent(actor, p, eventID)
	})
}

func (s *ProjectService) CompleteProject(ctx context.Context, projectID string) (*model.Project, error) {
	return s.mutate(ctx, "complete_project", projectID, func(actor model.Actor, p *model.Project) (bool, error) {
		return s.engine.CompleteProject(actor, p)
	})
}

func (s *ProjectService) DeleteProject(ctx context.Context, projectID string) (err error) {
	ctx, actor, done, err := s.begin(ctx, "delete_project", projectID)
	if err != nil {
		return err
	}
	defer func() { done(nil, err) }()

	p, err := s.projects.Load(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.engine.DeleteProject(actor, p); err != nil {
		return err
	}
	return s.projects.Delete(ctx, p)
}

// GetProject returns a project the actor participates in.
func (s *ProjectService) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	_, p, err := s.view(ctx, projectID)
	return p, err
}

// ListProjects returns the actor's projects, newest first.
func (s *ProjectService) ListProjects(ctx context.Context, filter ListFilter) ([]*model.Project, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.NewValidationError(nil, model.FieldError{Field: "status", Error: "must be one of in_progress completed"})
	}
	actor, err := s.actors.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.projects.ListForParticipant(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]*model.Project, 0, len(all))
	for _, p := range all {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *ProjectService) ProgressOf(ctx context.Context, projectID string) (progress.Progress, error) {
	_, p, err := s.view(ctx, projectID)
	if err != nil {
		return progress.Progress{}, err
	}
	return progress.Of(p), nil
}

func (s *ProjectService) EventsOnDate(ctx context.Context, date model.Date) ([]calendar.Event, error) {
	if date.IsZero() {
		return nil, model.NewValidationError(nil, model.FieldError{Field: "date", Error: "this field is required"})
	}
	actor, projects, err := s.visibleProjects(ctx)
	if err != nil {
		return nil, err
	}
	return s.projector.EventsOn(actor, projects, date), nil
}

func (s *ProjectService) UpcomingEvents(ctx context.Context, from model.Date, limit int) ([]calendar.Event, error) {
	var fields []model.FieldError
	if from.IsZero() {
		fields = append(fields, model.FieldError{Field: "from", Error: "this field is required"})
	}
	if limit <= 0 {
		fields = append(fields, model.FieldError{Field: "limit", Error: "must be greater than 0"})
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(nil, fields...)
	}
	actor, projects, err := s.visibleProjects(ctx)
	if err != nil {
		return nil, err
	}
	return s.projector.Upcoming(actor, projects, from, limit), nil
}

func (s *ProjectService) MonthView(ctx context.Context, year int, month time.Month) (calendar.MonthView, error) {
	if month < time.January || month > time.December {
		return calendar.MonthView{}, model.NewValidationError(nil, model.FieldError{Field: "month", Error: "must be between 1 and 12"})
	}
	if year < 1 || year > 9999 {
		return calendar.MonthView{}, model.NewValidationError(nil, model.FieldError{Field: "year", Error: "must be between 1 and 9999"})
	}
	actor, projects, err := s.visibleProjects(ctx)
	if err != nil {
		return calendar.MonthView{}, err
	}
	return s.projector.Month(actor, projects, year, month), nil
}

// Activity returns the newest feed entries of a project the actor participates in. Entries other
// participants caused after the actor's read marker are flagged Unread.
func (s *ProjectService) Activity(ctx context.Context, projectID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		return nil, model.NewValidationError(nil, model.FieldError{Field: "limit", Error: "must be greater than 0"})
	}
	actor, _, err := s.view(ctx, projectID)
	if err != nil {
		return nil, err
	}
	feed, err := s.activity.ListByProject(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	lastRead, err := s.activity.LastRead(ctx, actor.ID, projectID)
	if err != nil {
		return nil, err
	}
	for i := range feed {
		feed[i].Unread = feed[i].ActorID != actor.ID && feed[i].OccurredAt.After(lastRead)
	}
	return feed, nil
}

// MarkActivityRead moves the actor's read marker to the newest entry of the project's feed.
func (s *ProjectService) MarkActivityRead(ctx context.Context, projectID string) error {
	actor, _, err := s.view(ctx, projectID)
	if err != nil {
		return err
	}
	newest, err := s.activity.ListByProject(ctx, projectID, 1)
	if err != nil {
		return err
	}
	if len(newest) == 0 {
		return nil
	}
	return s.activity.MarkRead(ctx, actor.ID, projectID, newest[0].OccurredAt)
}

// ProjectUnread is the unread count of one project's feed.
type ProjectUnread struct {
	ProjectID    string `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	Unread       int    `json:"unread"`
}

// Inbox is what needs the actor's attention across their projects.
type Inbox struct {
	UnreadTotal int              `json:"unread_total"`
	Unread      []ProjectUnread  `json:"unread"`
	DueSoon     []calendar.Event `json:"due_soon"`
}

// Inbox counts unread activity per project and lists what falls due within days.
func (s *ProjectService) Inbox(ctx context.Context, days int) (Inbox, error) {
	if days < 0 || days > 365 {
		return Inbox{}, model.NewValidationError(nil, model.FieldError{Field: "days", Error: "must be between 0 and 365"})
	}
	actor, projects, err := s.visibleProjects(ctx)
	if err != nil {
		return Inbox{}, err
	}

	inbox := Inbox{Unread: []ProjectUnread{}}
	for _, p := range projects {
		n, err := s.activity.CountUnread(ctx, actor.ID, p.ID)
		if err != nil {
			return Inbox{}, err
		}
		if n == 0 {
			continue
		}
		inbox.UnreadTotal += n
		inbox.Unread = append(inbox.Unread, ProjectUnread{ProjectID: p.ID, ProjectTitle: p.Title, Unread: n})
	}
	inbox.DueSoon = s.projector.DueSoon(actor, projects, days)
	return inbox, nil
}

// mutate loads the project, applies fn and saves when fn reports a change.
func (s *ProjectService) mutate(
	ctx context.Context,
	operation, projectID string,
	fn func(actor model.Actor, p *model.Project) (changed bool, err error),
) (p *model.Project, err error) {
	ctx, actor, done, err := s.begin(ctx, operation, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { done(p, err) }()

	p, err = s.projects.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(actor, p)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// begin resolves the actor and opens the span; done logs and records the outcome.
func (s *ProjectService) begin(ctx context.Context, operation, projectID string) (
	context.Context, model.Actor, func(p *model.Project, err error), error,
) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "project."+operation)

	actor, err := s.actors.CurrentActor(ctx)
	if err != nil {
		otel.EndSpan(span, err)
		metrics.RecordOperation(operation, outcomeOf(err), time.Since(start))
		return ctx, model.Actor{}, nil, err
	}
	span.SetAttributes(
		attribute.String("nexus.operation", operation),
		attribute.String("nexus.actor_id", actor.ID),
		attribute.String("nexus.project_id", projectID),
	)

	log := logger.WithTrace(ctx, s.logger)
	done := func(p *model.Project, err error) {
		outcome := outcomeOf(err)
		metrics.RecordOperation(operation, outcome, time.Since(start))
		otel.EndSpan(span, err)

		fields := []zap.Field{
			zap.String("operation", operation),
			zap.String("actor_id", actor.ID),
			zap.String("project_id", projectID),
			zap.String("outcome", outcome),
		}
		if p != nil {
			fields[2] = zap.String("project_id", p.ID)
			fields = append(fields, zap.Int64("version", p.Version))
		}
		switch outcome {
		case "ok":
			log.Info("Project operation succeeded", fields...)
		case "error":
			log.Error("Project operation failed", append(fields, zap.Error(err))...)
		default:
			log.Warn("Project operation rejected", append(fields, zap.Error(err))...)
		}
	}
	return ctx, actor, done, nil
}

func (s *ProjectService) view(ctx context.Context, projectID string) (model.Actor, *model.Project, error) {
	actor, err := s.actors.CurrentActor(ctx)
	if err != nil {
		return model.Actor{}, nil, err
	}
	p, err := s.projects.Load(ctx, projectID)
	if err != nil {
		return model.Actor{}, nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionViewProject, p); err != nil {
		return model.Actor{}, nil, err
	}
	return actor, p, nil
}

func (s *ProjectService) visibleProjects(ctx context.Context) (model.Actor, []*model.Project, error) {
	actor, err := s.actors.CurrentActor(ctx)
	if err != nil {
		return model.Actor{}, nil, err
	}
	projects, err := s.projects.ListForParticipant(ctx, actor.ID)
	if err != nil {
		return model.Actor{}, nil, fmt.Errorf("failed to list projects for %s: %w", actor.ID, err)
	}
	return actor, projects, nil
}

// outcomeOf labels err for metrics: ok, a domain rejection kind, or error.
func outcomeOf(err error) string {
	var (
		verr     *model.ValidationError
		nf       *model.NotFoundError
		denied   *rbac.AuthorizationError
		invalid  *lifecycle.InvalidTransitionError
		precond  *lifecycle.PreconditionError
		conflict *repository.ConflictError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &denied):
		return "denied"
	case errors.As(err, &invalid):
		return "invalid_transition"
	case errors.As(err, &precond):
		return "precondition"
	case errors.As(err, &conflict):
		return "conflict"
	}
	return "error"
}
