package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontract "github.com/AcelinoMargotti/scinexa-project-nexus/contracts/db"
	mqcontract "github.com/AcelinoMargotti/scinexa-project-nexus/contracts/mq"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/metrics"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/outbox"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/trace"
)

// PostgresProjectRepository stores projects across projects, project_participants, milestones
// and project_events.
// Each save writes the aggregate and its pending events to the outbox in one transaction.
type PostgresProjectRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

var _ ProjectRepository = (*PostgresProjectRepository)(nil)

func NewPostgresProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresProjectRepository {
	return &PostgresProjectRepository{
		db:     db,
		outbox: outbox.NewRepository(db),
		logger: logger,
	}
}

func (r *PostgresProjectRepository) Load(ctx context.Context, id string) (p *model.Project, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "projects")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("load", "projects", time.Now())

	log := logger.WithTrace(ctx, r.logger)
	log.Debug("Loading project", zap.String("project_id", id))

	var row dbcontract.ProjectRow
	err = r.db.QueryRow(ctx, `
		SELECT id, title, description, status, created_by, created_at, version
		FROM projects
		WHERE id = $1
	`, id).Scan(&row.ID, &row.Title, &row.Description, &row.Status, &row.CreatedBy, &row.CreatedAt, &row.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, projectNotFound(id)
		}
		log.Error("Failed to load project", zap.String("project_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load project %s: %w", id, err)
	}

	projects, err := r.hydrate(ctx, []dbcontract.ProjectRow{row})
	if err != nil {
		log.Error("Failed to load project children", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}
	return projects[0], nil
}

func (r *PostgresProjectRepository) ListForParticipant(ctx context.Context, participantID string) (out []*model.Project, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "projects")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("list_for_participant", "projects", time.Now())

	log := logger.WithTrace(ctx, r.logger)
	log.Debug("Listing projects for participant", zap.String("participant_id", participantID))

	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.title, p.description, p.status, p.created_by, p.created_at, p.version
		FROM projects p
		JOIN project_participants pp ON pp.project_id = p.id
		WHERE pp.participant_id = $1
		ORDER BY p.created_at DESC, p.id ASC
	`, participantID)
	if err != nil {
		log.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projectRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dbcontract.ProjectRow, error) {
		var pr dbcontract.ProjectRow
		err := row.Scan(&pr.ID, &pr.Title, &pr.Description, &pr.Status, &pr.CreatedBy, &pr.CreatedAt, &pr.Version)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}
	if len(projectRows) == 0 {
		return []*model.Project{}, nil
	}

	out, err = r.hydrate(ctx, projectRows)
	if err != nil {
		log.Error("Failed to load project children", zap.Error(err))
		return nil, err
	}
	log.Debug("Projects listed", zap.String("participant_id", participantID), zap.Int("count", len(out)))
	return out, nil
}

// hydrate loads participants, milestones and scheduled events for the given rows, preserving row order.
func (r *PostgresProjectRepository) hydrate(ctx context.Context, projectRows []dbcontract.ProjectRow) ([]*model.Project, error) {
	ids := make([]string, len(projectRows))
	byID := make(map[string]*model.Project, len(projectRows))
	out := make([]*model.Project, len(projectRows))
	for i, row := range projectRows {
		ids[i] = row.ID
		p := &model.Project{
			ID:           row.ID,
			Title:        row.Title,
			Description:  row.Description,
			Status:       model.Status(row.Status),
			CreatedBy:    row.CreatedBy,
			CreatedAt:    row.CreatedAt.UTC(),
			Version:      row.Version,
			Milestones:   []model.Milestone{},
			Participants: []model.Participant{},
			Events:       []model.ProjectEvent{},
		}
		byID[row.ID] = p
		out[i] = p
	}

	partRows, err := r.db.Query(ctx, `
		SELECT project_id, participant_id, name, role, position
		FROM project_participants
		WHERE project_id = ANY($1)
		ORDER BY project_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	parts, err := pgx.CollectRows(partRows, func(row pgx.CollectableRow) (dbcontract.ParticipantRow, error) {
		var pr dbcontract.ParticipantRow
		err := row.Scan(&pr.ProjectID, &pr.ParticipantID, &pr.Name, &pr.Role, &pr.Position)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}
	for _, pr := range parts {
		p := byID[pr.ProjectID]
		p.Participants = append(p.Participants, model.Participant{
			ID:   pr.ParticipantID,
			Name: pr.Name,
			Role: model.ProjectRole(pr.Role),
		})
	}

	msRows, err := r.db.Query(ctx, `
		SELECT id, project_id, seq, title, description, due_date, completed, completed_by, completed_at
		FROM milestones
		WHERE project_id = ANY($1)
		ORDER BY project_id, due_date, seq
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones: %w", err)
	}
	milestones, err := pgx.CollectRows(msRows, func(row pgx.CollectableRow) (dbcontract.MilestoneRow, error) {
		var mr dbcontract.MilestoneRow
		err := row.Scan(&mr.ID, &mr.ProjectID, &mr.Seq, &mr.Title, &mr.Description, &mr.DueDate,
			&mr.Completed, &mr.CompletedBy, &mr.CompletedAt)
		return mr, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan milestones: %w", err)
	}
	for _, mr := range milestones {
		if mr.CompletedAt != nil {
			at := mr.CompletedAt.UTC()
			mr.CompletedAt = &at
		}
		m, err := model.RestoreMilestone(model.Milestone{
			ID:          mr.ID,
			Title:       mr.Title,
			Description: mr.Description,
			DueDate:     model.DateOf(mr.DueDate),
			Completed:   mr.Completed,
			CompletedBy: mr.CompletedBy,
			CompletedAt: mr.CompletedAt,
			Seq:         mr.Seq,
		})
		if err != nil {
			return nil, fmt.Errorf("corrupt milestone %s: %w", mr.ID, err)
		}
		p := byID[mr.ProjectID]
		p.Milestones = append(p.Milestones, m)
	}

	evRows, err := r.db.Query(ctx, `
		SELECT id, project_id, title, type, event_date, description
		FROM project_events
		WHERE project_id = ANY($1)
		ORDER BY project_id, event_date, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query project events: %w", err)
	}
	events, err := pgx.CollectRows(evRows, func(row pgx.CollectableRow) (dbcontract.ProjectEventRow, error) {
		var er dbcontract.ProjectEventRow
		err := row.Scan(&er.ID, &er.ProjectID, &er.Title, &er.Type, &er.EventDate, &er.Description)
		return er, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan project events: %w", err)
	}
	for _, er := range events {
		p := byID[er.ProjectID]
		p.Events = append(p.Events, model.ProjectEvent{
			ID:          er.ID,
			Title:       er.Title,
			Type:        model.ProjectEventType(er.Type),
			Date:        model.DateOf(er.EventDate),
			Description: er.Description,
		})
	}

	for _, p := range out {
		p.SortMilestones()
		p.SortProjectEvents()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("corrupt project %s: %w", p.ID, err)
		}
	}
	return out, nil
}

func (r *PostgresProjectRepository) Save(ctx context.Context, p *model.Project) (err error) {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, span := otel.DBSpan(ctx, "save", "projects")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("save", "projects", time.Now())

	log := logger.WithTrace(ctx, r.logger).With(
		zap.String("project_id", p.ID),
		zap.Int64("version", p.Version),
	)
	log.Debug("Saving project", zap.Int("pending_events", len(p.PendingEvents())))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.Version == 0 {
		err = r.insertProject(ctx, tx, p)
	} else {
		err = r.updateProject(ctx, tx, p)
	}
	if err != nil {
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			log.Error("Failed to write project", zap.Error(err))
		}
		return err
	}

	if err := r.replaceChildren(ctx, tx, p); err != nil {
		log.Error("Failed to write project children", zap.Error(err))
		return err
	}
	if err := r.enqueueEvents(ctx, tx, p); err != nil {
		log.Error("Failed to enqueue project events", zap.Error(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error("Failed to commit project", zap.Error(err))
		return fmt.Errorf("failed to commit: %w", err)
	}

	p.Version++
	p.ClearPendingEvents()
	log.Info("Project saved", zap.Int64("new_version", p.Version))
	return nil
}

func (r *PostgresProjectRepository) insertProject(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO projects (id, title, description, status, created_by, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Title, p.Description, string(p.Status), p.CreatedBy, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ConflictError{ProjectID: p.ID}
	}
	return nil
}

func (r *PostgresProjectRepository) updateProject(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	tag, err := tx.Exec(ctx, `
		UPDATE projects
		SET title = $2, description = $3, status = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $5
	`, p.ID, p.Title, p.Description, string(p.Status), p.Version)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrConflict(ctx, tx, p)
}

func (r *PostgresProjectRepository) missOrConflict(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return projectNotFound(p.ID)
	}
	return &ConflictError{ProjectID: p.ID, ExpectedVersion: p.Version}
}

func (r *PostgresProjectRepository) replaceChildren(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	if _, err := tx.Exec(ctx, `DELETE FROM project_participants WHERE project_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM milestones WHERE project_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear milestones: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM project_events WHERE project_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear project events: %w", err)
	}

	partRows := make([][]any, len(p.Participants))
	for i, part := range p.Participants {
		partRows[i] = []any{p.ID, part.ID, part.Name, string(part.Role), i}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"project_participants"},
		[]string{"project_id", "participant_id", "name", "role", "position"},
		pgx.CopyFromRows(partRows),
	); err != nil {
		return fmt.Errorf("failed to write participants: %w", err)
	}

	msRows := make([][]any, len(p.Milestones))
	for i, m := range p.Milestones {
		msRows[i] = []any{m.ID, p.ID, m.Seq, m.Title, m.Description, m.DueDate.Time(), m.Completed, m.CompletedBy, m.CompletedAt}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"milestones"},
		[]string{"id", "project_id", "seq", "title", "description", "due_date", "completed", "completed_by", "completed_at"},
		pgx.CopyFromRows(msRows),
	); err != nil {
		return fmt.Errorf("failed to write milestones: %w", err)
	}

	evRows := make([][]any, len(p.Events))
	for i, e := range p.Events {
		evRows[i] = []any{e.ID, p.ID, e.Title, string(e.Type), e.Date.Time(), e.Description}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"project_events"},
		[]string{"id", "project_id", "title", "type", "event_date", "description"},
		pgx.CopyFromRows(evRows),
	); err != nil {
		return fmt.Errorf("failed to write project events: %w", err)
	}
	return nil
}

func (r *PostgresProjectRepository) enqueueEvents(ctx context.Context, tx pgx.Tx, p *model.Project) error {
	traceID := trace.FromContext(ctx)
	for _, ev := range p.PendingEvents() {
		payload := mqcontract.NewProjectEventPayload(ev, traceID)
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, mqcontract.AggregateProject, p.ID, string(ev.Type), payload); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresProjectRepository) Delete(ctx context.Context, p *model.Project) (err error) {
	ctx, span := otel.DBSpan(ctx, "delete", "projects")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("delete", "projects", time.Now())

	log := logger.WithTrace(ctx, r.logger).With(zap.String("project_id", p.ID))
	log.Debug("Deleting project", zap.Int64("version", p.Version))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND version = $2`, p.ID, p.Version)
	if err != nil {
		log.Error("Failed to delete project", zap.Error(err))
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, tx, p)
	}
	if err := r.enqueueEvents(ctx, tx, p); err != nil {
		log.Error("Failed to enqueue project events", zap.Error(err))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	p.ClearPendingEvents()
	log.Info("Project deleted")
	return nil
}

func observe(operation, table string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
}
