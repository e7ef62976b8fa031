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
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/otel"
)

const defaultActivityLimit = 50

type PostgresActivityRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ ActivityRepository = (*PostgresActivityRepository)(nil)

func NewPostgresActivityRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db, logger: logger}
}

// Append inserts a; the event_id primary key makes redelivered events a no-op.
func (r *PostgresActivityRepository) Append(ctx context.Context, a model.Activity) (inserted bool, err error) {
	ctx, span := otel.DBSpan(ctx, "insert", "activity_log")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("append", "activity_log", time.Now())

	tag, err := r.db.Exec(ctx, `
		INSERT INTO activity_log (event_id, project_id, type, actor_id, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, a.EventID, a.ProjectID, string(a.Type), a.ActorID, a.Message, a.OccurredAt)
	if err != nil {
		logger.WithTrace(ctx, r.logger).Error("Failed to append activity",
			zap.String("event_id", a.EventID),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to append activity %s: %w", a.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresActivityRepository) ListByProject(ctx context.Context, projectID string, limit int) (out []model.Activity, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "activity_log")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("list_by_project", "activity_log", time.Now())

	if limit <= 0 {
		limit = defaultActivityLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT event_id, project_id, type, actor_id, message, occurred_at
		FROM activity_log
		WHERE project_id = $1
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	activityRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dbcontract.ActivityRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	out = make([]model.Activity, len(activityRows))
	for i, row := range activityRows {
		out[i] = model.Activity{
			EventID:    row.EventID,
			ProjectID:  row.ProjectID,
			Type:       model.EventType(row.Type),
			ActorID:    row.ActorID,
			Message:    row.Message,
			OccurredAt: row.OccurredAt.UTC(),
		}
	}
	return out, nil
}

func (r *PostgresActivityRepository) LastRead(ctx context.Context, actorID, projectID string) (at time.Time, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "activity_reads")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("last_read", "activity_reads", time.Now())

	err = r.db.QueryRow(ctx, `
		SELECT last_read_at FROM activity_reads WHERE actor_id = $1 AND project_id = $2
	`, actorID, projectID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read activity marker: %w", err)
	}
	return at.UTC(), nil
}

func (r *PostgresActivityRepository) MarkRead(ctx context.Context, actorID, projectID string, at time.Time) (err error) {
	ctx, span := otel.DBSpan(ctx, "upsert", "activity_reads")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("mark_read", "activity_reads", time.Now())

	_, err = r.db.Exec(ctx, `
		INSERT INTO activity_reads (actor_id, project_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (actor_id, project_id)
		DO UPDATE SET last_read_at = GREATEST(activity_reads.last_read_at, EXCLUDED.last_read_at)
	`, actorID, projectID, at)
	if err != nil {
		logger.WithTrace(ctx, r.logger).Error("Failed to mark activity read",
			zap.String("actor_id", actorID),
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to mark activity read: %w", err)
	}
	return nil
}

func (r *PostgresActivityRepository) CountUnread(ctx context.Context, actorID, projectID string) (n int, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "activity_log")
	defer func() { otel.EndSpan(span, err) }()
	defer observe("count_unread", "activity_log", time.Now())

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM activity_log a
		LEFT JOIN activity_reads rd ON rd.actor_id = $1 AND rd.project_id = a.project_id
		WHERE a.project_id = $2
		AND a.actor_id <> $1
		AND (rd.last_read_at IS NULL OR a.occurred_at > rd.last_read_at)
	`, actorID, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread activity: %w", err)
	}
	return n, nil
}
