package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// PostgresBlockedDateRepository implements BlockedDateRepository using PostgreSQL
type PostgresBlockedDateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBlockedDateRepository creates a new PostgresBlockedDateRepository
func NewPostgresBlockedDateRepository(pool *pgxpool.Pool) *PostgresBlockedDateRepository {
	return &PostgresBlockedDateRepository{pool: pool}
}

const blockedDateColumns = `id, contract_zone_id, date, reason, created_by, created_at`

func scanBlockedDate(row pgx.Row) (*domain.BlockedDate, error) {
	bd := &domain.BlockedDate{}
	var d time.Time
	if err := row.Scan(&bd.ID, &bd.ContractZoneID, &d, &bd.Reason, &bd.CreatedBy, &bd.CreatedAt); err != nil {
		return nil, err
	}
	bd.Date = civil.DateOf(d)
	return bd, nil
}

// Create stores a blocked date
func (r *PostgresBlockedDateRepository) Create(ctx context.Context, bd *domain.BlockedDate) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.blocked_date.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("zone_id", bd.ContractZoneID),
		attribute.String("date", bd.Date.String()),
	)

	err := database.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blocked_dates (contract_zone_id, date, reason, created_by)
		VALUES ($1, $2::date, $3, $4)
		RETURNING id, created_at
	`, bd.ContractZoneID, bd.Date.String(), bd.Reason, bd.CreatedBy).Scan(&bd.ID, &bd.CreatedAt)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			span.SetStatus(codes.Error, "duplicate")
			return domain.ErrBlockedDateExists
		case database.IsForeignKeyViolation(err):
			span.SetStatus(codes.Error, "zone not found")
			return domain.ErrZoneNotFound
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create blocked date: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a blocked date by ID
func (r *PostgresBlockedDateRepository) GetByID(ctx context.Context, id int64) (*domain.BlockedDate, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.blocked_date.get_by_id")
	defer span.End()

	bd, err := scanBlockedDate(database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+blockedDateColumns+` FROM blocked_dates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlockedDateNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get blocked date: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return bd, nil
}

// Delete removes a blocked date
func (r *PostgresBlockedDateRepository) Delete(ctx context.Context, id int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.blocked_date.delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("blocked_date_id", id))

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM blocked_dates WHERE id = $1`, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to delete blocked date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBlockedDateNotFound
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByZone lists the zone's blocked dates inside rng, ascending
func (r *PostgresBlockedDateRepository) ListByZone(ctx context.Context, zoneID int64, rng calendar.Range) ([]*domain.BlockedDate, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.blocked_date.list_by_zone")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("zone_id", zoneID),
		attribute.String("from", rng.From.String()),
		attribute.String("to", rng.To.String()),
	)

	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockedDateColumns+` FROM blocked_dates
		WHERE contract_zone_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, zoneID, rng.From.String(), rng.To.String())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list blocked dates: %w", err)
	}
	defer rows.Close()

	var out []*domain.BlockedDate
	for rows.Next() {
		bd, err := scanBlockedDate(rows)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to scan blocked date: %w", err)
		}
		out = append(out, bd)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}
