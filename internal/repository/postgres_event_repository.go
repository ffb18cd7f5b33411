package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// PostgresEventRepository implements EventRepository using PostgreSQL/PostGIS
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

const eventColumns = `id, state, name, description, start_time, end_time,
	ST_X(location), ST_Y(location), contract_zone_id,
	organizer_first_name, organizer_last_name, organizer_email, organizer_phone,
	estimated_attendee_count, targets, maintenance_location, additional_information,
	small_trash_bag_count, large_trash_bag_count, trash_picker_count, equipment_information,
	approval_creation_reminder_sent_at, approval_deadline_reminder_sent_at, reminder_sent_at,
	created_at, modified_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	e := &domain.Event{}
	err := row.Scan(
		&e.ID,
		&e.State,
		&e.Name,
		&e.Description,
		&e.StartTime,
		&e.EndTime,
		&e.Location.Lon,
		&e.Location.Lat,
		&e.ContractZoneID,
		&e.OrganizerFirstName,
		&e.OrganizerLastName,
		&e.OrganizerEmail,
		&e.OrganizerPhone,
		&e.EstimatedAttendeeCount,
		&e.Targets,
		&e.MaintenanceLocation,
		&e.AdditionalInformation,
		&e.SmallTrashBagCount,
		&e.LargeTrashBagCount,
		&e.TrashPickerCount,
		&e.EquipmentInformation,
		&e.ApprovalCreationReminderSentAt,
		&e.ApprovalDeadlineReminderSentAt,
		&e.EventReminderSentAt,
		&e.CreatedAt,
		&e.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	defer rows.Close()
	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create creates a new event
func (r *PostgresEventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", e.ID.String()),
		attribute.Int64("zone_id", e.ContractZoneID),
	)

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO events (
			id, state, name, description, start_time, end_time, location, contract_zone_id,
			organizer_first_name, organizer_last_name, organizer_email, organizer_phone,
			estimated_attendee_count, targets, maintenance_location, additional_information,
			small_trash_bag_count, large_trash_bag_count, trash_picker_count, equipment_information
		) VALUES (
			$1, $2, $3, $4, $5, $6, ST_SetSRID(ST_MakePoint($7, $8), 4326), $9,
			$10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		RETURNING created_at, modified_at
	`,
		e.ID, e.State, e.Name, e.Description, e.StartTime, e.EndTime, e.Location.Lon, e.Location.Lat, e.ContractZoneID,
		e.OrganizerFirstName, e.OrganizerLastName, e.OrganizerEmail, e.OrganizerPhone,
		e.EstimatedAttendeeCount, e.Targets, e.MaintenanceLocation, e.AdditionalInformation,
		e.SmallTrashBagCount, e.LargeTrashBagCount, e.TrashPickerCount, e.EquipmentInformation,
	).Scan(&e.CreatedAt, &e.ModifiedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.ErrZoneNotFound
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create event: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an event by ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id.String()))

	e, err := scanEvent(database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return e, nil
}

// Update writes all mutable fields
func (r *PostgresEventRepository) Update(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", e.ID.String()))

	err := database.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE events SET
			state = $2, name = $3, description = $4, start_time = $5, end_time = $6,
			location = ST_SetSRID(ST_MakePoint($7, $8), 4326), contract_zone_id = $9,
			organizer_first_name = $10, organizer_last_name = $11, organizer_email = $12, organizer_phone = $13,
			estimated_attendee_count = $14, targets = $15, maintenance_location = $16, additional_information = $17,
			small_trash_bag_count = $18, large_trash_bag_count = $19, trash_picker_count = $20,
			equipment_information = $21, modified_at = NOW()
		WHERE id = $1
		RETURNING modified_at
	`,
		e.ID, e.State, e.Name, e.Description, e.StartTime, e.EndTime, e.Location.Lon, e.Location.Lat, e.ContractZoneID,
		e.OrganizerFirstName, e.OrganizerLastName, e.OrganizerEmail, e.OrganizerPhone,
		e.EstimatedAttendeeCount, e.Targets, e.MaintenanceLocation, e.AdditionalInformation,
		e.SmallTrashBagCount, e.LargeTrashBagCount, e.TrashPickerCount, e.EquipmentInformation,
	).Scan(&e.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to update event: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// List lists events with filters and pagination
func (r *PostgresEventRepository) List(ctx context.Context, filter *EventFilter, limit, offset int) ([]*domain.Event, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list")
	defer span.End()

	var conds []string
	var args []any
	if filter != nil {
		if filter.State != "" {
			args = append(args, filter.State)
			conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
		}
		if filter.ContractZoneID != 0 {
			args = append(args, filter.ContractZoneID)
			conds = append(conds, fmt.Sprintf("contract_zone_id = $%d", len(args)))
		}
		if filter.StartsAfter != nil {
			args = append(args, *filter.StartsAfter)
			conds = append(conds, fmt.Sprintf("start_time > $%d", len(args)))
		}
		if filter.StartsBefore != nil {
			args = append(args, *filter.StartsBefore)
			conds = append(conds, fmt.Sprintf("start_time < $%d", len(args)))
		}
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := database.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM events%s ORDER BY start_time, id LIMIT $%d OFFSET $%d`,
		eventColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to scan events: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return events, total, nil
}

// ListOverlapping lists the zone's events touching [from, to)
func (r *PostgresEventRepository) ListOverlapping(ctx context.Context, zoneID int64, from, to time.Time, exclude *uuid.UUID) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_overlapping")
	defer span.End()
	span.SetAttributes(attribute.Int64("zone_id", zoneID))

	if exclude != nil {
		span.SetAttributes(attribute.String("excluded_event_id", exclude.String()))
	}
	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE contract_zone_id = $1
		  AND start_time < $3
		  AND end_time >= $2
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
		ORDER BY start_time, id
	`, zoneID, from, to, exclude)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list overlapping events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// ListPendingApproval lists events waiting for approval that start after now
func (r *PostgresEventRepository) ListPendingApproval(ctx context.Context, now time.Time) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_pending_approval")
	defer span.End()

	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE state = $1 AND start_time > $2
		ORDER BY start_time, id
	`, domain.EventStateWaitingForApproval, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// ListUpcomingWithoutReminder lists upcoming events of any state still owed a reminder
func (r *PostgresEventRepository) ListUpcomingWithoutReminder(ctx context.Context, now time.Time) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_upcoming_without_reminder")
	defer span.End()

	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE start_time > $1 AND reminder_sent_at IS NULL
		ORDER BY start_time, id
	`, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// MarkApprovalRemindersSent sets the selected timestamps that are still null
func (r *PostgresEventRepository) MarkApprovalRemindersSent(ctx context.Context, id uuid.UUID, creation, deadline bool, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.mark_approval_reminders_sent")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", id.String()),
		attribute.Bool("creation", creation),
		attribute.Bool("deadline", deadline),
	)

	if !creation && !deadline {
		return nil
	}
	_, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE events SET
			approval_creation_reminder_sent_at = CASE
				WHEN $2 AND approval_creation_reminder_sent_at IS NULL THEN $4
				ELSE approval_creation_reminder_sent_at END,
			approval_deadline_reminder_sent_at = CASE
				WHEN $3 AND approval_deadline_reminder_sent_at IS NULL THEN $4
				ELSE approval_deadline_reminder_sent_at END
		WHERE id = $1
		  AND (($2 AND approval_creation_reminder_sent_at IS NULL)
		    OR ($3 AND approval_deadline_reminder_sent_at IS NULL))
	`, id, creation, deadline, at)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to mark approval reminders: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkEventReminderSent sets reminder_sent_at if still null
func (r *PostgresEventRepository) MarkEventReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.mark_event_reminder_sent")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id.String()))

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE events SET reminder_sent_at = $2
		WHERE id = $1 AND reminder_sent_at IS NULL
	`, id, at)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("failed to mark event reminder: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() > 0, nil
}

// CountAnonymizable counts events ended on or before cutoff that hold personal data
func (r *PostgresEventRepository) CountAnonymizable(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.count_anonymizable")
	defer span.End()

	var n int
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM events WHERE end_time <= $1 AND organizer_email <> $2
	`, cutoff, domain.AnonymizedOrganizerEmail).Scan(&n)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to count anonymizable events: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return n, nil
}

// Anonymize redacts personal data of every event ended on or before cutoff
func (r *PostgresEventRepository) Anonymize(ctx context.Context, cutoff, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.anonymize")
	defer span.End()

	tag, err := database.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE events SET
			name = $3,
			description = '',
			additional_information = '',
			organizer_first_name = '',
			organizer_last_name = '',
			organizer_email = $2,
			organizer_phone = '',
			modified_at = $4
		WHERE end_time <= $1 AND organizer_email <> $2
	`, cutoff, domain.AnonymizedOrganizerEmail, domain.AnonymizedEventName, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to anonymize events: %w", err)
	}
	n := int(tag.RowsAffected())
	span.SetAttributes(attribute.Int("anonymized", n))
	span.SetStatus(codes.Ok, "")
	return n, nil
}
