package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	geojson "github.com/paulmach/go.geojson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// PostgresZoneRepository implements ZoneRepository using PostgreSQL/PostGIS
type PostgresZoneRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresZoneRepository creates a new PostgresZoneRepository
func NewPostgresZoneRepository(pool *pgxpool.Pool) *PostgresZoneRepository {
	return &PostgresZoneRepository{pool: pool}
}

const zoneColumns = `z.id, z.name, z.origin_id, ST_AsGeoJSON(z.boundary), z.active,
	z.contact_person, z.email, z.secondary_email, z.phone,
	COALESCE((SELECT array_agg(c.user_id ORDER BY c.user_id)
		FROM contract_zone_contractors c WHERE c.contract_zone_id = z.id), '{}'),
	z.created_at, z.modified_at`

func scanZone(row pgx.Row) (*domain.ContractZone, error) {
	zone := &domain.ContractZone{}
	var boundary []byte
	err := row.Scan(
		&zone.ID,
		&zone.Name,
		&zone.OriginID,
		&boundary,
		&zone.Active,
		&zone.ContactPerson,
		&zone.Email,
		&zone.SecondaryEmail,
		&zone.Phone,
		&zone.ContractorIDs,
		&zone.CreatedAt,
		&zone.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(boundary) > 0 {
		g, err := geojson.UnmarshalGeometry(boundary)
		if err != nil {
			return nil, fmt.Errorf("failed to decode boundary of zone %d: %w", zone.ID, err)
		}
		zone.Boundary = g
	}
	return zone, nil
}

func scanZones(rows pgx.Rows) ([]*domain.ContractZone, error) {
	defer rows.Close()
	var zones []*domain.ContractZone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

// Create creates a new zone
func (r *PostgresZoneRepository) Create(ctx context.Context, zone *domain.ContractZone) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.create")
	defer span.End()
	span.SetAttributes(attribute.String("origin_id", zone.OriginID))

	boundary, err := domain.NormalizeBoundary(zone.Boundary)
	if err != nil {
		return err
	}
	boundaryJSON, err := boundary.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode boundary: %w", err)
	}

	return database.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := database.Conn(ctx, r.pool)
		err := q.QueryRow(ctx, `
			INSERT INTO contract_zones (name, origin_id, boundary, active, contact_person, email, secondary_email, phone)
			VALUES ($1, $2, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($3), 4326)), $4, $5, $6, $7, $8)
			RETURNING id, created_at, modified_at
		`, zone.Name, zone.OriginID, string(boundaryJSON), zone.Active,
			zone.ContactPerson, zone.Email, zone.SecondaryEmail, zone.Phone,
		).Scan(&zone.ID, &zone.CreatedAt, &zone.ModifiedAt)
		if err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("failed to create zone: %w", err)
		}
		for _, userID := range zone.ContractorIDs {
			if _, err := q.Exec(ctx, `
				INSERT INTO contract_zone_contractors (contract_zone_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, zone.ID, userID); err != nil {
				telemetry.RecordError(span, err)
				return fmt.Errorf("failed to add contractor %s: %w", userID, err)
			}
		}
		zone.Boundary = boundary
		span.SetStatus(codes.Ok, "")
		return nil
	})
}

// GetByID retrieves a zone by ID
func (r *PostgresZoneRepository) GetByID(ctx context.Context, id int64) (*domain.ContractZone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.Int64("zone_id", id))

	row := database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+zoneColumns+` FROM contract_zones z WHERE z.id = $1`, id)
	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrZoneNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return zone, nil
}

// List lists zones ordered by ID
func (r *PostgresZoneRepository) List(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.list")
	defer span.End()

	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+zoneColumns+` FROM contract_zones z
		WHERE (NOT $1 OR z.active)
		ORDER BY z.id
	`, activeOnly)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	zones, err := scanZones(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan zones: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return zones, nil
}

// FindContaining lists zones whose boundary covers p, ordered by ID
func (r *PostgresZoneRepository) FindContaining(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.find_containing")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("lon", p.Lon),
		attribute.Float64("lat", p.Lat),
		attribute.Bool("active_only", activeOnly),
	)

	rows, err := database.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+zoneColumns+` FROM contract_zones z
		WHERE ST_Covers(z.boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		  AND (NOT $3 OR z.active)
		ORDER BY z.id
	`, p.Lon, p.Lat, activeOnly)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to query zones by point: %w", err)
	}
	zones, err := scanZones(rows)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan zones: %w", err)
	}
	span.SetAttributes(attribute.Int("match_count", len(zones)))
	span.SetStatus(codes.Ok, "")
	return zones, nil
}

// Lock takes a FOR UPDATE lock on the zone row. Must run inside WithTx.
func (r *PostgresZoneRepository) Lock(ctx context.Context, id int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.lock")
	defer span.End()
	span.SetAttributes(attribute.Int64("zone_id", id))

	if database.TxFromContext(ctx) == nil {
		return errors.New("zone lock requires a transaction")
	}
	var locked int64
	err := database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id FROM contract_zones WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrZoneNotFound
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to lock zone: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateContacts updates contact fields and the active flag
func (r *PostgresZoneRepository) UpdateContacts(ctx context.Context, zone *domain.ContractZone) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.zone.update_contacts")
	defer span.End()
	span.SetAttributes(attribute.Int64("zone_id", zone.ID))

	err := database.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE contract_zones
		SET name = $2, active = $3, contact_person = $4, email = $5, secondary_email = $6, phone = $7, modified_at = NOW()
		WHERE id = $1
		RETURNING modified_at
	`, zone.ID, zone.Name, zone.Active, zone.ContactPerson, zone.Email, zone.SecondaryEmail, zone.Phone,
	).Scan(&zone.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrZoneNotFound
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to update zone: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
