package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresServiceStore stores the service catalog in the relational
// database.
type PostgresServiceStore struct {
	db DB
}

// NewPostgresServiceStore creates a catalog backed by a pgx pool.
func NewPostgresServiceStore(db DB) *PostgresServiceStore {
	if db == nil {
		panic("booking: pgx pool required")
	}
	return &PostgresServiceStore{db: db}
}

const serviceColumns = `id, business_id, name, description, duration_minutes, price_cents, active, instant_book, created_at, updated_at`

func (s *PostgresServiceStore) GetService(ctx context.Context, businessID, serviceID uuid.UUID) (*Service, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE id = $1 AND business_id = $2`,
		serviceID, businessID,
	)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundError("service %s", serviceID)
		}
		return nil, fmt.Errorf("booking: load service: %w", err)
	}
	return svc, nil
}

func (s *PostgresServiceStore) ListServices(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE business_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("booking: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan service: %w", err)
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func (s *PostgresServiceStore) CreateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	if _, err := s.db.Exec(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		svc.ID, svc.BusinessID, svc.Name, svc.Description, svc.DurationMinutes,
		svc.PriceCents, svc.Active, svc.InstantBook, svc.CreatedAt, svc.UpdatedAt,
	); err != nil {
		return fmt.Errorf("booking: insert service: %w", err)
	}
	return nil
}

func (s *PostgresServiceStore) UpdateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	svc.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE services
		SET name = $1, description = $2, duration_minutes = $3, price_cents = $4,
		    active = $5, instant_book = $6, updated_at = $7
		WHERE id = $8 AND business_id = $9`,
		svc.Name, svc.Description, svc.DurationMinutes, svc.PriceCents,
		svc.Active, svc.InstantBook, svc.UpdatedAt, svc.ID, svc.BusinessID,
	)
	if err != nil {
		return fmt.Errorf("booking: update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError("service %s", svc.ID)
	}
	return nil
}

func (s *PostgresServiceStore) DeactivateService(ctx context.Context, businessID, serviceID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE services SET active = FALSE, updated_at = $1
		WHERE id = $2 AND business_id = $3`,
		time.Now().UTC(), serviceID, businessID,
	)
	if err != nil {
		return fmt.Errorf("booking: deactivate service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError("service %s", serviceID)
	}
	return nil
}

func scanService(row pgx.Row) (*Service, error) {
	var svc Service
	if err := row.Scan(
		&svc.ID, &svc.BusinessID, &svc.Name, &svc.Description, &svc.DurationMinutes,
		&svc.PriceCents, &svc.Active, &svc.InstantBook, &svc.CreatedAt, &svc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &svc, nil
}
