// Package postgres stores stations in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiocast/backend/internal/domain"
)

// uniqueViolation is the SQLSTATE for duplicate primary keys
const uniqueViolation = "23505"

// StationRepository implements domain.StationRepository with PostgreSQL
type StationRepository struct {
	db *pgxpool.Pool
}

// NewStationRepository creates a new PostgreSQL station repository
func NewStationRepository(db *pgxpool.Pool) *StationRepository {
	return &StationRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Create inserts a new station
func (r *StationRepository) Create(ctx context.Context, station *domain.Station) error {
	query := `
		INSERT INTO stations (name, description, input_url, output_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		station.Name,
		station.Description,
		station.InputURL,
		station.OutputURL,
		station.CreatedAt,
		station.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrStationExists
	}
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

// GetByName retrieves a station by name
func (r *StationRepository) GetByName(ctx context.Context, name string) (*domain.Station, error) {
	query := `
		SELECT name, description, input_url, output_url, created_at, updated_at
		FROM stations WHERE name = $1
	`

	var s domain.Station
	err := r.db.QueryRow(ctx, query, name).Scan(
		&s.Name,
		&s.Description,
		&s.InputURL,
		&s.OutputURL,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	return &s, nil
}

// GetAll retrieves all stations ordered by name
func (r *StationRepository) GetAll(ctx context.Context) ([]*domain.Station, error) {
	query := `
		SELECT name, description, input_url, output_url, created_at, updated_at
		FROM stations ORDER BY name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	stations := []*domain.Station{}
	for rows.Next() {
		var s domain.Station
		if err := rows.Scan(&s.Name, &s.Description, &s.InputURL, &s.OutputURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, &s)
	}
	return stations, rows.Err()
}

// Update replaces the row stored under name, which may rename the station
func (r *StationRepository) Update(ctx context.Context, name string, station *domain.Station) error {
	query := `
		UPDATE stations
		SET name = $1, description = $2, input_url = $3, output_url = $4, updated_at = $5
		WHERE name = $6
	`

	tag, err := r.db.Exec(ctx, query,
		station.Name,
		station.Description,
		station.InputURL,
		station.OutputURL,
		station.UpdatedAt,
		name,
	)
	if isUniqueViolation(err) {
		return domain.ErrStationExists
	}
	if err != nil {
		return fmt.Errorf("update station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}

// Delete removes a station
func (r *StationRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stations WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}
