package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radiocast/backend/internal/domain"
)

// StationRepository implements domain.StationRepository with SQLite
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository creates a new SQLite station repository
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = `name, description, input_url, output_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*domain.Station, error) {
	var s domain.Station
	var createdAt, updatedAt string
	if err := row.Scan(&s.Name, &s.Description, &s.InputURL, &s.OutputURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Create inserts a new station
func (r *StationRepository) Create(ctx context.Context, station *domain.Station) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (`+stationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`,
		station.Name,
		station.Description,
		station.InputURL,
		station.OutputURL,
		formatTime(station.CreatedAt),
		formatTime(station.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStationExists
	}
	return nil
}

// GetByName retrieves a station by name
func (r *StationRepository) GetByName(ctx context.Context, name string) (*domain.Station, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE name = ?`, name)
	s, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get station: %w", err)
	}
	return s, nil
}

// GetAll retrieves all stations ordered by name
func (r *StationRepository) GetAll(ctx context.Context) ([]*domain.Station, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	stations := []*domain.Station{}
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// Update replaces the row stored under name, which may rename the station
func (r *StationRepository) Update(ctx context.Context, name string, station *domain.Station) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if station.Name != name {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM stations WHERE name = ?`, station.Name).Scan(&exists)
		if err == nil {
			return domain.ErrStationExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check station name: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE stations
		SET name = ?, description = ?, input_url = ?, output_url = ?, updated_at = ?
		WHERE name = ?
	`,
		station.Name,
		station.Description,
		station.InputURL,
		station.OutputURL,
		formatTime(station.UpdatedAt),
		name,
	)
	if err != nil {
		return fmt.Errorf("update station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStationNotFound
	}
	return tx.Commit()
}

// Delete removes a station
func (r *StationRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stations WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}
