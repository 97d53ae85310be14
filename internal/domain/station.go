package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrStationExists   = errors.New("station already exists")
)

// Station is a named radio source published as an HLS stream
type Station struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InputURL    string    `json:"input_url"`
	OutputURL   string    `json:"output_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewStation creates a new station
func NewStation(name, description, inputURL string) *Station {
	now := time.Now().UTC()
	return &Station{
		Name:        name,
		Description: description,
		InputURL:    inputURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StationRepository defines the interface for station persistence.
// Implementations return ErrStationNotFound for unknown names and
// ErrStationExists when creating a duplicate name.
type StationRepository interface {
	Create(ctx context.Context, station *Station) error
	GetByName(ctx context.Context, name string) (*Station, error)
	GetAll(ctx context.Context) ([]*Station, error)
	Update(ctx context.Context, name string, station *Station) error
	Delete(ctx context.Context, name string) error
}
