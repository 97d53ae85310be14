package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/pkg/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	stationListKey    = "stations:all"
	stationKeyPrefix  = "station:"
	bootstrapParallel = 4
)

// Cache is the subset of the station cache used by StationService
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// CreateStationInput is a request to publish a new station
type CreateStationInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputURL    string `json:"input_url"`
}

// StationService handles station business logic
type StationService struct {
	repo     domain.StationRepository
	records  domain.RecordManager
	cache    Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewStationService creates a new station service
func NewStationService(repo domain.StationRepository, records domain.RecordManager, cache Cache, cacheTTL time.Duration) *StationService {
	return &StationService{
		repo:     repo,
		records:  records,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.WithComponent("stations"),
	}
}

// ListStations retrieves all stations
func (s *StationService) ListStations(ctx context.Context) ([]*domain.Station, error) {
	var stations []*domain.Station
	if s.cacheGet(ctx, stationListKey, &stations) {
		return stations, nil
	}

	stations, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, stationListKey, stations)
	return stations, nil
}

// GetStation retrieves a station by name
func (s *StationService) GetStation(ctx context.Context, name string) (*domain.Station, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStation)
	}

	var station domain.Station
	if s.cacheGet(ctx, stationKeyPrefix+name, &station) {
		return &station, nil
	}

	found, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, stationKeyPrefix+name, found)
	return found, nil
}

// CreateStation starts relaying the input URL and stores the station.
// If the name is taken the stored station is returned with created set to false.
func (s *StationService) CreateStation(ctx context.Context, in CreateStationInput) (station *domain.Station, created bool, err error) {
	if in.Name == "" || in.InputURL == "" {
		return nil, false, fmt.Errorf("%w: name and input_url are required", ErrInvalidStation)
	}

	existing, err := s.repo.GetByName(ctx, in.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrStationNotFound) {
		return nil, false, err
	}

	info, err := s.startRelay(ctx, in.InputURL)
	if err != nil {
		return nil, false, err
	}

	station = domain.NewStation(in.Name, in.Description, in.InputURL)
	station.OutputURL = info.StreamURL

	if err := s.repo.Create(ctx, station); err != nil {
		if info.Status == domain.InsertCreated {
			s.records.TerminateRecord(in.InputURL)
		}
		if errors.Is(err, domain.ErrStationExists) {
			existing, getErr := s.repo.GetByName(ctx, in.Name)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.invalidate(ctx, in.Name)
	s.log.Info().
		Str("station", station.Name).
		Str("source_url", station.InputURL).
		Str("output_url", station.OutputURL).
		Msg("Station created")
	return station, true, nil
}

// DeleteStation stops the station's transcoding and removes it
func (s *StationService) DeleteStation(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStation)
	}

	station, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}

	if err := s.releaseURL(ctx, station.InputURL, name); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}

	s.invalidate(ctx, name)
	s.log.Info().Str("station", name).Msg("Station deleted")
	return nil
}

// UpdateStationDetails renames a station and replaces its description.
// An empty newName keeps the current name.
func (s *StationService) UpdateStationDetails(ctx context.Context, name, newName, newDescription string) (*domain.Station, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStation)
	}

	station, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if newName != "" {
		station.Name = newName
	}
	station.Description = newDescription
	station.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, name, station); err != nil {
		return nil, err
	}

	s.invalidate(ctx, name, station.Name)
	return station, nil
}

// UpdateStationURL moves a station to a new source URL. The new relay is
// started before the old one is terminated.
func (s *StationService) UpdateStationURL(ctx context.Context, name, newURL string) (*domain.Station, error) {
	if name == "" || newURL == "" {
		return nil, fmt.Errorf("%w: name and url are required", ErrInvalidStation)
	}

	station, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if station.InputURL == newURL {
		return station, nil
	}

	info, err := s.startRelay(ctx, newURL)
	if err != nil {
		return nil, err
	}

	oldURL := station.InputURL
	station.InputURL = newURL
	station.OutputURL = info.StreamURL
	station.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, name, station); err != nil {
		if info.Status == domain.InsertCreated {
			s.records.TerminateRecord(newURL)
		}
		return nil, err
	}

	if err := s.releaseURL(ctx, oldURL, name); err != nil {
		s.log.Warn().Err(err).Str("station", name).Str("source_url", oldURL).Msg("Old source not terminated")
	}

	s.invalidate(ctx, name)
	s.log.Info().
		Str("station", name).
		Str("source_url", newURL).
		Str("output_url", station.OutputURL).
		Msg("Station source changed")
	return station, nil
}

// Bootstrap starts the relay of every stored station
func (s *StationService) Bootstrap(ctx context.Context) error {
	stations, err := s.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	if len(stations) == 0 {
		s.log.Info().Msg("No stations to start")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapParallel)

	for _, station := range stations {
		station := station
		g.Go(func() error {
			info, err := s.startRelay(gctx, station.InputURL)
			if err != nil {
				s.log.Warn().Err(err).Str("station", station.Name).Msg("Station not started")
				return nil
			}
			if info.StreamURL != station.OutputURL {
				station.OutputURL = info.StreamURL
				station.UpdatedAt = time.Now().UTC()
				if err := s.repo.Update(gctx, station.Name, station); err != nil {
					s.log.Warn().Err(err).Str("station", station.Name).Msg("Output URL not updated")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	names := make([]string, len(stations))
	for i, station := range stations {
		names[i] = station.Name
	}
	s.invalidate(ctx, names...)
	s.log.Info().Int("count", len(stations)).Msg("Stations started")
	return nil
}

func (s *StationService) startRelay(ctx context.Context, sourceURL string) (domain.RecordInfo, error) {
	info, err := s.records.InsertRecord(ctx, sourceURL, false, domain.Perpetual)
	if info.Status == domain.InsertFailed || info.StreamURL == "" {
		if err == nil {
			err = fmt.Errorf("insert returned status %q", info.Status)
		}
		return info, fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	return info, nil
}

// releaseURL terminates the job of sourceURL unless another station still uses it
func (s *StationService) releaseURL(ctx context.Context, sourceURL, owner string) error {
	stations, err := s.repo.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, other := range stations {
		if other.Name != owner && other.InputURL == sourceURL {
			return nil
		}
	}

	switch status := s.records.TerminateRecord(sourceURL); status {
	case domain.TerminateOk, domain.TerminateURLNotExist:
		return nil
	default:
		return fmt.Errorf("%w: status %q", ErrTerminateFailed, status)
	}
}

func (s *StationService) invalidate(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{stationListKey}
	for _, name := range names {
		keys = append(keys, stationKeyPrefix+name)
	}
	s.cache.Delete(ctx, keys...)
}

func (s *StationService) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *StationService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, raw, s.cacheTTL)
}
