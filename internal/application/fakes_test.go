package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/radiocast/backend/internal/domain"
)

type insertCall struct {
	url       string
	recording bool
	timeout   int
}

type fakeRecords struct {
	mu         sync.Mutex
	active     map[string]bool
	inserts    []insertCall
	terminated []string
	failURL    map[string]bool
	terminate  domain.TerminateStatus
	output     map[string][]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		active:  make(map[string]bool),
		failURL: make(map[string]bool),
		output:  make(map[string][]string),
	}
}

func streamURLFor(url string) string {
	return "http://localhost/streams/" + url + "/audio.m3u8"
}

func (f *fakeRecords) InsertRecord(_ context.Context, url string, recording bool, timeout int) (domain.RecordInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, insertCall{url, recording, timeout})

	if f.failURL[url] {
		return domain.RecordInfo{SourceURL: url, Status: domain.InsertFailed}, errors.New("spawn failed")
	}
	status := domain.InsertCreated
	if f.active[url] {
		status = domain.InsertAlreadyExists
	}
	f.active[url] = true
	return domain.RecordInfo{
		SourceURL: url,
		StreamURL: streamURLFor(url),
		Status:    status,
	}, nil
}

func (f *fakeRecords) TerminateRecord(url string) domain.TerminateStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url == "" {
		return domain.TerminateInvalidParam
	}
	if f.terminate != "" {
		return f.terminate
	}
	if !f.active[url] {
		return domain.TerminateURLNotExist
	}
	delete(f.active, url)
	f.terminated = append(f.terminated, url)
	return domain.TerminateOk
}

func (f *fakeRecords) ListActiveRecords() []domain.ActiveRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActiveRecord
	for url := range f.active {
		out = append(out, domain.ActiveRecord{SourceURL: url, StreamURL: streamURLFor(url)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out
}

func (f *fakeRecords) WorkerOutput(url string, role domain.WorkerRole) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := f.output[url+"/"+string(role)]
	if !ok {
		return nil, errors.New("worker not found")
	}
	return lines, nil
}

func (f *fakeRecords) isActive(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[url]
}

type memStations struct {
	mu       sync.Mutex
	stations map[string]domain.Station
	gets     int
}

func newMemStations() *memStations {
	return &memStations{stations: make(map[string]domain.Station)}
}

func (r *memStations) Create(_ context.Context, s *domain.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[s.Name]; ok {
		return domain.ErrStationExists
	}
	r.stations[s.Name] = *s
	return nil
}

func (r *memStations) GetByName(_ context.Context, name string) (*domain.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	s, ok := r.stations[name]
	if !ok {
		return nil, domain.ErrStationNotFound
	}
	return &s, nil
}

func (r *memStations) GetAll(_ context.Context) ([]*domain.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	out := []*domain.Station{}
	for _, s := range r.stations {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memStations) Update(_ context.Context, name string, s *domain.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[name]; !ok {
		return domain.ErrStationNotFound
	}
	if s.Name != name {
		if _, taken := r.stations[s.Name]; taken {
			return domain.ErrStationExists
		}
		delete(r.stations, name)
	}
	r.stations[s.Name] = *s
	return nil
}

func (r *memStations) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[name]; !ok {
		return domain.ErrStationNotFound
	}
	delete(r.stations, name)
	return nil
}

func (r *memStations) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}
