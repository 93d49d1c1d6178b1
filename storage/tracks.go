package storage

import (
	"errors"
	"fmt"
	"time"

	"slipstream/protocol"
	"slipstream/track"
)

// ErrProtectedTrack guards the built-in courses from deletion.
var ErrProtectedTrack = errors.New("built-in tracks cannot be deleted")

func builtinTrack(id string) bool {
	for _, tr := range track.DefaultTracks() {
		if tr.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) seedDefaultTracks() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range track.DefaultTracks() {
		var existing track.Track
		if err := s.read(collTracks, tr.ID, &existing); err == nil {
			continue
		}
		tr.CreatedAt = time.Now().UnixMilli()
		tr.UpdatedAt = tr.CreatedAt
		tr.Normalize()
		if err := s.write(collTracks, tr.ID, tr); err != nil {
			return fmt.Errorf("seed track %s: %w", tr.ID, err)
		}
		s.log.Info().Str("track", tr.ID).Msg("seeded built-in track")
	}
	return nil
}

// SaveTrack validates and persists a track. The stored form is canonical:
// aliases renamed, editor elements stripped, position fields reconciled.
func (s *Store) SaveTrack(tr *track.Track) error {
	tr.Normalize()
	if err := tr.Validate(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if tr.CreatedAt == 0 {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(collTracks, tr.ID, tr)
}

// Track loads one track by ID. Part of the room.TrackSource contract.
func (s *Store) Track(id string) (*track.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tr track.Track
	if err := s.read(collTracks, id, &tr); err != nil {
		return nil, err
	}
	tr.Normalize()
	return &tr, nil
}

// DeleteTrack removes a user track. Built-ins are protected.
func (s *Store) DeleteTrack(id string) error {
	if builtinTrack(id) {
		return ErrProtectedTrack
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(collTracks, id)
}

// List returns summaries of every stored track. Part of the
// room.TrackSource contract.
func (s *Store) List() ([]protocol.TrackSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.ids(collTracks)
	if err != nil {
		return nil, err
	}
	summaries := make([]protocol.TrackSummary, 0, len(ids))
	for _, id := range ids {
		var tr track.Track
		if err := s.read(collTracks, id, &tr); err != nil {
			s.log.Warn().Err(err).Str("track", id).Msg("skipping unreadable track")
			continue
		}
		summaries = append(summaries, protocol.TrackSummary{
			ID:              tr.ID,
			Name:            tr.Name,
			Author:          tr.Author,
			Difficulty:      string(tr.Difficulty),
			DefaultLapCount: tr.DefaultLapCount,
		})
	}
	return summaries, nil
}
