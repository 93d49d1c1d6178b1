package storage

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"slipstream/protocol"
)

// raceHistoryCap bounds the archive; the oldest records are pruned as new
// races land.
const raceHistoryCap = 200

// RaceRecord is one archived race: where it ran and how it ended.
type RaceRecord struct {
	ID         string                `json:"id"`
	RoomID     string                `json:"roomId"`
	TrackID    string                `json:"trackId"`
	FinishedAt int64                 `json:"finishedAt"`
	Results    []protocol.RaceResult `json:"results"`
}

// RecordRace archives the standings of a completed race.
func (s *Store) RecordRace(roomID, trackID string, results []protocol.RaceResult) error {
	rec := RaceRecord{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		TrackID:    trackID,
		FinishedAt: time.Now().UnixMilli(),
		Results:    results,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(collRaces, rec.ID, &rec); err != nil {
		return err
	}
	return s.pruneRacesLocked()
}

func (s *Store) pruneRacesLocked() error {
	ids, err := s.ids(collRaces)
	if err != nil {
		return err
	}
	if len(ids) <= raceHistoryCap {
		return nil
	}

	recs := make([]RaceRecord, 0, len(ids))
	for _, id := range ids {
		var rec RaceRecord
		if err := s.read(collRaces, id, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].FinishedAt < recs[j].FinishedAt })
	for _, rec := range recs[:len(recs)-raceHistoryCap] {
		if err := s.remove(collRaces, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

// RecentRaces returns archived races, newest first, up to limit.
func (s *Store) RecentRaces(limit int) ([]RaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.ids(collRaces)
	if err != nil {
		return nil, err
	}
	recs := make([]RaceRecord, 0, len(ids))
	for _, id := range ids {
		var rec RaceRecord
		if err := s.read(collRaces, id, &rec); err != nil {
			s.log.Warn().Err(err).Str("race", id).Msg("skipping unreadable race record")
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].FinishedAt > recs[j].FinishedAt })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
