package storage

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// leaderboardCap bounds every per-track board.
const leaderboardCap = 100

// LeaderboardEntry is one row of a per-track best-lap board.
type LeaderboardEntry struct {
	Nickname   string `json:"nickname"`
	TimeMs     int64  `json:"timeMs"`
	RecordedAt int64  `json:"recordedAt"`
}

type leaderboard struct {
	TrackID string             `json:"trackId"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Leaderboard returns the board for a track, fastest first. A track with no
// recorded laps yields an empty board, not an error.
func (s *Store) Leaderboard(trackID string) ([]LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var board leaderboard
	if err := s.read(collLeaderboards, trackID, &board); err != nil {
		if isNotFound(err) {
			return []LeaderboardEntry{}, nil
		}
		return nil, err
	}
	return board.Entries, nil
}

// RecordLap folds one lap time into a track's board. Each nickname holds at
// most one entry, matched case-insensitively, and only improves: a slower
// lap than the nickname's standing entry is discarded. The board stays
// sorted ascending by time and capped at 100 rows.
func (s *Store) RecordLap(trackID, nickname string, lapMs int64) error {
	if lapMs <= 0 || strings.TrimSpace(nickname) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := leaderboard{TrackID: trackID}
	if err := s.read(collLeaderboards, trackID, &board); err != nil && !isNotFound(err) {
		return err
	}

	key := strings.ToLower(nickname)
	replaced := false
	for i, entry := range board.Entries {
		if strings.ToLower(entry.Nickname) != key {
			continue
		}
		if entry.TimeMs <= lapMs {
			return nil
		}
		board.Entries[i] = LeaderboardEntry{
			Nickname:   nickname,
			TimeMs:     lapMs,
			RecordedAt: time.Now().UnixMilli(),
		}
		replaced = true
		break
	}
	if !replaced {
		board.Entries = append(board.Entries, LeaderboardEntry{
			Nickname:   nickname,
			TimeMs:     lapMs,
			RecordedAt: time.Now().UnixMilli(),
		})
	}

	sort.SliceStable(board.Entries, func(i, j int) bool {
		return board.Entries[i].TimeMs < board.Entries[j].TimeMs
	})
	if len(board.Entries) > leaderboardCap {
		board.Entries = board.Entries[:leaderboardCap]
	}

	return s.write(collLeaderboards, trackID, &board)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
