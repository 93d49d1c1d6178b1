package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"slipstream/protocol"
	"slipstream/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(zerolog.Nop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestTrackPersistence(t *testing.T) {
	Convey("Given a fresh store", t, func() {
		s := newTestStore(t)

		Convey("The built-in tracks are seeded and loadable", func() {
			tr, err := s.Track(track.DefaultTrackID)
			So(err, ShouldBeNil)
			So(tr.Validate(), ShouldBeNil)

			list, err := s.List()
			So(err, ShouldBeNil)
			So(len(list), ShouldBeGreaterThanOrEqualTo, 2)
		})

		Convey("A saved track round-trips in canonical form", func() {
			tr, err := s.Track(track.DefaultTrackID)
			So(err, ShouldBeNil)
			tr.ID = "custom-1"
			tr.Name = "Custom"
			tr.Elements = append(tr.Elements, track.Element{
				ID: "legacy-boost", Type: "boost_pad", X: 500, Y: 500, Width: 40, Height: 40,
			})

			So(s.SaveTrack(tr), ShouldBeNil)

			loaded, err := s.Track("custom-1")
			So(err, ShouldBeNil)
			found := false
			for _, e := range loaded.Elements {
				So(e.Type, ShouldNotEqual, track.ElementType("boost_pad"))
				if e.ID == "legacy-boost" {
					found = true
					So(e.Type, ShouldEqual, track.Boost)
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("Invalid tracks are refused", func() {
			So(s.SaveTrack(&track.Track{ID: "bad", Version: 1, Width: 100, Height: 100,
				Difficulty: track.DifficultyEasy}), ShouldEqual, track.ErrNoFinish)
		})

		Convey("Built-ins cannot be deleted, user tracks can", func() {
			So(s.DeleteTrack(track.DefaultTrackID), ShouldEqual, ErrProtectedTrack)

			tr, _ := s.Track(track.DefaultTrackID)
			tr.ID = "doomed"
			So(s.SaveTrack(tr), ShouldBeNil)
			So(s.DeleteTrack("doomed"), ShouldBeNil)
			_, err := s.Track("doomed")
			So(isNotFound(err), ShouldBeTrue)
		})

		Convey("Path-traversal IDs are rejected", func() {
			_, err := s.Track("../../etc/passwd")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a track leaderboard", t, func() {
		s := newTestStore(t)
		trackID := "custom-board"

		Convey("An empty board reads as empty, not an error", func() {
			board, err := s.Leaderboard(trackID)
			So(err, ShouldBeNil)
			So(board, ShouldBeEmpty)
		})

		Convey("Entries sort ascending by time", func() {
			So(s.RecordLap(trackID, "Carol", 52000), ShouldBeNil)
			So(s.RecordLap(trackID, "Ann", 48000), ShouldBeNil)
			So(s.RecordLap(trackID, "Bo", 50000), ShouldBeNil)

			board, _ := s.Leaderboard(trackID)
			So(board, ShouldHaveLength, 3)
			So(board[0].Nickname, ShouldEqual, "Ann")
			So(board[1].Nickname, ShouldEqual, "Bo")
			So(board[2].Nickname, ShouldEqual, "Carol")
		})

		Convey("A nickname holds one entry, case-insensitive, improving only", func() {
			So(s.RecordLap(trackID, "Ann", 48000), ShouldBeNil)
			So(s.RecordLap(trackID, "ANN", 47000), ShouldBeNil)
			So(s.RecordLap(trackID, "ann", 49000), ShouldBeNil)

			board, _ := s.Leaderboard(trackID)
			So(board, ShouldHaveLength, 1)
			So(board[0].TimeMs, ShouldEqual, 47000)
			So(board[0].Nickname, ShouldEqual, "ANN")
		})

		Convey("The board caps at 100 with a better time displacing the tail", func() {
			for i := 0; i < 105; i++ {
				So(s.RecordLap(trackID, fmt.Sprintf("racer-%03d", i), int64(60000+i*100)), ShouldBeNil)
			}
			board, _ := s.Leaderboard(trackID)
			So(board, ShouldHaveLength, 100)
			So(board[99].TimeMs, ShouldEqual, 60000+99*100)

			// racer-104 improves past the 100th fastest and re-enters.
			So(s.RecordLap(trackID, "racer-104", 59000), ShouldBeNil)
			board, _ = s.Leaderboard(trackID)
			So(board, ShouldHaveLength, 100)
			So(board[0].Nickname, ShouldEqual, "racer-104")
			So(board[0].TimeMs, ShouldEqual, 59000)
		})

		Convey("Nonsense laps are ignored", func() {
			So(s.RecordLap(trackID, "Ann", 0), ShouldBeNil)
			So(s.RecordLap(trackID, "  ", 1000), ShouldBeNil)
			board, _ := s.Leaderboard(trackID)
			So(board, ShouldBeEmpty)
		})
	})
}

func TestRaceArchive(t *testing.T) {
	Convey("Given finished races", t, func() {
		s := newTestStore(t)

		results := []protocol.RaceResult{
			{PlayerID: "p-1", Nickname: "Ann", Position: 1, Finished: true, TotalMs: 61000},
			{PlayerID: "p-2", Nickname: "Bo", Position: 2, Finished: false},
		}
		So(s.RecordRace("room-1", track.DefaultTrackID, results), ShouldBeNil)
		time.Sleep(2 * time.Millisecond)
		So(s.RecordRace("room-2", track.DefaultTrackID, results[:1]), ShouldBeNil)

		Convey("RecentRaces returns newest first, honoring the limit", func() {
			recs, err := s.RecentRaces(1)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].RoomID, ShouldEqual, "room-2")
		})

		Convey("Full standings survive the round trip", func() {
			recs, _ := s.RecentRaces(0)
			So(recs, ShouldHaveLength, 2)
			var first *RaceRecord
			for i := range recs {
				if recs[i].RoomID == "room-1" {
					first = &recs[i]
				}
			}
			So(first, ShouldNotBeNil)
			So(first.Results, ShouldHaveLength, 2)
			So(first.Results[0].Nickname, ShouldEqual, "Ann")
			So(first.Results[1].Finished, ShouldBeFalse)
		})
	})
}
