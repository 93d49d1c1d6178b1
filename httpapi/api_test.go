package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slipstream/protocol"
	"slipstream/room"
	"slipstream/storage"
	"slipstream/track"
)

func newTestAPI(t *testing.T) (*httptest.Server, *storage.Store, *room.Manager) {
	t.Helper()
	store, err := storage.NewStore(zerolog.Nop(), t.TempDir())
	require.NoError(t, err)

	manager := room.NewManager(zerolog.Nop(), store)
	t.Cleanup(manager.Stop)

	r := mux.NewRouter()
	New(zerolog.Nop(), store, manager).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store, manager
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestAPI(t)
	for _, path := range []string{"/health", "/healthz"} {
		var body map[string]string
		resp := getJSON(t, srv.URL+path, &body)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "ok", body["status"], path)
	}
}

func TestBarePathAliases(t *testing.T) {
	srv, store, manager := newTestAPI(t)
	require.NoError(t, store.RecordLap(track.DefaultTrackID, "Ann", 48000))
	_, err := manager.CreateRoom(protocol.RoomSettings{}, &room.Player{ID: "p-host", Nickname: "Ann"})
	require.NoError(t, err)

	var listing struct {
		Tracks []protocol.TrackSummary `json:"tracks"`
	}
	resp := getJSON(t, srv.URL+"/tracks", &listing)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.GreaterOrEqual(t, len(listing.Tracks), 2)

	var loaded track.Track
	resp = getJSON(t, srv.URL+"/tracks/"+track.DefaultTrackID, &loaded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, track.DefaultTrackID, loaded.ID)

	var board struct {
		Entries []storage.LeaderboardEntry `json:"entries"`
	}
	resp = getJSON(t, srv.URL+"/leaderboards/"+track.DefaultTrackID, &board)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, board.Entries, 1)

	var rooms struct {
		Rooms []protocol.RoomSummary `json:"rooms"`
	}
	resp = getJSON(t, srv.URL+"/rooms", &rooms)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rooms.Rooms, 1)
}

func TestTrackEndpoints(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	var listing struct {
		Tracks []protocol.TrackSummary `json:"tracks"`
	}
	resp := getJSON(t, srv.URL+"/api/tracks", &listing)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.GreaterOrEqual(t, len(listing.Tracks), 2)

	var loaded track.Track
	resp = getJSON(t, srv.URL+"/api/tracks/"+track.DefaultTrackID, &loaded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, track.DefaultTrackID, loaded.ID)
	require.NoError(t, loaded.Validate())

	resp = getJSON(t, srv.URL+"/api/tracks/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrackUploadAndDelete(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	var base track.Track
	getJSON(t, srv.URL+"/api/tracks/"+track.DefaultTrackID, &base)
	base.ID = "uploaded-1"
	base.Name = "Uploaded"

	payload, err := json.Marshal(&base)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/tracks", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Garbage bodies are refused with the error envelope.
	resp, err = http.Post(srv.URL+"/api/tracks", "application/json",
		bytes.NewReader([]byte(`{"id": `)))
	require.NoError(t, err)
	var envelope struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, envelope.Error)

	del := func(id string) int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/tracks/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusForbidden, del(track.DefaultTrackID))
	require.Equal(t, http.StatusNoContent, del("uploaded-1"))
	require.Equal(t, http.StatusNotFound, del("uploaded-1"))
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, store, _ := newTestAPI(t)

	require.NoError(t, store.RecordLap(track.DefaultTrackID, "Ann", 48000))
	require.NoError(t, store.RecordLap(track.DefaultTrackID, "Bo", 51000))

	var body struct {
		TrackID string                     `json:"trackId"`
		Entries []storage.LeaderboardEntry `json:"entries"`
	}
	resp := getJSON(t, srv.URL+"/api/leaderboards/"+track.DefaultTrackID, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Entries, 2)
	require.Equal(t, "Ann", body.Entries[0].Nickname)
}

func TestRaceArchiveEndpoint(t *testing.T) {
	srv, store, _ := newTestAPI(t)

	require.NoError(t, store.RecordRace("room-1", track.DefaultTrackID, []protocol.RaceResult{
		{PlayerID: "p-1", Nickname: "Ann", Position: 1, Finished: true, TotalMs: 62000},
	}))

	var body struct {
		Races []storage.RaceRecord `json:"races"`
	}
	resp := getJSON(t, srv.URL+"/api/races?limit=5", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Races, 1)
	require.Equal(t, "room-1", body.Races[0].RoomID)
}

func TestRoomListEndpoint(t *testing.T) {
	srv, _, manager := newTestAPI(t)

	var body struct {
		Rooms []protocol.RoomSummary `json:"rooms"`
	}
	resp := getJSON(t, srv.URL+"/api/rooms", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, body.Rooms)

	host := &room.Player{ID: "p-host", Nickname: "Ann"}
	_, err := manager.CreateRoom(protocol.RoomSettings{}, host)
	require.NoError(t, err)

	resp = getJSON(t, srv.URL+"/api/rooms", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Rooms, 1)
}
