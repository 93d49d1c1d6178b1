// Package httpapi exposes the REST surface next to the websocket gateway:
// track CRUD, leaderboards, the race archive, the public room list, and a
// health probe. All responses are JSON; errors use the {error, errors}
// envelope the game client already understands.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"slipstream/protocol"
	"slipstream/room"
	"slipstream/storage"
	"slipstream/track"
)

// API bundles the handlers over the store and room manager.
type API struct {
	log     zerolog.Logger
	store   *storage.Store
	manager *room.Manager
}

// New builds the API.
func New(log zerolog.Logger, store *storage.Store, manager *room.Manager) *API {
	return &API{
		log:     log.With().Str("component", "httpapi").Logger(),
		store:   store,
		manager: manager,
	}
}

// Register mounts the routes onto a router. Every resource is served both
// bare and under /api; existing clients use the bare paths, the /api prefix
// keeps them distinct from any static frontend.
func (a *API) Register(r *mux.Router) {
	r.Use(a.logRequests)

	for _, prefix := range []string{"", "/api"} {
		r.HandleFunc(prefix+"/tracks", a.listTracks).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/tracks", a.saveTrack).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/tracks/{id}", a.getTrack).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/tracks/{id}", a.deleteTrack).Methods(http.MethodDelete)
		r.HandleFunc(prefix+"/leaderboards/{trackId}", a.getLeaderboard).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/races", a.recentRaces).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/rooms", a.listRooms).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type errorBody struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorBody{Error: msg, Errors: details})
}

func (a *API) listTracks(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.List()
	if err != nil {
		a.log.Error().Err(err).Msg("track list failed")
		writeError(w, http.StatusInternalServerError, "track list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": list})
}

func (a *API) saveTrack(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	defer body.Close()

	raw := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		raw = append(raw, buf[:n]...)
		if err != nil {
			break
		}
	}

	tr, err := track.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track", err.Error())
		return
	}
	if err := a.store.SaveTrack(tr); err != nil {
		writeError(w, http.StatusBadRequest, "track rejected", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (a *API) getTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tr, err := a.store.Track(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBadID) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		a.log.Error().Err(err).Str("track", id).Msg("track load failed")
		writeError(w, http.StatusInternalServerError, "track unavailable")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (a *API) deleteTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	switch err := a.store.DeleteTrack(id); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrProtectedTrack):
		writeError(w, http.StatusForbidden, "built-in tracks cannot be deleted")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrBadID):
		writeError(w, http.StatusNotFound, "track not found")
	default:
		a.log.Error().Err(err).Str("track", id).Msg("track delete failed")
		writeError(w, http.StatusInternalServerError, "delete failed")
	}
}

func (a *API) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["trackId"]
	board, err := a.store.Leaderboard(trackID)
	if err != nil {
		writeError(w, http.StatusNotFound, "leaderboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trackId": trackID,
		"entries": board,
	})
}

func (a *API) recentRaces(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	recs, err := a.store.RecentRaces(limit)
	if err != nil {
		a.log.Error().Err(err).Msg("race archive read failed")
		writeError(w, http.StatusInternalServerError, "race archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"races": recs})
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := a.manager.List()
	if rooms == nil {
		rooms = []protocol.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
