package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cfoust/skirmish/pkg/gameserver"
	"github.com/cfoust/skirmish/pkg/store"
)

type api struct {
	server  *gameserver.Server
	results *store.Results
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// command runs an operator command through the same table the console uses.
func (a *api) command(w http.ResponseWriter, line string) {
	reply, err := a.server.Commands.Handle(line)
	if errors.Is(err, gameserver.ErrUnknownCommand) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": reply})
}

func (a *api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api"), "/")

	switch {
	case path == "/match" && r.Method == http.MethodGet:
		status, err := a.server.Status()
		if err != nil {
			writeErr(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case path == "/restart" && r.Method == http.MethodPost:
		a.command(w, "restart")
	case path == "/level" && r.Method == http.MethodPost:
		var body struct {
			Level string `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Level == "" {
			writeErr(w, http.StatusBadRequest, errors.New("expected {\"level\": name}"))
			return
		}
		a.command(w, "level "+body.Level)
	case path == "/results" && r.Method == http.MethodGet:
		if a.results == nil {
			writeErr(w, http.StatusNotFound, errors.New("results are not stored"))
			return
		}
		matches, err := a.results.Recent(r.Context(), 20)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	default:
		http.NotFound(w, r)
	}
}
