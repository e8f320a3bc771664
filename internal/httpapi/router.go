// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the auxiliary HTTP surface: the token-guarded REST
// endpoints, static asset serving, the WebSocket upgrade endpoint, and the
// preview reverse proxy. None of this is part of the Session Multiplexer's
// control-channel contract; it exists alongside it for the browser client.
package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorilla/mux"

	"github.com/rigshell/agentbridge/internal/authgate"
	"github.com/rigshell/agentbridge/internal/multiplex"
	"github.com/rigshell/agentbridge/internal/portscan"
	"github.com/rigshell/agentbridge/internal/sessionmgr"
)

// Dependencies wires everything the router needs.
type Dependencies struct {
	Gate      *authgate.Gate
	Sessions  *sessionmgr.Manager
	Hub       *multiplex.Hub
	Preview   http.Handler // reverse proxy for /preview/{port}/, nil to disable
	StaticDir string       // optional directory of browser assets
}

// NewRouter builds the full auxiliary HTTP surface.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(logging)
	r.Use(recovery)

	if deps.StaticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
	}

	r.HandleFunc("/ws", deps.Hub.ServeWS).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(deps.Gate.Middleware)
	api.HandleFunc("/sessions", sessionsHandler(deps.Sessions)).Methods("GET")
	api.HandleFunc("/ports", portsHandler).Methods("GET")
	api.HandleFunc("/dirs", dirsHandler).Methods("GET")

	if deps.Preview != nil {
		r.PathPrefix("/preview/{port}").Handler(deps.Preview)
	}

	return r
}

func sessionsHandler(sessions *sessionmgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessions.List())
	}
}

func portsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := portscan.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

// dirEntry is one immediate subdirectory, for the directory-autocomplete
// control.
type dirEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func dirsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	out := make([]dirEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		out = append(out, dirEntry{Name: entry.Name(), Path: filepath.Join(path, entry.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, out)
}
