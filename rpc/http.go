// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"imgcommit/internal/log"
)

// NewHTTPHandler builds the commit_* endpoints as an http.Handler,
// wrapped with a CORS policy suitable for a browser-based console
// served from a different origin than the daemon.
func NewHTTPHandler(h *Handler, allowedOrigins []string) http.Handler {
	router := httprouter.New()

	router.POST("/commit/start", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req StartRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := h.Start(r.Context(), req)
		writeJSON(w, resp, err)
	})

	router.POST("/commit/:id/speed", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var body struct{ Speed int64 }
		if !decodeJSON(w, r, &body) {
			return
		}
		err := h.SetSpeed(SetSpeedRequest{JobID: p.ByName("id"), Speed: body.Speed})
		writeJSON(w, struct{}{}, err)
	})

	router.POST("/commit/:id/pause", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		err := h.Pause(p.ByName("id"))
		writeJSON(w, struct{}{}, err)
	})

	router.POST("/commit/:id/resume", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var body struct{ Speed int64 }
		if !decodeJSON(w, r, &body) {
			return
		}
		err := h.Resume(SetSpeedRequest{JobID: p.ByName("id"), Speed: body.Speed})
		writeJSON(w, struct{}{}, err)
	})

	router.POST("/commit/:id/cancel", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		err := h.Cancel(p.ByName("id"))
		writeJSON(w, struct{}{}, err)
	})

	router.GET("/commit/:id/progress", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		resp, err := h.Progress(p.ByName("id"))
		writeJSON(w, resp, err)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(router)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, nil, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Warn("rpc call failed", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(v)
}
