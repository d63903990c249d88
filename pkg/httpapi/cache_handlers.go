package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/settings"
)

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	command := r.URL.Query().Get("command")

	if command != "" {
		blob, ok, err := s.Blobs.Get(r.Context(), deviceID, command)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no cache entry for " + deviceID + "/" + command})
			return
		}
		writeJSON(w, http.StatusOK, blob)
		return
	}

	commands, err := s.Blobs.ListCommands(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	blobs := make([]*model.JSONBlob, 0, len(commands))
	for _, c := range commands {
		blob, ok, err := s.Blobs.Get(r.Context(), deviceID, c)
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			blobs = append(blobs, blob)
		}
	}
	writeJSON(w, http.StatusOK, blobs)
}

type cacheSetRequest struct {
	Command  string `json:"command"`
	JSONData string `json:"json_data"`
}

func (s *Server) handleCacheSet(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	var req cacheSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ttl := settings.DefaultTTL
	if s.Settings != nil {
		defaultBlobTTL := s.Settings.GetDuration(r.Context(), settings.KeyDefaultBlobTTL, settings.DefaultTTL)
		ttl = s.Settings.CommandTTL(r.Context(), req.Command, defaultBlobTTL)
	}
	if err := s.Blobs.Set(r.Context(), deviceID, req.Command, req.JSONData, false, time.Now(), ttl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"device_id": deviceID, "command": req.Command, "status": "ok"})
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	command := r.URL.Query().Get("command")

	if command != "" {
		if err := s.Blobs.Invalidate(r.Context(), deviceID, command); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"device_id": deviceID, "command": command, "status": "deleted"})
		return
	}

	commands, err := s.Blobs.ListCommands(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, c := range commands {
		if err := s.Blobs.Invalidate(r.Context(), deviceID, c); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"device_id": deviceID, "deleted": len(commands)})
}

func (s *Server) handleCacheStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Blobs.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
