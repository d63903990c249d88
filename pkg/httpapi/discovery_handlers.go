package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/parser"
)

type discoverRequest struct {
	DeviceIDs      []string `json:"device_ids"`
	IncludeCDP     bool     `json:"include_cdp"`
	IncludeRouting bool     `json:"include_routing"`
	IncludeLayer2  bool     `json:"include_layer2"`
	Endpoints      []string `json:"endpoints"`
	CacheResults   *bool    `json:"cache_results"`
}

// forceRefresh reports whether the request opted out of the blob cache.
// CacheResults defaults to true (use the cache) when omitted, matching
// opts.use_cache's default for every known command.
func (req discoverRequest) forceRefresh() bool {
	return req.CacheResults != nil && !*req.CacheResults
}

// endpoints resolves the requested command set: an explicit Endpoints list
// wins outright, otherwise interfaces and ip-arp are always run and the
// include_* flags add the optional categories on top, matching the same
// category names /topology/build accepts.
func (req discoverRequest) endpoints() []string {
	if len(req.Endpoints) > 0 {
		return req.Endpoints
	}
	out := []string{parser.EndpointInterfaces, parser.EndpointIPArp}
	if req.IncludeCDP {
		out = append(out, parser.EndpointCDPNeighbors)
	}
	if req.IncludeLayer2 {
		out = append(out, parser.EndpointMACAddressTable)
	}
	if req.IncludeRouting {
		out = append(out, parser.EndpointRouteStatic, parser.EndpointRouteOSPF, parser.EndpointRouteBGP)
	}
	return out
}

func (s *Server) handleDiscoverSync(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.Runner.Discover(r.Context(), req.DeviceIDs, req.endpoints(), callerUsername(r), req.forceRefresh())
	if err != nil {
		if err == discovery.ErrTooManyDevices {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiscoverAsync always runs the full command order: the durable
// worker path has no per-job endpoint selection (the broker job record
// carries only device ids), so include_cdp/include_routing/include_layer2
// and cache_results apply to /discover-sync only.
func (s *Server) handleDiscoverAsync(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	jobID, err := s.Orchestrator.Dispatch(r.Context(), req.DeviceIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.DiscoveryJobsStarted.Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleDiscoverProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	progress, err := s.Orchestrator.Progress(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleDiscoverCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.Orchestrator.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelled"})
}
