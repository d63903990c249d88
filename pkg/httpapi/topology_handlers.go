package httpapi

import (
	"net/http"
	"strings"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/topology"
)

type topologyBuildRequest struct {
	DeviceIDs       []string `json:"device_ids"`
	IncludeCDP      bool     `json:"include_cdp"`
	IncludeRouting  bool     `json:"include_routing"`
	RouteTypes      []string `json:"route_types"`
	IncludeLayer2   bool     `json:"include_layer2"`
	AutoLayout      bool     `json:"auto_layout"`
	LayoutAlgorithm string   `json:"layout_algorithm"`
}

func (s *Server) handleTopologyBuild(w http.ResponseWriter, r *http.Request) {
	var req topologyBuildRequest
	if r.Method == http.MethodPost {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	} else {
		q := r.URL.Query()
		req.IncludeCDP = q.Get("include_cdp") == "true"
		req.IncludeRouting = q.Get("include_routing") == "true"
		req.IncludeLayer2 = q.Get("include_layer2") == "true"
		req.AutoLayout = q.Get("auto_layout") == "true"
		req.LayoutAlgorithm = q.Get("layout_algorithm")
		if rt := q.Get("route_types"); rt != "" {
			req.RouteTypes = strings.Split(rt, ",")
		}
		if ids := q.Get("device_ids"); ids != "" {
			req.DeviceIDs = strings.Split(ids, ",")
		}
	}

	routeTypes := make([]model.RouteKind, 0, len(req.RouteTypes))
	for _, rt := range req.RouteTypes {
		routeTypes = append(routeTypes, model.RouteKind(rt))
	}

	graph, err := topology.Build(r.Context(), s.TopologyDB, req.DeviceIDs, topology.Sources{
		IncludeCDP:     req.IncludeCDP,
		IncludeRouting: req.IncludeRouting,
		RouteTypes:     routeTypes,
		IncludeLayer2:  req.IncludeLayer2,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if req.AutoLayout {
		algo := topology.LayoutAlgorithm(req.LayoutAlgorithm)
		if algo == "" {
			algo = topology.LayoutForceDirected
		}
		topology.ApplyLayout(graph, algo)
	}

	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleTopologyStatistics(w http.ResponseWriter, r *http.Request) {
	graph, err := topology.Build(r.Context(), s.TopologyDB, nil, topology.Sources{
		IncludeCDP: true, IncludeRouting: true, IncludeLayer2: true,
		RouteTypes: []model.RouteKind{model.RouteStatic, model.RouteOSPF, model.RouteBGP},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topology.Stats(graph))
}

type resolveNeighborRequest struct {
	NeighborName string `json:"neighbor_name"`
	NeighborIP   string `json:"neighbor_ip"`
}

type resolveNeighborResponse struct {
	DeviceID   string              `json:"device_id,omitempty"`
	Confidence topology.Confidence `json:"confidence,omitempty"`
}

func (s *Server) handleResolveNeighbor(w http.ResponseWriter, r *http.Request) {
	var req resolveNeighborRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	deviceID, confidence, found, err := topology.ResolveNeighbor(r.Context(), s.TopologyDB, req.NeighborName, req.NeighborIP)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, resolveNeighborResponse{})
		return
	}
	writeJSON(w, http.StatusOK, resolveNeighborResponse{DeviceID: deviceID, Confidence: confidence})
}
