// Package server exposes the dashboard as a JSON API so a browser map can
// drive it: draw and capture the box, pick a collection and granule, and
// fetch the tile layer to display.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/maptile"

	"github.com/example/go-maap/internal/dashboard"
	internalhttp "github.com/example/go-maap/internal/http"
	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

// Server routes API requests to one dashboard and its map.
type Server struct {
	dash    *dashboard.Dashboard
	view    *mapview.MapView
	logger  *slog.Logger
	metrics *Metrics
	router  *mux.Router
}

func New(dash *dashboard.Dashboard, view *mapview.MapView, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dash:    dash,
		view:    view,
		logger:  logger,
		metrics: NewMetrics(),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.metrics.Middleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/geometry", s.handleDraw).Methods(http.MethodPost)
	api.HandleFunc("/geometry", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/geometry/capture", s.handleCapture).Methods(http.MethodPost)
	api.HandleFunc("/collection", s.handleSelectCollection).Methods(http.MethodPost)
	api.HandleFunc("/granules/search", s.handleSearchGranules).Methods(http.MethodPost)
	api.HandleFunc("/granule", s.handleSelectGranule).Methods(http.MethodPost)
	api.HandleFunc("/layers", s.handleListLayers).Methods(http.MethodGet)
	api.HandleFunc("/layers", s.handleAddLayer).Methods(http.MethodPost)
	api.HandleFunc("/layers/{id:[0-9]+}", s.handleRemoveLayer).Methods(http.MethodDelete)
	api.HandleFunc("/layers/{id:[0-9]+}/tiles", s.handleLayerTiles).Methods(http.MethodGet)
	api.HandleFunc("/overlay", s.handleOverlay).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs hs with this server as handler until ctx is done, then
// shuts it down.
func (s *Server) ListenAndServe(ctx context.Context, hs *http.Server) error {
	hs.Handler = s
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", hs.Addr)
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		if err := hs.Shutdown(context.Background()); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Snapshot())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dash.Load(r.Context())
	if err != nil {
		s.writeError(w, "reload", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type geometryRequest struct {
	// BBox is minLon,minLat,maxLon,maxLat; Box is used when it is empty.
	BBox string           `json:"bbox"`
	Box  *cmr.BoundingBox `json:"box"`
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req geometryRequest
	if err := internalhttp.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var box cmr.BoundingBox
	switch {
	case req.BBox != "":
		parsed, err := cmr.ParseBoundingBox(req.BBox)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		box = parsed
	case req.Box != nil:
		box = *req.Box
	default:
		writeBadRequest(w, "bbox or box is required")
		return
	}
	s.view.Draw(box)
	writeJSON(w, http.StatusOK, s.view.Overlay())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.view.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.UpdateGeometry())
}

type collectionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSelectCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := internalhttp.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	snap, err := s.dash.SelectCollection(req.Name)
	if err != nil {
		s.writeError(w, "select collection", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSearchGranules(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dash.SearchGranules(r.Context())
	if err != nil {
		s.writeError(w, "search granules", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type granuleRequest struct {
	Ref string `json:"ref"`
}

func (s *Server) handleSelectGranule(w http.ResponseWriter, r *http.Request) {
	var req granuleRequest
	if err := internalhttp.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	snap, err := s.dash.SelectGranule(req.Ref)
	if err != nil {
		s.writeError(w, "select granule", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Layers())
}

func (s *Server) handleAddLayer(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dash.AddLayer()
	if err != nil {
		s.writeError(w, "add layer", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	id, ok := layerID(w, r)
	if !ok {
		return
	}
	if !s.view.RemoveLayer(id) {
		writeErrorBody(w, http.StatusNotFound, "not_found", "layer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tilesResponse struct {
	Layer mapview.LayerHandle `json:"layer"`
	Zoom  int                 `json:"zoom"`
	URLs  []string            `json:"urls"`
}

// handleLayerTiles lists concrete tile URLs of a layer covering the captured
// box at the zoom given by the z query parameter.
func (s *Server) handleLayerTiles(w http.ResponseWriter, r *http.Request) {
	id, ok := layerID(w, r)
	if !ok {
		return
	}
	zoom, err := strconv.Atoi(r.URL.Query().Get("z"))
	if err != nil || zoom < 0 || zoom > mapview.MaxZoom {
		writeBadRequest(w, fmt.Sprintf("z must be an integer between 0 and %d", mapview.MaxZoom))
		return
	}
	var layer *mapview.LayerHandle
	for _, l := range s.view.Layers() {
		if l.ID == id {
			layer = &l
			break
		}
	}
	if layer == nil {
		writeErrorBody(w, http.StatusNotFound, "not_found", "layer not found")
		return
	}
	tiles, err := mapview.TilesCovering(s.dash.Snapshot().Box, maptile.Zoom(zoom))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	resp := tilesResponse{Layer: *layer, Zoom: zoom, URLs: make([]string, 0, len(tiles))}
	for _, tile := range tiles {
		resp.URLs = append(resp.URLs, mapview.TileURL(layer.URLTemplate, tile))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	data, err := s.view.Overlay().MarshalJSON()
	if err != nil {
		writeErrorBody(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Write(data)
}

func layerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeBadRequest(w, "invalid layer id")
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError reports a failed action in place. The dashboard stays usable.
func (s *Server) writeError(w http.ResponseWriter, action string, err error) {
	status, kind := classify(err)
	s.metrics.actionErrors.WithLabelValues(kind).Inc()
	s.logger.Warn("dashboard action failed", "action", action, "kind", kind, "error", err)
	writeErrorBody(w, status, kind, err.Error())
}

func classify(err error) (int, string) {
	var (
		pre          *dashboard.PreconditionError
		respErr      *cmr.ResponseError
		transportErr *cmr.TransportError
		parseErr     *cmr.ParseError
	)
	switch {
	case errors.As(err, &pre):
		return http.StatusConflict, "precondition"
	case errors.Is(err, dashboard.ErrStale):
		return http.StatusConflict, "stale"
	case errors.As(err, &respErr):
		return http.StatusBadGateway, "response"
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, "parse"
	case errors.As(err, &transportErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "transport"
		}
		return http.StatusBadGateway, "transport"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeErrorBody(w, http.StatusBadRequest, "bad_request", msg)
}

func writeErrorBody(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}
