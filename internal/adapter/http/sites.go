package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/site-registry/internal/domain"
)

const maxBodyBytes = 1 << 20

// SiteService is the registry surface exposed over HTTP.
type SiteService interface {
	Create(ctx context.Context, tenant string, sub domain.Submission) (domain.Site, error)
	Refresh(ctx context.Context, tenant, id string) (domain.Site, error)
	FindAirqloudsFor(ctx context.Context, tenant, id string) ([]string, error)
	FindNearestWeatherStation(ctx context.Context, tenant, id string) (domain.WeatherStation, error)
	FindNearbySites(ctx context.Context, tenant string, c domain.Coordinate, radiusKm float64) ([]domain.NearbySite, error)
}

type siteHandlers struct {
	svc    SiteService
	logger *slog.Logger
}

func (h *siteHandlers) create(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		writeError(w, h.logger, &domain.InvalidInputError{Field: "body", Reason: err.Error()})
		return
	}
	site, err := h.svc.Create(r.Context(), r.PathValue("tenant"), sub)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (h *siteHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	site, err := h.svc.Refresh(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *siteHandlers) airqlouds(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.FindAirqloudsFor(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"airqlouds": ids})
}

func (h *siteHandlers) weatherStation(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.FindNearestWeatherStation(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *siteHandlers) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := parseFloatParam(q.Get("lat"), "lat")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lng, err := parseFloatParam(q.Get("lng"), "lng")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	radius, err := parseFloatParam(q.Get("radius"), "radius")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sites, err := h.svc.FindNearbySites(r.Context(), r.PathValue("tenant"), domain.Coordinate{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func parseFloatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, &domain.InvalidInputError{Field: name, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.InvalidInputError{Field: name, Reason: fmt.Sprintf("not a number: %q", raw)}
	}
	return v, nil
}
