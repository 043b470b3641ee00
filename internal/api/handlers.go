package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/geometry"
	"github.com/sells-group/locametry/pkg/geocode"
)

// retryAfterSecs is sent with 503 responses for transient upstream failures.
const retryAfterSecs = "30"

type reverseResponse struct {
	*geocode.ReverseResult
	Measurement *geometry.Result `json:"measurement,omitempty"`
}

type searchCandidate struct {
	geocode.SearchResult
	Measurement *geometry.Result `json:"measurement,omitempty"`
}

type measureRequest struct {
	Mode   string           `json:"mode"`
	Points []geometry.Point `json:"points"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	lat, latErr := parseFloatParam(r, "lat")
	lng, lngErr := parseFloatParam(r, "lng")
	if latErr != nil || lngErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lng query parameters are required numbers")
		return
	}

	res, err := h.geocoder.Reverse(r.Context(), lat, lng)
	if err != nil {
		h.geocodeError(w, "reverse", err)
		return
	}

	writeJSON(w, http.StatusOK, reverseResponse{
		ReverseResult: res,
		Measurement:   measureBoundary(res.Boundary),
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	results, err := h.geocoder.Search(r.Context(), q)
	if err != nil {
		h.geocodeError(w, "search", err)
		return
	}

	out := make([]searchCandidate, 0, len(results))
	for _, res := range results {
		out = append(out, searchCandidate{
			SearchResult: res,
			Measurement:  measureBoundary(res.Boundary),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) measure(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mode, err := geometry.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := geometry.Measure(req.Points, mode)
	switch {
	case errors.Is(err, geometry.ErrTooFewPoints):
		writeError(w, http.StatusBadRequest, "not enough points for "+string(mode))
	case errors.Is(err, geometry.ErrMalformedRing):
		writeError(w, http.StatusUnprocessableEntity, "points do not form a measurable shape")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) geocodeError(w http.ResponseWriter, op string, err error) {
	var extErr *geocode.ExternalServiceError
	switch {
	case errors.Is(err, geocode.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "q query parameter is required")
	case errors.Is(err, geocode.ErrNotFound):
		writeError(w, http.StatusNotFound, "no address found")
	case errors.As(err, &extErr) && extErr.Transient():
		zap.L().Warn("api: geocoding service temporarily unavailable", zap.String("op", op), zap.Error(err))
		w.Header().Set("Retry-After", retryAfterSecs)
		writeError(w, http.StatusServiceUnavailable, "geocoding service temporarily unavailable")
	case errors.As(err, &extErr):
		zap.L().Warn("api: geocoding service failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusBadGateway, "geocoding service failed")
	default:
		zap.L().Error("api: geocode failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(name)), 64)
}

// measureBoundary returns a POLY measurement of a boundary with more than
// two points, or nil.
func measureBoundary(raw json.RawMessage) *geometry.Result {
	res, err := geometry.MeasureBoundary(raw)
	if err != nil {
		zap.L().Debug("api: boundary not measurable", zap.Error(err))
		return nil
	}
	return res
}
