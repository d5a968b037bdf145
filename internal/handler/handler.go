package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"epinet/internal/codec"
	"epinet/internal/config"
	"epinet/internal/domain"
	"epinet/internal/loader"
	"epinet/internal/service"
	"epinet/internal/simulation"
)

// maxScenarioBytes caps the body of a reset request
const maxScenarioBytes = 1 << 20

// SimulationHandler handles simulation API requests
type SimulationHandler struct {
	svc      *service.SimulationService
	features config.FeaturesConfig
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(svc *service.SimulationService, features config.FeaturesConfig) *SimulationHandler {
	return &SimulationHandler{svc: svc, features: features}
}

// Register adds the API routes to mux
func (h *SimulationHandler) Register(mux *http.ServeMux) {
	// Run control
	mux.HandleFunc("GET /api/snapshot", h.GetSnapshot)
	mux.HandleFunc("POST /api/step", h.Step)
	mux.HandleFunc("POST /api/reset", h.Reset)
	mux.HandleFunc("POST /api/pause", h.Pause)
	mux.HandleFunc("POST /api/resume", h.Resume)
	mux.HandleFunc("GET /api/run", h.GetRun)
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("GET /api/features", h.GetFeatures)

	// Cities and links
	mux.HandleFunc("GET /api/cities", h.ListCities)
	mux.HandleFunc("GET /api/cities/{id}", h.GetCity)
	mux.HandleFunc("GET /api/cities/{id}/neighbors", h.GetNeighbors)
	mux.HandleFunc("GET /api/cities/{id}/reachable", h.GetReachable)
	mux.HandleFunc("GET /api/cities/{id}/history", h.GetHistory)
	mux.HandleFunc("PUT /api/edges/{from}/{to}", h.UpdateEdge)

	if h.features.Export.Enabled {
		mux.HandleFunc("GET /api/export/{format}", h.Export)
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StepResponse is returned after a manual step
type StepResponse struct {
	Run      service.RunInfo      `json:"run"`
	Snapshot *simulation.Snapshot `json:"snapshot"`
}

// EdgeUpdateRequest is the body of PUT /api/edges/{from}/{to}
type EdgeUpdateRequest struct {
	Fraction *float64 `json:"fraction"`
}

// CityResponse is a city with its derived reproduction number
type CityResponse struct {
	simulation.CityState
	Population                  float64 `json:"population"`
	EffectiveReproductionNumber float64 `json:"effective_reproduction_number"`
}

// GetSnapshot returns the current state of the simulation
// GET /api/snapshot
func (h *SimulationHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Snapshot(), http.StatusOK)
}

// Step advances the simulation
// POST /api/step?n=10
func (h *SimulationHandler) Step(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, "Invalid step count", err.Error(), http.StatusBadRequest)
			return
		}
		n = parsed
	}

	snapshot, err := h.svc.Step(r.Context(), n)
	if err != nil {
		h.writeServiceError(w, "Failed to step", err)
		return
	}

	h.writeJSON(w, StepResponse{Run: h.svc.Info(), Snapshot: snapshot}, http.StatusOK)
}

// Reset starts a new run. An empty body restarts the current scenario; a
// YAML or JSON scenario document replaces it.
// POST /api/reset
func (h *SimulationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBytes))
	if err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	var scenario *config.Scenario
	if len(bytes.TrimSpace(body)) > 0 {
		scenario, err = loader.ParseYAML(body)
		if err != nil {
			h.writeError(w, "Invalid scenario", err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.svc.Reset(r.Context(), scenario); err != nil {
		h.writeServiceError(w, "Failed to reset", err)
		return
	}

	h.writeJSON(w, h.svc.Info(), http.StatusOK)
}

// Pause stops the auto-run loop
// POST /api/pause
func (h *SimulationHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.svc.Pause()
	h.writeJSON(w, h.svc.Info(), http.StatusOK)
}

// Resume restarts the auto-run loop
// POST /api/resume
func (h *SimulationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.svc.Resume()
	h.writeJSON(w, h.svc.Info(), http.StatusOK)
}

// GetRun describes the current run
// GET /api/run
func (h *SimulationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Info(), http.StatusOK)
}

// ListRuns returns the recorded runs
// GET /api/runs
func (h *SimulationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list runs", err)
		return
	}
	h.writeJSON(w, runs, http.StatusOK)
}

// GetFeatures lists the optional server features and whether they are on
// GET /api/features
func (h *SimulationHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.features.ListFeatures(), http.StatusOK)
}

// ListCities returns every city
// GET /api/cities
func (h *SimulationHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	snapshot := h.svc.Snapshot()
	cities := make([]CityResponse, 0, len(snapshot.Cities))
	for _, c := range snapshot.Cities {
		cities = append(cities, cityResponse(c, snapshot.Parameters))
	}
	h.writeJSON(w, cities, http.StatusOK)
}

// GetCity returns a single city
// GET /api/cities/{id}
func (h *SimulationHandler) GetCity(w http.ResponseWriter, r *http.Request) {
	city, err := h.svc.City(domain.CityID(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get city", err)
		return
	}
	h.writeJSON(w, cityResponse(city, h.svc.Snapshot().Parameters), http.StatusOK)
}

func cityResponse(c simulation.CityState, params domain.DiseaseParameters) CityResponse {
	return CityResponse{
		CityState:                   c,
		Population:                  c.Population(),
		EffectiveReproductionNumber: params.EffectiveReproductionNumber(c.Compartments),
	}
}

// GetNeighbors returns the outgoing links of a city with their batches
// GET /api/cities/{id}/neighbors
func (h *SimulationHandler) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	edges, err := h.svc.Neighbors(domain.CityID(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get neighbors", err)
		return
	}
	h.writeJSON(w, edges, http.StatusOK)
}

// GetReachable lists the cities reachable from a city
// GET /api/cities/{id}/reachable
func (h *SimulationHandler) GetReachable(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Reachable(domain.CityID(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get reachable cities", err)
		return
	}
	h.writeJSON(w, ids, http.StatusOK)
}

// GetHistory returns the recorded states of a city in the current run
// GET /api/cities/{id}/history?limit=100
func (h *SimulationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	points, err := h.svc.History(r.Context(), domain.CityID(r.PathValue("id")), limit)
	if err != nil {
		h.writeServiceError(w, "Failed to get history", err)
		return
	}
	h.writeJSON(w, points, http.StatusOK)
}

// UpdateEdge changes the movement fraction of one directed link
// PUT /api/edges/{from}/{to}
func (h *SimulationHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var req EdgeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Fraction == nil {
		h.writeError(w, "Invalid request body", "fraction is required", http.StatusBadRequest)
		return
	}

	from := domain.CityID(r.PathValue("from"))
	to := domain.CityID(r.PathValue("to"))
	if err := h.svc.SetMovementFraction(from, to, *req.Fraction); err != nil {
		h.writeServiceError(w, "Failed to update edge", err)
		return
	}

	edges, err := h.svc.Neighbors(from)
	if err != nil {
		h.writeServiceError(w, "Failed to get neighbors", err)
		return
	}
	h.writeJSON(w, edges, http.StatusOK)
}

// Export writes the current snapshot in the requested format
// GET /api/export/{format}
func (h *SimulationHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	exporter, ok := codec.ExporterFor(format)
	if !ok {
		h.writeServiceError(w, "Failed to export", service.ErrUnknownFormat)
		return
	}

	// Buffer so that a failed export can still be reported as JSON
	var buf bytes.Buffer
	if err := h.svc.Export(format, &buf); err != nil {
		h.writeServiceError(w, "Failed to export", err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=snapshot."+format)
	w.Write(buf.Bytes())
}

// Helper methods

func (h *SimulationHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *SimulationHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

// writeServiceError maps service and domain errors to status codes
func (h *SimulationHandler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", message, err)
	}
	h.writeError(w, message, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, simulation.ErrInvalidTimeStep),
		errors.Is(err, service.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRunComplete):
		return http.StatusConflict
	case errors.Is(err, service.ErrPersistenceDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
