package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/adapter/auth"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/usecase"
	"github.com/fleetwatch/fleetwatch/pkg/apperror"
	"github.com/gorilla/mux"
)

// AssetService is the use case surface served for one asset kind
type AssetService interface {
	Kind() domain.AssetKind
	Create(ctx context.Context, actor string, fields domain.Snapshot) (*usecase.AssetView, error)
	Get(ctx context.Context, id string) (*usecase.AssetView, error)
	List(ctx context.Context, filter domain.AssetFilter) (*usecase.ListResult, error)
	Update(ctx context.Context, id, actor string, patch domain.Snapshot) (*usecase.AssetView, error)
	Verify(ctx context.Context, id, actor string) (*usecase.AssetView, error)
	Delete(ctx context.Context, id, actor string) error
	History(ctx context.Context, id string) ([]usecase.HistoryEntry, error)
	Overview(ctx context.Context) (*usecase.Overview, error)
}

// AssetHandler serves the REST resource for one asset kind
type AssetHandler struct {
	service  AssetService
	resource string
	noun     string
}

// NewAssetHandler creates a handler mounted at /api/v1/<plural kind>
func NewAssetHandler(service AssetService) *AssetHandler {
	kind := service.Kind()
	name := string(kind)
	return &AssetHandler{
		service:  service,
		resource: kind.Plural(),
		noun:     strings.ToUpper(name[:1]) + name[1:],
	}
}

// RegisterRoutes registers the asset routes
func (h *AssetHandler) RegisterRoutes(router *mux.Router) {
	base := "/api/v1/" + h.resource
	router.HandleFunc(base, h.Create).Methods("POST")
	router.HandleFunc(base, h.List).Methods("GET")
	router.HandleFunc(base+"/overview", h.Overview).Methods("GET")
	router.HandleFunc(base+"/{id}", h.Get).Methods("GET")
	router.HandleFunc(base+"/{id}", h.Update).Methods("PATCH")
	router.HandleFunc(base+"/{id}", h.Delete).Methods("DELETE")
	router.HandleFunc(base+"/{id}/verify", h.Verify).Methods("POST")
	router.HandleFunc(base+"/{id}/history", h.History).Methods("GET")
}

// Create handles asset creation; the body is an object of field values
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	view, err := h.service.Create(r.Context(), auth.ActorFrom(r.Context()), fields)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, h.noun+" created successfully", view)
}

// List handles asset listing with filters
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAssetFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+"s retrieved successfully", result)
}

// Get handles retrieving a single asset
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+" retrieved successfully", view)
}

// Update handles a partial field update
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodeFields(w, r)
	if !ok {
		return
	}

	view, err := h.service.Update(r.Context(), mux.Vars(r)["id"], auth.ActorFrom(r.Context()), patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+" updated successfully", view)
}

// Verify handles the explicit verification action
func (h *AssetHandler) Verify(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Verify(r.Context(), mux.Vars(r)["id"], auth.ActorFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+" verified successfully", view)
}

// Delete handles asset deletion
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"], auth.ActorFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+" deleted successfully", nil)
}

// History handles the rendered change log
func (h *AssetHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []usecase.HistoryEntry{}
	}

	writeSuccess(w, http.StatusOK, "History retrieved successfully", entries)
}

// Overview handles verification and status counts
func (h *AssetHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.noun+" overview retrieved successfully", overview)
}

func decodeFields(w http.ResponseWriter, r *http.Request) (domain.Snapshot, bool) {
	var fields domain.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		writeErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return nil, false
	}
	return fields, true
}

func parseAssetFilter(r *http.Request) (domain.AssetFilter, error) {
	q := r.URL.Query()
	var filter domain.AssetFilter

	if status := strings.TrimSpace(q.Get("status")); status != "" {
		filter.Status = &status
	}
	if plant := strings.TrimSpace(q.Get("plant")); plant != "" {
		filter.AssignedPlant = &plant
	}
	if raw := q.Get("verified"); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperror.NewBadRequest(fmt.Sprintf("invalid verified value %q", raw))
		}
		filter.Verified = &verified
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, apperror.NewBadRequest(fmt.Sprintf("invalid limit %q", raw))
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperror.NewBadRequest(fmt.Sprintf("invalid offset %q", raw))
		}
		filter.Offset = offset
	}

	return filter, nil
}
