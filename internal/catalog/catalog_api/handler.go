package catalog_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stagepass/internal/auth"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type CatalogService interface {
	ListConcerts(ctx context.Context, filter models.ConcertFilter) ([]models.Concert, error)
	GetConcert(ctx context.Context, id string) (*models.Concert, error)
	ListConcertsByVenue(ctx context.Context, venueID string) ([]models.Concert, error)
	ListVenues(ctx context.Context) ([]models.Venue, error)
	CreateVenue(ctx context.Context, identity models.Identity, req models.VenueRequest) (*models.Venue, error)
	CreateConcert(ctx context.Context, identity models.Identity, req models.ConcertRequest) (*models.Concert, error)
	UpdateConcert(ctx context.Context, identity models.Identity, id string, req models.ConcertRequest) (*models.Concert, error)
	DeleteConcert(ctx context.Context, identity models.Identity, id string) error
}

type Handler struct {
	Service CatalogService
	Logger  *logger.Logger
}

func NewHandler(service CatalogService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// AllConcerts handles GET /api/AllConcerts?genre=&venue=.
func (h *Handler) AllConcerts(w http.ResponseWriter, r *http.Request) {
	filter := models.ConcertFilter{
		Genre:   r.URL.Query().Get("genre"),
		VenueID: r.URL.Query().Get("venue"),
	}
	concerts, err := h.Service.ListConcerts(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AllConcerts: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concerts retrieved", concerts)
}

func (h *Handler) ConcertDetails(w http.ResponseWriter, r *http.Request) {
	concert, err := h.Service.GetConcert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concert retrieved", concert)
}

func (h *Handler) ConcertsByVenue(w http.ResponseWriter, r *http.Request) {
	concerts, err := h.Service.ListConcertsByVenue(r.Context(), chi.URLParam(r, "venueId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concerts retrieved", concerts)
}

func (h *Handler) Venues(w http.ResponseWriter, r *http.Request) {
	venues, err := h.Service.ListVenues(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Venues retrieved", venues)
}

func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req models.VenueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, fmt.Errorf("%w: invalid request body", models.ErrInvalidRequest))
		return
	}
	venue, err := h.Service.CreateVenue(r.Context(), identity, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Venue created", venue)
}

// NewConcert handles POST /api/NewConcert.
func (h *Handler) NewConcert(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req models.ConcertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("NewConcert: failed to decode request body: %v", err))
		utils.WriteError(w, fmt.Errorf("%w: invalid request body", models.ErrInvalidRequest))
		return
	}
	concert, err := h.Service.CreateConcert(r.Context(), identity, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Concert created", concert)
}

func (h *Handler) UpdateConcert(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req models.ConcertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, fmt.Errorf("%w: invalid request body", models.ErrInvalidRequest))
		return
	}
	concert, err := h.Service.UpdateConcert(r.Context(), identity, id, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateConcert: %s: %v", id, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concert updated", concert)
}

func (h *Handler) DeleteConcert(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.Service.DeleteConcert(r.Context(), identity, id); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("DeleteConcert: %s: %v", id, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concert deleted", nil)
}
