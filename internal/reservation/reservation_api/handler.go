package reservation_api

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

type ReservationService interface {
	Reserve(ctx context.Context, identity models.Identity, concertID string, quantity int, idempotencyKey string) (*models.ReservationResult, error)
	Cancel(ctx context.Context, identity models.Identity, reservationNumber string) (*models.Reservation, error)
	ListForUser(ctx context.Context, identity models.Identity) ([]models.ReservationListing, error)
	ListForOrganizer(ctx context.Context, identity models.Identity) ([]models.OrganizerConcert, error)
	GetPass(ctx context.Context, identity models.Identity, reservationNumber string) ([]byte, error)
}

type Handler struct {
	Service ReservationService
	Logger  *logger.Logger
}

func NewHandler(service ReservationService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, models.ErrUnauthenticated)
	}
	return identity, ok
}

// ReserveTickets handles POST /api/reserveTickets.
func (h *Handler) ReserveTickets(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("ReserveTickets: failed to decode request body: %v", err))
		utils.WriteError(w, fmt.Errorf("%w: invalid request body", models.ErrInvalidRequest))
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("ReserveTickets: user=%s concert=%s qty=%d", identity.ID, req.ConcertID, req.NumTickets))

	result, err := h.Service.Reserve(r.Context(), identity, req.ConcertID, req.NumTickets, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("ReserveTickets: %v", err))
		utils.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	utils.WriteSuccess(w, status, "Tickets reserved", result)
}

// CancelReservation handles DELETE /api/reserveTickets/{id}.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "id")

	cancelled, err := h.Service.Cancel(r.Context(), identity, number)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CancelReservation: %s: %v", number, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Reservation cancelled", cancelled)
}

// GetPass handles GET /api/reserveTickets/{id}/pass.
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "id")

	png, err := h.Service.GetPass(r.Context(), identity, number)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".png"))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// UserTickets handles GET /api/user/tickets.
func (h *Handler) UserTickets(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	list, err := h.Service.ListForUser(r.Context(), identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UserTickets: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Reservations retrieved", list)
}

// YourConcerts handles GET /api/YourConcerts.
func (h *Handler) YourConcerts(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	list, err := h.Service.ListForOrganizer(r.Context(), identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Concerts retrieved", list)
}
