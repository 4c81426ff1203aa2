package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"stagepass/internal/analytics"
	"stagepass/internal/auth"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type SummaryService interface {
	OrganizerSummary(ctx context.Context, identity models.Identity) (*analytics.OrganizerSummary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service SummaryService
	Logger  *logger.Logger
}

func NewHandler(service SummaryService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// OrganizerSummary handles GET /api/YourConcerts/analytics.
func (h *Handler) OrganizerSummary(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	summary, err := h.Service.OrganizerSummary(r.Context(), identity)
	if err != nil {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("OrganizerSummary for %s: %v", identity.Username, err))
		utils.WriteError(w, err)
		return
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("OrganizerSummary for %s: %d concerts", identity.Username, len(summary.Concerts)))
	utils.WriteSuccess(w, http.StatusOK, "Analytics retrieved", summary)
}
