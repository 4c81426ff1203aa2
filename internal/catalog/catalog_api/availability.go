package catalog_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/sse"
	"stagepass/internal/utils"
)

// AvailabilityHandler streams ticket inventory changes for one concert.
type AvailabilityHandler struct {
	Service CatalogService
	Emitter *sse.AvailabilityEmitter
	Logger  *logger.Logger
}

func NewAvailabilityHandler(service CatalogService, emitter *sse.AvailabilityEmitter, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{Service: service, Emitter: emitter, Logger: log}
}

// Stream handles GET /api/ConcertDetails/{id}/availability. The first
// event carries the current count; later updates older than what the client
// has already seen are skipped.
func (h *AvailabilityHandler) Stream(w http.ResponseWriter, r *http.Request) {
	concertID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("streaming unsupported", "STORAGE_FAILURE"))
		return
	}

	// Subscribe before reading the count so no change falls in between.
	ctx := r.Context()
	updates := h.Emitter.Subscribe(ctx, concertID)

	concert, err := h.Service.GetConcert(ctx, concertID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	// The server write timeout would otherwise end the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	seen := concert.InventoryVersion
	h.write(w, "connected", models.AvailabilityUpdate{
		ConcertID: concertID,
		NumAvail:  concert.Tickets.NumAvail,
		SoldOut:   concert.Tickets.NumAvail == 0,
		Version:   seen,
	})
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to availability for concert: %s (%d watching)",
		concertID, h.Emitter.ClientCount(concertID)))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Version <= seen {
				continue
			}
			seen = update.Version
			h.write(w, "availability", update)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from availability for concert: %s", concertID))
			return
		}
	}
}

func (h *AvailabilityHandler) write(w http.ResponseWriter, event string, update models.AvailabilityUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize availability update: %v", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
