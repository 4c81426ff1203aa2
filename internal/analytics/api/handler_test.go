package analytics_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stagepass/internal/analytics"
	"stagepass/internal/auth"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) OrganizerSummary(ctx context.Context, identity models.Identity) (*analytics.OrganizerSummary, error) {
	args := m.Called(identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.OrganizerSummary), args.Error(1)
}

func serve(h *Handler, identity models.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/YourConcerts/analytics", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	h.OrganizerSummary(rec, req)
	return rec
}

func TestOrganizerSummary_OK(t *testing.T) {
	svc := new(MockService)
	who := models.Identity{ID: "o", Username: "promoter", Organizer: true}
	svc.On("OrganizerSummary", who).Return(&analytics.OrganizerSummary{Organizer: "promoter", TotalReserved: 4}, nil)

	rec := serve(NewHandler(svc, logger.Nop()), who)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(4), body.Data.(map[string]interface{})["totalReserved"])
}

func TestOrganizerSummary_Forbidden(t *testing.T) {
	svc := new(MockService)
	who := models.Identity{ID: "fan", Username: "fan"}
	svc.On("OrganizerSummary", who).Return(nil, models.ErrForbidden)

	rec := serve(NewHandler(svc, logger.Nop()), who)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
