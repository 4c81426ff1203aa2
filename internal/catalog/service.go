package catalog

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"stagepass/internal/kafka"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/utils"
)

type DBLayer interface {
	CreateVenue(ctx context.Context, v *models.Venue) error
	ListVenues(ctx context.Context) ([]models.Venue, error)
	VenueExists(ctx context.Context, id string) (bool, error)
	CreateConcert(ctx context.Context, c *models.Concert) error
	ListConcerts(ctx context.Context, filter models.ConcertFilter) ([]models.Concert, error)
	GetConcert(ctx context.Context, id string) (*models.Concert, error)
	UpdateConcert(ctx context.Context, username string, in *models.Concert) (*models.Concert, error)
	DeleteConcert(ctx context.Context, username, id string) (int, error)
}

type CatalogService struct {
	DB     DBLayer
	Kafka  kafka.Publisher
	Topic  string
	Logger *logger.Logger
}

func NewCatalogService(store DBLayer, publisher kafka.Publisher, topic string, log *logger.Logger) *CatalogService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &CatalogService{DB: store, Kafka: publisher, Topic: topic, Logger: log}
}

func requireOrganizer(identity models.Identity) error {
	if identity.ID == "" {
		return fmt.Errorf("%w: no caller identity", models.ErrUnauthenticated)
	}
	if !identity.Organizer {
		return fmt.Errorf("%w: organizer account required", models.ErrForbidden)
	}
	return nil
}

func (s *CatalogService) ListConcerts(ctx context.Context, filter models.ConcertFilter) ([]models.Concert, error) {
	return s.DB.ListConcerts(ctx, filter)
}

func (s *CatalogService) GetConcert(ctx context.Context, id string) (*models.Concert, error) {
	return s.DB.GetConcert(ctx, id)
}

func (s *CatalogService) ListConcertsByVenue(ctx context.Context, venueID string) ([]models.Concert, error) {
	if venueID == "" {
		return nil, fmt.Errorf("%w: venue id is required", models.ErrInvalidRequest)
	}
	return s.DB.ListConcerts(ctx, models.ConcertFilter{VenueID: venueID})
}

func (s *CatalogService) ListVenues(ctx context.Context) ([]models.Venue, error) {
	return s.DB.ListVenues(ctx)
}

// CreateVenue adds a venue. Duplicate names are allowed.
func (s *CatalogService) CreateVenue(ctx context.Context, identity models.Identity, req models.VenueRequest) (*models.Venue, error) {
	if err := requireOrganizer(identity); err != nil {
		return nil, err
	}
	name, address := strings.TrimSpace(req.Name), strings.TrimSpace(req.Address)
	if name == "" || address == "" {
		return nil, fmt.Errorf("%w: name and address are required", models.ErrInvalidRequest)
	}

	v := &models.Venue{ID: utils.GenerateID(), Name: name, Address: address, CreatedAt: time.Now().UTC()}
	if err := s.DB.CreateVenue(ctx, v); err != nil {
		return nil, err
	}
	s.Logger.LogDatabase("INSERT", "venues", fmt.Sprintf("%s by %s", v.ID, identity.Username))
	return v, nil
}

func (s *CatalogService) CreateConcert(ctx context.Context, identity models.Identity, req models.ConcertRequest) (*models.Concert, error) {
	if err := requireOrganizer(identity); err != nil {
		return nil, err
	}
	if err := validateConcert(&req, 1); err != nil {
		return nil, err
	}
	if err := s.checkVenue(ctx, req.VenueID); err != nil {
		return nil, err
	}

	c := concertFromRequest(req)
	c.ID = utils.GenerateID()
	c.Organizer = identity.Username
	c.Allotment = c.Tickets.NumAvail
	c.CreatedAt = time.Now().UTC()

	if err := s.DB.CreateConcert(ctx, c); err != nil {
		return nil, err
	}
	s.Logger.LogDatabase("INSERT", "concerts", fmt.Sprintf("%s (%s) by %s with %d tickets", c.ID, c.Artist, c.Organizer, c.Tickets.NumAvail))
	return c, nil
}

// UpdateConcert edits a concert owned by the caller. numAvail may not drop
// below the tickets already reserved.
func (s *CatalogService) UpdateConcert(ctx context.Context, identity models.Identity, id string, req models.ConcertRequest) (*models.Concert, error) {
	if err := requireOrganizer(identity); err != nil {
		return nil, err
	}
	if err := validateConcert(&req, 0); err != nil {
		return nil, err
	}
	if err := s.checkVenue(ctx, req.VenueID); err != nil {
		return nil, err
	}

	c := concertFromRequest(req)
	c.ID = id
	updated, err := s.DB.UpdateConcert(ctx, identity.Username, c)
	if err != nil {
		return nil, err
	}
	s.Logger.LogDatabase("UPDATE", "concerts", fmt.Sprintf("%s by %s numAvail=%d allotment=%d", id, identity.Username, updated.Tickets.NumAvail, updated.Allotment))
	return updated, nil
}

// DeleteConcert removes a concert owned by the caller and every reservation
// against it.
func (s *CatalogService) DeleteConcert(ctx context.Context, identity models.Identity, id string) error {
	if err := requireOrganizer(identity); err != nil {
		return err
	}
	removed, err := s.DB.DeleteConcert(ctx, identity.Username, id)
	if err != nil {
		return err
	}
	s.Logger.LogDatabase("DELETE", "concerts", fmt.Sprintf("%s by %s, %d reservations removed", id, identity.Username, removed))

	event := models.ReservationEvent{
		Type:       models.EventConcertDeleted,
		ConcertID:  id,
		UserID:     identity.ID,
		NumTickets: removed,
		Timestamp:  time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Kafka.Publish(pubCtx, s.Topic, id, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish concert deletion for %s: %v", id, err))
	}
	return nil
}

func (s *CatalogService) checkVenue(ctx context.Context, venueID string) error {
	exists, err := s.DB.VenueExists(ctx, venueID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: venue %s", models.ErrNotFound, venueID)
	}
	return nil
}

// validateConcert normalizes req. minAvail is 1 for new concerts; an edit
// may close sales by setting numAvail to 0.
func validateConcert(req *models.ConcertRequest, minAvail int) error {
	req.Artist = strings.TrimSpace(req.Artist)
	req.VenueID = strings.TrimSpace(req.VenueID)
	req.Tour = strings.TrimSpace(req.Tour)
	req.Description = strings.TrimSpace(req.Description)
	req.Tickets.Type = strings.TrimSpace(req.Tickets.Type)

	var missing []string
	if req.Artist == "" {
		missing = append(missing, "artist")
	}
	if req.VenueID == "" {
		missing = append(missing, "venueId")
	}
	if req.Tour == "" {
		missing = append(missing, "tour")
	}
	if req.StartsAt.IsZero() {
		missing = append(missing, "startsAt")
	}
	if req.Description == "" {
		missing = append(missing, "description")
	}
	if req.Tickets.Type == "" {
		missing = append(missing, "tickets.type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", models.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if req.Tickets.Price < 0 || math.IsNaN(req.Tickets.Price) || math.IsInf(req.Tickets.Price, 0) {
		return fmt.Errorf("%w: tickets.price must be a non-negative number", models.ErrInvalidRequest)
	}
	if req.Tickets.NumAvail < minAvail {
		return fmt.Errorf("%w: tickets.numAvail must be at least %d", models.ErrInvalidRequest, minAvail)
	}
	req.Tickets.Price = math.Round(req.Tickets.Price*100) / 100
	return nil
}

func concertFromRequest(req models.ConcertRequest) *models.Concert {
	return &models.Concert{
		Artist:      req.Artist,
		VenueID:     req.VenueID,
		Tour:        req.Tour,
		StartsAt:    req.StartsAt.UTC(),
		Description: req.Description,
		Genre:       strings.TrimSpace(req.Genre),
		Rules:       req.Rules,
		ImageURL:    req.ImageURL,
		Tickets:     req.Tickets,
	}
}
