package sse

import (
	"context"
	"sync"

	"stagepass/internal/models"
)

// AvailabilityEmitter fans inventory changes out to the clients watching a
// concert. Slow clients miss updates rather than block reservations, and an
// update whose version is not newer than the last one sent is dropped.
type AvailabilityEmitter struct {
	clients map[string][]chan models.AvailabilityUpdate
	latest  map[string]int64
	mu      sync.RWMutex
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{
		clients: make(map[string][]chan models.AvailabilityUpdate),
		latest:  make(map[string]int64),
	}
}

// Subscribe registers a client for concertID until ctx is done, at which
// point the returned channel is closed.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, concertID string) <-chan models.AvailabilityUpdate {
	ch := make(chan models.AvailabilityUpdate, 10)

	e.mu.Lock()
	e.clients[concertID] = append(e.clients[concertID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(concertID, ch)
	}()

	return ch
}

func (e *AvailabilityEmitter) Emit(concertID string, numAvail int, version int64) {
	update := models.AvailabilityUpdate{
		ConcertID: concertID,
		NumAvail:  numAvail,
		SoldOut:   numAvail == 0,
		Version:   version,
	}

	// Holding the lock keeps remove from closing a channel mid-send.
	e.mu.Lock()
	defer e.mu.Unlock()
	clients := e.clients[concertID]
	if len(clients) == 0 {
		return
	}
	if version <= e.latest[concertID] {
		return
	}
	e.latest[concertID] = version
	for _, ch := range clients {
		select {
		case ch <- update:
		default:
		}
	}
}

func (e *AvailabilityEmitter) remove(concertID string, ch chan models.AvailabilityUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[concertID]
	for i, c := range clients {
		if c == ch {
			e.clients[concertID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[concertID]) == 0 {
		delete(e.clients, concertID)
		delete(e.latest, concertID)
	}
}

func (e *AvailabilityEmitter) ClientCount(concertID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[concertID])
}
