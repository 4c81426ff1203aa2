package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Venue struct {
	bun.BaseModel `bun:"table:venues"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Address   string    `bun:"address,notnull" json:"address"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

type VenueRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}
