package models

// Identity is the verified caller attached to a request.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Organizer bool   `json:"organizer"`
}

// TokenClaims is what a verified bearer token yields before the organizer
// flag is resolved.
type TokenClaims struct {
	ID       string
	Username string
}
