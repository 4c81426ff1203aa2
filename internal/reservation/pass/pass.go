package pass

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"stagepass/internal/models"
)

var ErrInvalidPass = errors.New("invalid door pass")

// Generator renders the QR code door staff scan in place of a paper ticket.
// The code carries "<reservationNumber>.<concertId>.<signature>".
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret))
	return &Generator{secret: hashed[:]}
}

func (g *Generator) sign(reservationNumber, concertID string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(reservationNumber + "." + concertID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (g *Generator) Payload(r models.Reservation) string {
	return fmt.Sprintf("%s.%s.%s", r.ReservationNumber, r.ConcertID, g.sign(r.ReservationNumber, r.ConcertID))
}

// PNG returns a 256px QR code of the signed pass payload.
func (g *Generator) PNG(r models.Reservation) ([]byte, error) {
	return qrcode.Encode(g.Payload(r), qrcode.Medium, 256)
}

// Verify checks a scanned payload and returns the reservation number and
// concert id it names.
func (g *Generator) Verify(payload string) (string, string, error) {
	i := strings.LastIndex(payload, ".")
	if i <= 0 {
		return "", "", ErrInvalidPass
	}
	body, sig := payload[:i], payload[i+1:]

	j := strings.LastIndex(body, ".")
	if j <= 0 {
		return "", "", ErrInvalidPass
	}
	number, concertID := body[:j], body[j+1:]

	if !hmac.Equal([]byte(sig), []byte(g.sign(number, concertID))) {
		return "", "", ErrInvalidPass
	}
	return number, concertID, nil
}
