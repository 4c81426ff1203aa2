package pass

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagepass/internal/models"
)

func TestPNG_IsDecodableImage(t *testing.T) {
	g := NewGenerator("test-secret-key")

	b, err := g.PNG(models.Reservation{ReservationNumber: "RSV-1-000001", ConcertID: "c1"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestVerify_RoundTrip(t *testing.T) {
	g := NewGenerator("test-secret-key")
	payload := g.Payload(models.Reservation{ReservationNumber: "RSV-1-000001", ConcertID: "c1"})

	number, concertID, err := g.Verify(payload)
	require.NoError(t, err)
	assert.Equal(t, "RSV-1-000001", number)
	assert.Equal(t, "c1", concertID)
}

func TestVerify_RejectsTampering(t *testing.T) {
	g := NewGenerator("test-secret-key")
	payload := g.Payload(models.Reservation{ReservationNumber: "RSV-1-000001", ConcertID: "c1"})

	_, _, err := g.Verify("RSV-1-000002" + payload[len("RSV-1-000001"):])
	assert.ErrorIs(t, err, ErrInvalidPass)

	_, _, err = NewGenerator("other").Verify(payload)
	assert.ErrorIs(t, err, ErrInvalidPass)

	_, _, err = g.Verify("nodots")
	assert.ErrorIs(t, err, ErrInvalidPass)
}
