package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateReservationNumber returns an opaque handle such as
// RSV-1718000000-9F2C01A7B3E4. The suffix carries 48 random bits so numbers
// minted within the same second stay distinct; the store still rejects a
// collision and the caller retries with a fresh number.
func GenerateReservationNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("RSV-%d-%s", time.Now().Unix(), suffix[len(suffix)-12:])
}

func GenerateID() string {
	return uuid.NewString()
}
