package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEventID returns an external identifier for a feedback event.
func NewEventID() string {
	return "evt_" + uuid.NewString()
}

// NewSnapshotID returns an external identifier for a style snapshot.
func NewSnapshotID() string {
	return "snap_" + uuid.NewString()
}

// GenerateRandomID generates a random hex ID of the given length.
func GenerateRandomID(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)[:length]
}
