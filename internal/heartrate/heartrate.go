// Package heartrate decodes Heart Rate Measurement notifications.
package heartrate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrShortPayload is returned for notifications too short to carry a value.
var ErrShortPayload = errors.New("heartrate: payload shorter than 2 bytes")

// Sample is one decoded heart-rate reading.
type Sample struct {
	BPM     uint8
	At      time.Time
	Source  string // peripheral address
	Session string // session identifier
}

// Decode returns the beats-per-minute value of a Heart Rate Measurement
// payload: the byte that follows the flags byte. Later bytes (energy
// expended, RR intervals) are ignored.
func Decode(payload []byte) (uint8, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrShortPayload, len(payload))
	}
	return payload[1], nil
}

// Normalize maps bpm onto [0, 1] as bpm/255.
func Normalize(bpm uint8) float32 {
	return float32(bpm) / float32(math.MaxUint8)
}

// Denormalize is the inverse of Normalize, rounding to the nearest byte.
// Values outside [0, 1] are clamped.
func Denormalize(f float32) uint8 {
	v := math.Round(float64(f) * math.MaxUint8)
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(v)
}
