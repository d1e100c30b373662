package display

import (
	"sync"

	"github.com/saviobatista/iss-tracker/internal/types"
)

// Slot identifies one text output on the page
type Slot string

const (
	SlotLatitude  Slot = "lat"
	SlotLongitude Slot = "lon"
	SlotVelocity  Slot = "vel"
	SlotAltitude  Slot = "alt"
)

// Slots lists every slot in page order
var Slots = []Slot{SlotLatitude, SlotLongitude, SlotVelocity, SlotAltitude}

// Sink holds the last text written to each slot
type Sink struct {
	mu    sync.RWMutex
	slots map[Slot]string
}

// New creates an empty display sink
func New() *Sink {
	return &Sink{slots: make(map[Slot]string, len(Slots))}
}

// Write overwrites the slot's text
func (s *Sink) Write(slot Slot, text string) {
	s.mu.Lock()
	s.slots[slot] = text
	s.mu.Unlock()
}

// WriteAll writes the same text to every slot
func (s *Sink) WriteAll(text string) {
	s.mu.Lock()
	for _, slot := range Slots {
		s.slots[slot] = text
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of all slots
func (s *Sink) Snapshot() types.DisplaySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.DisplaySnapshot{
		Latitude:  s.slots[SlotLatitude],
		Longitude: s.slots[SlotLongitude],
		Velocity:  s.slots[SlotVelocity],
		Altitude:  s.slots[SlotAltitude],
	}
}
