package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
)

// Sim is an in-memory driver for tests and the -sim mode of the runtime. Test
// code drives it with Lift/Place/Press and inspects the LED and sound log.
type Sim struct {
	events chan Event
	start  time.Time

	mu      sync.Mutex
	occ     core.Occupancy
	pattern *Pattern // last applied, nil if off
	sounds  []Sound
	closed  bool
}

// NewSim returns a simulated board with the given initial occupancy.
func NewSim(occ core.Occupancy) *Sim {
	return &Sim{
		events: make(chan Event, 256),
		start:  time.Now(),
		occ:    occ,
	}
}

// Lift simulates lifting a piece off a square.
func (s *Sim) Lift(sq core.Square) {
	s.mu.Lock()
	s.occ = s.occ.Clear(sq)
	s.mu.Unlock()
	s.events <- Event{Kind: EventLift, Square: sq, Time: time.Since(s.start)}
}

// Place simulates placing a piece on a square.
func (s *Sim) Place(sq core.Square) {
	s.mu.Lock()
	s.occ = s.occ.Set(sq)
	s.mu.Unlock()
	s.events <- Event{Kind: EventPlace, Square: sq, Time: time.Since(s.start)}
}

// Move simulates lifting from and placing on the given squares.
func (s *Sim) Move(from, to core.Square) {
	s.Lift(from)
	s.Place(to)
}

// Press simulates a key press.
func (s *Sim) Press(k Key) {
	s.events <- Event{Kind: EventKey, Key: k, Time: time.Since(s.start)}
}

// Resync simulates a sensor gap.
func (s *Sim) Resync() {
	s.events <- Event{Kind: EventResync, Time: time.Since(s.start)}
}

// SetOccupancy overrides the physical occupancy without emitting events, as if
// pieces moved during a sensor gap.
func (s *Sim) SetOccupancy(occ core.Occupancy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occ = occ
}

// Pattern returns the last applied LED pattern, if any.
func (s *Sim) Pattern() (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pattern == nil {
		return Pattern{}, false
	}
	return *s.pattern, true
}

// Sounds returns the sounds played so far.
func (s *Sim) Sounds() []Sound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sound(nil), s.sounds...)
}

func (s *Sim) Events() <-chan Event {
	return s.events
}

func (s *Sim) Scan(ctx context.Context) (core.Occupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occ, nil
}

func (s *Sim) SetLEDs(ctx context.Context, p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = &p
	return nil
}

func (s *Sim) LEDsOff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = nil
	return nil
}

func (s *Sim) Beep(ctx context.Context, snd Sound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sounds = append(s.sounds, snd)
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
