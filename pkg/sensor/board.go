package sensor

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// queueSize bounds the event queue between the I/O goroutine and the game
// thread. Overflow drops events and forces a resync.
const queueSize = 64

// maxRetries bounds transparent retries of transport operations before the
// board degrades.
const maxRetries = 3

// Board is the runtime's view of the physical board. It pumps driver events
// into a bounded queue, keeps an atomic mirror of the last known occupancy and
// forwards LED/sound commands. Safe for concurrent use.
type Board struct {
	driver Driver

	events   chan Event
	occ      atomic.Uint64
	degraded atomic.Bool

	quit iox.AsyncCloser
}

// Open starts a board over the given driver. The initial occupancy is read
// synchronously so consumers observe a valid mirror from the start.
func Open(ctx context.Context, driver Driver) (*Board, error) {
	occ, err := driver.Scan(ctx)
	if err != nil {
		return nil, err
	}

	b := &Board{
		driver: driver,
		events: make(chan Event, queueSize),
		quit:   iox.NewAsyncCloser(),
	}
	b.occ.Store(uint64(occ))

	go b.process(ctx)

	logw.Infof(ctx, "Board opened: occupancy=%v", occ)
	return b, nil
}

// Events returns the bounded event queue. Closed when the board closes.
func (b *Board) Events() <-chan Event {
	return b.events
}

// Occupancy returns the last known physical occupancy.
func (b *Board) Occupancy() core.Occupancy {
	return core.Occupancy(b.occ.Load())
}

// Degraded reports whether the transport has failed beyond retries. A degraded
// board keeps forwarding driver events and does not panic the process.
func (b *Board) Degraded() bool {
	return b.degraded.Load()
}

// SetLEDs applies an LED pattern, retrying transient transport errors.
func (b *Board) SetLEDs(ctx context.Context, p Pattern) {
	b.retry(ctx, "set leds", func() error { return b.driver.SetLEDs(ctx, p) })
}

// LEDsOff extinguishes all LEDs.
func (b *Board) LEDsOff(ctx context.Context) {
	b.retry(ctx, "leds off", func() error { return b.driver.LEDsOff(ctx) })
}

// Beep plays a sound cue.
func (b *Board) Beep(ctx context.Context, s Sound) {
	b.retry(ctx, "beep", func() error { return b.driver.Beep(ctx, s) })
}

// Rescan re-reads the full occupancy from the mat and refreshes the mirror.
func (b *Board) Rescan(ctx context.Context) (core.Occupancy, error) {
	var occ core.Occupancy
	var err error
	for i := 0; i < maxRetries; i++ {
		if occ, err = b.driver.Scan(ctx); err == nil {
			b.occ.Store(uint64(occ))
			return occ, nil
		}
	}
	b.degrade(ctx, err)
	return b.Occupancy(), err
}

// Close shuts the board down and releases the driver.
func (b *Board) Close() error {
	b.quit.Close()
	return b.driver.Close()
}

func (b *Board) process(ctx context.Context) {
	defer close(b.events)

	for {
		select {
		case evt, ok := <-b.driver.Events():
			if !ok {
				return
			}

			switch evt.Kind {
			case EventLift:
				b.occ.Store(uint64(b.Occupancy().Clear(evt.Square)))
			case EventPlace:
				b.occ.Store(uint64(b.Occupancy().Set(evt.Square)))
			}

			select {
			case b.events <- evt:
				// ok
			default:
				// Queue overflow: the consumer lost events, so anything we
				// forward from here would be misordered. Drain and resync.
				logw.Warningf(ctx, "Event queue overflow: dropping and resyncing")
				b.drain()
				b.events <- Event{Kind: EventResync, Time: evt.Time}
			}

		case <-b.quit.Closed():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Board) drain() {
	for {
		select {
		case <-b.events:
		default:
			return
		}
	}
}

func (b *Board) retry(ctx context.Context, op string, fn func() error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return
		}
	}
	logw.Errorf(ctx, "Board %v failed after %v retries: %v", op, maxRetries, err)
	b.degrade(ctx, err)
}

func (b *Board) degrade(ctx context.Context, err error) {
	if b.degraded.CompareAndSwap(false, true) {
		logw.Errorf(ctx, "Board transport degraded: %v", err)
	}
}
