package sensor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/herohde/livechess-go/pkg/livechess"
	"github.com/seekerror/logw"
)

// LiveChess is a development driver that uses a DGT e-board behind a LiveChess
// daemon as the sensor mat. LiveChess reports whole board states, so the
// driver synthesizes lift/place events by diffing successive states. The
// daemon exposes no LED or sound control, so those commands are logged only.
type LiveChess struct {
	client livechess.FeedClient

	events chan Event
	start  time.Time

	mu  sync.Mutex
	occ core.Occupancy
}

// OpenLiveChess connects to the board with the given serial, or autodetects
// one if serial is "auto".
func OpenLiveChess(ctx context.Context, serial string) (*LiveChess, error) {
	id := livechess.EBoardSerial(serial)
	if serial == "auto" {
		auto, err := livechess.AutoDetect(ctx, livechess.DefaultClient)
		if err != nil {
			return nil, err
		}
		id = auto
	}

	client, feed, err := livechess.NewFeed(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &LiveChess{
		client: client,
		events: make(chan Event, 256),
		start:  time.Now(),
		occ:    core.StartingOccupancy,
	}
	go d.process(ctx, feed)

	logw.Infof(ctx, "LiveChess board %v connected", id)
	return d, nil
}

func (d *LiveChess) Events() <-chan Event {
	return d.events
}

func (d *LiveChess) Scan(ctx context.Context) (core.Occupancy, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.occ, nil
}

func (d *LiveChess) SetLEDs(ctx context.Context, p Pattern) error {
	logw.Debugf(ctx, "LiveChess has no LEDs: ignoring pattern %v", p)
	return nil
}

func (d *LiveChess) LEDsOff(ctx context.Context) error {
	return nil
}

func (d *LiveChess) Beep(ctx context.Context, s Sound) error {
	logw.Debugf(ctx, "LiveChess has no sound: ignoring %v", s)
	return nil
}

func (d *LiveChess) Close() error {
	close(d.events)
	return nil
}

func (d *LiveChess) process(ctx context.Context, feed <-chan livechess.EBoardEventResponse) {
	for {
		select {
		case event, ok := <-feed:
			if !ok {
				return
			}
			if event.Board == "" {
				continue
			}

			next := occupancyFromPlacement(event.Board)

			d.mu.Lock()
			prev := d.occ
			d.occ = next
			d.mu.Unlock()

			ts := time.Since(d.start)
			for _, sq := range prev.Missing(next).Squares() {
				d.events <- Event{Kind: EventLift, Square: sq, Time: ts}
			}
			for _, sq := range prev.Extra(next).Squares() {
				d.events <- Event{Kind: EventPlace, Square: sq, Time: ts}
			}

		case <-ctx.Done():
			return
		}
	}
}

// occupancyFromPlacement decodes the piece placement field of a FEN into an
// occupancy bitmap.
func occupancyFromPlacement(placement string) core.Occupancy {
	var ret core.Occupancy

	rank := 7
	file := 0
	for _, r := range strings.SplitN(placement, " ", 2)[0] {
		switch {
		case r == '/':
			rank--
			file = 0
		case '1' <= r && r <= '8':
			file += int(r - '0')
		default:
			if rank >= 0 && file < 8 {
				ret = ret.Set(core.NewSquare(file, rank))
			}
			file++
		}
	}
	return ret
}
