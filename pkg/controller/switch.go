package controller

import (
	"context"
	"sync"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/emulator"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/players"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// Switch owns both controllers and flips authority between them: Local until
// the bridge latches a protocol, Remote until the app disconnects. Field and
// key events always reach the game manager regardless of the active side;
// when a protocol is latched they are additionally mirrored to the app.
type Switch struct {
	game   *game.Manager
	local  *Local
	remote *Remote

	mu  sync.Mutex
	sub *game.Subscription
}

// NewSwitch wires the switch: the local side starts active and game progress
// is mirrored to the bridge.
func NewSwitch(ctx context.Context, g *game.Manager, local *Local, remote *Remote) *Switch {
	s := &Switch{game: g, local: local, remote: remote}

	s.sub = g.Subscribe(game.Callbacks{
		Event:    s.mirrorEvent,
		Move:     s.mirrorMove,
		Takeback: s.mirrorTakeback,
		Key:      s.mirrorKey,
	})

	remote.Bridge().OnDisconnect(ctx)
	local.Start(ctx)
	return s
}

// Local returns the local controller.
func (s *Switch) Local() *Local {
	return s.local
}

// Remote returns the remote controller.
func (s *Switch) Remote() *Remote {
	return s.remote
}

// OnByte feeds a bluetooth byte to the bridge, flipping authority to Remote
// when a protocol latches.
func (s *Switch) OnByte(ctx context.Context, b byte) bool {
	ret := s.remote.Bridge().OnByte(ctx, b)

	if s.remote.Bridge().Protocol() != emulator.Unknown && !s.remote.Active() {
		s.local.Stop(ctx)
		s.remote.Start(ctx)
	}
	return ret
}

// OnDisconnect reverts to local control and restarts protocol detection.
func (s *Switch) OnDisconnect(ctx context.Context) {
	s.remote.Stop(ctx)
	s.remote.Bridge().OnDisconnect(ctx)
	s.local.Start(ctx)
	logw.Infof(ctx, "Bluetooth disconnected: local control restored")
}

// Close detaches from the game manager.
func (s *Switch) Close() {
	s.game.Unsubscribe(s.sub)
}

func (s *Switch) mirrorEvent(ctx context.Context, evt game.Event) {
	if evt.Kind == game.EventPieceLifted || evt.Kind == game.EventPiecePlaced {
		// Hand+Brain Reverse consumes lift/place locally as its selection
		// gesture; mirroring them would make the app clear its LEDs.
		if p, ok := s.local.Players().Current().(*players.HandBrainPlayer); ok && p.Mode() == players.HandBrainReverse {
			return
		}
	}
	s.remote.Bridge().ManagerEvent(ctx, evt)
}

func (s *Switch) mirrorMove(ctx context.Context, index int, m core.Move, pos *rules.Position) {
	s.remote.Bridge().ManagerMove(ctx, m, pos)
}

func (s *Switch) mirrorTakeback(ctx context.Context, pos *rules.Position) {
	s.remote.Bridge().ManagerTakeback(ctx, pos)
}

func (s *Switch) mirrorKey(ctx context.Context, k sensor.Key) {
	s.remote.Bridge().ManagerKey(ctx, k)
}
