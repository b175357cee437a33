package controller

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/emulator"
	"github.com/seekerror/logw"
	"go.uber.org/atomic"
)

// Remote hands authority to a bluetooth app behind the protocol bridge. The
// app drives the game; the physical board reports positions to it.
type Remote struct {
	bridge *emulator.Bridge
	active atomic.Bool
}

// NewRemote returns a remote controller over the given bridge.
func NewRemote(bridge *emulator.Bridge) *Remote {
	return &Remote{bridge: bridge}
}

// Bridge returns the protocol bridge.
func (r *Remote) Bridge() *emulator.Bridge {
	return r.bridge
}

func (r *Remote) Start(ctx context.Context) {
	if r.active.CompareAndSwap(false, true) {
		logw.Infof(ctx, "Remote controller active: %v", r.bridge.Protocol())
	}
}

func (r *Remote) Stop(ctx context.Context) {
	if r.active.CompareAndSwap(true, false) {
		logw.Infof(ctx, "Remote controller paused")
	}
}

func (r *Remote) Active() bool {
	return r.active.Load()
}
