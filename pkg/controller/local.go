package controller

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/players"
	"github.com/seekerror/logw"
	"go.uber.org/atomic"
)

// Local drives the game from the player stack: the human at the board plus
// whatever machine opponents are configured.
type Local struct {
	players *players.Manager
	active  atomic.Bool
}

// NewLocal returns a local controller over the given players.
func NewLocal(pm *players.Manager) *Local {
	return &Local{players: pm}
}

// Players returns the player manager.
func (l *Local) Players() *players.Manager {
	return l.players
}

func (l *Local) Start(ctx context.Context) {
	if !l.active.CompareAndSwap(false, true) {
		return
	}
	l.players.Start(ctx)
	logw.Infof(ctx, "Local controller active")
}

func (l *Local) Stop(ctx context.Context) {
	if !l.active.CompareAndSwap(true, false) {
		return
	}
	// Withdraw outstanding move requests; players stay alive for resume.
	l.players.CancelAll()
	logw.Infof(ctx, "Local controller paused")
}

func (l *Local) Active() bool {
	return l.active.Load()
}
