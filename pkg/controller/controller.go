// Package controller decides who is authoritative over the game: the local
// player stack, or a remote app behind the protocol bridge. Exactly one of
// the two is active; the switch flips on bluetooth latch and disconnect.
package controller

import "context"

// Controller is one authority over the game.
type Controller interface {
	// Start activates the controller.
	Start(ctx context.Context)
	// Stop pauses the controller. It is not destroyed: engine subprocesses
	// may stay idle for reactivation.
	Stop(ctx context.Context)
	// Active reports whether the controller is running.
	Active() bool
}
