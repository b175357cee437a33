package detect

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// assignLimit bounds the exact assignment search. Corrections beyond this
// many displaced pieces fall back to nearest-neighbour guidance.
const assignLimit = 12

// enterCorrection aborts any move in progress and starts guiding the user
// back to the expected occupancy.
func (c *Core) enterCorrection(ctx context.Context) {
	if !c.correction {
		c.correction = true
		c.expected = c.Expected()
		c.clearMoveState(ctx)
		logw.Infof(ctx, "Correction mode: expected %v", c.expected)
	}
	c.updateCorrection(ctx)
}

// updateCorrection re-evaluates the board after an event in correction mode.
// Besides restoring the expected occupancy, the user may resolve the
// divergence by retracting the last move (takeback) or by finishing the move
// they were physically executing when correction triggered.
func (c *Core) updateCorrection(ctx context.Context) {
	if c.occ == c.expected {
		c.exitCorrection(ctx)
		return
	}
	if c.isTakeback() {
		c.takeback(ctx)
		return
	}
	if m, ok := c.matchMoveByOccupancy(); ok {
		if err := c.applyMove(ctx, m); err == nil {
			return
		}
	}
	c.guide(ctx)
}

func (c *Core) exitCorrection(ctx context.Context) {
	c.correction = false
	c.fx.LEDsOff(ctx)
	c.fx.Beep(ctx, sensor.SoundGeneral)
	logw.Infof(ctx, "Correction complete")
}

// guide lights the displaced pieces. With equal numbers of missing and extra
// squares, pairs are matched by minimum total Manhattan distance (ties broken
// by square order) so each lit pair reads as "move this piece there".
// Otherwise every displaced square is lit individually.
func (c *Core) guide(ctx context.Context) {
	missing := c.expected.Missing(c.occ).Squares()
	extra := c.expected.Extra(c.occ).Squares()

	lit := make([]core.Square, 0, len(missing)+len(extra))
	if len(missing) == len(extra) && len(missing) > 0 {
		for _, pair := range matchSquares(missing, extra) {
			lit = append(lit, pair[0], pair[1])
		}
	} else {
		lit = append(lit, missing...)
		lit = append(lit, extra...)
	}

	c.fx.SetLEDs(ctx, sensor.LightSquares(3, lit...))
}

// matchSquares pairs each missing square with an extra square, minimizing the
// total Manhattan distance. Among minimum-cost matchings the lexicographically
// smallest by (missing, extra) square order is returned.
func matchSquares(missing, extra []core.Square) [][2]core.Square {
	n := len(missing)
	if n > assignLimit {
		return matchGreedy(missing, extra)
	}

	// memoized suffix costs: best(i, used) = min cost matching missing[i:]
	// against the extras not in used.
	memo := map[uint64]int{}
	var best func(i int, used uint64) int
	best = func(i int, used uint64) int {
		if i == n {
			return 0
		}
		key := uint64(i)<<32 | used
		if v, ok := memo[key]; ok {
			return v
		}
		ret := 1 << 30
		for j := 0; j < n; j++ {
			if used&(1<<j) != 0 {
				continue
			}
			if v := missing[i].ManhattanDistance(extra[j]) + best(i+1, used|1<<j); v < ret {
				ret = v
			}
		}
		memo[key] = ret
		return ret
	}

	// Reconstruct lexicographically: for each missing square in order, take
	// the smallest extra square preserving optimality.
	ret := make([][2]core.Square, 0, n)
	var used uint64
	for i := 0; i < n; i++ {
		total := best(i, used)
		for j := 0; j < n; j++ {
			if used&(1<<j) != 0 {
				continue
			}
			if missing[i].ManhattanDistance(extra[j])+best(i+1, used|1<<j) == total {
				ret = append(ret, [2]core.Square{missing[i], extra[j]})
				used |= 1 << j
				break
			}
		}
	}
	return ret
}

// matchGreedy pairs each missing square with its nearest unused extra square.
// Not optimal; only reached when the board is wildly scrambled.
func matchGreedy(missing, extra []core.Square) [][2]core.Square {
	ret := make([][2]core.Square, 0, len(missing))
	var used uint64
	for _, m := range missing {
		bestJ, bestD := -1, 1<<30
		for j, e := range extra {
			if used&(1<<j) != 0 {
				continue
			}
			if d := m.ManhattanDistance(e); d < bestD {
				bestJ, bestD = j, d
			}
		}
		if bestJ >= 0 {
			ret = append(ret, [2]core.Square{m, extra[bestJ]})
			used |= 1 << bestJ
		}
	}
	return ret
}
