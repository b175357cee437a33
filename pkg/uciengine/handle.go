package uciengine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/seekerror/stdlib/pkg/lang"
)

// Options are UCI options, sent with "setoption name X value Y".
type Options map[string]string

// Fingerprint returns a stable identity for the option set, used as part of
// the registry key.
func (o Options) Fingerprint() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%v=%v;", k, o[k])
	}
	return sb.String()
}

// Limit bounds a single play or analyse call.
type Limit struct {
	MoveTime time.Duration
}

// EvaluationSample is one analysis line from the engine.
type EvaluationSample struct {
	Depth   int
	MultiPV int
	// CP is the score in centipawns from the side to move, unless Mate is set.
	CP   int
	Mate lang.Optional[int]
	PV   []core.Move
}

// Handle is a shared reference to a live engine subprocess. All calls on a
// handle are serialised by an internal mutex; concurrent callers queue.
type Handle struct {
	path string
	fp   string

	reg  *Registry
	proc *process
	opts Options

	mu sync.Mutex
}

// Path returns the engine binary path.
func (h *Handle) Path() string {
	return h.path
}

// Dead reports whether the subprocess has exited.
func (h *Handle) Dead() bool {
	return h.proc.dead.Load()
}

// Configure replaces the options re-sent before every call. Options may change
// per call; the engine sees them before the next position.
func (h *Handle) Configure(opts Options) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = opts
}

// Play asks the engine for a best move from the position, optionally
// restricted to the given root moves. If ctx is cancelled the in-flight
// search is stopped, its result discarded, and ctx.Err() returned; the
// subprocess survives.
func (h *Handle) Play(ctx context.Context, fen string, limit Limit, rootMoves ...core.Move) (core.Move, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.prepare(ctx, fen); err != nil {
		return core.Move{}, err
	}

	cmd := fmt.Sprintf("go movetime %v", limit.MoveTime.Milliseconds())
	if len(rootMoves) > 0 {
		var sb strings.Builder
		for _, m := range rootMoves {
			sb.WriteString(" ")
			sb.WriteString(m.String())
		}
		cmd += " searchmoves" + sb.String()
	}
	if err := h.proc.send(ctx, cmd); err != nil {
		return core.Move{}, err
	}

	stopped := false
	for {
		select {
		case line, ok := <-h.proc.out:
			if !ok {
				return core.Move{}, ErrEngineUnavailable
			}
			if !strings.HasPrefix(line, "bestmove") {
				continue
			}
			if stopped {
				return core.Move{}, ctx.Err() // discarded
			}

			best, ok := field(line, "bestmove")
			if !ok || best == "(none)" {
				return core.Move{}, fmt.Errorf("no best move in '%v'", line)
			}
			return core.ParseMove(best)

		case <-ctx.Done():
			if !stopped {
				stopped = true
				_ = h.proc.send(ctx, "stop")
			}
		}
	}
}

// Analyse asks the engine to evaluate the position and returns the last
// sample per analysis line, multipv lines if requested (0 means 1).
func (h *Handle) Analyse(ctx context.Context, fen string, limit Limit, multipv int) ([]EvaluationSample, error) {
	if multipv < 1 {
		multipv = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.prepare(ctx, fen); err != nil {
		return nil, err
	}
	if multipv > 1 {
		if err := h.proc.send(ctx, fmt.Sprintf("setoption name MultiPV value %v", multipv)); err != nil {
			return nil, err
		}
	}
	if err := h.proc.send(ctx, fmt.Sprintf("go movetime %v", limit.MoveTime.Milliseconds())); err != nil {
		return nil, err
	}

	samples := make(map[int]EvaluationSample)
	stopped := false
	for {
		select {
		case line, ok := <-h.proc.out:
			if !ok {
				return nil, ErrEngineUnavailable
			}
			if sample, ok := parseInfo(line); ok {
				samples[sample.MultiPV] = sample
			}
			if strings.HasPrefix(line, "bestmove") {
				if stopped {
					return nil, ctx.Err()
				}
				ret := make([]EvaluationSample, 0, len(samples))
				for i := 1; i <= multipv; i++ {
					if s, ok := samples[i]; ok {
						ret = append(ret, s)
					}
				}
				return ret, nil
			}

		case <-ctx.Done():
			if !stopped {
				stopped = true
				_ = h.proc.send(ctx, "stop")
			}
		}
	}
}

// Release drops the reference. The subprocess is reaped when the last
// reference is released.
func (h *Handle) Release(ctx context.Context) {
	h.reg.release(ctx, h)
}

// prepare re-sends options and the position. Called under h.mu.
func (h *Handle) prepare(ctx context.Context, fen string) error {
	for name, value := range h.opts {
		if err := h.proc.send(ctx, fmt.Sprintf("setoption name %v value %v", name, value)); err != nil {
			return err
		}
	}
	if err := h.proc.sync(ctx); err != nil {
		return err
	}
	return h.proc.send(ctx, fmt.Sprintf("position fen %v", fen))
}

func parseInfo(line string) (EvaluationSample, bool) {
	if !strings.HasPrefix(line, "info") || !strings.Contains(line, " pv ") {
		return EvaluationSample{}, false
	}

	var sample EvaluationSample
	sample.MultiPV = 1

	if v, ok := field(line, "depth"); ok {
		sample.Depth, _ = strconv.Atoi(v)
	}
	if v, ok := field(line, "multipv"); ok {
		sample.MultiPV, _ = strconv.Atoi(v)
	}
	if v, ok := field(line, "cp"); ok {
		sample.CP, _ = strconv.Atoi(v)
	}
	if v, ok := field(line, "mate"); ok {
		n, _ := strconv.Atoi(v)
		sample.Mate = lang.Some(n)
	}

	tokens := strings.Fields(line)
	for i, t := range tokens {
		if t != "pv" {
			continue
		}
		for _, str := range tokens[i+1:] {
			m, err := core.ParseMove(str)
			if err != nil {
				break
			}
			sample.PV = append(sample.PV, m)
		}
		break
	}
	if len(sample.PV) == 0 {
		return EvaluationSample{}, false
	}
	return sample, true
}
