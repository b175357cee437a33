package assist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/assist"
	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyser returns a scripted evaluation.
type fakeAnalyser struct {
	samples []uciengine.EvaluationSample
}

func (f *fakeAnalyser) Analyse(ctx context.Context, fen string, limit uciengine.Limit, multipv int) ([]uciengine.EvaluationSample, error) {
	return f.samples, nil
}

func (f *fakeAnalyser) Release(ctx context.Context) {}

type suggestions struct {
	mu   sync.Mutex
	seen []assist.Suggestion
}

func (s *suggestions) cb(ctx context.Context, v assist.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, v)
}

func (s *suggestions) snapshot() []assist.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]assist.Suggestion(nil), s.seen...)
}

func TestEngineSuggests(t *testing.T) {
	ctx := context.Background()
	r := rules.NewStandard()

	analyser := &fakeAnalyser{samples: []uciengine.EvaluationSample{{
		Depth: 12, MultiPV: 1, CP: 35,
		PV: []core.Move{{From: core.E2, To: core.E4}, {From: core.E7, To: core.E5}},
	}}}

	sink := &suggestions{}
	coach := assist.NewEngine("coach", r, analyser, sink.cb)
	defer coach.Close(ctx)
	assert.True(t, coach.AutoSuggest())

	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	coach.Suggest(ctx, pos, core.White)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	seen := sink.snapshot()
	assert.Equal(t, assist.SuggestMove, seen[0].Kind)
	assert.Equal(t, core.Move{From: core.E2, To: core.E4}, seen[0].Move)
	assert.Equal(t, assist.SuggestEvaluation, seen[1].Kind)
	assert.Equal(t, 35, seen[1].CP)
}

func TestEngineClearsWhenNotToMove(t *testing.T) {
	ctx := context.Background()
	r := rules.NewStandard()

	sink := &suggestions{}
	coach := assist.NewEngine("coach", r, &fakeAnalyser{}, sink.cb)
	defer coach.Close(ctx)

	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)

	// Suggestions for black are cleared while white is to move.
	coach.Suggest(ctx, pos, core.Black)

	seen := sink.snapshot()
	require.Len(t, seen, 1)
	assert.Equal(t, assist.SuggestSquares, seen[0].Kind)
	assert.Empty(t, seen[0].Squares)
}
