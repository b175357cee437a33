package players_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/players"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sink records the moves a player feeds back into the game.
type sink struct {
	mu       sync.Mutex
	computer []core.Move
	remote   []core.Move
}

func (s *sink) ComputerMove(m core.Move) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computer = append(s.computer, m)
}

func (s *sink) ApplyRemoteMove(m core.Move) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = append(s.remote, m)
}

func (s *sink) RestrictMoves(f func(m core.Move) bool) {}

func (s *sink) computerMoves() []core.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Move(nil), s.computer...)
}

// lichessStub fakes the subset of the board API the player uses.
type lichessStub struct {
	mu    sync.Mutex
	moves []string
	chats []string
	draws int
}

func (l *lichessStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/account", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"tester"}`)
	})
	mux.HandleFunc("/api/account/playing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"nowPlaying":[{"gameId":"abc123"}]}`)
	})
	mux.HandleFunc("/api/board/game/stream/abc123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"gameFull","state":{"moves":"","status":"started","wtime":900000,"btime":900000}}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		fmt.Fprintln(w, `{"type":"gameState","moves":"e2e4","status":"started","wtime":880000,"btime":900000}`)
	})
	mux.HandleFunc("/api/board/game/abc123/move/", func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.moves = append(l.moves, r.URL.Path)
	})
	mux.HandleFunc("/api/board/game/abc123/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		l.mu.Lock()
		defer l.mu.Unlock()
		l.chats = append(l.chats, r.Form.Get("text"))
	})
	mux.HandleFunc("/api/board/game/abc123/draw/yes", func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.draws++
	})
	return mux
}

func TestLichessRemoteMoveSurfaces(t *testing.T) {
	ctx := context.Background()

	stub := &lichessStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := &sink{}
	p := players.NewLichess("lichess", rules.NewStandard(), core.White, "token", s,
		players.WithLichessURL(srv.URL))
	defer p.Close(ctx)

	require.NoError(t, p.Start(ctx))

	// The white stream move belongs to the remote side and must surface as a
	// guided move.
	require.Eventually(t, func() bool {
		moves := s.computerMoves()
		return len(moves) == 1 && moves[0].Equals(core.Move{From: core.E2, To: core.E4})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLichessPostsLocalMoves(t *testing.T) {
	ctx := context.Background()

	stub := &lichessStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r := rules.NewStandard()
	s := &sink{}
	p := players.NewLichess("lichess", r, core.White, "token", s,
		players.WithLichessURL(srv.URL))
	defer p.Close(ctx)
	require.NoError(t, p.Start(ctx))

	// Play 1.e4 e5: the black reply is local and must be posted.
	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)
	pos, err = r.Apply(pos, core.Move{From: core.E2, To: core.E4})
	require.NoError(t, err)
	pos, err = r.Apply(pos, core.Move{From: core.E7, To: core.E5})
	require.NoError(t, err)

	p.MoveMade(ctx, core.Move{From: core.E7, To: core.E5}, pos)

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.moves) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, "/api/board/game/abc123/move/e7e5", stub.moves[0])
}

func TestLichessDeclinesTakeback(t *testing.T) {
	ctx := context.Background()

	stub := &lichessStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r := rules.NewStandard()
	p := players.NewLichess("lichess", r, core.White, "token", &sink{},
		players.WithLichessURL(srv.URL))
	defer p.Close(ctx)
	require.NoError(t, p.Start(ctx))

	pos, err := r.FromFEN(rules.Initial)
	require.NoError(t, err)
	p.Takeback(ctx, pos)

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.chats) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLichessOffersDraw(t *testing.T) {
	ctx := context.Background()

	stub := &lichessStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := players.NewLichess("lichess", rules.NewStandard(), core.White, "token", &sink{},
		players.WithLichessURL(srv.URL))
	defer p.Close(ctx)
	require.NoError(t, p.Start(ctx))

	p.OfferDraw(ctx)

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.draws == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLichessClockUpdates(t *testing.T) {
	ctx := context.Background()

	stub := &lichessStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	var mu sync.Mutex
	var updates [][2]time.Duration
	p := players.NewLichess("lichess", rules.NewStandard(), core.White, "token", &sink{},
		players.WithLichessURL(srv.URL),
		players.WithLichessClocks(func(ctx context.Context, white, black time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, [2]time.Duration{white, black})
		}))
	defer p.Close(ctx)
	require.NoError(t, p.Start(ctx))

	require.Eventually(t, func() bool {
		white, black := p.Clocks()
		return white == 880*time.Second && black == 900*time.Second
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates)
	assert.Equal(t, [2]time.Duration{900 * time.Second, 900 * time.Second}, updates[0])
}

func TestLichessAuthenticationFailure(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := players.NewLichess("lichess", rules.NewStandard(), core.White, "bad", &sink{},
		players.WithLichessURL(srv.URL))
	defer p.Close(ctx)

	assert.Error(t, p.Start(ctx))
	assert.Equal(t, players.LichessDisconnected, p.ConnectionState())
}
