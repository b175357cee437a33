package players

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// LichessState is the connection state machine of the Lichess player.
type LichessState uint8

const (
	LichessDisconnected LichessState = iota
	LichessAuthenticating
	LichessSeeking
	LichessWaitingChallenge
	LichessOngoing
	LichessPlaying
	LichessGameOver
)

func (s LichessState) String() string {
	switch s {
	case LichessAuthenticating:
		return "authenticating"
	case LichessSeeking:
		return "seeking"
	case LichessWaitingChallenge:
		return "waiting-challenge"
	case LichessOngoing:
		return "ongoing"
	case LichessPlaying:
		return "playing"
	case LichessGameOver:
		return "game-over"
	default:
		return "disconnected"
	}
}

// moveRetries bounds posting a local move to the API.
const moveRetries = 3

// moveRetryBackoff spaces the retries.
const moveRetryBackoff = 500 * time.Millisecond

// DefaultLichessURL is the production API endpoint.
const DefaultLichessURL = "https://lichess.org"

// ClockCallback receives the remaining time of both sides whenever the game
// stream carries a clock update.
type ClockCallback func(ctx context.Context, white, black time.Duration)

// LichessPlayer is a bidirectional adapter over the Lichess board API: it
// produces the remote opponent's moves from the game event stream and posts
// the local player's moves back. It plays the given color.
type LichessPlayer struct {
	name  string
	rules rules.Rules
	color core.Color
	token string
	base  string

	client *http.Client
	moves  Moves
	clocks ClockCallback

	mu     sync.Mutex
	state  LichessState
	pstate State
	gameID string
	seen   int // moves already observed on the stream

	wtime, btime time.Duration // last clock state from the stream

	quit iox.AsyncCloser
}

// LichessOption configures the player.
type LichessOption func(*LichessPlayer)

// WithLichessURL overrides the API endpoint, for tests.
func WithLichessURL(base string) LichessOption {
	return func(p *LichessPlayer) {
		p.base = base
	}
}

// WithLichessClocks surfaces clock updates from the game stream.
func WithLichessClocks(cb ClockCallback) LichessOption {
	return func(p *LichessPlayer) {
		p.clocks = cb
	}
}

// NewLichess returns a Lichess player for the given color. Start must be
// called to connect.
func NewLichess(name string, r rules.Rules, color core.Color, token string, moves Moves, opts ...LichessOption) *LichessPlayer {
	p := &LichessPlayer{
		name:   name,
		rules:  r,
		color:  color,
		token:  token,
		base:   DefaultLichessURL,
		client: &http.Client{},
		moves:  moves,
		quit:   iox.NewAsyncCloser(),
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

func (p *LichessPlayer) Name() string {
	return p.name
}

func (p *LichessPlayer) Type() Type {
	return Lichess
}

// Color returns the color the remote side plays.
func (p *LichessPlayer) Color() core.Color {
	return p.color
}

func (p *LichessPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pstate
}

// ConnectionState returns the API connection state.
func (p *LichessPlayer) ConnectionState() LichessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start connects: authenticate, find or seek a game, then stream it on a
// background goroutine until closed.
func (p *LichessPlayer) Start(ctx context.Context) error {
	p.setState(LichessAuthenticating)
	if err := p.get(ctx, "/api/account", nil); err != nil {
		p.setState(LichessDisconnected)
		return fmt.Errorf("lichess authentication failed: %w", err)
	}

	id, err := p.findGame(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.gameID = id
	p.state = LichessPlaying
	p.mu.Unlock()

	go p.stream(ctx, id)
	return nil
}

func (p *LichessPlayer) RequestMove(ctx context.Context, pos *rules.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pstate = Thinking // the remote move arrives via the stream
}

func (p *LichessPlayer) CancelRequest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pstate = Idle
}

func (p *LichessPlayer) PieceEvent(ctx context.Context, kind PieceEventKind, sq core.Square, pos *rules.Position) {
}

// MoveMade posts local moves to the API; remote moves (our own color) are
// echoes and skipped.
func (p *LichessPlayer) MoveMade(ctx context.Context, m core.Move, pos *rules.Position) {
	mover := p.rules.ColorToMove(pos).Opponent()
	if mover == p.color {
		p.mu.Lock()
		p.pstate = Idle
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	id := p.gameID
	p.mu.Unlock()
	if id == "" {
		return
	}

	go func() {
		var err error
		for i := 0; i < moveRetries; i++ {
			if err = p.post(ctx, fmt.Sprintf("/api/board/game/%v/move/%v", id, m)); err == nil {
				return
			}
			select {
			case <-time.After(moveRetryBackoff):
			case <-ctx.Done():
				return
			}
		}
		logw.Errorf(ctx, "Posting move %v failed after %v attempts: %v", m, moveRetries, err)
		p.mu.Lock()
		p.pstate = Error
		p.mu.Unlock()
	}()
}

// Takeback declines: external boards cannot take moves back on Lichess.
func (p *LichessPlayer) Takeback(ctx context.Context, pos *rules.Position) {
	p.mu.Lock()
	id := p.gameID
	p.mu.Unlock()
	if id == "" {
		return
	}

	go func() {
		form := url.Values{"room": {"player"}, "text": {"Sorry, this external board doesn't support takeback"}}
		if err := p.postForm(ctx, fmt.Sprintf("/api/board/game/%v/chat", id), form); err != nil {
			logw.Warningf(ctx, "Takeback notice failed: %v", err)
		}
	}()
}

func (p *LichessPlayer) NewGame(ctx context.Context) {
	p.CancelRequest()
}

func (p *LichessPlayer) CorrectionExit(ctx context.Context, pos *rules.Position) {}

func (p *LichessPlayer) Hint(ctx context.Context, pos *rules.Position) lang.Optional[core.Move] {
	return lang.Optional[core.Move]{}
}

// Resign resigns the remote game.
func (p *LichessPlayer) Resign(ctx context.Context) {
	p.mu.Lock()
	id := p.gameID
	p.mu.Unlock()
	if id != "" {
		_ = p.post(ctx, fmt.Sprintf("/api/board/game/%v/resign", id))
	}
}

// OfferDraw offers (or accepts) a draw in the remote game.
func (p *LichessPlayer) OfferDraw(ctx context.Context) {
	p.mu.Lock()
	id := p.gameID
	p.mu.Unlock()
	if id == "" {
		return
	}

	go func() {
		if err := p.post(ctx, fmt.Sprintf("/api/board/game/%v/draw/yes", id)); err != nil {
			logw.Warningf(ctx, "Draw offer failed: %v", err)
		}
	}()
}

// Clocks returns the last remaining times seen on the stream, zero before the
// first update.
func (p *LichessPlayer) Clocks() (white, black time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wtime, p.btime
}

func (p *LichessPlayer) Close(ctx context.Context) {
	p.quit.Close()
}

// findGame returns an ongoing game, or seeks a new one.
func (p *LichessPlayer) findGame(ctx context.Context) (string, error) {
	var playing struct {
		NowPlaying []struct {
			GameID string `json:"gameId"`
		} `json:"nowPlaying"`
	}
	if err := p.get(ctx, "/api/account/playing", &playing); err != nil {
		return "", err
	}
	if len(playing.NowPlaying) > 0 {
		p.setState(LichessOngoing)
		return playing.NowPlaying[0].GameID, nil
	}

	p.setState(LichessSeeking)
	form := url.Values{"time": {"15"}, "increment": {"10"}}
	if err := p.postForm(ctx, "/api/board/seek", form); err != nil {
		return "", fmt.Errorf("seek failed: %w", err)
	}

	p.setState(LichessWaitingChallenge)
	for {
		if err := p.get(ctx, "/api/account/playing", &playing); err != nil {
			return "", err
		}
		if len(playing.NowPlaying) > 0 {
			return playing.NowPlaying[0].GameID, nil
		}
		select {
		case <-time.After(time.Second):
		case <-p.quit.Closed():
			return "", fmt.Errorf("closed while seeking")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// stream reads the line-delimited JSON game state stream and surfaces the
// opponent's new moves.
func (p *LichessPlayer) stream(ctx context.Context, id string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/api/board/game/stream/"+id, nil)
	if err != nil {
		logw.Errorf(ctx, "Stream request failed: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		logw.Errorf(ctx, "Game stream failed: %v", err)
		p.setState(LichessDisconnected)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if p.quit.IsClosed() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue // keep-alive
		}

		var event struct {
			Type   string `json:"type"`
			Moves  string `json:"moves"`
			Status string `json:"status"`
			Wtime  int64  `json:"wtime"`
			Btime  int64  `json:"btime"`
			State  struct {
				Moves  string `json:"moves"`
				Status string `json:"status"`
				Wtime  int64  `json:"wtime"`
				Btime  int64  `json:"btime"`
			} `json:"state"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			logw.Warningf(ctx, "Bad stream line: %v", err)
			continue
		}

		moves, status := event.Moves, event.Status
		wtime, btime := event.Wtime, event.Btime
		if event.Type == "gameFull" {
			moves, status = event.State.Moves, event.State.Status
			wtime, btime = event.State.Wtime, event.State.Btime
		}

		switch event.Type {
		case "gameFull", "gameState":
			p.processMoves(ctx, moves)
			p.processClocks(ctx, wtime, btime)
			if status != "" && status != "started" && status != "created" {
				logw.Infof(ctx, "Lichess game %v over: %v", id, status)
				p.setState(LichessGameOver)
				return
			}
		}
	}
	p.setState(LichessDisconnected)
}

// processMoves surfaces tokens not yet seen whose index parity matches the
// remote color. Local moves appear as echoes and are skipped.
func (p *LichessPlayer) processMoves(ctx context.Context, moves string) {
	tokens := strings.Fields(moves)

	p.mu.Lock()
	start := p.seen
	p.seen = len(tokens)
	p.mu.Unlock()

	for i := start; i < len(tokens); i++ {
		mover := core.White
		if i%2 == 1 {
			mover = core.Black
		}
		if mover != p.color {
			continue
		}

		m, err := core.ParseMove(tokens[i])
		if err != nil {
			logw.Errorf(ctx, "Bad remote move '%v': %v", tokens[i], err)
			continue
		}
		logw.Infof(ctx, "Remote move: %v", m)
		p.moves.ComputerMove(m)
	}
}

// processClocks records the remaining time of both sides (milliseconds on the
// wire) and surfaces it to the clock listener.
func (p *LichessPlayer) processClocks(ctx context.Context, wtime, btime int64) {
	if wtime <= 0 && btime <= 0 {
		return
	}

	white := time.Duration(wtime) * time.Millisecond
	black := time.Duration(btime) * time.Millisecond

	p.mu.Lock()
	p.wtime, p.btime = white, black
	p.mu.Unlock()

	if p.clocks != nil {
		p.clocks(ctx, white, black)
	}
}

func (p *LichessPlayer) setState(s LichessState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *LichessPlayer) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %v: %v", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *LichessPlayer) post(ctx context.Context, path string) error {
	return p.postForm(ctx, path, nil)
}

func (p *LichessPlayer) postForm(ctx context.Context, path string, form url.Values) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("POST %v: %v", path, resp.Status)
	}
	return nil
}
