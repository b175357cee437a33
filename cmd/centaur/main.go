// centaur is the on-device runtime for a DGT Centaur class sensor chess
// board: it interprets piece movement into games, hosts engine and remote
// opponents, and impersonates commercial board protocols to bluetooth chess
// apps.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrian-dybwad/centaur/pkg/assist"
	"github.com/adrian-dybwad/centaur/pkg/config"
	"github.com/adrian-dybwad/centaur/pkg/controller"
	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/emulator"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/players"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/adrian-dybwad/centaur/pkg/store"
	"github.com/adrian-dybwad/centaur/pkg/uciengine"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var version = build.NewVersion(1, 2, 0)

var (
	configPath = flag.String("config", "centaur.toml", "Configuration file")
	dataDir    = flag.String("data", "data", "Database directory (empty: in-memory)")
	serial     = flag.String("livechess", "", "Drive a DGT e-board via LiveChess by serial number ('auto' to autodetect)")
	btListen   = flag.String("bt-listen", "", "Development bluetooth bridge: listen for one byte-channel connection on this address")
)

func init() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: centaur [options]

CENTAUR is the runtime for a sensor-equipped electronic chess board.
Options:
`)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logw.Infof(ctx, "Centaur %v starting", version)

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logw.Errorf(ctx, "Configuration error: %v", err)
			os.Exit(2)
		}
		cfg = loaded
	}

	db, err := store.Open(*dataDir)
	if err != nil {
		logw.Errorf(ctx, "Store unavailable: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	driver, err := openDriver(ctx)
	if err != nil {
		logw.Errorf(ctx, "Board transport failed: %v", err)
		os.Exit(1)
	}

	board, err := sensor.Open(ctx, driver)
	if err != nil {
		logw.Errorf(ctx, "Board failed: %v", err)
		os.Exit(1)
	}
	defer board.Close()

	r := rules.NewStandard()
	g, err := game.New(ctx, r, board, db)
	if err != nil {
		logw.Errorf(ctx, "Game manager failed: %v", err)
		os.Exit(1)
	}
	defer g.Close()
	g.SetPromotionTimeout(cfg.PromotionTimeout())

	registry := uciengine.NewRegistry()
	defer registry.Close(ctx)

	white, black, err := buildPlayers(ctx, cfg, r, g, board, registry)
	if err != nil {
		logw.Errorf(ctx, "Configuration error: %v", err)
		os.Exit(2)
	}
	pm := players.NewManager(ctx, r, g, white, black)
	defer pm.Close(ctx)

	for _, coach := range buildAssistants(ctx, cfg, r, g, board, registry) {
		defer coach.Close(ctx)
	}

	// Bluetooth bridge: outbound frames go to whatever connection is live.
	conn := atomic.Pointer[net.Conn]{}
	send := func(ctx context.Context, data []byte) {
		if c := conn.Load(); c != nil {
			if _, err := (*c).Write(data); err != nil {
				logw.Warningf(ctx, "Bluetooth send failed: %v", err)
			}
		}
	}

	bridge := emulator.NewBridge(r, g, send, board)
	sw := controller.NewSwitch(ctx, g, controller.NewLocal(pm), controller.NewRemote(bridge))
	defer sw.Close()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		if *btListen == "" {
			<-gctx.Done()
			return nil
		}
		return serveBluetooth(gctx, *btListen, sw, &conn)
	})

	if p, ok := white.(*players.LichessPlayer); ok {
		wireLichess(ctx, g, p)
	}
	if p, ok := black.(*players.LichessPlayer); ok {
		wireLichess(ctx, g, p)
	}

	logw.Infof(ctx, "Centaur running: white=%v black=%v", white.Name(), black.Name())

	<-ctx.Done()
	if err := grp.Wait(); err != nil && ctx.Err() == nil {
		logw.Errorf(ctx, "I/O failure: %v", err)
		os.Exit(1)
	}
}

func openDriver(ctx context.Context) (sensor.Driver, error) {
	if *serial != "" {
		return sensor.OpenLiveChess(ctx, *serial)
	}
	// Without board hardware the simulated driver provides a quiet mat in
	// the starting position.
	return sensor.NewSim(core.StartingOccupancy), nil
}

func buildPlayers(ctx context.Context, cfg config.Config, r rules.Rules, g *game.Manager, board *sensor.Board, registry *uciengine.Registry) (players.Player, players.Player, error) {
	p1Color := core.White
	if cfg.Player1.Color == "black" {
		p1Color = core.Black
	}

	p1, err := buildPlayer(ctx, cfg, cfg.Player1, p1Color, r, g, board, registry)
	if err != nil {
		return nil, nil, err
	}
	p2, err := buildPlayer(ctx, cfg, cfg.Player2, p1Color.Opponent(), r, g, board, registry)
	if err != nil {
		return nil, nil, err
	}

	if p1Color == core.White {
		return p1, p2, nil
	}
	return p2, p1, nil
}

func buildPlayer(ctx context.Context, cfg config.Config, pc config.Player, c core.Color, r rules.Rules, g *game.Manager, board *sensor.Board, registry *uciengine.Registry) (players.Player, error) {
	name := fmt.Sprintf("%v-%v", pc.Type, c)

	switch pc.Type {
	case "", config.PlayerHuman:
		return players.NewHuman(fmt.Sprintf("human-%v", c)), nil

	case config.PlayerEngine:
		handle, err := acquire(ctx, cfg, pc, registry)
		if err != nil {
			return nil, err
		}
		return players.NewEngine(name, r, handle, uciengine.Options(cfg.Options(pc.Engine, pc.Elo)), uciengine.Limit{MoveTime: 5 * time.Second}, g), nil

	case config.PlayerHandBrain:
		handle, err := acquire(ctx, cfg, pc, registry)
		if err != nil {
			return nil, err
		}
		mode := players.HandBrainNormal
		if pc.HandBrainMode == "reverse" {
			mode = players.HandBrainReverse
		}
		return players.NewHandBrain(name, mode, r, handle, uciengine.Limit{MoveTime: 5 * time.Second}, g, suggestionLEDs(board)), nil

	case config.PlayerLichess:
		return players.NewLichess(name, r, c, cfg.Lichess.APIToken, g,
			players.WithLichessClocks(func(ctx context.Context, white, black time.Duration) {
				logw.Debugf(ctx, "Clocks: white %v, black %v", white, black)
			})), nil

	default:
		return nil, fmt.Errorf("unknown player type '%v'", pc.Type)
	}
}

func acquire(ctx context.Context, cfg config.Config, pc config.Player, registry *uciengine.Registry) (*uciengine.Handle, error) {
	path, err := cfg.EnginePath(pc.Engine)
	if err != nil {
		return nil, err
	}
	return registry.Acquire(ctx, path, uciengine.Options(cfg.Options(pc.Engine, pc.Elo)))
}

// buildAssistants wires the optional coaches, one per color. Each side may
// name its own assistant engine; both fall back to the shared "assistant"
// entry. The registry deduplicates, so two sides naming the same engine share
// one subprocess.
func buildAssistants(ctx context.Context, cfg config.Config, r rules.Rules, g *game.Manager, board *sensor.Board, registry *uciengine.Registry) []*assist.Engine {
	var ret []*assist.Engine
	for _, c := range []core.Color{core.White, core.Black} {
		name := cfg.AssistantEngine(playerConfigFor(cfg, c))
		if name == "" {
			continue
		}

		path, err := cfg.EnginePath(name)
		if err != nil {
			logw.Errorf(ctx, "Assistant for %v unavailable: %v", c, err)
			continue
		}
		handle, err := registry.Acquire(ctx, path, uciengine.Options{})
		if err != nil {
			logw.Errorf(ctx, "Assistant engine '%v' unavailable: %v", name, err)
			continue
		}

		color := c
		coach := assist.NewEngine(fmt.Sprintf("assistant-%v", c), r, handle, suggestionLEDs(board))
		g.Subscribe(game.Callbacks{
			Event: func(ctx context.Context, evt game.Event) {
				switch evt.Kind {
				case game.TurnEvent(color):
					coach.Suggest(ctx, evt.Pos, color)
				case game.EventMoveMade, game.EventNewGame:
					coach.OnMove()
				}
			},
		})
		ret = append(ret, coach)
	}
	return ret
}

// playerConfigFor returns the player block configured for the given color.
func playerConfigFor(cfg config.Config, c core.Color) config.Player {
	p1Color := core.White
	if cfg.Player1.Color == "black" {
		p1Color = core.Black
	}
	if c == p1Color {
		return cfg.Player1
	}
	return cfg.Player2
}

// suggestionLEDs renders suggestions on the board LEDs.
func suggestionLEDs(board *sensor.Board) assist.Callback {
	return func(ctx context.Context, s assist.Suggestion) {
		switch s.Kind {
		case assist.SuggestMove:
			board.SetLEDs(ctx, sensor.LightRay(s.Move.From, s.Move.To, 3))
		case assist.SuggestPieceType:
			board.SetLEDs(ctx, sensor.LightSquares(2, s.Squares...))
		case assist.SuggestSquares:
			if len(s.Squares) == 0 {
				board.LEDsOff(ctx)
				return
			}
			board.SetLEDs(ctx, sensor.LightSquares(2, s.Squares...))
		}
	}
}

// wireLichess connects a remote player: draw offers made at the board are
// forwarded to the remote game, then the connection starts in the background.
func wireLichess(ctx context.Context, g *game.Manager, p *players.LichessPlayer) {
	g.Subscribe(game.Callbacks{
		Event: func(ctx context.Context, evt game.Event) {
			if evt.Kind == game.EventDrawOffered && evt.Color != p.Color() {
				p.OfferDraw(ctx)
			}
		},
	})

	go func() {
		if err := p.Start(ctx); err != nil {
			logw.Errorf(ctx, "Lichess connection failed: %v", err)
		}
	}()
}

// serveBluetooth accepts one byte-channel connection at a time and pumps its
// bytes through the protocol bridge, standing in for the RFCOMM/GATT
// transport during development.
func serveBluetooth(ctx context.Context, addr string, sw *controller.Switch, conn *atomic.Pointer[net.Conn]) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		logw.Infof(ctx, "Bluetooth channel connected: %v", c.RemoteAddr())
		conn.Store(&c)

		buf := make([]byte, 512)
		for {
			n, err := c.Read(buf)
			for i := 0; i < n; i++ {
				sw.OnByte(ctx, buf[i])
			}
			if err != nil {
				break
			}
		}

		conn.Store(nil)
		_ = c.Close()
		sw.OnDisconnect(ctx)
		logw.Infof(ctx, "Bluetooth channel closed")
	}
}
