package emulator

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// Chessnut opcodes. Write frames are op, length, payload.
const (
	chessnutInit            = 0x0b
	chessnutLeds            = 0x0a
	chessnutEnableReporting = 0x21
	chessnutBattery         = 0x29
)

// Chessnut response/notification leaders.
const (
	chessnutBoardHeader1 = 0x01
	chessnutBoardHeader2 = 0x24
	chessnutAck          = 0x23
	chessnutBatteryResp  = 0x2a
)

// Chessnut emulates a Chessnut Air board. Commands arrive as op/len/payload
// frames; board state flows back as 38-byte notifications: the 0x01 0x24
// header, 32 bytes packing two 4-bit piece codes per byte, and 4 trailing
// status bytes.
type Chessnut struct {
	noopEvents

	rules rules.Rules
	src   Source
	send  Sender
	leds  Surface

	buffer    []byte
	reporting bool
	battery   byte
}

// NewChessnut returns a fresh Chessnut emulator.
func NewChessnut(r rules.Rules, src Source, send Sender, leds Surface) *Chessnut {
	return &Chessnut{rules: r, src: src, send: send, leds: leds, battery: 100}
}

func (e *Chessnut) Name() string {
	return "chessnut"
}

func (e *Chessnut) ParseByte(ctx context.Context, b byte) bool {
	if len(e.buffer) == 0 {
		switch b {
		case chessnutInit, chessnutLeds, chessnutEnableReporting, chessnutBattery:
			e.buffer = append(e.buffer, b)
			return false
		default:
			return false
		}
	}

	e.buffer = append(e.buffer, b)
	if len(e.buffer) < 2 {
		return false
	}

	total := 2 + int(e.buffer[1])
	if len(e.buffer) < total {
		return false
	}

	op := e.buffer[0]
	payload := append([]byte(nil), e.buffer[2:total]...)
	e.buffer = nil

	e.handle(ctx, op, payload)
	return true
}

func (e *Chessnut) ManagerEvent(ctx context.Context, evt game.Event) {
	switch evt.Kind {
	case game.EventNewGame:
		e.notifyBoard(ctx)
	}
}

func (e *Chessnut) ManagerMove(ctx context.Context, m core.Move, pos *rules.Position) {
	e.notifyBoard(ctx)
}

func (e *Chessnut) ManagerTakeback(ctx context.Context, pos *rules.Position) {
	e.notifyBoard(ctx)
}

func (e *Chessnut) Reset(ctx context.Context) {
	e.buffer = nil
	e.reporting = false
}

func (e *Chessnut) handle(ctx context.Context, op byte, payload []byte) {
	logw.Debugf(ctx, "Chessnut command 0x%02x (%v bytes)", op, len(payload))

	switch op {
	case chessnutInit:
		// Configuration block; stored nowhere, acknowledged.
		e.send(ctx, []byte{chessnutAck, 0x01, 0x00})

	case chessnutEnableReporting:
		e.reporting = len(payload) > 0 && payload[0] != 0
		e.send(ctx, []byte{chessnutAck, 0x01, 0x00})
		if e.reporting {
			e.notifyBoard(ctx)
		}

	case chessnutBattery:
		e.send(ctx, []byte{chessnutBatteryResp, 0x02, e.battery})

	case chessnutLeds:
		e.applyLeds(ctx, payload)
	}
}

// applyLeds interprets the 8-byte LED bitmap, rank 8 first, bit 7 = file a.
func (e *Chessnut) applyLeds(ctx context.Context, payload []byte) {
	if e.leds == nil || len(payload) < 8 {
		return
	}

	var lit []core.Square
	for row, b := range payload[:8] {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(7-bit)) != 0 {
				lit = append(lit, core.NewSquare(bit, 7-row))
			}
		}
	}

	if len(lit) == 0 {
		e.leds.LEDsOff(ctx)
		return
	}
	e.leds.SetLEDs(ctx, sensor.LightSquares(3, lit...))
}

// notifyBoard sends the 38-byte board state frame when reporting is on.
func (e *Chessnut) notifyBoard(ctx context.Context) {
	if !e.reporting {
		return
	}

	pos := e.src.Position()
	frame := make([]byte, 38)
	frame[0] = chessnutBoardHeader1
	frame[1] = chessnutBoardHeader2

	// Two squares per byte, rank 8 first; within a rank the low nibble of a
	// byte is the even column, counting columns from file h.
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			code := chessnutCode(e.rules, pos, core.NewSquare(7-col, 7-row))
			idx := (row*8+col)/2 + 2
			if col%2 == 0 {
				frame[idx] |= code & 0x0f
			} else {
				frame[idx] |= code << 4
			}
		}
	}

	e.send(ctx, frame)
}

// chessnutCode returns the 4-bit piece code: 0 empty, 1 bQ, 2 bK, 3 bB,
// 4 bP, 5 bN, 6 wR, 7 wP, 8 bR, 9 wB, 10 wN, 11 wQ, 12 wK.
func chessnutCode(r rules.Rules, pos *rules.Position, sq core.Square) byte {
	p, ok := r.PieceAt(pos, sq)
	if !ok {
		return 0
	}

	if p.Color == core.Black {
		switch p.Piece {
		case core.Queen:
			return 1
		case core.King:
			return 2
		case core.Bishop:
			return 3
		case core.Pawn:
			return 4
		case core.Knight:
			return 5
		case core.Rook:
			return 8
		}
	}
	switch p.Piece {
	case core.Rook:
		return 6
	case core.Pawn:
		return 7
	case core.Bishop:
		return 9
	case core.Knight:
		return 10
	case core.Queen:
		return 11
	case core.King:
		return 12
	}
	return 0
}
