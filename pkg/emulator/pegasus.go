package emulator

import (
	"context"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// DGT host opcodes. The Pegasus speaks the classic DGT serial protocol over
// BLE; the table below is reconstructed from reference captures and the
// public DGT protocol numbering.
const (
	dgtSendReset         = 0x40
	dgtSendClock         = 0x41
	dgtSendBoard         = 0x42
	dgtSendUpdate        = 0x43
	dgtSendUpdateBoard   = 0x44
	dgtReturnSerial      = 0x45
	dgtReturnBusAddress  = 0x46
	dgtSendTrademark     = 0x47
	dgtSendUpdateNice    = 0x4b
	dgtSendBatteryStatus = 0x4c
	dgtSendVersion       = 0x4d
	dgtReturnLongSerial  = 0x55
	dgtSetLeds           = 0x60
)

// DGT board message ids; on the wire the MSB is set.
const (
	dgtMsgBoardDump     = 0x86
	dgtMsgBusAddress    = 0x90
	dgtMsgSerial        = 0x91
	dgtMsgTrademark     = 0x92
	dgtMsgVersion       = 0x93
	dgtMsgFieldUpdate   = 0x8e
	dgtMsgBatteryStatus = 0xa0
	dgtMsgLongSerial    = 0xa2
)

// DGT piece codes.
const (
	dgtEmpty   = 0x00
	dgtWPawn   = 0x01
	dgtWRook   = 0x02
	dgtWKnight = 0x03
	dgtWBishop = 0x04
	dgtWKing   = 0x05
	dgtWQueen  = 0x06
	dgtBPawn   = 0x07
	dgtBRook   = 0x08
	dgtBKnight = 0x09
	dgtBBishop = 0x0a
	dgtBKing   = 0x0b
	dgtBQueen  = 0x0c
)

const (
	pegasusSerial    = "23101"
	pegasusTrademark = "Digital Game Technology\r\nDGT Pegasus\r\n"
)

// pegasusUpdateMode selects what the board streams spontaneously.
type pegasusUpdateMode uint8

const (
	pegasusIdle pegasusUpdateMode = iota
	pegasusUpdateBoard
	pegasusUpdateNice
)

// Pegasus emulates a DGT Pegasus board. The host writes single-opcode
// commands (plus a variable-length LED command) and the emulator answers with
// framed messages: message id with MSB set, two 7-bit length bytes covering
// the whole message, then the payload. After the handshake the emulator
// streams field updates as the position changes; a field update carries only
// the square and the piece code, with no sequence number. The only rolling
// counter is the one in the battery status reply.
type Pegasus struct {
	noopEvents

	rules rules.Rules
	src   Source
	send  Sender
	leds  Surface

	pending []byte // partial dgtSetLeds command
	mode    pegasusUpdateMode
	seq     byte

	handshaken bool
}

// NewPegasus returns a fresh Pegasus emulator.
func NewPegasus(r rules.Rules, src Source, send Sender, leds Surface) *Pegasus {
	return &Pegasus{rules: r, src: src, send: send, leds: leds}
}

func (e *Pegasus) Name() string {
	return "pegasus"
}

// ParseByte recognises the DGT opcode set. Until a handshake opcode arrives
// the emulator stays silent and unclaimed, so bytes of other protocols in
// flight before the bridge latches cannot trigger spurious replies.
func (e *Pegasus) ParseByte(ctx context.Context, b byte) bool {
	if len(e.pending) > 0 {
		return e.continueLeds(ctx, b)
	}

	switch b {
	case dgtSendReset:
		e.mode = pegasusIdle
		e.handshaken = true
		return true

	case dgtSendBoard:
		e.handshaken = true
		e.sendBoardDump(ctx)
		return true

	case dgtSendTrademark:
		e.handshaken = true
		e.sendMessage(ctx, dgtMsgTrademark, []byte(pegasusTrademark))
		return true

	case dgtSendVersion:
		e.handshaken = true
		e.sendMessage(ctx, dgtMsgVersion, []byte{1, 0})
		return true
	}

	if !e.handshaken {
		return false
	}

	switch b {
	case dgtSendUpdate, dgtSendUpdateBoard:
		e.mode = pegasusUpdateBoard
		return true

	case dgtSendUpdateNice:
		e.mode = pegasusUpdateNice
		return true

	case dgtReturnSerial:
		e.sendMessage(ctx, dgtMsgSerial, []byte(pegasusSerial))
		return true

	case dgtReturnBusAddress:
		e.sendMessage(ctx, dgtMsgBusAddress, []byte{0x00, 0x00})
		return true

	case dgtSendBatteryStatus:
		e.sendMessage(ctx, dgtMsgBatteryStatus, []byte{100, 0x00, e.nextSeq()})
		return true

	case dgtReturnLongSerial:
		e.sendMessage(ctx, dgtMsgLongSerial, []byte(pegasusSerial+"1.0"))
		return true

	case dgtSendClock:
		return true // no clock attached; silently accepted

	case dgtSetLeds:
		e.pending = []byte{b}
		return true

	default:
		return false
	}
}

// continueLeds accumulates the variable-length dgtSetLeds command:
// 0x60, length, then length payload bytes (mode, beep, from, to, ...).
func (e *Pegasus) continueLeds(ctx context.Context, b byte) bool {
	e.pending = append(e.pending, b)
	if len(e.pending) < 2 {
		return true
	}

	total := 2 + int(e.pending[1])
	if len(e.pending) < total {
		return true
	}

	payload := e.pending[2:total]
	e.pending = nil
	e.applyLeds(ctx, payload)
	return true
}

// applyLeds interprets the LED payload: mode, beep, from, to in DGT field
// numbering. Mode zero extinguishes.
func (e *Pegasus) applyLeds(ctx context.Context, payload []byte) {
	if e.leds == nil {
		return
	}
	if len(payload) < 4 || payload[0] == 0 {
		e.leds.LEDsOff(ctx)
		return
	}

	from := squareFromDGT(payload[2])
	to := squareFromDGT(payload[3])
	e.leds.SetLEDs(ctx, sensor.LightRay(from, to, 3))
}

func (e *Pegasus) ManagerEvent(ctx context.Context, evt game.Event) {
	switch evt.Kind {
	case game.EventNewGame:
		if e.mode != pegasusIdle {
			e.sendBoardDump(ctx)
		}
	}
}

// ManagerMove streams the occupancy changes of the move as field updates.
func (e *Pegasus) ManagerMove(ctx context.Context, m core.Move, pos *rules.Position) {
	if e.mode == pegasusIdle {
		return
	}

	e.sendFieldUpdate(ctx, m.From, pieceCodeAt(e.rules, pos, m.From))
	e.sendFieldUpdate(ctx, m.To, pieceCodeAt(e.rules, pos, m.To))
}

func (e *Pegasus) ManagerTakeback(ctx context.Context, pos *rules.Position) {
	if e.mode != pegasusIdle {
		e.sendBoardDump(ctx)
	}
}

func (e *Pegasus) Reset(ctx context.Context) {
	e.pending = nil
	e.mode = pegasusIdle
	e.handshaken = false
	e.seq = 0
}

// sendBoardDump sends the 64-field dump in DGT field order (a8 first, h1
// last).
func (e *Pegasus) sendBoardDump(ctx context.Context) {
	pos := e.src.Position()

	payload := make([]byte, 64)
	for i := 0; i < 64; i++ {
		payload[i] = pieceCodeAt(e.rules, pos, squareFromDGT(byte(i)))
	}
	e.sendMessage(ctx, dgtMsgBoardDump, payload)
}

func (e *Pegasus) sendFieldUpdate(ctx context.Context, sq core.Square, piece byte) {
	e.sendMessage(ctx, dgtMsgFieldUpdate, []byte{squareToDGT(sq), piece})
}

// sendMessage frames a board message: id (MSB set), two 7-bit length bytes of
// the total message size, payload.
func (e *Pegasus) sendMessage(ctx context.Context, id byte, payload []byte) {
	total := len(payload) + 3
	frame := make([]byte, 0, total)
	frame = append(frame, id, byte(total>>7)&0x7f, byte(total)&0x7f)
	frame = append(frame, payload...)

	logw.Debugf(ctx, "Pegasus message 0x%02x (%v bytes)", id, total)
	e.send(ctx, frame)
}

func (e *Pegasus) nextSeq() byte {
	e.seq++
	return e.seq
}

// squareFromDGT converts DGT field numbering (0 = a8 .. 63 = h1).
func squareFromDGT(field byte) core.Square {
	rank := 7 - int(field)/8
	file := int(field) % 8
	return core.NewSquare(file, rank)
}

func squareToDGT(sq core.Square) byte {
	return byte((7-sq.Rank())*8 + sq.File())
}

// pieceCodeAt returns the DGT piece code on the square.
func pieceCodeAt(r rules.Rules, pos *rules.Position, sq core.Square) byte {
	p, ok := r.PieceAt(pos, sq)
	if !ok {
		return dgtEmpty
	}

	white := map[core.PieceType]byte{
		core.Pawn: dgtWPawn, core.Rook: dgtWRook, core.Knight: dgtWKnight,
		core.Bishop: dgtWBishop, core.King: dgtWKing, core.Queen: dgtWQueen,
	}
	black := map[core.PieceType]byte{
		core.Pawn: dgtBPawn, core.Rook: dgtBRook, core.Knight: dgtBKnight,
		core.Bishop: dgtBBishop, core.King: dgtBKing, core.Queen: dgtBQueen,
	}
	if p.Color == core.White {
		return white[p.Piece]
	}
	return black[p.Piece]
}
