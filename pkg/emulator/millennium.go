package emulator

import (
	"context"
	"math/bits"

	"github.com/adrian-dybwad/centaur/pkg/core"
	"github.com/adrian-dybwad/centaur/pkg/game"
	"github.com/adrian-dybwad/centaur/pkg/rules"
	"github.com/adrian-dybwad/centaur/pkg/sensor"
	"github.com/seekerror/logw"
)

// millenniumBufferLimit bounds the parser buffer; repeated CRC failures reset
// it without dropping the transport.
const millenniumBufferLimit = 1024

// millenniumVersion is the firmware version reported to ChessLink apps.
const millenniumVersion = "v3130"

// millenniumIdentity is the identity block reported to ChessLink apps.
const millenniumIdentity = "i0055mm\n"

// Millennium emulates the Millennium ChessLink wire protocol: 7-bit ASCII
// with odd parity in the MSB, frames of one command character plus payload
// plus two ASCII hex digits of the XOR CRC over all preceding characters.
type Millennium struct {
	noopEvents

	rules rules.Rules
	src   Source
	send  Sender
	leds  Surface

	buffer []byte // parity-stripped ASCII

	eeprom     [256]byte
	autoReport bool
}

// NewMillennium returns a fresh Millennium emulator.
func NewMillennium(r rules.Rules, src Source, send Sender, leds Surface) *Millennium {
	return &Millennium{
		rules:      r,
		src:        src,
		send:       send,
		leds:       leds,
		autoReport: true,
	}
}

func (e *Millennium) Name() string {
	return "millennium"
}

// ParseByte accumulates parity-stripped characters until the trailing two
// bytes are hex digits whose value equals the XOR of everything before them.
func (e *Millennium) ParseByte(ctx context.Context, b byte) bool {
	if !oddParityOK(b) {
		logw.Debugf(ctx, "Millennium: bad parity on 0x%02x", b)
	}
	e.buffer = append(e.buffer, b&0x7f)

	if len(e.buffer) > millenniumBufferLimit {
		logw.Warningf(ctx, "Millennium: parser buffer overflow, resetting")
		e.buffer = nil
		return false
	}
	if len(e.buffer) < 3 {
		return false
	}

	hi, ok1 := hexValue(e.buffer[len(e.buffer)-2])
	lo, ok2 := hexValue(e.buffer[len(e.buffer)-1])
	if !ok1 || !ok2 {
		return false
	}

	payload := e.buffer[:len(e.buffer)-2]
	if xorCRC(payload) != hi<<4|lo {
		return false
	}

	cmd := payload[0]
	args := append([]byte(nil), payload[1:]...)
	e.buffer = nil

	e.handle(ctx, cmd, args)
	return true
}

func (e *Millennium) ManagerEvent(ctx context.Context, evt game.Event) {
	switch evt.Kind {
	case game.EventNewGame:
		e.sendStatus(ctx)
	}
}

func (e *Millennium) ManagerMove(ctx context.Context, m core.Move, pos *rules.Position) {
	e.sendStatus(ctx)
}

func (e *Millennium) ManagerTakeback(ctx context.Context, pos *rules.Position) {
	e.sendStatus(ctx)
}

func (e *Millennium) Reset(ctx context.Context) {
	e.buffer = nil
	e.eeprom = [256]byte{}
	e.autoReport = true
}

func (e *Millennium) handle(ctx context.Context, cmd byte, args []byte) {
	logw.Debugf(ctx, "Millennium command '%c' (%v args)", cmd, len(args))

	switch cmd {
	case 'V':
		e.reply(ctx, millenniumVersion)

	case 'I':
		e.reply(ctx, millenniumIdentity)

	case 'S':
		e.status(ctx)

	case 'W':
		e.writeEEPROM(ctx, args)

	case 'R':
		e.readEEPROM(ctx, args)

	case 'X':
		if e.leds != nil {
			e.leds.LEDsOff(ctx)
		}
		e.reply(ctx, "x")

	case 'L':
		e.ledPattern(ctx, args)

	case 'T':
		e.autoReport = true
		e.reply(ctx, "t")

	default:
		logw.Debugf(ctx, "Millennium: unhandled command '%c'", cmd)
	}
}

// status replies with 's' plus the 64-character board encoding.
func (e *Millennium) status(ctx context.Context) {
	e.reply(ctx, "s"+rules.BoardText(e.rules, e.src.Position()))
}

// sendStatus pushes an unsolicited status if automatic reporting is enabled.
func (e *Millennium) sendStatus(ctx context.Context) {
	if e.autoReport {
		e.status(ctx)
	}
}

// writeEEPROM handles 'W': [addr][val] as four ASCII hex digits. Writes are
// stored; only the automatic report mode at 0x02 drives behaviour.
func (e *Millennium) writeEEPROM(ctx context.Context, args []byte) {
	if len(args) < 4 {
		return
	}
	addr, ok1 := hexByte(args[0], args[1])
	val, ok2 := hexByte(args[2], args[3])
	if !ok1 || !ok2 {
		return
	}

	e.eeprom[addr] = val
	if addr == 0x02 {
		// b2-b0: 1 disables automatic reports; every other mode sends status
		// spontaneously.
		e.autoReport = val&0x07 != 1
	}

	e.reply(ctx, "w"+string(args[:4]))
}

// readEEPROM handles 'R': [addr] as two ASCII hex digits.
func (e *Millennium) readEEPROM(ctx context.Context, args []byte) {
	if len(args) < 2 {
		return
	}
	addr, ok := hexByte(args[0], args[1])
	if !ok {
		return
	}
	e.reply(ctx, "r"+string(args[:2])+hexString(e.eeprom[addr]))
}

// ledPattern handles 'L': two hex digits of slot time plus 81 LED intensities
// of two hex digits each, describing the 9x9 LED lattice between squares. A
// square counts as lit when all four surrounding lattice LEDs are on.
func (e *Millennium) ledPattern(ctx context.Context, args []byte) {
	if len(args) < 2+81*2 {
		e.reply(ctx, "l")
		return
	}

	var lattice [81]byte
	for i := 0; i < 81; i++ {
		v, ok := hexByte(args[2+i*2], args[3+i*2])
		if !ok {
			e.reply(ctx, "l")
			return
		}
		lattice[i] = v
	}

	lit := dropRayMidpoints(litSquares(lattice))
	if e.leds != nil {
		switch {
		case len(lit) == 0:
			e.leds.LEDsOff(ctx)
		case len(lit) == 2:
			e.leds.SetLEDs(ctx, sensor.LightRay(lit[0], lit[1], 3))
		default:
			e.leds.SetLEDs(ctx, sensor.LightSquares(3, lit...))
		}
	}
	e.reply(ctx, "l")
}

// reply sends the response text followed by its CRC, all parity-encoded.
func (e *Millennium) reply(ctx context.Context, text string) {
	e.send(ctx, EncodeMillennium(text))
}

// EncodeMillennium frames a response: text, then the XOR CRC of the text as
// two ASCII hex digits, every byte carrying odd parity in the MSB.
func EncodeMillennium(text string) []byte {
	crc := xorCRC([]byte(text))
	full := text + hexString(crc)

	ret := make([]byte, len(full))
	for i := 0; i < len(full); i++ {
		ret[i] = oddParity(full[i])
	}
	return ret
}

// litSquares returns the squares whose four corner lattice LEDs are all on.
// The lattice is 9x9 row-major; the corner mapping is derived from captures
// of a real ChessLink board.
func litSquares(lattice [81]byte) []core.Square {
	var ret []core.Square
	for sq := core.ZeroSquare; sq < core.NumSquares; sq++ {
		row := 7 - sq.File()
		col := sq.Rank()
		corners := [4]int{row*9 + col, row*9 + col + 1, (row+1)*9 + col, (row+1)*9 + col + 1}

		all := true
		for _, c := range corners {
			if lattice[c] == 0 {
				all = false
				break
			}
		}
		if all {
			ret = append(ret, sq)
		}
	}
	return ret
}

// dropRayMidpoints removes squares flanked by lit neighbours on a rank or
// file: ChessLink lights the whole path of a move, the board only marks its
// endpoints.
func dropRayMidpoints(lit []core.Square) []core.Square {
	set := map[core.Square]bool{}
	for _, sq := range lit {
		set[sq] = true
	}

	mid := map[core.Square]bool{}
	for sq := range set {
		f, r := sq.File(), sq.Rank()
		if f > 0 && f < 7 && set[core.NewSquare(f-1, r)] && set[core.NewSquare(f+1, r)] {
			mid[sq] = true
		}
		if r > 0 && r < 7 && set[core.NewSquare(f, r-1)] && set[core.NewSquare(f, r+1)] {
			mid[sq] = true
		}
	}
	if len(mid) == 0 {
		return lit
	}

	ret := lit[:0]
	for _, sq := range lit {
		if !mid[sq] {
			ret = append(ret, sq)
		}
	}
	return ret
}

// oddParity sets the MSB so the byte has an odd number of 1-bits.
func oddParity(b byte) byte {
	b &= 0x7f
	if bits.OnesCount8(b)%2 == 0 {
		return b | 0x80
	}
	return b
}

// oddParityOK verifies the parity of a wire byte.
func oddParityOK(b byte) bool {
	return bits.OnesCount8(b)%2 == 1
}

func xorCRC(payload []byte) byte {
	var crc byte
	for _, b := range payload {
		crc ^= b
	}
	return crc
}

func hexValue(b byte) (byte, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	default:
		return 0, false
	}
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexValue(hi)
	l, ok2 := hexValue(lo)
	return h<<4 | l, ok1 && ok2
}

const hexDigits = "0123456789ABCDEF"

func hexString(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0f]})
}
