package env

import (
	"fmt"
	"strconv"
	"strings"

	"chesstrain/experience"
)

// Piece type codes. All non-pawn pieces move as queen-like sliders (see
// ReferenceEngine): this is a deliberate simplification, not an attempt at a
// legal chess engine.
const (
	pieceNone   = 0
	piecePawn   = 1
	pieceKnight = 2
	pieceBishop = 3
	pieceRook   = 4
	pieceQueen  = 5
	pieceKing   = 6
)

var pieceLetter = map[int]string{
	piecePawn: "p", pieceKnight: "n", pieceBishop: "b",
	pieceRook: "r", pieceQueen: "q", pieceKing: "k",
}

var pieceValue = map[int]float64{
	piecePawn: 1, pieceKnight: 3, pieceBishop: 3,
	pieceRook: 5, pieceQueen: 9, pieceKing: 0,
}

// noProgressLimit plies without a capture or pawn move before the game is
// ruled a draw (the reference engine's stand-in for the 50-move rule).
const noProgressLimit = 60

// ReferenceEngine is a bounded stand-in RulesEngine:
// an 8x8 board, pawns with their usual pushes and
// diagonal captures, and every other piece sliding like a queen. Capturing
// the opposing king ends the game immediately in place of check/checkmate
// detection, which this engine does not model.
type ReferenceEngine struct {
	board  [64]int8 // positive = white, negative = black, magnitude = piece code
	active Color

	plyCount     int
	captureCount int
	noProgress   int

	status      GameStatus
	termination experience.TerminationReason
}

// NewReferenceEngine returns a ReferenceEngine set to its starting
// position.
func NewReferenceEngine() *ReferenceEngine {
	e := &ReferenceEngine{}
	e.Reset()
	return e
}

func (e *ReferenceEngine) Reset() {
	for i := range e.board {
		e.board[i] = 0
	}
	backRank := [8]int8{pieceRook, pieceKnight, pieceBishop, pieceQueen, pieceKing, pieceBishop, pieceKnight, pieceRook}
	for col := 0; col < 8; col++ {
		e.board[0*8+col] = -backRank[col]
		e.board[1*8+col] = -piecePawn
		e.board[6*8+col] = piecePawn
		e.board[7*8+col] = backRank[col]
	}
	e.active = White
	e.plyCount = 0
	e.captureCount = 0
	e.noProgress = 0
	e.status = Ongoing
	e.termination = experience.TerminationNone
}

func colorOf(p int8) Color {
	if p > 0 {
		return White
	}
	return Black
}

func codeOf(p int8) int {
	if p < 0 {
		return int(-p)
	}
	return int(p)
}

func inBounds(row, col int) bool { return row >= 0 && row < 8 && col >= 0 && col < 8 }

// LegalActions returns every pseudo-legal move for the active color, each
// encoded as from*64+to.
func (e *ReferenceEngine) LegalActions() []int {
	var moves []int
	for sq := 0; sq < 64; sq++ {
		p := e.board[sq]
		if p == 0 || colorOf(p) != e.active {
			continue
		}
		if codeOf(p) == piecePawn {
			moves = append(moves, e.pawnMoves(sq)...)
		} else {
			moves = append(moves, e.sliderMoves(sq)...)
		}
	}
	return moves
}

func (e *ReferenceEngine) pawnMoves(sq int) []int {
	row, col := sq/8, sq%8
	var dir int
	var startRow int
	if e.active == White {
		dir, startRow = -1, 6
	} else {
		dir, startRow = 1, 1
	}

	var moves []int
	// forward push
	if r1 := row + dir; inBounds(r1, col) && e.board[r1*8+col] == 0 {
		moves = append(moves, sq*64+r1*8+col)
		if row == startRow {
			if r2 := row + 2*dir; inBounds(r2, col) && e.board[r2*8+col] == 0 {
				moves = append(moves, sq*64+r2*8+col)
			}
		}
	}
	// diagonal captures
	for _, dc := range []int{-1, 1} {
		r, c := row+dir, col+dc
		if !inBounds(r, c) {
			continue
		}
		target := e.board[r*8+c]
		if target != 0 && colorOf(target) != e.active {
			moves = append(moves, sq*64+r*8+c)
		}
	}
	return moves
}

var sliderDirs = [8][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}, {-1, -1}, {-1, 1}, {1, -1}, {1, 1}}

func (e *ReferenceEngine) sliderMoves(sq int) []int {
	row, col := sq/8, sq%8
	var moves []int
	for _, d := range sliderDirs {
		r, c := row+d[0], col+d[1]
		for inBounds(r, c) {
			target := e.board[r*8+c]
			if target == 0 {
				moves = append(moves, sq*64+r*8+c)
			} else {
				if colorOf(target) != e.active {
					moves = append(moves, sq*64+r*8+c)
				}
				break
			}
			r += d[0]
			c += d[1]
		}
	}
	return moves
}

// MakeMove applies the given from*64+to move for the side to move. It
// rejects moves outside LegalActions with a plain error; env.Environment
// wraps it in trainerr.ErrEnvironment before returning it from Step.
func (e *ReferenceEngine) MakeMove(action int) (bool, error) {
	if !containsAction(e.LegalActions(), action) {
		return false, fmt.Errorf("env: illegal action %d for %s to move", action, e.active)
	}
	from, to := action/64, action%64

	moving := e.board[from]
	captured := e.board[to]
	isCapture := captured != 0

	e.board[to] = moving
	e.board[from] = 0

	if isCapture {
		e.captureCount++
		e.noProgress = 0
		if codeOf(captured) == pieceKing {
			if e.active == White {
				e.status = WhiteWins
			} else {
				e.status = BlackWins
			}
			e.termination = experience.TerminationCheckmate
		}
	} else if codeOf(moving) == piecePawn {
		e.noProgress = 0
	} else {
		e.noProgress++
	}

	e.plyCount++
	e.active = e.active.Opponent()

	if e.status == Ongoing {
		if e.noProgress >= noProgressLimit {
			e.status = Draw
			e.termination = experience.TerminationDrawRule
		} else if len(e.LegalActions()) == 0 {
			e.status = Draw
			e.termination = experience.TerminationStalemate
		}
	}

	return isCapture, nil
}

func containsAction(actions []int, action int) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func (e *ReferenceEngine) IsTerminal() bool   { return e.status != Ongoing }
func (e *ReferenceEngine) Status() GameStatus { return e.status }

func (e *ReferenceEngine) TerminationReason() experience.TerminationReason {
	return e.termination
}

func (e *ReferenceEngine) ActiveColor() Color { return e.active }

// Encode returns a 64-element board vector from the active color's
// perspective: positive entries are the mover's own material, negative
// entries are the opponent's, scaled by the classic pawn=1..queen=9 table
// divided by 9. The board is not mirrored for Black to move: a square
// index means the same square for both sides, so the encoding carries no
// positional symmetry between White and Black.
func (e *ReferenceEngine) Encode() []float64 {
	out := make([]float64, 64)
	for i, p := range e.board {
		if p == 0 {
			continue
		}
		v := pieceValue[codeOf(p)] / 9
		if colorOf(p) != e.active {
			v = -v
		}
		out[i] = v
	}
	return out
}

// FEN renders a simplified, non-standard board string: eight ranks
// separated by '/', digits for empty runs, letters for pieces (uppercase
// white), followed by the active color's initial. It is not a standard
// FEN string (no castling/en-passant/halfmove fields, since this engine
// models neither).
func (e *ReferenceEngine) FEN() string {
	var b strings.Builder
	for row := 0; row < 8; row++ {
		empty := 0
		for col := 0; col < 8; col++ {
			p := e.board[row*8+col]
			if p == 0 {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			letter := pieceLetter[codeOf(p)]
			if colorOf(p) == White {
				letter = strings.ToUpper(letter)
			}
			b.WriteString(letter)
		}
		if empty > 0 {
			b.WriteString(strconv.Itoa(empty))
		}
		if row != 7 {
			b.WriteByte('/')
		}
	}
	b.WriteByte(' ')
	if e.active == White {
		b.WriteByte('w')
	} else {
		b.WriteByte('b')
	}
	return b.String()
}

// Metrics reports game length, captures, and a legal-move-rate proxy.
// Check detection is not modeled by this engine, so CheckCount is always
// 0.
func (e *ReferenceEngine) Metrics() ChessMetrics {
	return ChessMetrics{
		GameLength:    e.plyCount,
		CaptureCount:  e.captureCount,
		CheckCount:    0,
		LegalMoveRate: float64(len(e.LegalActions())) / 64.0,
	}
}

func (e *ReferenceEngine) Clone() RulesEngine {
	clone := *e
	return &clone
}
