package web

import (
	"fmt"

	"chessweb/internal/domain"
	"chessweb/internal/service/game"
)

type boardCell struct {
	Square string // "e4"
	Glyph  string // unicode chess glyph, empty when vacant
	Dark   bool
}

type boardRow struct {
	Rank  int
	Cells []boardCell
}

var pieceGlyphs = map[string]string{
	"wK": "♔", "wQ": "♕", "wR": "♖",
	"wB": "♗", "wN": "♘", "wP": "♙",
	"bK": "♚", "bQ": "♛", "bR": "♜",
	"bB": "♝", "bN": "♞", "bP": "♟",
}

// boardRows lays out the squares map for rendering, rank 8 at the top the
// way white sees the board.
func boardRows(squares map[string]string) []boardRow {
	rows := make([]boardRow, 0, 8)
	for rank := 8; rank >= 1; rank-- {
		row := boardRow{Rank: rank, Cells: make([]boardCell, 0, 8)}
		for file := 0; file < 8; file++ {
			sq := fmt.Sprintf("%c%d", 'a'+file, rank)
			row.Cells = append(row.Cells, boardCell{
				Square: sq,
				Glyph:  pieceGlyphs[squares[sq]],
				Dark:   (file+rank)%2 == 1,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

type pageData struct {
	Title    string
	Username string // logged-in user, empty on the auth pages
}

type boardPage struct {
	pageData
	Board     []boardRow
	Turn      string
	MoveCount int
	GameOver  bool
	Result    string // rendered outcome line, empty while in progress
	Flash     string
	FlashErr  bool
}

type historyPage struct {
	pageData
	GameUUID  string
	Moves     []domain.MoveRecord
	MoveCount int
	Result    string
}

type authPage struct {
	pageData
	Error        string
	FormUsername string
	FormEmail    string
	FormFirst    string
	FormLast     string
}

type staticPage struct {
	pageData
}

func resultLine(snap *game.Snapshot) string {
	switch snap.Outcome {
	case "white":
		return "White wins by " + snap.Method + "."
	case "black":
		return "Black wins by " + snap.Method + "."
	case "draw":
		return "Draw by " + snap.Method + "."
	default:
		return ""
	}
}
