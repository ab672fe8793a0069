package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chessweb/internal/domain"
)

const startingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Service owns exactly one BoardState per user: created lazily on first
// access, mutated only through a validated move submission, persisted through
// the Repository. Concurrent submissions for the same user serialize on the
// repository's version compare-and-update; Service retries a conflicting
// submission once before reporting it.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// MoveRequest is a proposed move as submitted from the page form.
type MoveRequest struct {
	Source      string
	Destination string
	Promotion   string // optional: q, r, b or n
}

// Snapshot is a read-only view of one user's board, safe to hand to the
// renderer.
type Snapshot struct {
	Owner     string
	GameUUID  string
	FEN       string
	Turn      string
	MovesUCI  []string
	MovesSAN  []string
	MoveCount int
	Squares   map[string]string // "e2" -> "wP"; empty squares absent
	Outcome   string            // "", "white", "black", "draw"
	Method    string            // "", "checkmate", "stalemate", ...
	StartedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

func NewService(repo Repository, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("game repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}, nil
}

// GetOrCreate returns the owner's board, creating a fresh standard-starting-
// position board when none exists. Idempotent.
func (s *Service) GetOrCreate(ctx context.Context, owner string) (*Snapshot, error) {
	state, err := s.loadOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	g, err := replayState(state)
	if err != nil {
		return nil, err
	}
	return snapshotFromGame(state, g), nil
}

// SubmitMove validates and applies one move for owner. On any validation
// failure the stored board is left untouched and a *ValidationError is
// returned. A version conflict against the repository is retried once.
func (s *Service) SubmitMove(ctx context.Context, owner string, req MoveRequest) (*Snapshot, error) {
	src, dst, promo, verr := normalizeRequest(req)
	if verr != nil {
		return nil, verr
	}

	snap, err := s.applyMove(ctx, owner, src, dst, promo)
	if errors.Is(err, ErrVersionConflict) {
		s.logger.Debug("board version conflict, retrying move",
			zap.String("owner", owner),
			zap.String("move", src+dst+promo),
		)
		snap, err = s.applyMove(ctx, owner, src, dst, promo)
	}
	if errors.Is(err, ErrVersionConflict) {
		return nil, &ValidationError{
			Kind:      KindConcurrentModification,
			Code:      "concurrent_modification",
			Message:   "board changed while the move was being applied",
			Retryable: true,
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("move accepted",
		zap.String("owner", owner),
		zap.String("move", src+dst+promo),
		zap.Int("move_count", snap.MoveCount),
		zap.String("turn", snap.Turn),
	)
	return snap, nil
}

// Reset replaces the owner's board with a fresh starting position under a new
// game UUID. The previous history is discarded.
func (s *Service) Reset(ctx context.Context, owner string) (*Snapshot, error) {
	snap, err := s.resetOnce(ctx, owner)
	if errors.Is(err, ErrVersionConflict) {
		snap, err = s.resetOnce(ctx, owner)
	}
	if errors.Is(err, ErrVersionConflict) {
		return nil, &ValidationError{
			Kind:      KindConcurrentModification,
			Code:      "concurrent_modification",
			Message:   "board changed while it was being reset",
			Retryable: true,
		}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("board reset", zap.String("owner", owner), zap.String("game_uuid", snap.GameUUID))
	return snap, nil
}

// History lists the applied moves of the owner's current game in order.
func (s *Service) History(ctx context.Context, owner string) ([]domain.MoveRecord, error) {
	state, err := s.loadOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	g, err := replayState(state)
	if err != nil {
		return nil, err
	}
	return moveRecords(g), nil
}

func (s *Service) applyMove(ctx context.Context, owner, src, dst, promo string) (*Snapshot, error) {
	state, err := s.loadOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	g, err := replayState(state)
	if err != nil {
		return nil, err
	}

	if g.Outcome() != nchess.NoOutcome {
		return nil, rejected(KindGameOver, "game_over", "game already finished")
	}

	pos := g.Position()
	board := pos.Board()
	piece := board.Piece(squareAt(src))
	if piece == nchess.NoPiece {
		return nil, rejected(KindOutOfTurn, "empty_source", "no piece at the source square")
	}
	if piece.Color() != pos.Turn() {
		return nil, rejected(KindOutOfTurn, "out_of_turn", fmt.Sprintf("it is %s's turn", colorName(pos.Turn())))
	}
	if dest := board.Piece(squareAt(dst)); dest != nchess.NoPiece && dest.Color() == piece.Color() {
		return nil, rejected(KindIllegalDestination, "own_piece", "cannot capture your own piece")
	}

	uciText := src + dst + promo
	notation := nchess.UCINotation{}
	move, err := notation.Decode(pos, uciText)
	if err != nil {
		return nil, rejected(KindIllegalDestination, "illegal_destination", "illegal move for that piece")
	}
	if err := g.Move(move, nil); err != nil {
		return nil, rejected(KindIllegalDestination, "illegal_destination", "illegal move for that piece")
	}

	expected := state.Version
	state.MovesUCI = append(state.MovesUCI, uciText)
	state.FEN = g.FEN()
	state.Turn = colorName(g.Position().Turn())
	state.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, state, expected); err != nil {
		return nil, err
	}
	state.Version = expected + 1
	return snapshotFromGame(state, g), nil
}

func (s *Service) resetOnce(ctx context.Context, owner string) (*Snapshot, error) {
	state, err := s.loadOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}

	expected := state.Version
	now := time.Now()
	state.GameUUID = uuid.NewString()
	state.MovesUCI = []string{}
	state.FEN = startingFEN
	state.Turn = "white"
	state.StartedAt = now
	state.UpdatedAt = now

	if err := s.repo.Update(ctx, state, expected); err != nil {
		return nil, err
	}
	state.Version = expected + 1
	return snapshotFromGame(state, nchess.NewGame()), nil
}

func (s *Service) loadOrCreate(ctx context.Context, owner string) (*domain.BoardState, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	state, err := s.repo.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	now := time.Now()
	state = &domain.BoardState{
		Owner:     owner,
		GameUUID:  uuid.NewString(),
		MovesUCI:  []string{},
		FEN:       startingFEN,
		Turn:      "white",
		Version:   1,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, state); err != nil {
		// Lost a creation race with another request for the same user.
		if errors.Is(err, ErrDuplicateBoard) {
			existing, gerr := s.repo.Get(ctx, owner)
			if gerr != nil {
				return nil, gerr
			}
			if existing == nil {
				return nil, ErrNotFound
			}
			return existing, nil
		}
		return nil, err
	}
	s.logger.Info("board created", zap.String("owner", owner), zap.String("game_uuid", state.GameUUID))
	return state, nil
}

func normalizeRequest(req MoveRequest) (src, dst, promo string, verr *ValidationError) {
	src = strings.ToLower(strings.TrimSpace(req.Source))
	dst = strings.ToLower(strings.TrimSpace(req.Destination))
	promo = strings.ToLower(strings.TrimSpace(req.Promotion))

	if !validSquare(src) || !validSquare(dst) {
		return "", "", "", rejected(KindMalformedRequest, "malformed_request", "squares must look like e2")
	}
	switch promo {
	case "", "q", "r", "b", "n":
	default:
		return "", "", "", rejected(KindMalformedRequest, "malformed_request", "promotion must be q, r, b or n")
	}
	return src, dst, promo, nil
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func squareAt(s string) nchess.Square {
	file := nchess.FileA + nchess.File(s[0]-'a')
	rank := nchess.Rank1 + nchess.Rank(s[1]-'1')
	return nchess.NewSquare(file, rank)
}

func replayState(state *domain.BoardState) (*nchess.Game, error) {
	g := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range state.MovesUCI {
		move, err := notation.Decode(g.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := g.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return g, nil
}

func snapshotFromGame(state *domain.BoardState, g *nchess.Game) *Snapshot {
	positions := g.Positions()
	moves := g.Moves()
	sanMoves := make([]string, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i < len(positions) {
			sanMoves[i] = notation.Encode(positions[i], mv)
		}
	}

	squares := make(map[string]string)
	for sq, piece := range g.Position().Board().SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		squares[sq.String()] = pieceCode(piece)
	}

	return &Snapshot{
		Owner:     state.Owner,
		GameUUID:  state.GameUUID,
		FEN:       g.FEN(),
		Turn:      colorName(g.Position().Turn()),
		MovesUCI:  append([]string(nil), state.MovesUCI...),
		MovesSAN:  sanMoves,
		MoveCount: len(moves),
		Squares:   squares,
		Outcome:   outcomeName(g.Outcome()),
		Method:    methodName(g.Method()),
		StartedAt: state.StartedAt,
		UpdatedAt: state.UpdatedAt,
		Version:   state.Version,
	}
}

func moveRecords(g *nchess.Game) []domain.MoveRecord {
	positions := g.Positions()
	moves := g.Moves()
	notation := nchess.AlgebraicNotation{}
	uci := nchess.UCINotation{}

	records := make([]domain.MoveRecord, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		records = append(records, domain.MoveRecord{
			Index: i + 1,
			Color: colorName(positions[i].Turn()),
			UCI:   strings.ToLower(uci.Encode(positions[i], mv)),
			SAN:   notation.Encode(positions[i], mv),
		})
	}
	return records
}

func colorName(c nchess.Color) string {
	switch c {
	case nchess.White:
		return "white"
	case nchess.Black:
		return "black"
	default:
		return ""
	}
}

func pieceCode(p nchess.Piece) string {
	var color byte
	switch p.Color() {
	case nchess.White:
		color = 'w'
	case nchess.Black:
		color = 'b'
	default:
		return ""
	}
	var kind byte
	switch p.Type() {
	case nchess.Pawn:
		kind = 'P'
	case nchess.Knight:
		kind = 'N'
	case nchess.Bishop:
		kind = 'B'
	case nchess.Rook:
		kind = 'R'
	case nchess.Queen:
		kind = 'Q'
	case nchess.King:
		kind = 'K'
	default:
		return ""
	}
	return string([]byte{color, kind})
}

func outcomeName(o nchess.Outcome) string {
	switch o {
	case nchess.WhiteWon:
		return "white"
	case nchess.BlackWon:
		return "black"
	case nchess.Draw:
		return "draw"
	default:
		return ""
	}
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.Resignation:
		return "resignation"
	case nchess.DrawOffer:
		return "draw_offer"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return ""
	}
}
