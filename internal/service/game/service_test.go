package game

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"chessweb/internal/domain"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryRepository(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func mustMove(t *testing.T, svc *Service, owner, src, dst string) *Snapshot {
	t.Helper()
	snap, err := svc.SubmitMove(context.Background(), owner, MoveRequest{Source: src, Destination: dst})
	if err != nil {
		t.Fatalf("SubmitMove %s%s: %v", src, dst, err)
	}
	return snap
}

func assertUnchanged(t *testing.T, before, after *Snapshot) {
	t.Helper()
	if before.FEN != after.FEN {
		t.Fatalf("FEN changed after rejected move: %q vs %q", before.FEN, after.FEN)
	}
	if before.Version != after.Version {
		t.Fatalf("version changed after rejected move: %d vs %d", before.Version, after.Version)
	}
	if !reflect.DeepEqual(before.MovesUCI, after.MovesUCI) {
		t.Fatalf("history changed after rejected move: %v vs %v", before.MovesUCI, after.MovesUCI)
	}
	if before.Turn != after.Turn {
		t.Fatalf("turn changed after rejected move: %q vs %q", before.Turn, after.Turn)
	}
}

func TestGetOrCreateStartingPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	snap, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if snap.FEN != startingFEN {
		t.Fatalf("unexpected starting FEN: %q", snap.FEN)
	}
	if snap.Turn != "white" {
		t.Fatalf("expected white to move, got %q", snap.Turn)
	}
	if snap.MoveCount != 0 || len(snap.MovesUCI) != 0 {
		t.Fatalf("expected empty history, got %v", snap.MovesUCI)
	}
	for sq, want := range map[string]string{
		"a1": "wR", "b1": "wN", "c1": "wB", "d1": "wQ", "e1": "wK",
		"e2": "wP", "e7": "bP", "a8": "bR", "d8": "bQ", "e8": "bK",
	} {
		if got := snap.Squares[sq]; got != want {
			t.Fatalf("square %s: expected %s, got %q", sq, want, got)
		}
	}
	if _, occupied := snap.Squares["e4"]; occupied {
		t.Fatalf("expected e4 to be empty on a fresh board")
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate #1: %v", err)
	}
	second, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate #2: %v", err)
	}
	if first.GameUUID != second.GameUUID {
		t.Fatalf("GetOrCreate created a second game: %q vs %q", first.GameUUID, second.GameUUID)
	}
	assertUnchanged(t, first, second)
}

func TestSubmitMovePawnAdvance(t *testing.T) {
	svc := newTestService(t)

	snap := mustMove(t, svc, "u1", "e2", "e4")
	if snap.Turn != "black" {
		t.Fatalf("expected turn to flip to black, got %q", snap.Turn)
	}
	if len(snap.MovesUCI) != 1 || snap.MovesUCI[0] != "e2e4" {
		t.Fatalf("unexpected history: %v", snap.MovesUCI)
	}
	if snap.MovesSAN[0] != "e4" {
		t.Fatalf("unexpected SAN: %v", snap.MovesSAN)
	}
	if got := snap.Squares["e4"]; got != "wP" {
		t.Fatalf("expected wP on e4, got %q", got)
	}
	if _, occupied := snap.Squares["e2"]; occupied {
		t.Fatalf("expected e2 to be vacated")
	}
}

func TestSubmitMoveOutOfTurn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	_, err = svc.SubmitMove(ctx, "u1", MoveRequest{Source: "e7", Destination: "e5"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindOutOfTurn {
		t.Fatalf("expected out_of_turn rejection, got %v", err)
	}

	after, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate after rejection: %v", err)
	}
	assertUnchanged(t, before, after)
}

func TestSubmitMoveEmptySource(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitMove(ctx, "u1", MoveRequest{Source: "e4", Destination: "e5"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindOutOfTurn || verr.Code != "empty_source" {
		t.Fatalf("expected empty_source rejection, got %v", err)
	}
}

func TestSubmitMoveOwnPieceCapture(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// White rook a1 onto white pawn a2.
	_, err = svc.SubmitMove(ctx, "u1", MoveRequest{Source: "a1", Destination: "a2"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindIllegalDestination || verr.Code != "own_piece" {
		t.Fatalf("expected own_piece rejection, got %v", err)
	}

	after, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("GetOrCreate after rejection: %v", err)
	}
	assertUnchanged(t, before, after)
}

func TestSubmitMoveIllegalDestination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Pawn cannot advance three squares.
	_, err := svc.SubmitMove(ctx, "u1", MoveRequest{Source: "e2", Destination: "e5"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindIllegalDestination {
		t.Fatalf("expected illegal_destination rejection, got %v", err)
	}
}

func TestSubmitMoveMalformedRequest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, req := range []MoveRequest{
		{Source: "", Destination: "e4"},
		{Source: "z9", Destination: "e4"},
		{Source: "e2", Destination: "e44"},
		{Source: "e2", Destination: "e4", Promotion: "k"},
	} {
		_, err := svc.SubmitMove(ctx, "u1", req)
		verr, ok := AsValidation(err)
		if !ok || verr.Kind != KindMalformedRequest {
			t.Fatalf("expected malformed_request for %+v, got %v", req, err)
		}
	}
}

func TestTurnAlternatesAndHistoryGrows(t *testing.T) {
	svc := newTestService(t)

	moves := [][2]string{{"e2", "e4"}, {"e7", "e5"}, {"g1", "f3"}, {"b8", "c6"}}
	wantTurns := []string{"black", "white", "black", "white"}
	for i, mv := range moves {
		snap := mustMove(t, svc, "u1", mv[0], mv[1])
		if snap.Turn != wantTurns[i] {
			t.Fatalf("after move %d expected turn %s, got %s", i+1, wantTurns[i], snap.Turn)
		}
		if len(snap.MovesUCI) != i+1 {
			t.Fatalf("after move %d expected history length %d, got %d", i+1, i+1, len(snap.MovesUCI))
		}
	}
}

func TestHistoryRecords(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mustMove(t, svc, "u1", "e2", "e4")
	mustMove(t, svc, "u1", "e7", "e5")

	records, err := svc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []domain.MoveRecord{
		{Index: 1, Color: "white", UCI: "e2e4", SAN: "e4"},
		{Index: 2, Color: "black", UCI: "e7e5", SAN: "e5"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("unexpected history records: %+v", records)
	}
}

func TestPromotion(t *testing.T) {
	svc := newTestService(t)

	// March the a-pawn to b7 and promote by capturing the a8 rook.
	for _, mv := range [][2]string{
		{"a2", "a4"}, {"h7", "h6"},
		{"a4", "a5"}, {"h6", "h5"},
		{"a5", "a6"}, {"h5", "h4"},
		{"a6", "b7"}, {"h4", "h3"},
	} {
		mustMove(t, svc, "u1", mv[0], mv[1])
	}

	snap, err := svc.SubmitMove(context.Background(), "u1", MoveRequest{Source: "b7", Destination: "a8", Promotion: "q"})
	if err != nil {
		t.Fatalf("promotion move: %v", err)
	}
	if got := snap.Squares["a8"]; got != "wQ" {
		t.Fatalf("expected promoted queen on a8, got %q", got)
	}
}

func TestGameOverRejectsFurtherMoves(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Fool's mate.
	mustMove(t, svc, "u1", "f2", "f3")
	mustMove(t, svc, "u1", "e7", "e5")
	mustMove(t, svc, "u1", "g2", "g4")
	snap := mustMove(t, svc, "u1", "d8", "h4")

	if snap.Outcome != "black" || snap.Method != "checkmate" {
		t.Fatalf("expected black checkmate, got outcome=%q method=%q", snap.Outcome, snap.Method)
	}

	_, err := svc.SubmitMove(ctx, "u1", MoveRequest{Source: "a2", Destination: "a3"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindGameOver {
		t.Fatalf("expected game_over rejection, got %v", err)
	}

	// A reset starts a fresh game that accepts moves again.
	reset, err := svc.Reset(ctx, "u1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.FEN != startingFEN || reset.MoveCount != 0 {
		t.Fatalf("reset did not restore the starting position: %q", reset.FEN)
	}
	if reset.GameUUID == snap.GameUUID {
		t.Fatalf("reset kept the finished game's UUID")
	}
	mustMove(t, svc, "u1", "e2", "e4")
}

// conflictRepo forces Update to fail with ErrVersionConflict for the first
// n calls, then delegates.
type conflictRepo struct {
	Repository
	remaining int
}

func (c *conflictRepo) Update(ctx context.Context, state *domain.BoardState, expectedVersion int64) error {
	if c.remaining > 0 {
		c.remaining--
		return ErrVersionConflict
	}
	return c.Repository.Update(ctx, state, expectedVersion)
}

func TestSubmitMoveRetriesOnceOnConflict(t *testing.T) {
	repo := &conflictRepo{Repository: NewMemoryRepository(), remaining: 1}
	svc, err := NewService(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	snap, err := svc.SubmitMove(context.Background(), "u1", MoveRequest{Source: "e2", Destination: "e4"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(snap.MovesUCI) != 1 {
		t.Fatalf("unexpected history after retried move: %v", snap.MovesUCI)
	}
}

func TestSubmitMoveSurfacesRepeatedConflict(t *testing.T) {
	repo := &conflictRepo{Repository: NewMemoryRepository(), remaining: 2}
	svc, err := NewService(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.SubmitMove(context.Background(), "u1", MoveRequest{Source: "e2", Destination: "e4"})
	verr, ok := AsValidation(err)
	if !ok || verr.Kind != KindConcurrentModification || !verr.Retryable {
		t.Fatalf("expected retryable concurrent_modification, got %v", err)
	}
	if errors.Is(err, ErrVersionConflict) {
		t.Fatalf("raw version conflict escaped the service: %v", err)
	}
}

func TestBoardsAreIsolatedPerUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mustMove(t, svc, "u1", "e2", "e4")
	other, err := svc.GetOrCreate(ctx, "u2")
	if err != nil {
		t.Fatalf("GetOrCreate u2: %v", err)
	}
	if other.FEN != startingFEN || len(other.MovesUCI) != 0 {
		t.Fatalf("u2 board affected by u1 moves: %q %v", other.FEN, other.MovesUCI)
	}
}
