package domain

import "time"

// BoardState is the persisted record of one user's in-progress game.
// There is at most one per owner; MovesUCI is append-only and the full
// position is reproducible by replaying it from the standard start.
type BoardState struct {
	Owner     string
	GameUUID  string
	MovesUCI  []string
	FEN       string
	Turn      string
	Version   int64
	StartedAt time.Time
	UpdatedAt time.Time
}

// MoveRecord is one applied move as shown on the history page.
type MoveRecord struct {
	Index int
	Color string
	UCI   string
	SAN   string
}
