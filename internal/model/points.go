package model

import "time"

// PointsEntry is one row of the append-only points ledger. The user's
// balance on the users table is the sum of their entries; the ledger
// exists so awards and redemptions can be audited after the event.
type PointsEntry struct {
	ID        string    `json:"id"`
	UserUUID  string    `json:"userUuid"`
	Delta     int       `json:"delta"` // positive = award, negative = redemption
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardEntry is a single row of the points leaderboard.
type LeaderboardEntry struct {
	UUID   string `json:"uuid"`
	Email  string `json:"email"`
	Points int    `json:"points"`
}
