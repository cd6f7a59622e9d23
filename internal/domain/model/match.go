package model

import "time"

type Match struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	MatchedUserID int64     `json:"matched_user_id"`
	MatchedAt     time.Time `json:"matched_at"`
	LastMessageID *string   `json:"last_message_id,omitempty"`
	IsNewMatch    bool      `json:"is_new_match"`
}

// Involves reports whether userID is one of the two participants, whichever column holds it.
func (m Match) Involves(userID int64) bool {
	return userID > 0 && (m.UserID == userID || m.MatchedUserID == userID)
}

// OtherUserID returns the participant that is not userID.
func (m Match) OtherUserID(userID int64) int64 {
	if m.UserID == userID {
		return m.MatchedUserID
	}
	return m.UserID
}

// CanonicalPair orders an unordered user pair so that both column orders map to one key.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
