package dto

import "time"

type LikeRequest struct {
	TargetUserID int64  `json:"target_user_id" validate:"required,gt=0"`
	LikeType     string `json:"like_type"`
}

type MatchResponse struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	MatchedUserID int64     `json:"matched_user_id"`
	MatchedAt     time.Time `json:"matched_at"`
	IsNewMatch    bool      `json:"is_new_match"`
}

type LikeResponse struct {
	IsMatch             bool           `json:"is_match"`
	Match               *MatchResponse `json:"match,omitempty"`
	LikesRemaining      *int           `json:"likes_remaining,omitempty"`
	SuperLikesRemaining *int           `json:"super_likes_remaining,omitempty"`
	LikesResetAt        *time.Time     `json:"likes_reset_at,omitempty"`
}

type UserSummaryResponse struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	FirstName string   `json:"first_name"`
	Age       int      `json:"age"`
	Photos    []string `json:"photos"`
	City      string   `json:"city,omitempty"`
}

type LastMessageResponse struct {
	Text              string    `json:"text"`
	SentAt            time.Time `json:"sent_at"`
	IsFromCurrentUser bool      `json:"is_from_current_user"`
}

type MatchItemResponse struct {
	MatchID     int64                `json:"match_id"`
	OtherUser   UserSummaryResponse  `json:"other_user"`
	MatchedAt   time.Time            `json:"matched_at"`
	IsNewMatch  bool                 `json:"is_new_match"`
	LastMessage *LastMessageResponse `json:"last_message,omitempty"`
}

type MatchesResponse struct {
	Items []MatchItemResponse `json:"items"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}
