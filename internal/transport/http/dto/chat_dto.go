package dto

import "time"

type SendMessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	ID                string    `json:"id"`
	MatchID           int64     `json:"match_id"`
	FromUserID        int64     `json:"from_user_id"`
	Text              string    `json:"text"`
	SentAt            time.Time `json:"sent_at"`
	Status            string    `json:"status"`
	IsFromCurrentUser bool      `json:"is_from_current_user"`
}

type MessagesResponse struct {
	Items []MessageResponse `json:"items"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
