package model

import (
	"time"

	"github.com/holehole5566/connecthub/internal/domain/enums"
)

type Message struct {
	ID         string              `json:"id"`
	Seq        int64               `json:"-"`
	MatchID    int64               `json:"match_id"`
	FromUserID int64               `json:"from_user_id"`
	Text       string              `json:"text"`
	SentAt     time.Time           `json:"sent_at"`
	Status     enums.MessageStatus `json:"status"`
}

// Before orders messages by sent_at, then by insertion sequence.
func (m Message) Before(other Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	return m.Seq < other.Seq
}
