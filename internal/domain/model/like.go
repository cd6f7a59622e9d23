package model

import (
	"time"

	"github.com/holehole5566/connecthub/internal/domain/enums"
)

type Like struct {
	ID         int64          `json:"id"`
	FromUserID int64          `json:"from_user_id"`
	ToUserID   int64          `json:"to_user_id"`
	Type       enums.LikeType `json:"type"`
	CreatedAt  time.Time      `json:"created_at"`
}
