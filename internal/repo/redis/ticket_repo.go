package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const ticketPrefix = "chat_ticket:"

type TicketRepo struct {
	client *goredis.Client
}

func NewTicketRepo(client *goredis.Client) *TicketRepo {
	return &TicketRepo{client: client}
}

// Consume marks the ticket id as used. It returns false when the id was
// already consumed.
func (r *TicketRepo) Consume(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(ticketID) == "" {
		return false, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	ok, err := r.client.SetNX(ctx, ticketPrefix+ticketID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume chat ticket: %w", err)
	}
	return ok, nil
}
