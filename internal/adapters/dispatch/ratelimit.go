package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// RateLimitedDispatcher wraps another dispatcher with a per-workspace
// daily send cap tracked in Redis. An over-cap send fails transiently so
// the job backs off into the next budget window instead of dropping the
// message.
type RateLimitedDispatcher struct {
	next     domain.ChannelDispatcher
	rdb      *redis.Client
	dailyCap int64
}

func NewRateLimitedDispatcher(next domain.ChannelDispatcher, rdb *redis.Client, dailyCap int64) *RateLimitedDispatcher {
	return &RateLimitedDispatcher{next: next, rdb: rdb, dailyCap: dailyCap}
}

func (d *RateLimitedDispatcher) SendSMS(ctx context.Context, workspaceID, to, body string) domain.DispatchResult {
	if res, ok := d.reserve(ctx, workspaceID); !ok {
		return res
	}
	return d.next.SendSMS(ctx, workspaceID, to, body)
}

func (d *RateLimitedDispatcher) SendEmail(ctx context.Context, workspaceID, to, subject, body string) domain.DispatchResult {
	if res, ok := d.reserve(ctx, workspaceID); !ok {
		return res
	}
	return d.next.SendEmail(ctx, workspaceID, to, subject, body)
}

func (d *RateLimitedDispatcher) SendVoice(ctx context.Context, workspaceID, to, script string) domain.DispatchResult {
	if res, ok := d.reserve(ctx, workspaceID); !ok {
		return res
	}
	return d.next.SendVoice(ctx, workspaceID, to, script)
}

// reserve consumes one unit of today's budget. Redis being down never
// blocks sends; the cap is protective, not load-bearing.
func (d *RateLimitedDispatcher) reserve(ctx context.Context, workspaceID string) (domain.DispatchResult, bool) {
	if d.rdb == nil || d.dailyCap <= 0 {
		return domain.DispatchResult{}, true
	}

	key := fmt.Sprintf("sendcap:%s:%s", workspaceID, time.Now().UTC().Format("2006-01-02"))
	count, err := d.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[dispatch] rate limiter unavailable, allowing send: %v", err)
		return domain.DispatchResult{}, true
	}
	if count == 1 {
		d.rdb.Expire(ctx, key, 48*time.Hour)
	}
	if count > d.dailyCap {
		return domain.DispatchResult{
			Success: false,
			Error:   fmt.Sprintf("daily send cap reached for workspace %s", workspaceID),
		}, false
	}
	return domain.DispatchResult{}, true
}
