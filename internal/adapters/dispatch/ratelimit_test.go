package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type countingDispatcher struct {
	calls int64
}

func (d *countingDispatcher) SendSMS(ctx context.Context, workspaceID, to, body string) domain.DispatchResult {
	atomic.AddInt64(&d.calls, 1)
	return domain.DispatchResult{Success: true}
}

func (d *countingDispatcher) SendEmail(ctx context.Context, workspaceID, to, subject, body string) domain.DispatchResult {
	atomic.AddInt64(&d.calls, 1)
	return domain.DispatchResult{Success: true}
}

func (d *countingDispatcher) SendVoice(ctx context.Context, workspaceID, to, script string) domain.DispatchResult {
	atomic.AddInt64(&d.calls, 1)
	return domain.DispatchResult{Success: true}
}

func TestNoCapPassesThrough(t *testing.T) {
	next := &countingDispatcher{}
	d := NewRateLimitedDispatcher(next, nil, 0)

	res := d.SendSMS(context.Background(), "ws-1", "+15550100", "hello")

	assert.True(t, res.Success)
	assert.Equal(t, int64(1), atomic.LoadInt64(&next.calls))
}

func TestRedisDownFailsOpen(t *testing.T) {
	next := &countingDispatcher{}
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	d := NewRateLimitedDispatcher(next, rdb, 10)

	res := d.SendEmail(context.Background(), "ws-1", "maria@example.com", "subject", "hello")

	assert.True(t, res.Success, "an unreachable limiter must not block sends")
	assert.Equal(t, int64(1), atomic.LoadInt64(&next.calls))
}
