package dispatch

import (
	"context"
	"log"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// LogDispatcher logs sends instead of delivering them. Used when no
// provider URLs are configured (local development).
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher { return &LogDispatcher{} }

func (d *LogDispatcher) SendSMS(ctx context.Context, workspaceID, to, body string) domain.DispatchResult {
	log.Printf("[dispatch] sms workspace=%s to=%s body=%q", workspaceID, to, body)
	return domain.DispatchResult{Success: true}
}

func (d *LogDispatcher) SendEmail(ctx context.Context, workspaceID, to, subject, body string) domain.DispatchResult {
	log.Printf("[dispatch] email workspace=%s to=%s subject=%q", workspaceID, to, subject)
	return domain.DispatchResult{Success: true}
}

func (d *LogDispatcher) SendVoice(ctx context.Context, workspaceID, to, script string) domain.DispatchResult {
	log.Printf("[dispatch] voice workspace=%s to=%s", workspaceID, to)
	return domain.DispatchResult{Success: true}
}
