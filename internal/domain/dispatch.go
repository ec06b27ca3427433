package domain

import "context"

// DispatchResult reports the outcome of one send attempt. Permanent
// means the input can never succeed (bad address, opt-out) and the
// caller should not retry.
type DispatchResult struct {
	Success   bool
	Error     string
	Permanent bool
}

// ChannelDispatcher abstracts the outbound providers. Any gateway
// satisfying this contract is interchangeable; the engine makes no
// delivery guarantee stronger than the provider's (at-least-once).
type ChannelDispatcher interface {
	SendSMS(ctx context.Context, workspaceID, to, body string) DispatchResult
	SendEmail(ctx context.Context, workspaceID, to, subject, body string) DispatchResult
	SendVoice(ctx context.Context, workspaceID, to, script string) DispatchResult
}
