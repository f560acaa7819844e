package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the session service and the auth endpoints.
const (
	EventTokenRedeemed      = "token_redeemed"
	EventTokenRejected      = "token_rejected"
	EventSessionEstablished = "session_established"
	EventLogout             = "logout"
)

// Event is one security-relevant outcome. It never carries a full magic link
// token or a session credential.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	AppID       string            `json:"app_id,omitempty"`
	TokenPrefix string            `json:"token_prefix,omitempty"`
	IP          string            `json:"ip,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Success     bool              `json:"success"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// ZapSink writes each event as one structured log entry on a dedicated
// "audit" logger.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	if s == nil || s.log == nil {
		return
	}
	fields := []zap.Field{
		zap.Time("event_time", event.Timestamp),
		zap.Bool("success", event.Success),
	}
	if event.AppID != "" {
		fields = append(fields, zap.String("app_id", event.AppID))
	}
	if event.TokenPrefix != "" {
		fields = append(fields, zap.String("token_prefix", event.TokenPrefix))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}
	s.log.Info(event.EventType, fields...)
}
