package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind identifies what happened
type Kind string

const (
	KindRuleError          Kind = "rule.error"
	KindInteractionBlocked Kind = "interaction.blocked"
	KindIncidentCreated    Kind = "incident.created"
	KindIncidentUpdated    Kind = "incident.updated"
	KindDerivationGap      Kind = "incident.derivation_gap"
	KindRuleUpdated        Kind = "rule.updated"
)

// Level is the display level of an event
type Level string

const (
	LevelInfo        Level = "info"
	LevelWarning     Level = "warning"
	LevelDestructive Level = "destructive"
)

// Event is an advisory notification for the operator
type Event struct {
	Kind    Kind      `json:"kind"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	RuleID  string    `json:"rule_id,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier receives events for display. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogNotifier writes events to the application log
type LogNotifier struct {
	logger *zap.SugaredLogger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	kv := []interface{}{"kind", event.Kind, "title", event.Title}
	if event.RuleID != "" {
		kv = append(kv, "rule_id", event.RuleID)
	}
	switch event.Level {
	case LevelDestructive:
		n.logger.Errorw(event.Message, kv...)
	case LevelWarning:
		n.logger.Warnw(event.Message, kv...)
	default:
		n.logger.Infow(event.Message, kv...)
	}
}

// DefaultChannel is the Redis channel events are published on
const DefaultChannel = "monitor:notifications"

// RedisNotifier publishes events as JSON on a Redis channel for UI subscribers
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	logger  *zap.SugaredLogger
}

// NewRedisNotifier creates a notifier that publishes on channel
func NewRedisNotifier(rdb *redis.Client, channel string, logger *zap.SugaredLogger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warnf("⚠️  Failed to encode notification: %v", err)
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warnf("⚠️  Failed to publish notification to %s: %v", n.channel, err)
	}
}

// Multi fans an event out to several notifiers in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events have the given kind
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Warning builds a warning event
func Warning(kind Kind, title, format string, args ...interface{}) Event {
	return Event{
		Kind:    kind,
		Level:   LevelWarning,
		Title:   title,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now().UTC(),
	}
}
