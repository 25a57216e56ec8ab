package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifier_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(zap.New(core).Sugar())

	tests := []struct {
		level Level
		want  zapcore.Level
	}{
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarning, zapcore.WarnLevel},
		{LevelDestructive, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		n.Notify(context.Background(), Event{Kind: KindRuleError, Level: tt.level, Title: "t", Message: string(tt.level), RuleID: "rule-1"})
	}

	entries := logs.All()
	if len(entries) != len(tests) {
		t.Fatalf("logged %d entries, want %d", len(entries), len(tests))
	}
	for i, tt := range tests {
		if entries[i].Level != tt.want {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, tt.want)
		}
		if entries[i].ContextMap()["rule_id"] != "rule-1" {
			t.Errorf("entry %d missing rule_id field: %v", i, entries[i].ContextMap())
		}
	}
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Nop{}, b}

	m.Notify(context.Background(), Warning(KindIncidentCreated, "Policy Violation Detected", "%d violation(s) found", 2))

	for name, r := range map[string]*Recorder{"a": a, "b": b} {
		events := r.Events()
		if len(events) != 1 {
			t.Fatalf("recorder %s got %d events, want 1", name, len(events))
		}
		if events[0].Message != "2 violation(s) found" || events[0].Level != LevelWarning {
			t.Errorf("recorder %s got %+v", name, events[0])
		}
	}
	if a.Count(KindIncidentCreated) != 1 || a.Count(KindRuleError) != 0 {
		t.Errorf("Count() = %d/%d, want 1/0", a.Count(KindIncidentCreated), a.Count(KindRuleError))
	}
}
