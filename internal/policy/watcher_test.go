package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleFile), 0o644); err != nil {
		t.Fatal(err)
	}

	s, _ := NewStore(nil)
	f, _ := LoadFile(path)
	if err := s.ApplyFile(f); err != nil {
		t.Fatalf("ApplyFile() error = %v", err)
	}

	reloaded := make(chan *File, 4)
	w, err := NewWatcher(path, s, zap.NewNop().Sugar(), func(f *File) { reloaded <- f })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// An invalid edit keeps the previous rules
	if err := os.WriteFile(path, []byte("rules: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := len(s.Rules()); got != 2 {
		t.Fatalf("invalid file changed the store to %d rules", got)
	}

	// An emptied file keeps them too
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := len(s.Rules()); got != 2 {
		t.Fatalf("empty file changed the store to %d rules", got)
	}

	updated := `
rules:
  - id: only
    name: Only Rule
    enabled: true
    pattern: secret
    content_types: [prompt]
    severity: critical
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		rules := s.Rules()
		return len(rules) == 1 && rules[0].ID == "only"
	})
	select {
	case f := <-reloaded:
		if len(f.Rules) != 1 || f.Rules[0].ID != "only" {
			t.Errorf("onReload got %+v, want the updated file", f.Rules)
		}
	case <-time.After(time.Second):
		t.Error("onReload was not called")
	}
}
