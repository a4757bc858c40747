package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestFilter(t *testing.T) {
	f, err := NewFilter("robot", []string{"results", "*_tmp.*"})
	if err != nil {
		t.Fatal(err)
	}
	if f.Ext() != ".robot" {
		t.Errorf("ext = %q", f.Ext())
	}
	cases := map[string]bool{
		"/ws/a.robot":         true,
		"/ws/A.ROBOT":         true,
		"/ws/a.resource":      false,
		"/ws/draft_tmp.robot": false,
		"/ws/results":         false,
	}
	for path, want := range cases {
		if got := f.Match(path); got != want {
			t.Errorf("Match(%s) = %v, want %v", path, got, want)
		}
	}
	if !f.Excluded("/ws/results") {
		t.Error("results dir should be excluded")
	}
	f.Ignore("/ws/db")
	if !f.Excluded("/ws/db") || !f.Excluded("/ws/db/x-0.json") || f.Excluded("/ws/dbx/a.robot") {
		t.Error("ignored tree not honoured")
	}
	if !f.Related("/ws/lib.py") || f.Related("/ws/db/x.json") || f.Related("/ws/notes.txt") {
		t.Error("related files misclassified")
	}

	if _, err := NewFilter("", nil); err == nil {
		t.Error("expected error for empty extension")
	}
}

func TestWatch_DebouncedChange(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "results"), 0o755); err != nil {
		t.Fatal(err)
	}
	filter, err := NewFilter("robot", []string{"results"})
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var batches [][]string
	go Watch(ctx, root, filter, 100*time.Millisecond, logger, func(_ context.Context, paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(root, "new.robot")
	_ = os.WriteFile(target, []byte("*** Test Cases ***\n"), 0o644)
	_ = os.WriteFile(target, []byte("*** Test Cases ***\nT\n    No Operation\n"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "results", "out.robot"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) > 0
	}, "watcher did not report the change")

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(batches[0], target) {
		t.Errorf("batch = %v, want %s", batches[0], target)
	}
	for _, b := range batches {
		for _, p := range b {
			if filepath.Ext(p) != ".robot" || filepath.Dir(p) != root {
				t.Errorf("unexpected path reported: %s", p)
			}
		}
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	filter, _ := NewFilter("robot", nil)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, filter, 0, logger, func(context.Context, []string) {})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
