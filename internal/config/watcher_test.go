package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/scriptvox/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  tts:
    name: google
  stt:
    name: vosk
    base_url: ws://localhost:2700
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  tts:
    name: google
  stt:
    name: vosk
    base_url: ws://localhost:2700
classifier:
  keywords:
    repeat: ["pardon"]
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's modification time forward so the watcher sees a
// change even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	future := time.Now().Add(by)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

// newWatcher writes body to a temp file and watches it.
func newWatcher(t *testing.T, body string, onChange func(old, new *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, body)
	w, err := config.NewWatcher(path, onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newWatcher(t, watcherValidYAML, nil)
	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	var diffs []config.ConfigDiff
	w, path := newWatcher(t, watcherValidYAML, func(old, new *config.Config) {
		diffs = append(diffs, config.Diff(old, new))
	})

	if changed, err := w.Reload(); changed || err != nil {
		t.Fatalf("untouched file: changed=%v err=%v", changed, err)
	}

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path, 2*time.Second)
	changed, err := w.Reload()
	if !changed || err != nil {
		t.Fatalf("edited file: changed=%v err=%v", changed, err)
	}
	if len(diffs) != 1 || !diffs[0].LogLevelChanged || diffs[0].NewLogLevel != config.LogDebug || !diffs[0].KeywordsChanged {
		t.Errorf("diffs = %+v", diffs)
	}
	if got := w.Current().Classifier.Keywords.Repeat; len(got) != 1 || got[0] != "pardon" {
		t.Errorf("Current() repeat keywords = %v", got)
	}
}

func TestWatcher_TouchIsNotAChange(t *testing.T) {
	t.Parallel()
	calls := 0
	w, path := newWatcher(t, watcherValidYAML, func(_, _ *config.Config) { calls++ })

	bumpMtime(t, path, 2*time.Second)
	if changed, err := w.Reload(); changed || err != nil {
		t.Fatalf("touch: changed=%v err=%v", changed, err)
	}
	if calls != 0 {
		t.Errorf("callback invoked %d times", calls)
	}
}

func TestWatcher_InvalidEditKeepsConfig(t *testing.T) {
	t.Parallel()
	calls := 0
	w, path := newWatcher(t, watcherValidYAML, func(_, _ *config.Config) { calls++ })

	writeFile(t, path, watcherInvalidYAML)
	bumpMtime(t, path, 2*time.Second)
	if _, err := w.Reload(); err == nil {
		t.Fatal("expected validation error")
	}
	if calls != 0 || w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("invalid edit applied: calls=%d level=%q", calls, w.Current().Server.LogLevel)
	}

	// Fixing the file afterwards is picked up.
	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path, 4*time.Second)
	if changed, err := w.Reload(); !changed || err != nil {
		t.Fatalf("fixed file: changed=%v err=%v", changed, err)
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	reloaded := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) { reloaded <- new }, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path, 2*time.Second)
	select {
	case cfg := <-reloaded:
		if cfg.Server.LogLevel != config.LogDebug {
			t.Errorf("reloaded level = %q", cfg.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never reloaded the edited file")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
