package app

import (
	"log/slog"
	"testing"

	"github.com/MrWong99/scriptvox/internal/classify"
	"github.com/MrWong99/scriptvox/internal/config"
	"github.com/MrWong99/scriptvox/pkg/types"
)

func TestLiveClassifier_Store(t *testing.T) {
	t.Parallel()
	lc := newLiveClassifier(classify.Default())
	if got := lc.Classify("pardon"); got != types.Unrecognized {
		t.Fatalf("before reload: %q", got)
	}
	lc.Store(classify.New(classify.Keywords{Repeat: []string{"pardon"}}))
	if got := lc.Classify("pardon"); got != types.Repeat {
		t.Errorf("after reload: %q", got)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	level := new(slog.LevelVar)
	a := &App{classifier: newLiveClassifier(classify.Default()), levelVar: level}

	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	updated := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogDebug},
		Classifier: config.ClassifierConfig{Keywords: classify.Keywords{Repeat: []string{"pardon"}}},
	}
	a.applyConfig(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if got := a.classifier.Classify("pardon me"); got != types.Repeat {
		t.Errorf("Classify after reload = %q, want repeat", got)
	}
	// Default sets survive a partial override.
	if got := a.classifier.Classify("sure"); got != types.Affirmative {
		t.Errorf("Classify(sure) = %q", got)
	}
}
