package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/classify"
	"github.com/MrWong99/scriptvox/internal/observe"
	"github.com/MrWong99/scriptvox/internal/session"
	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/scriptvox/pkg/provider/tts/mock"
	sttmock "github.com/MrWong99/scriptvox/pkg/provider/stt/mock"
	"github.com/MrWong99/scriptvox/pkg/types"
)

var quoteScript = []string{"Are you the homeowner?", "Do you want a quote?"}

func quoteBot(id string, line int) *botstore.Bot {
	return &botstore.Bot{
		ID:       id,
		Script:   append([]string(nil), quoteScript...),
		Voice:    "en-GB-Standard-A",
		IsActive: true,
		Progress: botstore.Progress{CurrentLine: line},
	}
}

type fixture struct {
	engine *session.Engine
	store  *botstore.MemStore
	tts    *ttsmock.Provider
	stt    *sttmock.Provider
}

func newFixture(t *testing.T, opts []session.Option, bots ...*botstore.Bot) *fixture {
	t.Helper()
	store, err := botstore.NewMemStore(bots...)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	f := &fixture{store: store, tts: &ttsmock.Provider{}, stt: &sttmock.Provider{}}

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	synth := tts.NewSynthesizer(f.tts, &audio.MemorySlot{})
	f.engine, err = session.New(store, synth, f.stt, classify.Default(),
		append([]session.Option{session.WithMetrics(m)}, opts...)...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return f
}

func (f *fixture) line(t *testing.T, id string) int {
	t.Helper()
	b, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%q): %v", id, err)
	}
	return b.Progress.CurrentLine
}

func TestSpeakAndListen_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start      int
		transcript string
		wantClass  types.Classification
		wantLine   int
		wantNext   string
		wantEnded  bool
		wantDone   bool
	}{
		{name: "yeah sure advances", start: 0, transcript: "yeah sure", wantClass: types.Affirmative, wantLine: 1, wantNext: "Do you want a quote?"},
		{name: "no thanks ends", start: 1, transcript: "no thanks", wantClass: types.Negative, wantLine: 1, wantEnded: true},
		{name: "sorry what repeats", start: 1, transcript: "sorry what", wantClass: types.Repeat, wantLine: 1, wantNext: "Do you want a quote?"},
		{name: "mumble holds", start: 0, transcript: "hmm", wantClass: types.Unrecognized, wantLine: 0, wantNext: "Are you the homeowner?"},
		{name: "yes on last line finishes", start: 1, transcript: "yes please", wantClass: types.Affirmative, wantLine: 2, wantDone: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil, quoteBot("b", tt.start))
			f.stt.Transcripts = []string{tt.transcript}

			out, err := f.engine.SpeakAndListen(context.Background(), "b")
			if err != nil {
				t.Fatalf("SpeakAndListen: %v", err)
			}
			if out.Transcript != tt.transcript || out.Classification != tt.wantClass {
				t.Errorf("transcript/class = %q/%q, want %q/%q", out.Transcript, out.Classification, tt.transcript, tt.wantClass)
			}
			if out.PreviousLine != tt.start || out.CurrentLine != tt.wantLine {
				t.Errorf("lines = %d -> %d, want %d -> %d", out.PreviousLine, out.CurrentLine, tt.start, tt.wantLine)
			}
			if tt.wantNext == "" {
				if out.NextLine != nil {
					t.Errorf("NextLine = %q, want nil", *out.NextLine)
				}
			} else if out.NextLine == nil || *out.NextLine != tt.wantNext {
				t.Errorf("NextLine = %v, want %q", out.NextLine, tt.wantNext)
			}
			if out.Ended != tt.wantEnded || out.Done != tt.wantDone {
				t.Errorf("ended/done = %v/%v, want %v/%v", out.Ended, out.Done, tt.wantEnded, tt.wantDone)
			}
			if tt.wantEnded && out.Message != session.MessageEnded {
				t.Errorf("Message = %q", out.Message)
			}
			if got := f.line(t, "b"); got != tt.wantLine {
				t.Errorf("stored line = %d, want %d", got, tt.wantLine)
			}

			calls := f.tts.SynthesizeCalls
			if len(calls) != 1 || calls[0].Text != quoteScript[tt.start] || calls[0].Voice.ID != "en-GB-Standard-A" {
				t.Errorf("synthesize calls = %+v", calls)
			}
		})
	}
}

func TestSpeakAndListen_Blocked(t *testing.T) {
	t.Parallel()

	archived := quoteBot("archived", 1)
	archived.IsArchived = true
	inactive := quoteBot("inactive", 0)
	inactive.IsActive = false

	f := newFixture(t, nil, archived, inactive)
	f.stt.Transcripts = []string{"yes"}

	for _, id := range []string{"archived", "inactive"} {
		start := f.line(t, id)
		_, err := f.engine.SpeakAndListen(context.Background(), id)
		if !errors.Is(err, types.ErrForbidden) {
			t.Errorf("%s: err = %v, want forbidden", id, err)
		}
		if got := f.line(t, id); got != start {
			t.Errorf("%s: line = %d, want %d", id, got, start)
		}
	}
	if f.tts.CallCount() != 0 || f.stt.CallCount() != 0 {
		t.Errorf("providers called: tts=%d stt=%d", f.tts.CallCount(), f.stt.CallCount())
	}
}

func TestSpeakAndListen_Exhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("done", len(quoteScript)))
	out, err := f.engine.SpeakAndListen(context.Background(), "done")
	if err != nil {
		t.Fatalf("SpeakAndListen: %v", err)
	}
	if !out.Done || out.Message != session.MessageExhausted || out.State != session.StateExhausted {
		t.Errorf("outcome = %+v", out)
	}
	if f.tts.CallCount() != 0 || f.stt.CallCount() != 0 {
		t.Errorf("providers called: tts=%d stt=%d", f.tts.CallCount(), f.stt.CallCount())
	}
}

func TestSpeakAndListen_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.engine.SpeakAndListen(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSpeakAndListen_SynthesisFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	f.tts.SynthesizeErr = errors.New("upstream unavailable")

	_, err := f.engine.SpeakAndListen(context.Background(), "b")
	if !errors.Is(err, types.ErrSynthesis) {
		t.Fatalf("err = %v, want synthesis", err)
	}
	if f.stt.CallCount() != 0 {
		t.Error("recognizer called after synthesis failure")
	}
	if got := f.line(t, "b"); got != 0 {
		t.Errorf("line = %d, want 0", got)
	}
}

func TestSpeakAndListen_RecognitionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		stage error
	}{
		{"connection", types.NewError(types.KindConnection, "vosk.recognize", "closed before transcript", nil), types.ErrConnection},
		{"protocol", types.NewError(types.KindProtocol, "vosk.recognize", "bad frame", nil), types.ErrProtocol},
		{"timeout", types.NewError(types.KindTimeout, "vosk.recognize", "no transcript within 1s", nil), types.ErrTimeout},
		{"plain", errors.New("boom"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil, quoteBot("b", 0))
			f.stt.Err = tt.err

			_, err := f.engine.SpeakAndListen(context.Background(), "b")
			if !errors.Is(err, types.ErrRecognition) {
				t.Fatalf("err = %v, want recognition", err)
			}
			if tt.stage != nil && !errors.Is(err, tt.stage) {
				t.Errorf("err = %v, want stage %v", err, tt.stage)
			}
			if types.KindOf(err) != types.KindRecognition {
				t.Errorf("KindOf = %q", types.KindOf(err))
			}
			if got := f.line(t, "b"); got != 0 {
				t.Errorf("line = %d, want 0", got)
			}
		})
	}
}

func TestSpeakAndListen_RecognitionErrorNotRewrapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	recErr := types.NewError(types.KindRecognition, "vosk.recognize", "open audio asset", audio.ErrAssetReplaced)
	f.stt.Err = recErr

	_, err := f.engine.SpeakAndListen(context.Background(), "b")
	if err != recErr {
		t.Fatalf("err = %v, want the recognizer error unchanged", err)
	}
}

func TestSpeakAndListen_RetryAfterDropAdvancesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	f.stt.Errs = []error{types.NewError(types.KindConnection, "vosk.recognize", "connection closed", nil)}
	f.stt.Transcripts = []string{"yes"}

	if _, err := f.engine.SpeakAndListen(context.Background(), "b"); !errors.Is(err, types.ErrConnection) {
		t.Fatalf("first attempt: err = %v, want connection", err)
	}
	if got := f.line(t, "b"); got != 0 {
		t.Fatalf("line after failure = %d, want 0", got)
	}

	out, err := f.engine.SpeakAndListen(context.Background(), "b")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out.CurrentLine != 1 || f.line(t, "b") != 1 {
		t.Errorf("after retry: outcome line %d, stored %d; want 1", out.CurrentLine, f.line(t, "b"))
	}
	if n := f.tts.CallCount(); n != 2 {
		t.Errorf("synthesize calls = %d, want 2", n)
	}
}

func TestSpeakAndListen_ConcurrentAdvanceConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	f.stt.Transcripts = []string{"yes"}
	f.stt.OnRecognize = func(ctx context.Context, _ types.AudioAsset) {
		if err := f.store.UpdateProgress(ctx, "b", 0, 1); err != nil {
			t.Errorf("competing write: %v", err)
		}
	}

	_, err := f.engine.SpeakAndListen(context.Background(), "b")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if got := f.line(t, "b"); got != 1 {
		t.Errorf("line = %d, want 1 (the competing write only)", got)
	}
}

func TestSpeakAndListen_ArchivedDuringRecognition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	f.stt.Transcripts = []string{"yes"}
	f.stt.OnRecognize = func(ctx context.Context, _ types.AudioAsset) {
		if _, err := f.store.SetArchived(ctx, "b", true); err != nil {
			t.Errorf("archive: %v", err)
		}
	}

	if _, err := f.engine.SpeakAndListen(context.Background(), "b"); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if got := f.line(t, "b"); got != 0 {
		t.Errorf("line = %d, want 0", got)
	}
}

func TestSpeakAndListen_SerializesAudioSlot(t *testing.T) {
	t.Parallel()

	const bots = 4
	var seed []*botstore.Bot
	for i := range bots {
		seed = append(seed, quoteBot(string(rune('a'+i)), 0))
	}
	f := newFixture(t, nil, seed...)
	f.stt.Transcripts = []string{"yes"}

	var inFlight, peak atomic.Int32
	f.stt.OnRecognize = func(context.Context, types.AudioAsset) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}

	var wg sync.WaitGroup
	for _, b := range seed {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.engine.SpeakAndListen(context.Background(), id); err != nil {
				t.Errorf("%s: %v", id, err)
			}
		}(b.ID)
	}
	wg.Wait()

	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent recognitions = %d, want 1", p)
	}
	for _, b := range seed {
		if got := f.line(t, b.ID); got != 1 {
			t.Errorf("%s: line = %d, want 1", b.ID, got)
		}
	}
}

func TestSpeakAndListen_CancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("a", 0), quoteBot("b", 0))
	f.stt.Transcripts = []string{"yes"}

	release := make(chan struct{})
	entered := make(chan struct{})
	f.stt.OnRecognize = func(_ context.Context, _ types.AudioAsset) {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.SpeakAndListen(context.Background(), "a")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.engine.SpeakAndListen(ctx, "b"); err == nil {
		t.Error("expected error for cancelled turn")
	}
	if got := f.line(t, "b"); got != 0 {
		t.Errorf("b line = %d, want 0", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first turn: %v", err)
	}
}

func TestSpeakAndListen_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	archived := quoteBot("archived", 0)
	archived.IsArchived = true
	f := newFixture(t, []session.Option{session.WithMetrics(m)}, quoteBot("b", 0), archived)
	f.stt.Transcripts = []string{"yeah"}

	_, _ = f.engine.SpeakAndListen(context.Background(), "b")
	_, _ = f.engine.SpeakAndListen(context.Background(), "archived")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			seen[met.Name] = true
		}
	}
	for _, name := range []string{
		"scriptvox.turn.duration",
		"scriptvox.tts.duration",
		"scriptvox.stt.duration",
		"scriptvox.classifications",
		"scriptvox.transitions",
		"scriptvox.turns.blocked",
	} {
		if !seen[name] {
			t.Errorf("metric %q not recorded", name)
		}
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	archived := quoteBot("archived", 1)
	archived.IsArchived = true
	f := newFixture(t, nil, quoteBot("b", 2), quoteBot("fresh", 0), archived)
	ctx := context.Background()

	if err := f.engine.Reset(ctx, "b"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := f.line(t, "b"); got != 0 {
		t.Errorf("line = %d, want 0", got)
	}
	if err := f.engine.Reset(ctx, "fresh"); err != nil {
		t.Errorf("Reset at 0: %v", err)
	}
	if err := f.engine.Reset(ctx, "archived"); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("archived: err = %v, want forbidden", err)
	}
	if got := f.line(t, "archived"); got != 1 {
		t.Errorf("archived line = %d, want 1", got)
	}
	if err := f.engine.Reset(ctx, "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("ghost: err = %v, want not found", err)
	}
}

func TestArchiveRestore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 0))
	f.stt.Transcripts = []string{"yes"}
	ctx := context.Background()

	b, err := f.engine.Archive(ctx, "b")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !b.IsArchived || b.ArchivedAt == nil {
		t.Errorf("Archive = %+v", b)
	}
	if _, err := f.engine.SpeakAndListen(ctx, "b"); !errors.Is(err, types.ErrForbidden) {
		t.Errorf("turn on archived bot: err = %v", err)
	}

	b, err = f.engine.Restore(ctx, "b")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if b.IsArchived || b.RestoredAt == nil {
		t.Errorf("Restore = %+v", b)
	}
	if _, err := f.engine.SpeakAndListen(ctx, "b"); err != nil {
		t.Errorf("turn after restore: %v", err)
	}

	if _, err := f.engine.Archive(ctx, "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("ghost: err = %v, want not found", err)
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	b, err := f.engine.Create(ctx, session.CreateParams{ID: " new ", Script: quoteScript})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID != "new" || b.Voice != botstore.DefaultVoice || !b.IsActive || b.IsArchived || b.Progress.CurrentLine != 0 {
		t.Errorf("Create = %+v", b)
	}

	if _, err := f.engine.Create(ctx, session.CreateParams{ID: "new", Script: quoteScript}); !errors.Is(err, types.ErrConflict) {
		t.Errorf("duplicate: err = %v, want conflict", err)
	}
	if _, err := f.engine.Create(ctx, session.CreateParams{ID: "empty"}); !errors.Is(err, types.ErrInvalid) {
		t.Errorf("no script: err = %v, want invalid", err)
	}

	custom, err := f.engine.Create(ctx, session.CreateParams{ID: "custom", Script: []string{"Hi"}, Voice: "en-AU-Neural2-B"})
	if err != nil {
		t.Fatalf("Create custom: %v", err)
	}
	if custom.Voice != "en-AU-Neural2-B" {
		t.Errorf("Voice = %q", custom.Voice)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, quoteBot("b", 1), quoteBot("done", 2))
	ctx := context.Background()

	s, err := f.engine.Status(ctx, "b")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if s.CurrentLine != 1 || s.TotalLines != 2 || s.Done || s.Line == nil || *s.Line != "Do you want a quote?" {
		t.Errorf("Status = %+v", s)
	}

	s, err = f.engine.Status(ctx, "done")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !s.Done || s.Line != nil {
		t.Errorf("Status(done) = %+v", s)
	}
	if f.tts.CallCount() != 0 {
		t.Error("Status must not synthesize")
	}
}

func TestTestVoice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	asset, err := f.engine.TestVoice(context.Background(), "Testing one two", "")
	if err != nil {
		t.Fatalf("TestVoice: %v", err)
	}
	if asset.Size == 0 {
		t.Error("empty asset")
	}
	calls := f.tts.SynthesizeCalls
	if len(calls) != 1 || calls[0].Voice.ID != botstore.DefaultVoice || calls[0].Text != "Testing one two" {
		t.Errorf("synthesize calls = %+v", calls)
	}
	if f.stt.CallCount() != 0 {
		t.Error("TestVoice must not recognize")
	}

	if _, err := f.engine.TestVoice(context.Background(), "  ", ""); !errors.Is(err, types.ErrSynthesis) {
		t.Errorf("blank text: err = %v, want synthesis", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := session.New(nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"store", "synthesizer", "recognizer", "classifier"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
