// Package session runs the scripted conversation loop for a bot.
//
// One turn of [Engine.SpeakAndListen] reads the bot, speaks the current script
// line, recognizes the reply, classifies it and persists the resulting
// position. The engine keeps no bot state between turns: every call re-reads
// the store and re-checks the archived and active flags, and the position is
// written back with a compare-and-set on the index that was read.
//
// Synthesis writes into a single audio slot, so the engine serializes turns
// from synthesis through recognition. A turn that fails at any stage leaves
// the stored position unchanged and can be repeated as-is.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/observe"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// Synthesizer renders text in a voice and stores it as the current audio
// asset.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (types.AudioAsset, error)
}

// Recognizer streams an audio asset to a recognition service and returns the
// first committed transcript.
type Recognizer interface {
	Recognize(ctx context.Context, asset types.AudioAsset) (types.RecognitionResult, error)
}

// Classifier labels a transcript. It must be pure and never fail.
type Classifier interface {
	Classify(text string) types.Classification
}

// Engine drives speak-and-listen turns and the bot management operations
// that share its store. It is safe for concurrent use.
type Engine struct {
	store      botstore.Store
	synth      Synthesizer
	recognizer Recognizer
	classifier Classifier

	metrics *observe.Metrics
	logger  *slog.Logger

	// audio admits one turn at a time to the single audio slot.
	audio *semaphore.Weighted
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger. When unset, a trace-aware logger is derived
// from each request context via [observe.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over the given collaborators.
func New(store botstore.Store, synth Synthesizer, recognizer Recognizer, classifier Classifier, opts ...Option) (*Engine, error) {
	var errs []error
	if store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if synth == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if recognizer == nil {
		errs = append(errs, errors.New("recognizer is required"))
	}
	if classifier == nil {
		errs = append(errs, errors.New("classifier is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	e := &Engine{
		store:      store,
		synth:      synth,
		recognizer: recognizer,
		classifier: classifier,
		audio:      semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	if e.logger == nil {
		return observe.Logger(ctx)
	}
	if id := observe.BotID(ctx); id != "" {
		return e.logger.With("bot_id", id)
	}
	return e.logger
}

// SpeakAndListen runs one turn for botID.
//
// Archived or inactive bots fail with a Forbidden error. A bot whose script
// is exhausted returns an Outcome with Done set and nothing is synthesized.
// Synthesis failures surface as Synthesis errors; every recognition-stage
// failure surfaces as a Recognition error wrapping the specific cause. When
// another writer moved the position during the turn, the turn fails with a
// Conflict error and does not retry.
func (e *Engine) SpeakAndListen(ctx context.Context, botID string) (_ *Outcome, err error) {
	const op = "session.speak_and_listen"
	start := time.Now()

	ctx, span := observe.StartSpan(observe.WithBotID(ctx, botID), op)
	defer span.End()
	defer func() {
		observe.Fail(span, err)
		e.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	e.metrics.ActiveTurns.Add(ctx, 1)
	defer e.metrics.ActiveTurns.Add(ctx, -1)

	bot, err := e.store.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	enter(ctx, StateIdle)
	if err := e.guard(ctx, op, bot); err != nil {
		enter(ctx, StateBlocked)
		return nil, err
	}
	if bot.Exhausted() {
		enter(ctx, StateExhausted)
		e.metrics.RecordTransition(ctx, "exhausted")
		return &Outcome{
			BotID:        bot.ID,
			State:        StateExhausted,
			PreviousLine: bot.Progress.CurrentLine,
			CurrentLine:  bot.Progress.CurrentLine,
			Done:         true,
			Message:      MessageExhausted,
		}, nil
	}

	prev := bot.Progress.CurrentLine
	line, _ := bot.Line(prev)
	log := e.log(ctx).With("line", prev)

	result, err := e.speakAndListen(ctx, op, line, bot.Voice)
	if err != nil {
		log.Warn("turn failed", "err", err)
		return nil, err
	}

	enter(ctx, StateClassifying)
	class := e.classifier.Classify(result.Transcript)
	e.metrics.RecordClassification(ctx, string(class))
	span.SetAttributes(attribute.String("classification", string(class)))

	t := Next(class, prev, len(bot.Script))
	enter(ctx, StateAdvancing)
	if t.Advanced() {
		if err := e.store.UpdateProgress(ctx, bot.ID, prev, t.NextLine); err != nil {
			if errors.Is(err, types.ErrConflict) {
				e.metrics.ProgressConflicts.Add(ctx, 1)
			}
			log.Warn("progress not saved", "next", t.NextLine, "err", err)
			return nil, err
		}
	}
	e.metrics.RecordTransition(ctx, t.outcome())
	log.Info("turn complete", "classification", class, "next", t.NextLine)

	out := &Outcome{
		BotID:          bot.ID,
		State:          StateAdvancing,
		Transcript:     result.Transcript,
		Classification: class,
		PreviousLine:   prev,
		CurrentLine:    t.NextLine,
	}
	switch {
	case t.Ended:
		out.Ended = true
		out.Message = MessageEnded
	case t.Terminal:
		out.Done = true
		out.Message = MessageExhausted
	default:
		next, _ := bot.Line(t.NextLine)
		out.NextLine = &next
	}
	return out, nil
}

// speakAndListen holds the audio slot for one synthesis and the recognition
// of its reply.
func (e *Engine) speakAndListen(ctx context.Context, op, line, voice string) (types.RecognitionResult, error) {
	if err := e.audio.Acquire(ctx, 1); err != nil {
		return types.RecognitionResult{}, types.NewError(types.KindInternal, op, "waiting for audio slot", err)
	}
	defer e.audio.Release(1)

	enter(ctx, StateSynthesizing)
	asset, err := e.synthesize(ctx, op, line, voice)
	if err != nil {
		return types.RecognitionResult{}, err
	}

	recStart := time.Now()
	recCtx, span := observe.StartSpan(ctx, "stt.recognize")
	enter(ctx, StateRecognizing)
	result, err := e.recognizer.Recognize(recCtx, asset)
	e.metrics.STTDuration.Record(ctx, time.Since(recStart).Seconds())
	if err != nil {
		observe.Fail(span, err)
		err = recognitionError(op, err)
	}
	span.End()
	return result, err
}

func (e *Engine) synthesize(ctx context.Context, op, text, voice string) (types.AudioAsset, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "tts.synthesize", attribute.String("voice", voice))
	defer span.End()

	asset, err := e.synth.Synthesize(ctx, text, voice)
	e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Bool("ok", err == nil)))
	if err != nil {
		if types.KindOf(err) != types.KindSynthesis {
			err = types.NewError(types.KindSynthesis, op, "synthesis failed", err)
		}
		observe.Fail(span, err)
		return types.AudioAsset{}, err
	}
	return asset, nil
}

// enter records a state change on the turn's span.
func enter(ctx context.Context, s State) {
	trace.SpanFromContext(ctx).AddEvent("state", trace.WithAttributes(attribute.String("state", s.String())))
}

// recognitionError wraps err in the Recognition umbrella kind, keeping the
// stage kind reachable through errors.Is.
func recognitionError(op string, err error) error {
	kind := types.KindOf(err)
	if kind == types.KindRecognition {
		return err
	}
	detail := string(kind)
	var te *types.Error
	if errors.As(err, &te) && te.Detail != "" {
		detail += ": " + te.Detail
	}
	return types.NewError(types.KindRecognition, op, detail, err)
}

// guard refuses turns for archived or inactive bots.
func (e *Engine) guard(ctx context.Context, op string, bot *botstore.Bot) error {
	switch {
	case bot.IsArchived:
		e.metrics.RecordBlocked(ctx, "archived")
		return types.NewError(types.KindForbidden, op, fmt.Sprintf("bot %q is archived", bot.ID), nil)
	case !bot.IsActive:
		e.metrics.RecordBlocked(ctx, "inactive")
		return types.NewError(types.KindForbidden, op, fmt.Sprintf("bot %q is inactive", bot.ID), nil)
	}
	return nil
}

// Reset moves botID back to the first script line. Archived bots cannot be
// reset.
func (e *Engine) Reset(ctx context.Context, botID string) error {
	const op = "session.reset"
	bot, err := e.store.Get(ctx, botID)
	if err != nil {
		return err
	}
	if bot.IsArchived {
		return types.NewError(types.KindForbidden, op, fmt.Sprintf("bot %q is archived", bot.ID), nil)
	}
	if bot.Progress.CurrentLine == 0 {
		return nil
	}
	if err := e.store.UpdateProgress(ctx, bot.ID, bot.Progress.CurrentLine, 0); err != nil {
		return err
	}
	e.log(ctx).Info("session reset", "bot_id", bot.ID, "from", bot.Progress.CurrentLine)
	return nil
}

// Archive marks botID read-only for the conversation loop.
func (e *Engine) Archive(ctx context.Context, botID string) (*botstore.Bot, error) {
	b, err := e.store.SetArchived(ctx, botID, true)
	if err != nil {
		return nil, err
	}
	e.log(ctx).Info("bot archived", "bot_id", botID)
	return b, nil
}

// Restore clears the archived flag on botID.
func (e *Engine) Restore(ctx context.Context, botID string) (*botstore.Bot, error) {
	b, err := e.store.SetArchived(ctx, botID, false)
	if err != nil {
		return nil, err
	}
	e.log(ctx).Info("bot restored", "bot_id", botID)
	return b, nil
}

// CreateParams describes a new bot.
type CreateParams struct {
	ID     string
	Name   string
	Script []string
	Voice  string
}

// Create stores a new active bot at the start of its script. An empty voice
// selects [botstore.DefaultVoice].
func (e *Engine) Create(ctx context.Context, p CreateParams) (*botstore.Bot, error) {
	voice := strings.TrimSpace(p.Voice)
	if voice == "" {
		voice = botstore.DefaultVoice
	}
	b := &botstore.Bot{
		ID:       strings.TrimSpace(p.ID),
		Name:     p.Name,
		Script:   append([]string(nil), p.Script...),
		Voice:    voice,
		IsActive: true,
	}
	if err := e.store.Create(ctx, b); err != nil {
		return nil, err
	}
	e.log(ctx).Info("bot created", "bot_id", b.ID, "lines", len(b.Script), "voice", b.Voice)
	return b, nil
}

// Status reports where botID is in its script without side effects.
func (e *Engine) Status(ctx context.Context, botID string) (*Status, error) {
	b, err := e.store.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	s := &Status{
		BotID:       b.ID,
		Name:        b.Name,
		Voice:       b.Voice,
		IsActive:    b.IsActive,
		IsArchived:  b.IsArchived,
		CurrentLine: b.Progress.CurrentLine,
		TotalLines:  len(b.Script),
		Done:        b.Exhausted(),
	}
	if line, ok := b.Line(b.Progress.CurrentLine); ok {
		s.Line = &line
	}
	return s, nil
}

// TestVoice synthesizes text without recognition or any change to a bot.
// It overwrites the audio slot, so it waits for in-flight turns.
func (e *Engine) TestVoice(ctx context.Context, text, voice string) (types.AudioAsset, error) {
	const op = "session.test_voice"
	if strings.TrimSpace(voice) == "" {
		voice = botstore.DefaultVoice
	}
	if err := e.audio.Acquire(ctx, 1); err != nil {
		return types.AudioAsset{}, types.NewError(types.KindInternal, op, "waiting for audio slot", err)
	}
	defer e.audio.Release(1)
	return e.synthesize(ctx, op, text, voice)
}
