// Package api exposes the session engine over HTTP.
//
// Routes:
//
//	POST /bot                      create a bot
//	GET  /bot/{botId}              read a bot's position
//	GET  /speak-and-listen/{botId} run one conversation turn
//	POST /reset/{botId}            rewind to the first line
//	POST /archive/{botId}          archive a bot
//	POST /restore/{botId}          restore an archived bot
//	POST /test-voice               synthesize text without a bot
//
// Failures are answered with {"error": <kind>, "details": <detail>} and a
// status code derived from the error kind.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/observe"
	"github.com/MrWong99/scriptvox/internal/session"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// maxBodyBytes caps request bodies. Scripts are short.
const maxBodyBytes = 1 << 20

// Service is the subset of [session.Engine] the handlers use.
type Service interface {
	SpeakAndListen(ctx context.Context, botID string) (*session.Outcome, error)
	Reset(ctx context.Context, botID string) error
	Archive(ctx context.Context, botID string) (*botstore.Bot, error)
	Restore(ctx context.Context, botID string) (*botstore.Bot, error)
	Create(ctx context.Context, p session.CreateParams) (*botstore.Bot, error)
	Status(ctx context.Context, botID string) (*session.Status, error)
	TestVoice(ctx context.Context, text, voice string) (types.AudioAsset, error)
}

var _ Service = (*session.Engine)(nil)

// Handler serves the bot routes.
type Handler struct {
	svc Service
}

// New returns a Handler backed by svc.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/bot", h.createBot)
	r.Get("/bot/{botId}", h.status)
	r.Get("/speak-and-listen/{botId}", h.speakAndListen)
	r.Post("/reset/{botId}", h.reset)
	r.Post("/archive/{botId}", h.archive)
	r.Post("/restore/{botId}", h.restore)
	r.Post("/test-voice", h.testVoice)
}

// ---- request / response bodies ----

type createRequest struct {
	BotID  string   `json:"botId"`
	Name   string   `json:"name"`
	Script []string `json:"script"`
	Voice  string   `json:"voice"`
}

type testVoiceRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type successResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Bot     *botstore.Bot `json:"bot,omitempty"`
}

// Speak-and-listen bodies, one per outcome.
type (
	doneResponse struct {
		Done    bool   `json:"done"`
		Message string `json:"message"`
	}

	endedResponse struct {
		Ended          bool                 `json:"ended"`
		Message        string               `json:"message"`
		Transcript     string               `json:"transcript"`
		Classification types.Classification `json:"classification"`
		CurrentLine    int                  `json:"currentLine"`
	}

	// turnResponse carries nextLine as null once the script is exhausted.
	turnResponse struct {
		Transcript     string               `json:"transcript"`
		Classification types.Classification `json:"classification"`
		CurrentLine    int                  `json:"currentLine"`
		NextLine       *string              `json:"nextLine"`
		Done           bool                 `json:"done,omitempty"`
		Message        string               `json:"message,omitempty"`
	}
)

type testVoiceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Bytes   int    `json:"bytes"`
}

// ---- handlers ----

func (h *Handler) createBot(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	if strings.TrimSpace(req.BotID) == "" || len(req.Script) == 0 {
		writeError(r, w, types.NewError(types.KindInvalid, "api.create", "botId and script (array) required", nil))
		return
	}
	bot, err := h.svc.Create(r.Context(), session.CreateParams{
		ID:     req.BotID,
		Name:   req.Name,
		Script: req.Script,
		Voice:  req.Voice,
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true, Bot: bot})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "botId"))
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) speakAndListen(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.SpeakAndListen(r.Context(), chi.URLParam(r, "botId"))
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(out))
}

func newTurnResponse(out *session.Outcome) any {
	switch {
	case out.Ended:
		return endedResponse{
			Ended:          true,
			Message:        out.Message,
			Transcript:     out.Transcript,
			Classification: out.Classification,
			CurrentLine:    out.CurrentLine,
		}
	case out.Done && out.State == session.StateExhausted:
		return doneResponse{Done: true, Message: out.Message}
	}
	return turnResponse{
		Transcript:     out.Transcript,
		Classification: out.Classification,
		CurrentLine:    out.CurrentLine,
		NextLine:       out.NextLine,
		Done:           out.Done,
		Message:        out.Message,
	}
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "botId")
	if err := h.svc.Reset(r.Context(), id); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: fmt.Sprintf("Session reset for %s", id)})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "botId")
	if _, err := h.svc.Archive(r.Context(), id); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: fmt.Sprintf("Bot %s archived", id)})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "botId")
	if _, err := h.svc.Restore(r.Context(), id); err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: fmt.Sprintf("Bot %s restored", id)})
}

func (h *Handler) testVoice(w http.ResponseWriter, r *http.Request) {
	var req testVoiceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r, w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(r, w, types.NewError(types.KindInvalid, "api.test_voice", "Text is required", nil))
		return
	}
	asset, err := h.svc.TestVoice(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, testVoiceResponse{Success: true, Message: "Voice test completed", Bytes: asset.Size})
}

// ---- encoding ----

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return types.NewError(types.KindInvalid, "api.decode", "malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---- errors ----

type errorResponse struct {
	Error   types.Kind `json:"error"`
	Details string     `json:"details,omitempty"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch types.KindOf(err) {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindForbidden:
		return http.StatusForbidden
	case types.KindConflict:
		return http.StatusConflict
	case types.KindInvalid:
		return http.StatusBadRequest
	case types.KindSynthesis:
		return http.StatusBadGateway
	case types.KindRecognition, types.KindConnection, types.KindProtocol, types.KindTimeout:
		// The engine wraps stream failures in Recognition; a timeout
		// anywhere in the chain is a gateway timeout.
		if errors.Is(err, types.ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := StatusCode(err)
	kind := types.KindOf(err)
	body := errorResponse{Error: kind, Details: detailOf(err)}
	if status == http.StatusInternalServerError {
		// Internal causes stay in the log.
		body.Details = ""
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		observe.Logger(r.Context()).Info("request refused", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

// detailOf returns the outermost typed detail in err's chain.
func detailOf(err error) string {
	var e *types.Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	return ""
}
