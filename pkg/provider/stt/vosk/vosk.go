// Package vosk provides a recognition client for the Vosk websocket server
// (alphacep/vosk-server). It implements the stt.Provider interface.
//
// One Recognize call opens one websocket connection, streams the stored audio
// asset as binary frames followed by an end-of-stream marker, and settles
// with the first non-empty final transcript. Partial results are ignored.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/types"
)

var _ stt.Provider = (*Client)(nil)

const (
	recognizeOp = "vosk.recognize"

	defaultTimeout   = 30 * time.Second
	defaultReadLimit = 1 << 20
)

var eofFrame = []byte(`{"eof":1}`)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout bounds a whole recognition, dial included. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithSampleRate makes the client announce the audio sample rate with a
// config frame before streaming. Zero (default) sends no config frame and
// leaves the server's configured rate in effect.
func WithSampleRate(rate int) Option {
	return func(c *Client) { c.sampleRate = rate }
}

// WithChunkSize sets the binary frame size in bytes. Defaults to
// [audio.DefaultChunkSize].
func WithChunkSize(n int) Option {
	return func(c *Client) { c.chunkSize = n }
}

// WithStripHeader controls whether the container header (the asset's
// DataOffset bytes) is skipped before streaming. Defaults to true; Vosk
// expects raw PCM.
func WithStripHeader(strip bool) Option {
	return func(c *Client) { c.stripHeader = strip }
}

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialOptions passes options through to websocket.Dial.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) { c.dialOpts = opts }
}

// Client is a Vosk recognition client. It holds no connection state between
// calls and is safe for concurrent use.
type Client struct {
	url         string
	opener      audio.Opener
	timeout     time.Duration
	sampleRate  int
	chunkSize   int
	stripHeader bool
	logger      *slog.Logger
	dialOpts    *websocket.DialOptions
}

// New creates a Client for the server at url (e.g., "ws://localhost:2700").
// opener resolves audio asset handles to readable streams.
func New(url string, opener audio.Opener, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("vosk: url must not be empty")
	}
	if opener == nil {
		return nil, errors.New("vosk: opener must not be nil")
	}
	c := &Client{
		url:         url,
		opener:      opener,
		timeout:     defaultTimeout,
		chunkSize:   audio.DefaultChunkSize,
		stripHeader: true,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout <= 0 {
		return nil, fmt.Errorf("vosk: timeout must be positive, got %s", c.timeout)
	}
	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("vosk: chunk size must be positive, got %d", c.chunkSize)
	}
	return c, nil
}

// message is one JSON text frame from the server. Final results carry text,
// interim results carry partial.
type message struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

type configFrame struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

// Recognize streams asset to the server and returns the first non-empty final
// transcript.
func (c *Client) Recognize(ctx context.Context, asset types.AudioAsset) (types.RecognitionResult, error) {
	rc, err := c.opener.Open(asset)
	if err != nil {
		return types.RecognitionResult{}, types.NewError(types.KindRecognition, recognizeOp, "open audio asset", err)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		return types.RecognitionResult{}, c.failure(ctx, "dial "+c.url, err)
	}
	conn.SetReadLimit(defaultReadLimit)

	if c.sampleRate > 0 {
		var cf configFrame
		cf.Config.SampleRate = c.sampleRate
		data, _ := json.Marshal(cf)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.CloseNow()
			return types.RecognitionResult{}, c.failure(ctx, "send config", err)
		}
	}

	fut := newFuture[types.RecognitionResult]()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.send(ctx, gctx, conn, rc, asset, fut) })
	g.Go(func() error { return c.receive(ctx, gctx, conn, fut) })

	var (
		res  types.RecognitionResult
		rerr error
	)
	select {
	case <-fut.Done():
		res, rerr = fut.result()
	case <-ctx.Done():
		fut.reject(c.failure(ctx, "await transcript", ctx.Err()))
		res, rerr = fut.result()
	}

	if rerr == nil {
		conn.Close(websocket.StatusNormalClosure, "transcript received")
	} else {
		conn.CloseNow()
	}
	cancel()
	_ = g.Wait()
	return res, rerr
}

func (c *Client) send(ctx, gctx context.Context, conn *websocket.Conn, r io.Reader, asset types.AudioAsset, fut *future[types.RecognitionResult]) error {
	skip := 0
	if c.stripHeader {
		skip = asset.DataOffset
	}
	n, err := audio.SendChunks(gctx, r, skip, c.chunkSize, func(chunk []byte) error {
		return conn.Write(gctx, websocket.MessageBinary, chunk)
	})
	if err == nil {
		err = conn.Write(gctx, websocket.MessageText, eofFrame)
	}
	if err != nil {
		if !fut.reject(c.failure(ctx, "send audio", err)) {
			c.logger.Debug("vosk: send error after settlement ignored", "err", err)
		}
		return err
	}
	c.logger.Debug("vosk: audio sent", "chunks", n)
	return nil
}

func (c *Client) receive(ctx, gctx context.Context, conn *websocket.Conn, fut *future[types.RecognitionResult]) error {
	for {
		typ, data, err := conn.Read(gctx)
		if err != nil {
			if !fut.reject(c.failure(ctx, "read", err)) {
				c.logger.Debug("vosk: read error after settlement ignored", "err", err)
			}
			return err
		}
		if typ != websocket.MessageText {
			perr := types.NewError(types.KindProtocol, recognizeOp, "unexpected binary frame", nil)
			fut.reject(perr)
			return perr
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			perr := types.NewError(types.KindProtocol, recognizeOp, "malformed server message", err)
			fut.reject(perr)
			return perr
		}
		if msg.Text == nil || *msg.Text == "" {
			continue
		}

		if fut.resolve(types.RecognitionResult{Transcript: *msg.Text, IsFinal: true}) {
			c.logger.Debug("vosk: final transcript", "transcript", *msg.Text)
		} else {
			c.logger.Debug("vosk: transcript after settlement ignored", "transcript", *msg.Text)
		}
		return nil
	}
}

// failure maps a transport error onto the recognition error taxonomy. ctx is
// the recognition-scoped context whose deadline distinguishes timeouts.
func (c *Client) failure(ctx context.Context, detail string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.KindTimeout, recognizeOp, fmt.Sprintf("%s: no transcript within %s", detail, c.timeout), err)
	}
	if status := websocket.CloseStatus(err); status != -1 {
		detail = fmt.Sprintf("%s: connection closed (%d) before a final transcript", detail, status)
	}
	return types.NewError(types.KindConnection, recognizeOp, detail, err)
}

// Ping dials the server and closes the connection again. It backs the
// readiness check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		return fmt.Errorf("vosk: dial: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "ping")
	return nil
}
