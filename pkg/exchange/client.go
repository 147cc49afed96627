// Package exchange implements the HTTP client for the EVA assistant server.
//
// The server exposes three operations the client core depends on: voice
// exchange (multipart WAV upload → recognized text + reply + reply audio
// reference + emotion), text exchange, and a health probe. All three return
// a tagged [*Error] on failure — network, timeout, and server errors are
// distinguishable with [errors.As] plus the Kind field, and nothing ever
// propagates across this boundary as a panic.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Contract is the surface the conversation core depends on. *Client is the
// production implementation; mock.Client stands in for tests.
type Contract interface {
	SendVoice(ctx context.Context, wav []byte, userID string) (*Reply, error)
	SendText(ctx context.Context, text, userID string) (*Reply, error)
	CheckHealth(ctx context.Context) (*Health, error)
}

// Compile-time check that *Client satisfies [Contract].
var _ Contract = (*Client)(nil)

// Client talks to one EVA server. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a [Client] during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests use this to
// point at an httptest server with custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the server at baseURL (e.g. "http://eva.local:8000").
// connectTimeout bounds dialing; requestTimeout bounds each whole request.
func New(baseURL string, connectTimeout, requestTimeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("exchange: base url %q is not an absolute URL", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// voiceResponse mirrors the server's /voice/process JSON body.
type voiceResponse struct {
	Success          bool   `json:"success"`
	RecognizedText   string `json:"recognized_text"`
	DetectedLanguage string `json:"detected_language"`
	ResponseText     string `json:"response_text"`
	ResponseAudioURL string `json:"response_audio_url"`
	Emotion          string `json:"emotion"`
}

// chatRequest mirrors the server's /chat/message request body.
type chatRequest struct {
	Text     string `json:"text"`
	UserID   string `json:"user_id"`
	Language string `json:"language"`
}

// chatResponse mirrors the server's /chat/message JSON body.
type chatResponse struct {
	Success          bool   `json:"success"`
	ResponseText     string `json:"response_text"`
	ResponseAudioURL string `json:"response_audio_url"`
	Emotion          string `json:"emotion"`
}

// healthResponse mirrors the server's /health JSON body.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SendVoice uploads a complete WAV utterance and returns the structured reply.
func (c *Client) SendVoice(ctx context.Context, wav []byte, userID string) (*Reply, error) {
	const op = "send voice"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if _, err := part.Write(wav); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if err := mw.WriteField("user_id", userID); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/voice/process", &body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var vr voiceResponse
	if err := c.do(op, req, &vr); err != nil {
		return nil, err
	}
	if !vr.Success {
		return nil, &Error{Kind: KindServer, Op: op, Detail: "server reported failure"}
	}

	return &Reply{
		RecognizedText: vr.RecognizedText,
		Text:           vr.ResponseText,
		AudioRef:       c.resolveRef(vr.ResponseAudioURL),
		Emotion:        ParseEmotion(vr.Emotion),
	}, nil
}

// SendText submits a typed message and returns the structured reply.
func (c *Client) SendText(ctx context.Context, text, userID string) (*Reply, error) {
	const op = "send text"

	payload, err := json.Marshal(chatRequest{Text: text, UserID: userID, Language: "auto"})
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/message", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var cr chatResponse
	if err := c.do(op, req, &cr); err != nil {
		return nil, err
	}
	if !cr.Success {
		return nil, &Error{Kind: KindServer, Op: op, Detail: "server reported failure"}
	}

	return &Reply{
		Text:     cr.ResponseText,
		AudioRef: c.resolveRef(cr.ResponseAudioURL),
		Emotion:  ParseEmotion(cr.Emotion),
	}, nil
}

// CheckHealth probes the server's health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	const op = "check health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	var hr healthResponse
	if err := c.do(op, req, &hr); err != nil {
		return nil, err
	}
	return &Health{Status: hr.Status, Version: hr.Version}, nil
}

// do executes the request and decodes the JSON body into out, translating
// every failure mode into a tagged *Error.
func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: classifyTransport(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for the error detail; server
		// errors carry a short JSON "detail" field.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Kind:   KindServer,
			Op:     op,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Op: op, Err: err, Detail: "malformed response body"}
	}
	return nil
}

// resolveRef makes a reply audio reference absolute against the base URL.
// The server returns either a path ("/audio/x.mp3") or a full URL.
func (c *Client) resolveRef(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.Contains(ref, "://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

// classifyTransport maps a transport-level error to a failure kind.
func classifyTransport(err error) Kind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}
