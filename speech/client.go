// Package speech forwards polished text to the external TTS backend.
//
// Synthesis is best-effort for the publishing workflow: Save never returns an
// error, it reports whether an audio reference was produced. The proxy
// operations (Synthesize, Voices) do return errors because their callers
// render them.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"blogauto/apperr"
)

// API paths of the TTS backend.
const (
	pathSynthesize = "/tts"
	pathSave       = "/tts/save"
	pathVoices     = "/voices"
	pathAudio      = "/audio/"
	pathHealth     = "/health"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Settings configures a Client.
type Settings struct {
	BaseURL string
	Voice   string
	Rate    string
	// Timeout of 0 leaves requests bounded only by the caller's context.
	Timeout time.Duration
	// BreakerFailures consecutive Save failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Request is the JSON payload understood by /tts and /tts/save.
type Request struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
}

// Reference points at an audio artifact stored by the TTS backend.
type Reference struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Voice is one entry of the backend's voice list.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Audio is a streamed synthesis result. Callers must close Body.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
	Length      int64
}

// Client talks to the TTS backend.
type Client struct {
	baseURL    string
	voice      string
	rate       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        logrus.FieldLogger
}

// New validates settings and builds a Client.
func New(s Settings, log logrus.FieldLogger) (*Client, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		return nil, errors.New("tts base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid tts base url %q: %w", s.BaseURL, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	failures := s.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := s.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	c := &Client{
		baseURL:    base,
		voice:      s.Voice,
		rate:       s.Rate,
		httpClient: &http.Client{Timeout: s.Timeout},
		log:        log.WithField("component", "speech"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tts-save",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("tts breaker state changed")
		},
	})
	return c, nil
}

// Save synthesizes text with the configured voice and rate and returns a
// reference to the stored audio. ok is false when no audio was produced, for
// whatever reason.
func (c *Client) Save(ctx context.Context, text string) (ref Reference, ok bool) {
	if strings.TrimSpace(text) == "" {
		return Reference{}, false
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.save(ctx, Request{Text: text, Voice: c.voice, Rate: c.rate})
	})
	if err != nil {
		c.log.WithError(err).Warn("speech synthesis skipped, publishing without audio")
		return Reference{}, false
	}
	return out.(Reference), true
}

// SaveRequest is Save for direct API use: voice and rate may be overridden,
// the breaker is bypassed and failures are returned.
func (c *Client) SaveRequest(ctx context.Context, req Request) (Reference, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Reference{}, apperr.Input(apperr.MsgEmptyInput)
	}
	if req.Voice == "" {
		req.Voice = c.voice
	}
	if req.Rate == "" {
		req.Rate = c.rate
	}
	return c.save(ctx, req)
}

func (c *Client) save(ctx context.Context, req Request) (Reference, error) {
	resp, err := c.postJSON(ctx, pathSave, req)
	if err != nil {
		return Reference{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reference{}, fmt.Errorf("read tts save response: %w", err)
	}
	if msg := errorField(body); msg != "" {
		return Reference{}, apperr.Synthesis(msg, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reference{}, apperr.Synthesis(apperr.MsgTTSFailed, fmt.Errorf("status %s", resp.Status))
	}
	filename := gjson.GetBytes(body, "filename").String()
	if filename == "" {
		return Reference{}, apperr.Synthesis(apperr.MsgTTSFailed, errors.New("response carries no filename"))
	}
	return Reference{Filename: filename, URL: c.AudioURL(filename)}, nil
}

// Synthesize asks the backend for an audio stream of req.Text.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if req.Voice == "" {
		req.Voice = c.voice
	}
	if req.Rate == "" {
		req.Rate = c.rate
	}
	resp, err := c.postJSON(ctx, pathSynthesize, req)
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && strings.HasPrefix(mediaType, "audio/") {
		return &Audio{Body: resp.Body, ContentType: mediaType, Length: resp.ContentLength}, nil
	}
	defer resp.Body.Close()

	// 后端出错时也可能返回 200 + {"error": ...}
	body, _ := io.ReadAll(resp.Body)
	if msg := errorField(body); msg != "" {
		return nil, apperr.Synthesis(msg, nil)
	}
	return nil, apperr.Synthesis(apperr.MsgTTSFailed, fmt.Errorf("status %s, content type %q", resp.Status, mediaType))
}

// Voices lists the voices offered by the backend.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport(apperr.MsgTTSDown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read voices response: %w", err)
	}
	if msg := errorField(body); msg != "" {
		return nil, apperr.Synthesis(msg, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Synthesis(apperr.MsgTTSFailed, fmt.Errorf("status %s", resp.Status))
	}
	var voices []Voice
	if err := json.Unmarshal(body, &voices); err != nil {
		return nil, apperr.Synthesis(apperr.MsgTTSFailed, fmt.Errorf("decode voices: %w", err))
	}
	return voices, nil
}

// Health checks that the backend answers on /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathHealth, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Transport(apperr.MsgTTSDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts health check failed with status: %s", resp.Status)
	}
	return nil
}

// AudioURL is the public location of a stored audio file.
func (c *Client) AudioURL(filename string) string {
	return c.baseURL + pathAudio + url.PathEscape(filename)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport(apperr.MsgTTSDown, err)
	}
	return resp, nil
}

// errorField returns the backend's {"error": "..."} text, if any.
func errorField(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	v := gjson.GetBytes(body, "error")
	if !v.Exists() {
		return ""
	}
	if v.IsObject() {
		if msg := v.Get("message").String(); msg != "" {
			return msg
		}
		return v.Raw
	}
	return v.String()
}
