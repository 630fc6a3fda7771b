package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"blogauto/apperr"
)

const (
	publishPath = "/publish"
	postsPath   = "/posts"
	healthPath  = "/health"
)

// Article describes the content to be published.
type Article struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	AudioFilename string   `json:"audio_filename"`
}

// Post 是存储服务创建的文章记录，ID 以服务端为准。
type Post struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	AudioFilename string   `json:"audio_filename"`
	AudioURL      string   `json:"audio_url"`
	CreatedAt     string   `json:"created_at"`
	Status        string   `json:"status,omitempty"`
}

type publishResp struct {
	Message string `json:"message"`
	Post    *Post  `json:"post"`
}

// Publisher forwards articles to the post-storage service.
type Publisher struct {
	baseURL string
	client  *http.Client
	logger  logrus.FieldLogger
}

// New creates a Publisher. A nil client gets one without a local timeout.
func New(baseURL string, client *http.Client, logger logrus.FieldLogger) (*Publisher, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return nil, errors.New("storage base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid storage base url %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{baseURL: base, client: client, logger: logger.WithField("component", "publisher")}, nil
}

// Publish creates a post. An error reported by the service aborts with its text verbatim.
func (p *Publisher) Publish(ctx context.Context, art Article) (Post, error) {
	if art.Tags == nil {
		art.Tags = []string{}
	}
	body, err := json.Marshal(art)
	if err != nil {
		return Post{}, fmt.Errorf("marshal article: %w", err)
	}
	data, status, err := p.do(ctx, http.MethodPost, publishPath, body)
	if err != nil {
		return Post{}, err
	}
	if msg := errorField(data); msg != "" {
		return Post{}, apperr.Publish(msg, nil)
	}
	if status < 200 || status >= 300 {
		return Post{}, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("publish returned status %d", status))
	}

	var resp publishResp
	if err := json.Unmarshal(data, &resp); err != nil || resp.Post == nil || resp.Post.ID == "" {
		return Post{}, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("unexpected publish response: %s", truncate(data, 200)))
	}
	p.logger.WithFields(logrus.Fields{"post_id": resp.Post.ID, "title": resp.Post.Title}).Info("post published")
	return *resp.Post, nil
}

// ListPosts returns every stored post, newest first as ordered by the service.
func (p *Publisher) ListPosts(ctx context.Context) ([]Post, error) {
	data, status, err := p.do(ctx, http.MethodGet, postsPath, nil)
	if err != nil {
		return nil, err
	}
	if msg := errorField(data); msg != "" {
		return nil, apperr.Publish(msg, nil)
	}
	if status != http.StatusOK {
		return nil, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("list posts returned status %d", status))
	}
	posts := []Post{}
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("decode posts: %w", err))
	}
	return posts, nil
}

// GetPost fetches one post. A missing post yields an apperr.KindNotFound error.
func (p *Publisher) GetPost(ctx context.Context, id string) (Post, error) {
	if strings.TrimSpace(id) == "" {
		return Post{}, apperr.NotFound(apperr.MsgPostNotFound)
	}
	data, status, err := p.do(ctx, http.MethodGet, postsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return Post{}, err
	}
	if status == http.StatusNotFound || errorField(data) != "" {
		return Post{}, apperr.NotFound(apperr.MsgPostNotFound)
	}
	if status != http.StatusOK {
		return Post{}, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("get post returned status %d", status))
	}
	var post Post
	if err := json.Unmarshal(data, &post); err != nil {
		return Post{}, apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("decode post: %s", truncate(data, 200)))
	}
	if post.ID == "" {
		return Post{}, apperr.NotFound(apperr.MsgPostNotFound)
	}
	return post, nil
}

// DeletePost removes a post.
func (p *Publisher) DeletePost(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.NotFound(apperr.MsgPostNotFound)
	}
	data, status, err := p.do(ctx, http.MethodDelete, postsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if msg := errorField(data); msg != "" {
		if msg == apperr.MsgPostNotFound {
			return apperr.NotFound(msg)
		}
		return apperr.Publish(msg, nil)
	}
	if status == http.StatusNotFound {
		return apperr.NotFound(apperr.MsgPostNotFound)
	}
	if status < 200 || status >= 300 {
		return apperr.Publish(apperr.MsgBadResponse, fmt.Errorf("delete post returned status %d", status))
	}
	p.logger.WithField("post_id", id).Info("post deleted")
	return nil
}

// Health checks the storage service.
func (p *Publisher) Health(ctx context.Context) error {
	_, status, err := p.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("storage health check failed with status %d", status)
	}
	return nil
}

func (p *Publisher) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("path", path).Warn("storage service unreachable")
		return nil, 0, apperr.Transport(apperr.MsgBackendDown, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, apperr.Transport(apperr.MsgBackendDown, err)
	}
	return data, resp.StatusCode, nil
}

// errorField 读取服务返回的 {"error": ...}。
func errorField(data []byte) string {
	if !gjson.ValidBytes(data) {
		return ""
	}
	v := gjson.GetBytes(data, "error")
	if !v.Exists() || v.Type == gjson.Null {
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

// truncate 截断到 limit 字节以内，不切断多字节字符。
func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}
