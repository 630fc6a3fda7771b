package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogauto/generator"
	"blogauto/logging"
	"blogauto/publisher"
	"blogauto/speech"
	"blogauto/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const hotpotText = "昨天去吃了个火锅 味道很好 就是排队太久了"

// backend fakes the TTS service and the post store on one listener.
type backend struct {
	mu         sync.Mutex
	posts      []publisher.Post
	articles   []publisher.Article
	publishErr string
	ttsErr     string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tts/save", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.ttsErr != "" {
			_, _ = w.Write([]byte(`{"error":"` + b.ttsErr + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"filename":"abc123.mp3","url":"/audio/abc123.mp3"}`))
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		var req speech.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice == "robot" {
			_, _ = w.Write([]byte(`{"error":"未知语音: robot"}`))
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	})
	mux.HandleFunc("/voices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"xiaoxiao","name":"xiaoxiao","code":"zh-CN-XiaoxiaoNeural"}]`))
	})
	mux.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		var art publisher.Article
		_ = json.NewDecoder(r.Body).Decode(&art)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.articles = append(b.articles, art)
		if b.publishErr != "" {
			_, _ = w.Write([]byte(`{"error":"` + b.publishErr + `"}`))
			return
		}
		post := publisher.Post{
			ID:            "p1",
			Title:         art.Title,
			Content:       art.Content,
			Summary:       art.Summary,
			Tags:          art.Tags,
			AudioFilename: art.AudioFilename,
			CreatedAt:     "2026-10-15T09:30:00",
		}
		b.posts = append(b.posts, post)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "发布成功", "post": post})
	})
	mux.HandleFunc("/posts", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		posts := b.posts
		if posts == nil {
			posts = []publisher.Post{}
		}
		_ = json.NewEncoder(w).Encode(posts)
	})
	mux.HandleFunc("/posts/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/posts/")
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, p := range b.posts {
			if p.ID != id {
				continue
			}
			if r.Method == http.MethodDelete {
				b.posts = append(b.posts[:i], b.posts[i+1:]...)
				_, _ = w.Write([]byte(`{"message":"删除成功"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(p)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"文章不存在"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (b *backend) setTTSErr(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ttsErr = msg
}

func (b *backend) setPublishErr(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = msg
}

func (b *backend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = nil
	b.articles = nil
}

func (b *backend) published() []publisher.Article {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publisher.Article(nil), b.articles...)
}

type blockingLLM struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLLM) Complete(ctx context.Context, p generator.Prompt) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return generator.MockLLM{}.Complete(ctx, p)
}

type stubLLM struct{ reply string }

func (s stubLLM) Complete(context.Context, generator.Prompt) (string, error) {
	return s.reply, nil
}

type fixture struct {
	srv     *Server
	router  *gin.Engine
	backend *backend
}

func newFixture(t *testing.T, llm generator.LLMClient) *fixture {
	t.Helper()
	b := &backend{}
	ts := httptest.NewServer(b.handler())
	t.Cleanup(ts.Close)

	log := logging.Discard()
	analyzer, err := generator.NewAnalyzer(llm, log)
	require.NoError(t, err)
	sp, err := speech.New(speech.Settings{BaseURL: ts.URL, Voice: "xiaoxiao", Rate: "+0%"}, log)
	require.NoError(t, err)
	pub, err := publisher.New(ts.URL, nil, log)
	require.NoError(t, err)

	srv, err := New(Deps{Analyzer: analyzer, Speech: sp, Store: pub, Logger: log, FeedURL: ts.URL + "/rss"})
	require.NoError(t, err)
	return &fixture{srv: srv, router: srv.Routes(), backend: b}
}

func (f *fixture) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sessionCookieFor(id string) *http.Cookie {
	return &http.Cookie{Name: sessionCookie, Value: id}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodPost, "/api/analyze", `{"text":"`+hotpotText+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	analysis := decode(t, w)["analysis"].(map[string]any)
	assert.Equal(t, hotpotText, analysis["polished_content"])
	assert.Equal(t, "生活记录", analysis["intent"])

	w = f.do(t, http.MethodPost, "/api/analyze", `{"text":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请输入文本内容", decode(t, w)["error"])

	w = f.do(t, http.MethodPost, "/api/analyze", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTTSProxyStreamsAudio(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodPost, "/api/tts", `{"text":"你好"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID3-fake-mp3", w.Body.String())

	w = f.do(t, http.MethodPost, "/api/tts", `{"text":"你好","voice":"robot"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "未知语音: robot", decode(t, w)["error"])
}

func TestVoicesAndSave(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodGet, "/api/tts/voices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var voices []speech.Voice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &voices))
	require.Len(t, voices, 1)
	assert.Equal(t, "xiaoxiao", voices[0].ID)

	w = f.do(t, http.MethodPost, "/api/tts/save", `{"text":"你好"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "abc123.mp3", out["filename"])
	assert.True(t, strings.HasSuffix(out["url"].(string), "/audio/abc123.mp3"))

	f.backend.setTTSErr("TTS 引擎异常")
	w = f.do(t, http.MethodPost, "/api/tts/save", `{"text":"你好"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "TTS 引擎异常", decode(t, w)["error"])
}

func TestPublishAndPosts(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodPost, "/api/publish", `{"title":"火锅","content":"正文","summary":"s","tags":["美食"]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "发布成功", out["message"])
	assert.Equal(t, "p1", out["post"].(map[string]any)["id"])

	for _, path := range []string{"/api/posts", "/api/publish"} {
		w = f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var posts []publisher.Post
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
		require.Len(t, posts, 1, path)
	}

	w = f.do(t, http.MethodGet, "/api/posts/p1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "火锅", decode(t, w)["title"])

	w = f.do(t, http.MethodGet, "/api/posts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "文章不存在", decode(t, w)["error"])

	w = f.do(t, http.MethodDelete, "/api/posts/p1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodDelete, "/api/posts/p1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.backend.setPublishErr("存储已满")
	w = f.do(t, http.MethodPost, "/api/publish", `{"title":"t","content":"c"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "存储已满", decode(t, w)["error"])
}

func TestWorkflowHotpot(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"`+hotpotText+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Result   workflow.Result   `json:"result"`
		Snapshot workflow.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "p1", out.Result.PostID)
	assert.True(t, strings.HasSuffix(out.Result.AudioURL, "abc123.mp3"))
	assert.Equal(t, workflow.StateDone, out.Snapshot.State)
	assert.Equal(t, workflow.Status{AnalyzeDone: true, SynthesizeDone: true, PublishDone: true}, out.Snapshot.Status)

	articles := f.backend.published()
	require.Len(t, articles, 1)
	assert.Equal(t, "abc123.mp3", articles[0].AudioFilename)
	assert.Equal(t, hotpotText, articles[0].Content)

	// 同一会话可以查询到结果
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	w = f.do(t, http.MethodGet, "/api/workflow", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, workflow.StateDone, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "p1", snap.Result.PostID)

	// 新会话从 idle 开始
	w = f.do(t, http.MethodGet, "/api/workflow", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, workflow.StateIdle, snap.State)
}

func TestWorkflowContinuesWithoutAudio(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})
	f.backend.setTTSErr("TTS 引擎异常")

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"随便写点"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]any)
	assert.Equal(t, "p1", result["post_id"])
	assert.Empty(t, result["audio_url"])
}

func TestWorkflowErrors(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请输入文本内容", decode(t, w)["error"])

	f.backend.setPublishErr("存储已满")
	w = f.do(t, http.MethodPost, "/api/workflow", `{"text":"火锅"}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "存储已满", out["error"])
	snap := out["snapshot"].(map[string]any)
	assert.Equal(t, "failed", snap["state"])
	assert.Equal(t, "存储已满", snap["error"])
	for _, v := range snap["status"].(map[string]any) {
		assert.Equal(t, false, v)
	}
}

func TestWorkflowBlankInputCreatesNoSession(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	for i := 0; i < 200; i++ {
		w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"   "}`, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Equal(t, 0, f.srv.sessions.size())

	// 已有会话的空输入仍记录在快照里
	cookie := sessionCookieFor(uuid.NewString())
	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"火锅"}`, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/workflow", `{"text":""}`, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请输入文本内容", decode(t, w)["error"])
	w = f.do(t, http.MethodGet, "/api/workflow", "", cookie)
	out := decode(t, w)
	assert.Equal(t, "done", out["state"])
	assert.Equal(t, "请输入文本内容", out["error"])
	assert.Equal(t, 1, f.srv.sessions.size())
}

func TestSessionSweepEvictsIdleSessions(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	f.srv.sessions.now = func() time.Time { return now }

	old := sessionCookieFor(uuid.NewString())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workflow", `{"text":"旧的"}`, old).Code)

	now = now.Add(20 * time.Minute)
	fresh := sessionCookieFor(uuid.NewString())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/workflow", `{"text":"新的"}`, fresh).Code)
	require.Equal(t, 2, f.srv.sessions.size())

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, f.srv.sessions.sweep(30*time.Minute))
	_, ok := f.srv.sessions.get(old.Value)
	assert.False(t, ok)
	_, ok = f.srv.sessions.get(fresh.Value)
	assert.True(t, ok)

	// 查询也算使用
	now = now.Add(29 * time.Minute)
	assert.Equal(t, 0, f.srv.sessions.sweep(30*time.Minute))
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, f.srv.sessions.sweep(30*time.Minute))
	assert.Equal(t, 0, f.srv.sessions.size())
}

func TestSessionSweepKeepsRunningSession(t *testing.T) {
	llm := &blockingLLM{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, llm)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	f.srv.sessions.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cookie := sessionCookieFor(uuid.NewString())

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- f.do(t, http.MethodPost, "/api/workflow", `{"text":"慢慢来"}`, cookie)
	}()
	<-llm.entered

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	assert.Equal(t, 0, f.srv.sessions.sweep(30*time.Minute))

	close(llm.release)
	assert.Equal(t, http.StatusOK, (<-done).Code)
	assert.Equal(t, 1, f.srv.sessions.size())
}

func TestWorkflowRawAnalysisPublishesInput(t *testing.T) {
	f := newFixture(t, stubLLM{reply: "not json at all"})

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"`+hotpotText+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Result   workflow.Result   `json:"result"`
		Snapshot workflow.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Result.RawAnalysis)
	assert.Equal(t, "无标题文章", out.Result.Title)
	assert.Equal(t, hotpotText, out.Result.PolishedContent)
	assert.Equal(t, workflow.StateDone, out.Snapshot.State)

	articles := f.backend.published()
	require.Len(t, articles, 1)
	assert.Equal(t, "无标题文章", articles[0].Title)
	assert.Equal(t, hotpotText, articles[0].Content)
	assert.Equal(t, "abc123.mp3", articles[0].AudioFilename)
}

func TestWorkflowRejectsConcurrentRunInSameSession(t *testing.T) {
	llm := &blockingLLM{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, llm)
	cookie := sessionCookieFor(uuid.NewString())

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- f.do(t, http.MethodPost, "/api/workflow", `{"text":"第一次"}`, cookie)
	}()
	<-llm.entered

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"第二次"}`, cookie)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "正在处理中，请稍候", decode(t, w)["error"])

	// 其他会话不受影响
	w = f.do(t, http.MethodGet, "/api/workflow", "", nil)
	assert.Equal(t, "idle", decode(t, w)["state"])

	close(llm.release)
	assert.Equal(t, http.StatusOK, (<-first).Code)
	assert.Len(t, f.backend.published(), 1)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "ok", out["tts"])
	assert.Equal(t, "ok", out["storage"])
}

func TestPages(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/ws/workflow")
	assert.Contains(t, w.Body.String(), `<section id="result" hidden>`)

	cookie := sessionCookieFor(uuid.NewString())
	w = f.do(t, http.MethodPost, "/api/workflow", `{"text":"`+hotpotText+`"}`, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	index := w.Body.String()
	assert.Contains(t, index, `<section id="result">`)
	assert.Contains(t, index, `id="toggle-original"`)
	assert.Contains(t, index, `<audio id="result-audio" controls src="`)
	assert.Contains(t, index, "abc123.mp3")
	assert.Contains(t, index, "生活记录")
	assert.Contains(t, index, "本地调试模式，未做改动")
	assert.Contains(t, index, `href="/blog/p1"`)
	assert.Contains(t, index, "/rss")
	f.backend.reset()

	w = f.do(t, http.MethodGet, "/blog", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "还没有文章")

	w = f.do(t, http.MethodPost, "/api/publish", `{"title":"火锅之夜","content":"# 标题\n\n**好吃**","tags":["美食"],"audio_filename":"abc123.mp3"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/blog", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "火锅之夜")
	assert.Contains(t, w.Body.String(), "/rss")

	w = f.do(t, http.MethodGet, "/blog/p1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<strong>好吃</strong>")
	assert.Contains(t, body, "/audio/abc123.mp3")

	w = f.do(t, http.MethodGet, "/blog/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "文章不存在")
}

func TestSessionCookieIssuedOnce(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})

	w := f.do(t, http.MethodGet, "/api/workflow", "", nil)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NoError(t, uuid.Validate(cookies[0].Value))

	w = f.do(t, http.MethodGet, "/api/workflow", "", cookies[0])
	assert.Empty(t, w.Result().Cookies())

	w = f.do(t, http.MethodGet, "/api/workflow", "", sessionCookieFor("forged"))
	assert.Len(t, w.Result().Cookies(), 1)
}

func TestWorkflowSocketPushesSnapshots(t *testing.T) {
	f := newFixture(t, generator.MockLLM{})
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	cookie := sessionCookieFor(uuid.NewString())
	header := http.Header{}
	header.Set("Cookie", cookie.String())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/workflow", header)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap workflow.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, workflow.StateIdle, snap.State)

	require.Eventually(t, func() bool {
		return f.srv.hub.count(cookie.Value) == 1
	}, time.Second, 10*time.Millisecond)

	w := f.do(t, http.MethodPost, "/api/workflow", `{"text":"`+hotpotText+`"}`, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var states []workflow.State
	for len(states) < 4 {
		require.NoError(t, conn.ReadJSON(&snap))
		states = append(states, snap.State)
	}
	assert.Equal(t, []workflow.State{
		workflow.StateAnalyzing, workflow.StateSynthesizing, workflow.StatePublishing, workflow.StateDone,
	}, states)
}
