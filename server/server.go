package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"blogauto/events"
	"blogauto/publisher"
	"blogauto/speech"
	"blogauto/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

// Speech is the subset of speech.Client the server needs.
type Speech interface {
	workflow.Synthesizer
	SaveRequest(ctx context.Context, req speech.Request) (speech.Reference, error)
	Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error)
	Voices(ctx context.Context) ([]speech.Voice, error)
	AudioURL(filename string) string
	Health(ctx context.Context) error
}

// Store is the subset of publisher.Publisher the server needs.
type Store interface {
	workflow.Publisher
	ListPosts(ctx context.Context) ([]publisher.Post, error)
	GetPost(ctx context.Context, id string) (publisher.Post, error)
	DeletePost(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// Deps 是服务器依赖的外部协作者。Sink 可以为空。
type Deps struct {
	Analyzer workflow.Analyzer
	Speech   Speech
	Store    Store
	Sink     events.Sink
	Logger   logrus.FieldLogger
	FeedURL  string
	// SessionTTL 会话空闲多久后回收，0 使用默认值。
	SessionTTL time.Duration
}

type Server struct {
	analyzer workflow.Analyzer
	speech   Speech
	store    Store
	sink     events.Sink
	log      logrus.FieldLogger
	feedURL  string
	ttl      time.Duration
	sessions *sessionStore
	hub      *hub
	tmpl     *template.Template
}

type sessionEntry struct {
	orch     *workflow.Orchestrator
	lastUsed time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*sessionEntry), now: time.Now}
}

func (s *sessionStore) get(id string) (*workflow.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.orch, true
}

// getOrCreate returns the session's orchestrator, building it with create on first use.
func (s *sessionStore) getOrCreate(id string, create func() (*workflow.Orchestrator, error)) (*workflow.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.lastUsed = s.now()
		return e.orch, nil
	}
	o, err := create()
	if err != nil {
		return nil, err
	}
	s.sessions[id] = &sessionEntry{orch: o, lastUsed: s.now()}
	return o, nil
}

// sweep drops sessions unused for ttl. Sessions with a run in flight are kept.
func (s *sessionStore) sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, e := range s.sessions {
		if e.lastUsed.After(cutoff) || e.orch.State().IsActive() {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

func (s *sessionStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func New(d Deps) (*Server, error) {
	if d.Analyzer == nil {
		return nil, errors.New("analyzer required")
	}
	if d.Speech == nil {
		return nil, errors.New("speech client required")
	}
	if d.Store == nil {
		return nil, errors.New("post store required")
	}
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	ttl := d.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{"join": joinTags}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		analyzer: d.Analyzer,
		speech:   d.Speech,
		store:    d.Store,
		sink:     d.Sink,
		log:      log,
		feedURL:  d.FeedURL,
		ttl:      ttl,
		sessions: newStore(),
		hub:      newHub(log),
		tmpl:     tmpl,
	}, nil
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), sessionMiddleware())
	r.SetHTMLTemplate(s.tmpl)

	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/tts", s.handleTTS)
		api.GET("/tts/voices", s.handleVoices)
		api.POST("/tts/save", s.handleTTSSave)
		api.POST("/publish", s.handlePublish)
		api.GET("/publish", s.handleListPosts)
		api.GET("/posts", s.handleListPosts)
		api.GET("/posts/:id", s.handleGetPost)
		api.DELETE("/posts/:id", s.handleDeletePost)
		api.POST("/workflow", s.handleWorkflowRun)
		api.GET("/workflow", s.handleWorkflowState)
	}
	r.GET("/ws/workflow", s.handleWorkflowSocket)
	r.GET("/healthz", s.handleHealth)

	r.GET("/", s.pageIndex)
	r.GET("/blog", s.pageBlog)
	r.GET("/blog/:id", s.pagePost)
	return r
}

func (s *Server) orchestrator(session string) (*workflow.Orchestrator, error) {
	return s.sessions.getOrCreate(session, func() (*workflow.Orchestrator, error) {
		log := s.log.WithField("session_id", session)
		opts := []workflow.Option{
			workflow.WithLogger(log),
			workflow.WithObserver(workflow.ObserverFunc(func(snap workflow.Snapshot) {
				s.hub.broadcast(session, snap)
			})),
		}
		if s.sink != nil {
			opts = append(opts, workflow.WithObserver(events.Observer(s.sink, session, log)))
		}
		return workflow.New(s.analyzer, s.speech, s.store, opts...)
	})
}

// snapshot 返回会话的当前状态，未运行过的会话视为 idle。
func (s *Server) snapshot(session string) workflow.Snapshot {
	if o, ok := s.sessions.get(session); ok {
		return o.Snapshot()
	}
	return workflow.Snapshot{State: workflow.StateIdle}
}

func (s *Server) writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	go s.sweepSessions(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(s.ttl); n > 0 {
				s.log.WithFields(logrus.Fields{"removed": n, "remaining": s.sessions.size()}).Info("idle sessions evicted")
			}
		}
	}
}
