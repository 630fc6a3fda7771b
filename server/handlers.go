package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"blogauto/apperr"
	"blogauto/publisher"
	"blogauto/speech"
)

const (
	healthTimeout     = 3 * time.Second
	shutdownGrace     = 10 * time.Second
	defaultSessionTTL = 30 * time.Minute
)

type textReq struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req textReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		s.writeError(c, http.StatusBadRequest, apperr.MsgEmptyInput)
		return
	}
	analysis, err := s.analyzer.Analyze(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

func (s *Server) handleTTS(c *gin.Context) {
	var req speech.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		s.writeError(c, http.StatusBadRequest, apperr.MsgEmptyInput)
		return
	}
	audio, err := s.speech.Synthesize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer audio.Body.Close()
	c.DataFromReader(http.StatusOK, audio.Length, audio.ContentType, audio.Body, nil)
}

func (s *Server) handleVoices(c *gin.Context) {
	voices, err := s.speech.Voices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, voices)
}

func (s *Server) handleTTSSave(c *gin.Context) {
	var req speech.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		s.writeError(c, http.StatusBadRequest, apperr.MsgEmptyInput)
		return
	}
	ref, err := s.speech.SaveRequest(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (s *Server) handlePublish(c *gin.Context) {
	var art publisher.Article
	if err := c.ShouldBindJSON(&art); err != nil {
		s.writeError(c, http.StatusBadRequest, apperr.MsgBadRequest)
		return
	}
	post, err := s.store.Publish(c.Request.Context(), art)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "发布成功", "post": post})
}

func (s *Server) handleListPosts(c *gin.Context) {
	posts, err := s.store.ListPosts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if posts == nil {
		posts = []publisher.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

func (s *Server) handleGetPost(c *gin.Context) {
	post, err := s.store.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleDeletePost(c *gin.Context) {
	if err := s.store.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

func (s *Server) handleWorkflowRun(c *gin.Context) {
	var req textReq
	_ = c.ShouldBindJSON(&req)

	session := sessionID(c)
	if strings.TrimSpace(req.Text) == "" {
		// 不为空请求新建会话；已有会话则交给编排器记录错误
		orch, ok := s.sessions.get(session)
		if !ok {
			s.writeError(c, http.StatusBadRequest, apperr.MsgEmptyInput)
			return
		}
		_, err := orch.Run(c.Request.Context(), req.Text)
		s.fail(c, err)
		return
	}
	orch, err := s.orchestrator(session)
	if err != nil {
		s.fail(c, err)
		return
	}
	// 浏览器断开不应中断进行中的流程
	res, err := orch.Run(context.WithoutCancel(c.Request.Context()), req.Text)
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": apperr.UserMessage(err), "snapshot": orch.Snapshot()})
			return
		}
		s.writeError(c, status, apperr.UserMessage(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "snapshot": orch.Snapshot()})
}

func (s *Server) handleWorkflowState(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot(sessionID(c)))
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	check := func(err error) string {
		if err != nil {
			return apperr.UserMessage(err)
		}
		return "ok"
	}
	ttsErr := s.speech.Health(ctx)
	storeErr := s.store.Health(ctx)
	status := "ok"
	if ttsErr != nil || storeErr != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"tts":     check(ttsErr),
		"storage": check(storeErr),
	})
}

// fail maps err to its status code and writes {"error": message}.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	entry := s.log.WithError(err).WithField("path", c.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	s.writeError(c, status, apperr.UserMessage(err))
}
