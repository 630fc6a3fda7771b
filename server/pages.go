package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"blogauto/apperr"
	"blogauto/publisher"
)

func (s *Server) pageIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":    "BlogAuto",
		"Snapshot": s.snapshot(sessionID(c)),
		"FeedURL":  s.feedURL,
	})
}

func (s *Server) pageBlog(c *gin.Context) {
	posts, err := s.store.ListPosts(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("list posts for blog page failed")
		c.HTML(apperr.HTTPStatus(err), "error.html", gin.H{"Title": "出错了", "Message": apperr.UserMessage(err)})
		return
	}
	c.HTML(http.StatusOK, "blog.html", gin.H{
		"Title":   "我的博客",
		"Posts":   posts,
		"FeedURL": s.feedURL,
	})
}

func (s *Server) pagePost(c *gin.Context) {
	post, err := s.store.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.HTML(apperr.HTTPStatus(err), "error.html", gin.H{"Title": "出错了", "Message": apperr.UserMessage(err)})
		return
	}
	body, err := publisher.RenderHTML(post.Content)
	if err != nil {
		s.log.WithError(err).WithField("post_id", post.ID).Warn("render post failed")
		body = template.HTMLEscapeString(post.Content)
	}
	c.HTML(http.StatusOK, "post.html", gin.H{
		"Title":    post.Title,
		"Post":     post,
		"Body":     template.HTML(body),
		"AudioURL": s.audioURL(post),
	})
}

// audioURL 优先使用存储服务给出的绝对地址，否则按文件名拼接 TTS 服务地址。
func (s *Server) audioURL(p publisher.Post) string {
	if strings.HasPrefix(p.AudioURL, "http://") || strings.HasPrefix(p.AudioURL, "https://") {
		return p.AudioURL
	}
	if p.AudioFilename != "" {
		return s.speech.AudioURL(p.AudioFilename)
	}
	return ""
}

func joinTags(tags []string) string {
	return strings.Join(tags, " · ")
}
