package handlers

import (
	"errors"
	"io"
	"net/http"

	"forumsync/internal/services"
	"forumsync/internal/utils"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	forum *services.ForumService
}

func NewPostHandler(forum *services.ForumService) *PostHandler {
	return &PostHandler{forum: forum}
}

// List GET /api/posts?search=&sortBy=votes|date&page=&limit=
func (h *PostHandler) List(c *gin.Context) {
	page, err := h.forum.ListPosts(c.Request.Context(), services.ListPostsQuery{
		Search: c.Query("search"),
		SortBy: c.Query("sortBy"),
		Page:   utils.PositiveIntOr(c.Query("page"), 1),
		Limit:  utils.PositiveIntOr(c.Query("limit"), services.DefaultPageSize),
	})
	if err != nil {
		RenderError(c, err)
		return
	}

	OK(c, http.StatusOK, page.Posts, gin.H{
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": page.Total,
			"pages": page.Pages,
		},
	})
}

func (h *PostHandler) Create(c *gin.Context) {
	var in services.CreatePostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindFailed(c, err)
		return
	}

	post, err := h.forum.CreatePost(c.Request.Context(), in)
	if err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusCreated, post, nil)
}

func (h *PostHandler) Detail(c *gin.Context) {
	detail, err := h.forum.GetPostDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusOK, detail, nil)
}

func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.forum.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusOK, nil, gin.H{"message": "Post deleted successfully"})
}

func (h *PostHandler) Reply(c *gin.Context) {
	var in services.AddReplyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindFailed(c, err)
		return
	}

	reply, err := h.forum.AddReply(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusCreated, reply, nil)
}

func (h *PostHandler) Upvote(c *gin.Context) {
	post, err := h.forum.UpvotePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusOK, post, nil)
}

// Answered sets the flag from {"answered": bool}; an empty body or a body
// without the field toggles it.
func (h *PostHandler) Answered(c *gin.Context) {
	var in services.SetAnsweredInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		bindFailed(c, err)
		return
	}

	post, err := h.forum.SetAnswered(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		RenderError(c, err)
		return
	}
	OK(c, http.StatusOK, post, nil)
}
