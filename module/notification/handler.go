package notification

import (
	"net/http"
	"strconv"

	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/notification/model"
	"PPRealtime/module/notification/service"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	fanout *service.Fanout
}

func NewHandler(fanout *service.Fanout) *Handler {
	return &Handler{fanout: fanout}
}

func (h *Handler) Register(rt *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.GET("/api/notifications", middleware.Handle(h.List), auth)
	rt.GET("/api/notifications/count", middleware.Handle(h.Count), auth)
	rt.PUT("/api/notifications/read-all", middleware.Handle(h.MarkAllRead), auth)
	rt.PUT("/api/notifications/:id/read", middleware.Handle(h.MarkRead), auth)
	rt.POST("/api/notifications/events", middleware.Handle(h.Trigger), auth)
}

// List GET /api/notifications
func (h *Handler) List(c *gin.Context) error {
	list, err := h.fanout.ListNotifications(c.Request.Context(), midsec.Principal(c))
	if err != nil {
		return err
	}
	middleware.Items(c, list)
	return nil
}

// Count GET /api/notifications/count
func (h *Handler) Count(c *gin.Context) error {
	n, err := h.fanout.UnreadCount(c.Request.Context(), midsec.Principal(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
	return nil
}

// MarkRead PUT /api/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errs.ErrNotFound.WrapMsg("notification", "id", c.Param("id"))
	}
	if err := h.fanout.MarkRead(c.Request.Context(), id, midsec.Principal(c)); err != nil {
		return err
	}
	c.Status(http.StatusNoContent)
	return nil
}

// MarkAllRead PUT /api/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) error {
	n, err := h.fanout.MarkAllRead(c.Request.Context(), midsec.Principal(c))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
	return nil
}

type triggerReq struct {
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	PostID    *int64 `json:"postId"`
	CommentID *int64 `json:"commentId"`
}

// Trigger POST /api/notifications/events，发送者固定为当前登录用户
func (h *Handler) Trigger(c *gin.Context) error {
	var req triggerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrInvalidRequest.WrapMsg("bad body")
	}
	typ, ok := model.ParseType(req.Type)
	if !ok {
		return errs.ErrInvalidRequest.WrapMsg("unknown notification type", "type", req.Type)
	}
	n, err := h.fanout.Notify(c.Request.Context(), service.NotifyRequest{
		Type:      typ,
		Sender:    midsec.Principal(c),
		Recipient: req.Recipient,
		PostID:    req.PostID,
		CommentID: req.CommentID,
	})
	if err != nil {
		return err
	}
	if n == nil {
		c.Status(http.StatusNoContent)
		return nil
	}
	c.JSON(http.StatusCreated, gin.H{"id": n.ID})
	return nil
}
