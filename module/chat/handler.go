package chat

import (
	"net/http"

	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"
	"PPRealtime/module/chat/service"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler 聊天的 REST 补拉接口，实时部分走 websocket
type Handler struct {
	dir    *service.Directory
	log    *service.MessageLog
	unread *service.UnreadTracker
}

func NewHandler(dir *service.Directory, log *service.MessageLog, unread *service.UnreadTracker) *Handler {
	return &Handler{dir: dir, log: log, unread: unread}
}

// Register 挂到 /api/chat 下，全部需要登录
func (h *Handler) Register(rt *middleware.Routes) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.POST("/api/chat/dm", middleware.Handle(h.EnsureDM), auth)
	rt.POST("/api/chat/groups", middleware.Handle(h.CreateGroup), auth)
	rt.GET("/api/chat/conversations", middleware.Handle(h.ListConversations), auth)
	rt.GET("/api/chat/conversations/:id/messages", middleware.Handle(h.ListMessages), auth)
	rt.POST("/api/chat/conversations/:id/messages", middleware.Handle(h.SendMessage), auth)
	rt.POST("/api/chat/conversations/:id/read", middleware.Handle(h.MarkRead), auth)
}

type ensureDMReq struct {
	OtherUserID string `json:"otherUserId"`
}

// EnsureDM POST /api/chat/dm
func (h *Handler) EnsureDM(c *gin.Context) error {
	var req ensureDMReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrInvalidRequest.WrapMsg("bad body")
	}
	conv, err := h.dir.EnsureDirectMessage(c.Request.Context(), midsec.Principal(c), req.OtherUserID)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conv.ID})
	return nil
}

type createGroupReq struct {
	Members []string `json:"members"`
}

// CreateGroup POST /api/chat/groups
func (h *Handler) CreateGroup(c *gin.Context) error {
	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrInvalidRequest.WrapMsg("bad body")
	}
	conv, err := h.dir.CreateGroup(c.Request.Context(), midsec.Principal(c), req.Members)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conv.ID})
	return nil
}

// ListConversations GET /api/chat/conversations
func (h *Handler) ListConversations(c *gin.Context) error {
	list, err := h.dir.ListForUser(c.Request.Context(), midsec.Principal(c))
	if err != nil {
		return err
	}
	middleware.Items(c, list)
	return nil
}

// ListMessages GET /api/chat/conversations/:id/messages?page=&size=
func (h *Handler) ListMessages(c *gin.Context) error {
	page := model.Page{
		Page: middleware.QueryInt(c, "page", 0),
		Size: middleware.QueryInt(c, "size", model.DefaultPageSize),
	}
	msgs, err := h.log.ListFor(c.Request.Context(), midsec.Principal(c), c.Param("id"), page)
	if err != nil {
		return err
	}
	middleware.Items(c, msgs)
	return nil
}

type sendReq struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl"`
}

// SendMessage POST /api/chat/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) error {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrInvalidRequest.WrapMsg("bad body")
	}
	msg, err := h.log.Append(c.Request.Context(), c.Param("id"), midsec.Principal(c), req.Content, req.AttachmentURL)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, msg)
	return nil
}

// MarkRead POST /api/chat/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) error {
	if err := h.unread.MarkConversationRead(c.Request.Context(), c.Param("id"), midsec.Principal(c)); err != nil {
		return err
	}
	c.Status(http.StatusNoContent)
	return nil
}
